package gitapi

import (
	"bytes"
	"context"
	"os/exec"
	"path"
	"strings"
	"syscall"

	log "github.com/msolo/go-bis/glug"
)

// Cmd wraps exec.Cmd so every invocation is traced (when enabled) and every
// non-zero exit is normalized into a *GitError carrying the captured stderr.
type Cmd struct {
	*exec.Cmd
	trace bool
}

var trace = true

func (cmd *Cmd) bashString() string {
	args := make([]string, len(cmd.Args))
	for i, x := range cmd.Args {
		args[i] = BashQuoteWord(x)
	}
	return strings.Join(args, " ")
}

// Command builds a traced Cmd, analogous to exec.Command.
func Command(name string, arg ...string) *Cmd {
	cmd := exec.Command(name, arg...)
	return &Cmd{Cmd: cmd, trace: trace}
}

// CommandContext builds a traced, context-bound Cmd, analogous to
// exec.CommandContext. The Driver uses this to enforce its timeout.
func CommandContext(ctx context.Context, name string, arg ...string) *Cmd {
	cmd := exec.CommandContext(ctx, name, arg...)
	return &Cmd{Cmd: cmd, trace: trace}
}

func wrapErr(err error, cmd *exec.Cmd) error {
	if err == nil {
		return nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		prefix := "  " + path.Base(cmd.Args[0]) + ": "
		if len(exitErr.Stderr) > 0 {
			exitErr.Stderr = append([]byte(prefix),
				bytes.Replace(exitErr.Stderr[:len(exitErr.Stderr)-1], []byte("\n"), []byte("\n"+prefix), -1)...)
			exitErr.Stderr = append(exitErr.Stderr, '\n')
		}
		return newGitError(KindExitStatus, cmd.Args, string(exitErr.Stderr), exitErr)
	}
	if execErr, ok := err.(*exec.Error); ok && execErr.Err == exec.ErrNotFound {
		return newGitError(KindMissingExecutable, cmd.Args, err.Error(), err)
	}
	return newGitError(KindExecution, cmd.Args, err.Error(), err)
}

// Run executes the command, discarding stdout, tracing on completion.
func (cmd *Cmd) Run() error {
	if cmd.trace {
		defer log.Tracef("exec: %s", cmd.bashString()).Finish()
	}
	return wrapErr(cmd.Cmd.Run(), cmd.Cmd)
}

// Output executes the command and returns stdout.
func (cmd *Cmd) Output() ([]byte, error) {
	if cmd.trace {
		defer log.Tracef("exec: %s", cmd.bashString()).Finish()
	}
	data, err := cmd.Cmd.Output()
	return data, wrapErr(err, cmd.Cmd)
}

// CombinedOutput executes the command and returns combined stdout+stderr.
func (cmd *Cmd) CombinedOutput() ([]byte, error) {
	if cmd.trace {
		defer log.Tracef("exec: %s", cmd.bashString()).Finish()
	}
	data, err := cmd.Cmd.CombinedOutput()
	return data, wrapErr(err, cmd.Cmd)
}

func exitStatus(err error) (int, bool) {
	if gitErr, ok := err.(*GitError); ok {
		if exitErr, ok := gitErr.cause.(*exec.ExitError); ok {
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				return ws.ExitStatus(), true
			}
		}
	}
	return 0, false
}
