// Command git-brain is the CLI surface of spec.md §6: `sync` and `export`
// subcommands driving the Sync and Export Engines against the consumer
// descriptor in the current repo.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/tebeka/atexit"

	"github.com/msolo/cmdflag"

	"github.com/gitbrain/gitbrain/gitapi"
)

// BrainDescriptorName and ConsumerDescriptorName are the two descriptor
// files spec.md §6 specifies the format of, without naming a path; these
// are git-brain's concrete choice, analogous to git's own ".gitmodules".
const (
	BrainDescriptorName    = ".neuron-brain"
	ConsumerDescriptorName = ".neuron-consumer"
)

var cmdMain = &cmdflag.Command{
	Name: "git-brain",
	UsageLong: `git-brain - a tool to synchronize versioned files between repositories

git-brain lets a consumer repository import versioned files or
directories ("neurons") from one or more upstream "brain" repositories,
keep them in sync, resolve conflicts when both sides have changed, merge
neuron-provided dependency manifests into the consumer's own manifest,
and export local edits back to the brain that owns them.

git-brain reads ` + ConsumerDescriptorName + ` at the consumer repo root
and ` + BrainDescriptorName + ` at each brain repo root.
`,
	Args: cmdflag.PredictNothing,
}

var subcommands = []*cmdflag.Command{
	cmdSync,
	cmdExport,
}

// exitOnError implements spec.md §6's exit code contract: 0 on success, 1 on
// policy or core error, git's own exit code on external failure.
func exitOnError(err error) {
	if err == nil {
		return
	}
	// Walk the Cause() chain by hand: errors.Cause would step past the
	// *gitapi.GitError itself, since it too exposes Cause().
	for e := err; e != nil; {
		if gitErr, ok := e.(*gitapi.GitError); ok {
			if code, ok := gitErr.ExitStatus(); ok {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(code)
			}
			break
		}
		c, ok := e.(interface{ Cause() error })
		if !ok {
			break
		}
		e = c.Cause()
	}
	atexit.Fatal(err)
}

// glogLine formats apex/log entries in glog's terse style, exactly as
// cmd/git-sync's own handler does.
func glogLine(ent *log.Entry) error {
	levelStr := "DIWEF"
	tsFmt := "0102 15:04:05.000000"
	tsStr := ent.Timestamp.Format(tsFmt)
	msg := strings.TrimSpace(ent.Message)
	fmt.Fprintf(os.Stderr, "%c%s ] %s\n", levelStr[ent.Level], tsStr, msg)
	return nil
}

func main() {
	defer atexit.Exit(0)

	if val := os.Getenv("GIT_TRACE"); val != "" && val != "0" {
		log.SetLevel(log.DebugLevel)
	}
	log.SetHandler(log.HandlerFunc(glogLine))

	cmd, args := cmdflag.Parse(cmdMain, subcommands)
	cmd.Run(context.Background(), cmd, args)
}

func repoRoot() string {
	dir, err := os.Getwd()
	exitOnError(err)
	return dir
}
