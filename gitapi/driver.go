package gitapi

import (
	"bytes"
	"context"
	"os"
	"strings"
	"time"

	log "github.com/msolo/go-bis/glug"
)

// DefaultTimeout is applied to every Driver invocation unless overridden.
const DefaultTimeout = 60 * time.Second

// Driver is a thin wrapper over the git executable. All git plumbing in
// this module goes through a Driver. It is a concrete struct, not an
// interface, so every caller (tests included) runs the real git binary.
type Driver struct {
	// Dir is passed to every invocation as `git -C <Dir>`. Empty means the
	// process's current working directory.
	Dir string
	// Timeout bounds every subprocess call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// NewDriver returns a Driver rooted at dir.
func NewDriver(dir string) *Driver {
	return &Driver{Dir: dir}
}

func (d *Driver) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return DefaultTimeout
}

// GetRestrictedEnv returns a minimal, deterministic environment for git
// subprocesses: only the variables git/ssh actually need, plus any
// GIT_TRACE* passthrough for debugging.
func GetRestrictedEnv() []string {
	keys := []string{"PATH", "USER", "LOGNAME", "HOME", "SSH_AUTH_SOCK"}
	env := make([]string, 0, len(keys))
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			env = append(env, key+"="+val)
		}
	}
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "GIT_TRACE") {
			env = append(env, kv)
		}
	}
	return env
}

// Run executes `git <args...>` with the driver's directory and timeout,
// returning stdout trimmed of trailing whitespace.
func (d *Driver) Run(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()
	cmd := d.command(ctx, args...)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", newGitError(KindTimeout, cmd.Args, "", ctx.Err())
		}
		return "", err
	}
	return string(bytes.TrimRight(out, " \t\r\n")), nil
}

func (d *Driver) command(ctx context.Context, args ...string) *Cmd {
	gitArgs := make([]string, 0, len(args)+2)
	if d.Dir != "" {
		gitArgs = append(gitArgs, "-C", d.Dir)
	}
	gitArgs = append(gitArgs, args...)
	cmd := CommandContext(ctx, "git", gitArgs...)
	cmd.Env = GetRestrictedEnv()
	return cmd
}

// IsRepo reports whether path is inside a working tree or a bare repo.
func (d *Driver) IsRepo() bool {
	_, err := (&Driver{Dir: d.Dir, Timeout: d.Timeout}).Run("rev-parse", "--is-inside-work-tree")
	if err == nil {
		return true
	}
	return d.IsBare()
}

// IsBare reports whether the repo at Dir is bare. It returns false (not an
// error) for a path that is not a repo at all, distinguished by matching
// "not a git repository" in stderr, per spec.md.
func (d *Driver) IsBare() bool {
	out, err := d.Run("rev-parse", "--is-bare-repository")
	if err != nil {
		if gitErr, ok := err.(*GitError); ok && strings.Contains(strings.ToLower(gitErr.Stderr), "not a git repository") {
			return false
		}
		return false
	}
	return out == "true"
}

// Toplevel returns the absolute repo root.
func (d *Driver) Toplevel() (string, error) {
	return d.Run("rev-parse", "--show-toplevel")
}

// CurrentBranch returns the checked-out branch name.
func (d *Driver) CurrentBranch() (string, error) {
	return d.Run("rev-parse", "--abbrev-ref", "HEAD")
}

// IsClean reports whether the working tree has no pending changes at all
// (not scoped to a single path, unlike IsModified).
func (d *Driver) IsClean() bool {
	out, err := d.Run("status", "--porcelain")
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) == ""
}

// IsTracked reports whether path is tracked in the index.
func (d *Driver) IsTracked(path string) bool {
	_, err := d.Run("ls-files", "--error-unmatch", "--", path)
	return err == nil
}

// IsModified reports whether path has a non-clean porcelain status.
func (d *Driver) IsModified(path string) bool {
	out, err := d.Run("status", "--porcelain", "--", path)
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) != ""
}

// BlobHashAtHead returns the hex blob hash of path at HEAD.
func (d *Driver) BlobHashAtHead(path string) (string, error) {
	return d.Run("rev-parse", "HEAD:"+path)
}

// ChangedFiles returns the repo-relative paths of every file with a
// non-clean porcelain status, unquoting porcelain's C-style quoting of
// unusual filenames.
func (d *Driver) ChangedFiles() ([]string, error) {
	out, err := d.rawPorcelain()
	if err != nil {
		return nil, err
	}
	return parsePorcelainNames(out), nil
}

func (d *Driver) rawPorcelain() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()
	cmd := d.command(ctx, "status", "--porcelain", "--untracked-files=all")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// parsePorcelainNames extracts filenames from `git status --porcelain`
// output, unquoting any name git wrapped in double quotes because it
// contains whitespace or non-ASCII bytes.
func parsePorcelainNames(porcelain string) []string {
	lines := strings.Split(porcelain, "\n")
	names := make([]string, 0, len(lines))
	for _, line := range lines {
		if len(line) < 4 {
			continue
		}
		status := line[:2]
		fname := line[3:]
		if status == "UU" {
			log.Warningf("ignoring unmerged file: %s", fname)
			continue
		}
		if strings.Contains(status, "R") {
			// Rename: "old -> new"; the new path is what's materialized locally.
			if idx := strings.Index(fname, " -> "); idx >= 0 {
				fname = fname[idx+4:]
			}
		}
		names = append(names, unquotePorcelainName(fname))
	}
	return names
}

func unquotePorcelainName(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		unq, err := unquoteCStyle(s[1 : len(s)-1])
		if err == nil {
			return unq
		}
	}
	return s
}

// unquoteCStyle reverses git's core.quotepath escaping: octal byte escapes
// and the common single-character escapes (\\, \", \t, \n).
func unquoteCStyle(s string) (string, error) {
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			buf.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			return "", errUnterminatedEscape
		}
		switch s[i] {
		case '\\':
			buf.WriteByte('\\')
		case '"':
			buf.WriteByte('"')
		case 't':
			buf.WriteByte('\t')
		case 'n':
			buf.WriteByte('\n')
		default:
			if s[i] >= '0' && s[i] <= '7' && i+2 < len(s) {
				oct := s[i : i+3]
				var v int
				for _, d := range oct {
					v = v*8 + int(d-'0')
				}
				buf.WriteByte(byte(v))
				i += 2
			} else {
				buf.WriteByte(s[i])
			}
		}
	}
	return buf.String(), nil
}

var errUnterminatedEscape = &GitError{Kind: KindExecution, Stderr: "unterminated escape in porcelain filename"}
