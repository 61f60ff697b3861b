package gitapi

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	log "github.com/msolo/go-bis/glug"
)

// popularForgeHosts is used only to decide whether an authentication hint
// is plausible; it is not an allowlist of anything security-relevant.
var popularForgeHosts = []string{"github.com", "gitlab.com", "bitbucket.org"}

var authFailureMarkers = []string{
	"authentication",
	"permission denied",
	"403",
	"could not read",
	"ssh key",
	"publickey",
}

func looksLikePopularForge(url string) bool {
	lower := strings.ToLower(url)
	for _, host := range popularForgeHosts {
		if strings.Contains(lower, host) {
			return true
		}
	}
	return false
}

func looksLikeAuthFailure(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, marker := range authFailureMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// isLocalPath reports whether url is a file:// URL or an absolute path to
// an existing directory - the two forms that warrant a full (non-shallow)
// clone, since a shallow clone of a same-machine repo buys nothing.
func isLocalPath(url string) (string, bool) {
	if strings.HasPrefix(url, "file://") {
		return strings.TrimPrefix(url, "file://"), true
	}
	if filepath.IsAbs(url) {
		if fi, err := os.Stat(url); err == nil && fi.IsDir() {
			return url, true
		}
	}
	return "", false
}

// Clone runs `git clone <args...> <url> <target>`.
func (d *Driver) Clone(url, target string, args ...string) error {
	cloneArgs := append([]string{"clone"}, args...)
	cloneArgs = append(cloneArgs, url, target)
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout())
	defer cancel()
	cmd := CommandContext(ctx, "git", cloneArgs...)
	cmd.Env = GetRestrictedEnv()
	_, err := cmd.Output()
	if err != nil {
		return decorateAuthHint(err, url)
	}
	return nil
}

func decorateAuthHint(err error, url string) error {
	gitErr, ok := err.(*GitError)
	if !ok {
		return err
	}
	if looksLikePopularForge(url) && looksLikeAuthFailure(gitErr.Stderr) {
		gitErr.AuthHint = "this looks like an authentication failure talking to " +
			url + " - check your SSH agent or credential helper"
	}
	return gitErr
}

// TempClone clones url at branch into a freshly created temp directory.
// The clone is shallow (--depth=1 --quiet) unless url is a local path, in
// which case it is a full, quiet clone. The caller owns the returned
// directory and must remove it; on clone failure the temp directory is
// removed automatically before returning.
func (d *Driver) TempClone(url, branch string) (dir string, err error) {
	tmpDir, err := ioutil.TempDir("", "git-brain-clone-")
	if err != nil {
		return "", err
	}
	cloneArgs := []string{}
	if _, local := isLocalPath(url); local {
		cloneArgs = append(cloneArgs, "--quiet")
	} else {
		cloneArgs = append(cloneArgs, "--depth=1", "--quiet")
	}
	if branch != "" {
		cloneArgs = append(cloneArgs, "--branch", branch)
	}
	cloner := &Driver{Timeout: d.timeout()}
	if err := cloner.Clone(url, tmpDir, cloneArgs...); err != nil {
		log.Warningf("temp clone of %s failed, removing %s: %s", url, tmpDir, err)
		os.RemoveAll(tmpDir)
		return "", err
	}
	return tmpDir, nil
}
