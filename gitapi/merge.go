package gitapi

import (
	"io/ioutil"
	"os"
	"path"
	"strings"
)

// MergeFile runs `git merge-file` on three in-memory blobs (no base is
// required to exist - an empty base is common for the conflict resolver's
// best-effort merge strategy) and returns the merged bytes plus whether
// conflict markers are present in the result.
func (d *Driver) MergeFile(local, brain, base []byte) ([]byte, bool, error) {
	tmpDir, err := ioutil.TempDir("", "git-brain-mergefile-")
	if err != nil {
		return nil, false, err
	}
	defer os.RemoveAll(tmpDir)

	localPath := path.Join(tmpDir, "local")
	brainPath := path.Join(tmpDir, "brain")
	basePath := path.Join(tmpDir, "base")
	if err := ioutil.WriteFile(localPath, local, 0644); err != nil {
		return nil, false, err
	}
	if err := ioutil.WriteFile(brainPath, brain, 0644); err != nil {
		return nil, false, err
	}
	if err := ioutil.WriteFile(basePath, base, 0644); err != nil {
		return nil, false, err
	}

	cmd := Command("git", "merge-file", "--stdout", localPath, basePath, brainPath)
	out, err := cmd.Output()
	hadConflicts := strings.Contains(string(out), "<<<<<<<")
	if err != nil {
		if gitErr, ok := err.(*GitError); ok && gitErr.Kind == KindExitStatus {
			// merge-file exits non-zero with the conflicting result still on
			// stdout when there were conflicts; that's a normal outcome here.
			return out, true, nil
		}
		return nil, false, err
	}
	return out, hadConflicts, nil
}
