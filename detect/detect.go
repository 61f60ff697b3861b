// Package detect implements the Modified-Neuron Detector of spec.md §4.4:
// given a consumer descriptor and a repo root, find the mappings whose
// destination overlaps the set of files Git reports as changed.
package detect

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gitbrain/gitbrain/descriptor"
	"github.com/gitbrain/gitbrain/gitapi"
)

// ModifiedNeurons returns the mappings in cd whose destinations overlap the
// driver's changed-file set, in mapping order, deduplicated by
// (brain-id, source, destination).
func ModifiedNeurons(driver *gitapi.Driver, cd *descriptor.ConsumerDescriptor, repoRoot string) ([]descriptor.Mapping, error) {
	changed, err := driver.ChangedFiles()
	if err != nil {
		return nil, err
	}
	normalizedChanged := make([]string, len(changed))
	for i, c := range changed {
		normalizedChanged[i] = normalize(c)
	}

	type key struct{ brainID, source, dest string }
	seen := make(map[key]bool)

	var out []descriptor.Mapping
	for _, m := range cd.Mappings {
		if !matches(m, repoRoot, normalizedChanged) {
			continue
		}
		k := key{m.BrainID, m.Source, m.Destination}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, m)
	}
	return out, nil
}

func matches(m descriptor.Mapping, repoRoot string, normalizedChanged []string) bool {
	dest := normalize(m.Destination)
	isDir := strings.HasSuffix(m.Destination, "/") || isDirOnDisk(filepath.Join(repoRoot, m.Destination))
	if isDir {
		prefix := strings.TrimSuffix(dest, "/") + "/"
		for _, c := range normalizedChanged {
			if c == strings.TrimSuffix(prefix, "/") || strings.HasPrefix(c, prefix) {
				return true
			}
		}
		return false
	}
	for _, c := range normalizedChanged {
		if c == dest {
			return true
		}
	}
	return false
}

func normalize(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}

func isDirOnDisk(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
