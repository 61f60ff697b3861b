package sync

import "path/filepath"

// manifestLocations returns the candidate neuron-provided requirements
// manifest paths for a neuron whose brain-relative source is src, per
// spec.md §4.6. isDir is the authoritative directory-vs-file classification
// already computed from the clone's filesystem (SyncOne's fsutil.IsDir(src))
// rather than re-guessed from src's trailing slash, so a directory mapping
// whose source happens to lack a trailing "/" still gets the directory
// candidates.
//
// Directory neuron: S/requirements.txt and
// S/<basename(dir)>requirements.txt (concatenated, no separator - an
// unusual convention the specification preserves rather than "fixes"; see
// the open question recorded in SPEC_FULL.md).
//
// File neuron "file.ext": file.extrequirements.txt adjacent to the file.
func manifestLocations(src string, isDir bool) []string {
	if isDir {
		dir := filepath.Clean(src)
		base := filepath.Base(dir)
		return []string{
			filepath.Join(src, "requirements.txt"),
			filepath.Join(src, base+"requirements.txt"),
		}
	}
	return []string{src + "requirements.txt"}
}

// isManifestName reports whether base (a file's basename within a neuron
// directory being walked) is one of the manifest names manifestLocations
// would have produced for that directory, so the directory-sync branch can
// skip copying neuron-owned manifests as ordinary files.
func isManifestName(dirSrc string, base string) bool {
	for _, loc := range manifestLocations(dirSrc, true) {
		if filepath.Base(loc) == base {
			return true
		}
	}
	return false
}
