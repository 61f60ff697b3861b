// Package export implements the Export Engine of spec.md §4.7: pushing a
// consumer's modified neurons back onto their brains, either directly onto
// a clean local working tree or through a temp clone, commit, and push.
package export

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	log "github.com/msolo/go-bis/glug"
	"github.com/pkg/errors"

	"github.com/gitbrain/gitbrain/descriptor"
	"github.com/gitbrain/gitbrain/fsutil"
	"github.com/gitbrain/gitbrain/gitapi"
)

// PolicyError marks an export attempted while the consumer policy
// disallows pushing to a brain (spec.md §7).
type PolicyError struct {
	msg string
}

func (e *PolicyError) Error() string { return "policy: " + e.msg }

// Status is a per-brain outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is one brain group's export outcome (spec.md §4.7 step 4). State is
// the state-machine state exportGroup reached before returning - stateDone
// on success, stateError on failure.
type Result struct {
	Status          Status
	Message         string
	CommitID        string
	ExportedNeurons []descriptor.Mapping
	State           state
}

// Export runs the algorithm of spec.md §4.7 over the given modified-neuron
// mappings, grouped by brain. commitMessage, if non-empty, overrides the
// default multi-line summary for every brain group.
func Export(cfg *descriptor.ConsumerDescriptor, mappings []descriptor.Mapping, repoRoot, commitMessage string) (map[string]Result, error) {
	if !cfg.Policy.AllowPushToBrain {
		return nil, &PolicyError{msg: "export requested but ALLOW_PUSH_TO_BRAIN is false"}
	}

	groups := groupByBrain(mappings)
	results := make(map[string]Result, len(groups))
	for _, brainID := range sortedGroupKeys(groups) {
		results[brainID] = exportGroup(cfg, brainID, groups[brainID], repoRoot, commitMessage)
	}
	return results, nil
}

func groupByBrain(mappings []descriptor.Mapping) map[string][]descriptor.Mapping {
	groups := make(map[string][]descriptor.Mapping)
	for _, m := range mappings {
		groups[m.BrainID] = append(groups[m.BrainID], m)
	}
	return groups
}

func sortedGroupKeys(groups map[string][]descriptor.Mapping) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func exportGroup(cfg *descriptor.ConsumerDescriptor, brainID string, mappings []descriptor.Mapping, repoRoot, commitMessageOverride string) Result {
	tracker := newStateTracker(brainID)

	brain, ok := cfg.Brains[brainID]
	if !ok {
		tracker.to(stateError)
		return Result{Status: StatusError, Message: "unknown brain " + brainID, State: tracker.current}
	}
	tracker.to(stateGrouped)

	message := commitMessageOverride
	if message == "" {
		message = defaultCommitMessage(mappings)
	}

	if localDir, ok := localCleanBrainDir(brain); ok {
		return exportLocal(tracker, localDir, mappings, repoRoot, message)
	}
	return exportViaClone(tracker, brain, mappings, repoRoot, message)
}

// localCleanBrainDir implements spec.md §4.7's local-direct gate: the
// remote must be a file:// URL resolving to an existing non-bare repo
// whose current branch matches the configured branch (or none is
// configured) and whose working tree is clean.
func localCleanBrainDir(brain descriptor.BrainEntry) (string, bool) {
	if !strings.HasPrefix(brain.Remote, "file://") {
		return "", false
	}
	dir := strings.TrimPrefix(brain.Remote, "file://")
	driver := gitapi.NewDriver(dir)
	if !driver.IsRepo() || driver.IsBare() {
		return "", false
	}
	if brain.Branch != "" {
		current, err := driver.CurrentBranch()
		if err != nil || current != brain.Branch {
			return "", false
		}
	}
	if !driver.IsClean() {
		return "", false
	}
	return dir, true
}

func exportLocal(tracker *stateTracker, brainDir string, mappings []descriptor.Mapping, repoRoot, message string) Result {
	tracker.to(stateCopyLocal)
	if err := copyNeurons(mappings, repoRoot, brainDir); err != nil {
		tracker.to(stateError)
		return Result{Status: StatusError, Message: err.Error(), State: tracker.current}
	}
	driver := gitapi.NewDriver(brainDir)
	tracker.to(stateAdd)
	commitID, err := addAndCommit(tracker, driver, message)
	if err != nil {
		tracker.to(stateError)
		return Result{Status: StatusError, Message: err.Error(), State: tracker.current}
	}
	tracker.to(stateDone)
	return Result{Status: StatusSuccess, CommitID: commitID, ExportedNeurons: mappings, Message: "committed locally, no push", State: tracker.current}
}

func exportViaClone(tracker *stateTracker, brain descriptor.BrainEntry, mappings []descriptor.Mapping, repoRoot, message string) Result {
	tracker.to(stateClone)
	cloneDir, err := gitapi.NewDriver(repoRoot).TempClone(brain.Remote, brain.Branch)
	if err != nil {
		tracker.to(stateError)
		return Result{Status: StatusError, Message: errors.WithMessage(err, "clone brain").Error(), State: tracker.current}
	}
	cleanedUp := false
	cleanup := func() {
		if cleanedUp {
			return
		}
		cleanedUp = true
		tracker.to(stateCleanup)
		if rmErr := os.RemoveAll(cloneDir); rmErr != nil {
			log.Warningf("export: failed to remove temp clone %s: %s", cloneDir, rmErr)
		}
	}
	defer cleanup()

	tracker.to(stateCopy)
	if err := copyNeurons(mappings, repoRoot, cloneDir); err != nil {
		tracker.to(stateError)
		return Result{Status: StatusError, Message: err.Error(), State: tracker.current}
	}
	driver := gitapi.NewDriver(cloneDir)
	tracker.to(stateAdd)
	commitID, err := addAndCommit(tracker, driver, message)
	if err != nil {
		tracker.to(stateError)
		return Result{Status: StatusError, Message: err.Error(), State: tracker.current}
	}
	tracker.to(statePush)
	if _, err := driver.Run("push"); err != nil {
		tracker.to(stateError)
		return Result{Status: StatusError, Message: errors.WithMessage(err, "push").Error(), State: tracker.current}
	}
	cleanup()
	tracker.to(stateDone)
	return Result{Status: StatusSuccess, CommitID: commitID, ExportedNeurons: mappings, Message: "committed and pushed", State: tracker.current}
}

func copyNeurons(mappings []descriptor.Mapping, repoRoot, brainDir string) error {
	for _, m := range mappings {
		src := filepath.Join(repoRoot, m.Destination)
		dst := filepath.Join(brainDir, m.Source)
		if !fsutil.Exists(src) {
			return errors.New("export: consumer content missing for " + m.Destination)
		}
		if err := fsutil.EnsureParentDir(dst); err != nil {
			return err
		}
		if err := fsutil.CopyTree(src, dst); err != nil {
			return errors.WithMessage(err, "export: copy "+src+" -> "+dst)
		}
	}
	return nil
}

func addAndCommit(tracker *stateTracker, driver *gitapi.Driver, message string) (string, error) {
	if _, err := driver.Run("add", "."); err != nil {
		return "", errors.WithMessage(err, "git add")
	}
	tracker.to(stateCommit)
	if _, err := driver.Run("commit", "-m", message); err != nil {
		return "", errors.WithMessage(err, "git commit")
	}
	return driver.Run("rev-parse", "HEAD")
}

// commitMessageTemplate renders the multi-line summary spec.md §4.7 step 3
// names: one "source <- destination" line per exported pair.
var commitMessageTemplate = template.Must(template.New("export-commit").Parse(
	"export neuron updates\n\n" +
		"{{range .}}{{.Source}} <- {{.Destination}}\n{{end}}"))

func defaultCommitMessage(mappings []descriptor.Mapping) string {
	var b strings.Builder
	if err := commitMessageTemplate.Execute(&b, mappings); err != nil {
		log.Warningf("export: commit message template failed: %s", err)
	}
	return b.String()
}
