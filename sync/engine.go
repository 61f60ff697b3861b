// Package sync implements the Sync Engine of spec.md §4.5: pulling one or
// all mapped neurons from their brains into the consumer working tree,
// resolving conflicts, and merging neuron-provided dependency manifests
// into the consumer's root manifest.
package sync

import (
	"os"
	"path/filepath"

	log "github.com/msolo/go-bis/glug"
	"github.com/msolo/go-bis/flock"
	"github.com/pkg/errors"

	"github.com/gitbrain/gitbrain/conflict"
	"github.com/gitbrain/gitbrain/descriptor"
	"github.com/gitbrain/gitbrain/fsutil"
	"github.com/gitbrain/gitbrain/gitapi"
	"github.com/gitbrain/gitbrain/requirements"
)

// Action summarizes what a single neuron sync did.
type Action string

const (
	ActionAdded     Action = "added"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
	ActionSkipped   Action = "skipped"
)

// Status is the outer success/error split of a Result.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the per-neuron outcome spec.md §4.5 step 9 names.
type Result struct {
	Status              Status
	Action              Action
	Message             string
	RequirementsMerged  bool
	BrainID             string
	Source              string
	Destination         string
}

// RequirementsManifestName is the consumer root manifest's filename.
const RequirementsManifestName = "requirements.txt"

// SyncError marks a source-not-found, copy, or write failure (spec.md §7).
type SyncError struct {
	msg   string
	cause error
}

func (e *SyncError) Error() string {
	if e.cause != nil {
		return "sync: " + e.msg + ": " + e.cause.Error()
	}
	return "sync: " + e.msg
}

func (e *SyncError) Cause() error { return e.cause }

func syncErrorf(cause error, msg string) *SyncError {
	return &SyncError{msg: msg, cause: cause}
}

// Options carries per-call overrides that are not policy-persisted: a CLI
// `--reset` forces AllowLocalModifications true for this call only, and
// `--strategy` overrides the configured conflict strategy.
type Options struct {
	StrategyOverride descriptor.ConflictStrategy
	ForceReset       bool
	Interactive      bool
	In               *os.File
	Out              *os.File
}

func (o Options) effectivePolicy(p descriptor.SyncPolicy) descriptor.SyncPolicy {
	if o.ForceReset {
		p.AllowLocalModifications = true
	}
	if o.StrategyOverride != "" {
		p.ConflictStrategy = o.StrategyOverride
	}
	return p
}

// SyncOne performs the algorithm of spec.md §4.5 for a single mapping.
func SyncOne(cfg *descriptor.ConsumerDescriptor, brainID, source, destination, repoRoot string, opts Options) Result {
	result := Result{BrainID: brainID, Source: source, Destination: destination}

	brain, ok := cfg.Brains[brainID]
	if !ok {
		result.Status = StatusError
		result.Message = "unknown brain " + brainID
		return result
	}

	policy := opts.effectivePolicy(cfg.Policy)

	cloneDir, err := gitapi.NewDriver(repoRoot).TempClone(brain.Remote, brain.Branch)
	if err != nil {
		result.Status = StatusError
		result.Message = errors.Wrap(err, "clone brain").Error()
		return result
	}
	defer os.RemoveAll(cloneDir)

	src := filepath.Join(cloneDir, source)
	dst := filepath.Join(repoRoot, destination)

	if err := fsutil.EnsureParentDir(dst); err != nil {
		result.Status = StatusError
		result.Message = err.Error()
		return result
	}

	if !fsutil.Exists(src) {
		result.Status = StatusError
		result.Message = "source path not found: " + source
		return result
	}

	srcIsDir := fsutil.IsDir(src)

	var action Action
	var syncErr error
	if srcIsDir {
		action, syncErr = syncDir(policy, opts, source, src, dst)
	} else {
		action, syncErr = syncFile(policy, opts, source, src, dst)
	}
	if syncErr != nil {
		result.Status = StatusError
		result.Message = syncErr.Error()
		return result
	}
	result.Action = action

	merged, err := mergeRequirements(source, srcIsDir, cloneDir, repoRoot)
	if err != nil {
		log.Warningf("requirements merge failed for %s: %s", source, err)
	}
	result.RequirementsMerged = merged

	result.Status = StatusSuccess
	return result
}

// SyncAll iterates cfg's mapping list in order, calling SyncOne for each,
// holding WithWorkTreeLock for the duration of the whole batch. A per-neuron
// failure is captured in its Result and never aborts the batch.
func SyncAll(cfg *descriptor.ConsumerDescriptor, repoRoot string, opts Options) ([]Result, error) {
	var results []Result
	err := WithWorkTreeLock(repoRoot, func() error {
		results = make([]Result, 0, len(cfg.Mappings))
		for _, m := range cfg.Mappings {
			results = append(results, SyncOne(cfg, m.BrainID, m.Source, m.Destination, repoRoot, opts))
		}
		return nil
	})
	return results, err
}

// WithWorkTreeLock guards fn with an exclusive flock on the consumer's
// working tree for the duration of a sync batch (spec.md §5's "shared
// resources" note: the CLI guarantees single-writer by running one command
// at a time, enforced here with a real lock file) at
// <repoRoot>/.git/git-brain-sync.lock.
func WithWorkTreeLock(repoRoot string, fn func() error) error {
	lockPath := filepath.Join(repoRoot, ".git", "git-brain-sync.lock")
	fl, err := flock.Open(lockPath)
	if err != nil {
		return errors.WithMessage(err, "sync: open lock "+lockPath)
	}
	defer fl.Close()
	return fn()
}

func syncDir(policy descriptor.SyncPolicy, opts Options, sourceRel, src, dst string) (Action, error) {
	if !fsutil.IsDir(dst) {
		replaced := fsutil.Exists(dst)
		if err := fsutil.CopyTree(src, dst); err != nil {
			return "", syncErrorf(err, "copy tree "+src+" -> "+dst)
		}
		if size, sizeErr := fsutil.TreeSize(dst); sizeErr == nil {
			log.Tracef("materialized directory neuron %s (%s)", sourceRel, fsutil.FormatSize(size)).Finish()
		}
		if replaced {
			return ActionUpdated, nil
		}
		return ActionAdded, nil
	}

	changed := false
	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			return relErr
		}
		dstPath := filepath.Join(dst, rel)
		if info.IsDir() {
			return fsutil.EnsureDir(dstPath)
		}
		if isManifestName(sourceRel, filepath.Base(path)) {
			return nil
		}

		brainBytes, readErr := fsutil.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		if !fsutil.Exists(dstPath) {
			if err := fsutil.WriteFile(dstPath, brainBytes); err != nil {
				return err
			}
			changed = true
			return nil
		}

		localBytes, readErr := fsutil.ReadFile(dstPath)
		if readErr != nil {
			return readErr
		}
		if !conflict.Differs(localBytes, brainBytes) {
			return nil
		}
		res, resolveErr := conflict.Resolve(resolverContext(policy, opts, rel), localBytes, brainBytes)
		if resolveErr != nil {
			return resolveErr
		}
		if !conflict.Differs(localBytes, res.Content) {
			return nil
		}
		if err := fsutil.WriteFile(dstPath, res.Content); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return "", syncErrorf(err, "sync directory "+src)
	}
	if changed {
		return ActionUpdated, nil
	}
	return ActionUnchanged, nil
}

func syncFile(policy descriptor.SyncPolicy, opts Options, label, src, dst string) (Action, error) {
	brainBytes, err := fsutil.ReadFile(src)
	if err != nil {
		return "", syncErrorf(err, "read brain file "+src)
	}

	if !fsutil.Exists(dst) || fsutil.IsDir(dst) {
		replaced := fsutil.Exists(dst)
		if replaced {
			if err := fsutil.RemoveAll(dst); err != nil {
				return "", syncErrorf(err, "remove "+dst)
			}
		}
		if err := fsutil.WriteFile(dst, brainBytes); err != nil {
			return "", syncErrorf(err, "write "+dst)
		}
		if replaced {
			return ActionUpdated, nil
		}
		return ActionAdded, nil
	}

	localBytes, err := fsutil.ReadFile(dst)
	if err != nil {
		return "", syncErrorf(err, "read local file "+dst)
	}
	if !conflict.Differs(localBytes, brainBytes) {
		return ActionUnchanged, nil
	}
	res, err := conflict.Resolve(resolverContext(policy, opts, label), localBytes, brainBytes)
	if err != nil {
		return "", err
	}
	if !conflict.Differs(localBytes, res.Content) {
		return ActionUnchanged, nil
	}
	if err := fsutil.WriteFile(dst, res.Content); err != nil {
		return "", syncErrorf(err, "write "+dst)
	}
	return ActionUpdated, nil
}

func resolverContext(policy descriptor.SyncPolicy, opts Options, label string) conflict.Context {
	ctx := conflict.Context{
		Label:                   label,
		Strategy:                policy.ConflictStrategy,
		AllowLocalModifications: policy.AllowLocalModifications,
		Interactive:             opts.Interactive,
	}
	if opts.In != nil {
		ctx.In = opts.In
	}
	if opts.Out != nil {
		ctx.Out = opts.Out
	}
	return ctx
}

// mergeRequirements implements spec.md §4.6: find a neuron-provided
// manifest at one of the conventional locations, merge it with the
// consumer root manifest, and write the result back.
func mergeRequirements(source string, srcIsDir bool, cloneDir, repoRoot string) (bool, error) {
	for _, loc := range manifestLocations(source, srcIsDir) {
		cloneLoc := filepath.Join(cloneDir, loc)
		if !fsutil.Exists(cloneLoc) {
			continue
		}
		neuronText, err := fsutil.ReadFile(cloneLoc)
		if err != nil {
			return false, err
		}
		rootPath := filepath.Join(repoRoot, RequirementsManifestName)
		var consumerText []byte
		if fsutil.Exists(rootPath) {
			consumerText, err = fsutil.ReadFile(rootPath)
			if err != nil {
				return false, err
			}
		}
		merged := requirements.MergeText(string(consumerText), string(neuronText))
		if err := fsutil.WriteFile(rootPath, []byte(merged)); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
