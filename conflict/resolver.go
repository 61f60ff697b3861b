// Package conflict implements the Conflict Resolver of spec.md §4.2: given
// a destination's local and brain-side bytes, a conflict strategy, and an
// interactivity context, decide which bytes win (or merge them), producing
// a Resolution.
package conflict

import (
	"bufio"
	"fmt"
	"io"
	"unicode/utf8"

	log "github.com/msolo/go-bis/glug"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/gitbrain/gitbrain/descriptor"
	"github.com/gitbrain/gitbrain/gitapi"
)

// Resolution names which side's (or which merged form's) bytes won.
type Resolution string

const (
	ResolutionBrain               Resolution = "brain"
	ResolutionLocal                Resolution = "local"
	ResolutionMerged               Resolution = "merged"
	ResolutionMergedWithConflicts  Resolution = "merged-with-conflicts"
)

// Result is the Conflict Resolver's output.
type Result struct {
	Resolution Resolution
	Content    []byte
}

// UserAbort marks an interactive prompt declined by the user (spec.md §7).
type UserAbort struct {
	Label string
}

func (e *UserAbort) Error() string {
	return fmt.Sprintf("conflict: user aborted resolution of %q", e.Label)
}

// Context carries everything the resolver needs beyond the two byte slices:
// the label shown in diffs/prompts, the nominal strategy, whether local
// modifications are policy-allowed (drives the effective-strategy rule),
// whether the controlling input is a TTY, and the driver used for
// merge-file when the user chooses to merge.
type Context struct {
	Label                   string
	Strategy                descriptor.ConflictStrategy
	AllowLocalModifications bool
	Interactive             bool
	Driver                  *gitapi.Driver
	In                      io.Reader
	Out                     io.Writer
}

// effectiveStrategy applies spec.md §4.2's degradation rule: prompt with
// local modifications disallowed behaves exactly as prefer-brain.
func (c Context) effectiveStrategy() descriptor.ConflictStrategy {
	if c.Strategy == descriptor.StrategyPrompt && !c.AllowLocalModifications {
		return descriptor.StrategyPreferBrain
	}
	return c.Strategy
}

// Differs reports whether local and brain bytes should be treated as
// conflicting: a plain byte compare (for valid UTF-8 a separate string
// compare would give the same answer, so none is made). Any difference
// yields true; this function never returns false for differing byte slices.
func Differs(local, brain []byte) bool {
	if len(local) != len(brain) {
		return true
	}
	for i := range local {
		if local[i] != brain[i] {
			return true
		}
	}
	return false
}

// Resolve runs the algorithm in spec.md §4.2.
func Resolve(ctx Context, local, brain []byte) (Result, error) {
	switch ctx.effectiveStrategy() {
	case descriptor.StrategyPreferBrain:
		return Result{Resolution: ResolutionBrain, Content: brain}, nil
	case descriptor.StrategyPreferLocal:
		return Result{Resolution: ResolutionLocal, Content: local}, nil
	}

	if !ctx.Interactive {
		return Result{Resolution: ResolutionBrain, Content: brain}, nil
	}
	return resolveInteractive(ctx, local, brain)
}

func resolveInteractive(ctx Context, local, brain []byte) (Result, error) {
	isText := utf8.Valid(local) && utf8.Valid(brain)

	if isText {
		diff := unifiedDiff(ctx.Label, local, brain)
		if diff != "" {
			fmt.Fprint(ctx.Out, diff)
		}
	} else {
		fmt.Fprintf(ctx.Out, "%s: binary content differs\n", ctx.Label)
	}

	reader := bufio.NewReader(ctx.In)
	for {
		if isText {
			fmt.Fprintf(ctx.Out, "%s: keep (b)rain, (l)ocal, or (m)erge? ", ctx.Label)
		} else {
			fmt.Fprintf(ctx.Out, "%s: keep (b)rain or (l)ocal? ", ctx.Label)
		}
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return Result{}, &UserAbort{Label: ctx.Label}
		}
		choice := firstNonSpaceByte(line)
		switch choice {
		case 'b':
			return Result{Resolution: ResolutionBrain, Content: brain}, nil
		case 'l':
			return Result{Resolution: ResolutionLocal, Content: local}, nil
		case 'm':
			if !isText {
				fmt.Fprintln(ctx.Out, "merge is not offered for binary content")
				continue
			}
			return mergeChoice(ctx, local, brain)
		default:
			fmt.Fprintln(ctx.Out, "unrecognized choice")
		}
	}
}

func mergeChoice(ctx Context, local, brain []byte) (Result, error) {
	out, hadConflicts, err := ctx.Driver.MergeFile(local, brain, nil)
	if err != nil {
		return Result{}, errors.WithMessage(err, "conflict: merge "+ctx.Label)
	}
	log.Tracef("merged %s conflicts=%v", ctx.Label, hadConflicts).Finish()
	if hadConflicts {
		return Result{Resolution: ResolutionMergedWithConflicts, Content: out}, nil
	}
	return Result{Resolution: ResolutionMerged, Content: out}, nil
}

func firstNonSpaceByte(s string) byte {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == ' ' || b == '\t' {
			continue
		}
		return lower(b)
	}
	return 0
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

func unifiedDiff(label string, local, brain []byte) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(local)),
		B:        difflib.SplitLines(string(brain)),
		FromFile: label + " (local)",
		ToFile:   label + " (brain)",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return text
}
