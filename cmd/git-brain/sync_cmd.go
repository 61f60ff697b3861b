package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/msolo/cmdflag"

	"github.com/gitbrain/gitbrain/descriptor"
	"github.com/gitbrain/gitbrain/sync"
)

var (
	syncStrategy string
	syncReset    bool
)

var cmdSync = &cmdflag.Command{
	Name:      "sync",
	Run:       runSync,
	UsageLine: "sync [paths…] [--strategy=…] [--reset]",
	UsageLong: `Sync pulls every mapped neuron (or the ones matching the given
destination paths) from its brain into the consumer working tree.`,
	Flags: []cmdflag.Flag{
		{"strategy", cmdflag.FlagTypeString, "", "override the configured conflict strategy (prompt, prefer_brain, prefer_local)", nil},
		{"reset", cmdflag.FlagTypeBool, false, "force local-modifications-allowed for this call only", nil},
	},
	Args: cmdflag.PredictNothing,
}

func init() {
	cmdSync.BindFlagSet(map[string]interface{}{"strategy": &syncStrategy, "reset": &syncReset})
}

func runSync(ctx context.Context, cmd *cmdflag.Command, args []string) {
	strategy, reset := syncStrategy, syncReset

	root := repoRoot()
	cd, err := descriptor.LoadConsumerDescriptor(filepath.Join(root, ConsumerDescriptorName))
	exitOnError(err)

	opts := sync.Options{
		ForceReset:  reset,
		Interactive: isatty.IsTerminal(os.Stdin.Fd()),
		In:          os.Stdin,
		Out:         os.Stdout,
	}
	if strategy != "" {
		opts.StrategyOverride = descriptor.ConflictStrategy(strategy)
	}

	mappings := selectMappings(cd, args)
	var results []sync.Result
	err = sync.WithWorkTreeLock(root, func() error {
		results = make([]sync.Result, 0, len(mappings))
		for _, m := range mappings {
			results = append(results, sync.SyncOne(cd, m.BrainID, m.Source, m.Destination, root, opts))
		}
		return nil
	})
	exitOnError(err)
	printSyncSummary(results)
}

// selectMappings returns cd's full mapping list, or the subset whose
// destination was named on the command line when args is non-empty.
func selectMappings(cd *descriptor.ConsumerDescriptor, args []string) []descriptor.Mapping {
	if len(args) == 0 {
		return cd.Mappings
	}
	wanted := make(map[string]bool, len(args))
	for _, a := range args {
		wanted[filepath.Clean(a)] = true
	}
	var out []descriptor.Mapping
	for _, m := range cd.Mappings {
		if wanted[filepath.Clean(m.Destination)] {
			out = append(out, m)
		}
	}
	return out
}

func printSyncSummary(results []sync.Result) {
	failed := false
	for _, r := range results {
		if r.Status == sync.StatusError {
			failed = true
			fmt.Printf("error    %s::%s -> %s: %s\n", r.BrainID, r.Source, r.Destination, r.Message)
			continue
		}
		fmt.Printf("%-8s %s::%s -> %s\n", r.Action, r.BrainID, r.Source, r.Destination)
	}
	if failed {
		os.Exit(1)
	}
}
