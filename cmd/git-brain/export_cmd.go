package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/msolo/cmdflag"
	"github.com/tebeka/atexit"

	"github.com/gitbrain/gitbrain/descriptor"
	"github.com/gitbrain/gitbrain/detect"
	"github.com/gitbrain/gitbrain/export"
	"github.com/gitbrain/gitbrain/gitapi"
)

var exportForce bool

var cmdExport = &cmdflag.Command{
	Name:      "export",
	Run:       runExport,
	UsageLine: "export [paths…] [--force]",
	UsageLong: `Export pushes modified neurons (or the ones matching the given
destination paths) back onto the brains that own them. Requires
ALLOW_PUSH_TO_BRAIN in the consumer descriptor's [SYNC_POLICY].`,
	Flags: []cmdflag.Flag{
		{"force", cmdflag.FlagTypeBool, false, "skip the interactive confirmation", nil},
	},
	Args: cmdflag.PredictNothing,
}

func init() {
	cmdExport.BindFlagSet(map[string]interface{}{"force": &exportForce})
}

func runExport(ctx context.Context, cmd *cmdflag.Command, args []string) {
	force := exportForce

	root := repoRoot()
	cd, err := descriptor.LoadConsumerDescriptor(filepath.Join(root, ConsumerDescriptorName))
	exitOnError(err)

	driver := gitapi.NewDriver(root)
	mappings, err := detect.ModifiedNeurons(driver, cd, root)
	exitOnError(err)
	if len(args) > 0 {
		mappings = selectMappings(cd, args)
	}
	if len(mappings) == 0 {
		fmt.Println("no modified neurons to export")
		return
	}

	if !force && !confirmExport(mappings) {
		atexit.Fatal(fmt.Errorf("export: user aborted"))
		return
	}

	results, err := export.Export(cd, mappings, root, "")
	exitOnError(err)
	printExportSummary(results)
}

func confirmExport(mappings []descriptor.Mapping) bool {
	fmt.Println("about to export:")
	for _, m := range mappings {
		fmt.Printf("  %s <- %s\n", m.Source, m.Destination)
	}
	fmt.Print("proceed? (y/n) ")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return len(line) > 0 && (line[0] == 'y' || line[0] == 'Y')
}

func printExportSummary(results map[string]export.Result) {
	brainIDs := make([]string, 0, len(results))
	for id := range results {
		brainIDs = append(brainIDs, id)
	}
	sort.Strings(brainIDs)

	failed := false
	for _, id := range brainIDs {
		r := results[id]
		if r.Status == export.StatusError {
			failed = true
			fmt.Printf("error  %s: %s\n", id, r.Message)
			continue
		}
		fmt.Printf("ok     %s: %s (commit %s)\n", id, r.Message, r.CommitID)
	}
	if failed {
		os.Exit(1)
	}
}
