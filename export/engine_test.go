package export

import (
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/gitbrain/gitbrain/descriptor"
)

func mustRunGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func newBrainRepo(t *testing.T) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "export-brain-")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	mustRunGit(t, dir, "init", "-q", "-b", "main")
	mustRunGit(t, dir, "config", "user.email", "brain@example.com")
	mustRunGit(t, dir, "config", "user.name", "brain")
	if err := os.MkdirAll(filepath.Join(dir, "utils"), 0775); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dir, "utils", "common.py"), []byte("v1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	mustRunGit(t, dir, "add", ".")
	mustRunGit(t, dir, "commit", "-q", "-m", "init")
	return dir
}

func newConsumerWithModification(t *testing.T) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "export-consumer-")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	if err := os.MkdirAll(filepath.Join(dir, "src", "shared"), 0775); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dir, "src", "shared", "common_utils.py"), []byte("v2-local\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestExportPolicyGate(t *testing.T) {
	cfg := &descriptor.ConsumerDescriptor{
		Policy: descriptor.SyncPolicy{AllowPushToBrain: false},
	}
	_, err := Export(cfg, nil, "/tmp", "")
	if err == nil {
		t.Fatal("expected policy error when ALLOW_PUSH_TO_BRAIN is false")
	}
	if _, ok := err.(*PolicyError); !ok {
		t.Fatalf("expected *PolicyError, got %T", err)
	}
}

// Scenario 6: export to a local, clean non-bare brain.
func TestExportLocalCleanBrain(t *testing.T) {
	brainDir := newBrainRepo(t)
	consumerDir := newConsumerWithModification(t)

	cfg := &descriptor.ConsumerDescriptor{
		Brains: map[string]descriptor.BrainEntry{
			"our-lib": {ID: "our-lib", Remote: "file://" + brainDir, Branch: "main"},
		},
		Policy: descriptor.SyncPolicy{AllowPushToBrain: true},
	}
	mappings := []descriptor.Mapping{
		{Key: "core", BrainID: "our-lib", Source: "utils/common.py", Destination: "src/shared/common_utils.py"},
	}

	results, err := Export(cfg, mappings, consumerDir, "")
	if err != nil {
		t.Fatal(err)
	}
	result, ok := results["our-lib"]
	if !ok {
		t.Fatalf("expected a result for our-lib, got %+v", results)
	}
	if result.Status != StatusSuccess {
		t.Fatalf("unexpected status: %+v", result)
	}
	if result.CommitID == "" {
		t.Fatal("expected a commit id")
	}

	data, err := ioutil.ReadFile(filepath.Join(brainDir, "utils", "common.py"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "v2-local\n" {
		t.Fatalf("expected brain working tree updated, got %q", data)
	}

	logOut, err := exec.Command("git", "-C", brainDir, "log", "-1", "--pretty=%B").CombinedOutput()
	if err != nil {
		t.Fatal(err)
	}
	if !contains(string(logOut), "utils/common.py <- src/shared/common_utils.py") {
		t.Fatalf("expected commit message to include pair, got %q", logOut)
	}
}

func TestExportUnknownBrainInMapping(t *testing.T) {
	cfg := &descriptor.ConsumerDescriptor{
		Brains: map[string]descriptor.BrainEntry{},
		Policy: descriptor.SyncPolicy{AllowPushToBrain: true},
	}
	mappings := []descriptor.Mapping{
		{Key: "x", BrainID: "missing", Source: "a", Destination: "b"},
	}
	results, err := Export(cfg, mappings, "/tmp", "")
	if err != nil {
		t.Fatal(err)
	}
	if results["missing"].Status != StatusError {
		t.Fatalf("expected error result for unknown brain: %+v", results)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
