package detect

import (
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/gitbrain/gitbrain/descriptor"
	"github.com/gitbrain/gitbrain/gitapi"
)

func mustRun(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func newTestRepo(t *testing.T) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "detect-test-")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	mustRun(t, dir, "init", "-q", "-b", "main")
	mustRun(t, dir, "config", "user.email", "test@example.com")
	mustRun(t, dir, "config", "user.name", "test")
	if err := ioutil.WriteFile(filepath.Join(dir, "base.txt"), []byte("base\n"), 0644); err != nil {
		t.Fatal(err)
	}
	mustRun(t, dir, "add", ".")
	mustRun(t, dir, "commit", "-q", "-m", "base")
	return dir
}

func TestModifiedNeuronsFileMapping(t *testing.T) {
	dir := newTestRepo(t)
	if err := os.MkdirAll(filepath.Join(dir, "src", "shared"), 0775); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dir, "src", "shared", "common_utils.py"), []byte("v1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	driver := gitapi.NewDriver(dir)
	cd := &descriptor.ConsumerDescriptor{
		Mappings: []descriptor.Mapping{
			{Key: "m1", BrainID: "b", Source: "utils/common.py", Destination: "src/shared/common_utils.py"},
			{Key: "m2", BrainID: "b", Source: "other.py", Destination: "src/other.py"},
		},
	}

	got, err := ModifiedNeurons(driver, cd, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Key != "m1" {
		t.Fatalf("unexpected modified neurons: %+v", got)
	}
}

func TestModifiedNeuronsDirMapping(t *testing.T) {
	dir := newTestRepo(t)
	if err := os.MkdirAll(filepath.Join(dir, "vendor", "tools"), 0775); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dir, "vendor", "tools", "a.go"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	driver := gitapi.NewDriver(dir)
	cd := &descriptor.ConsumerDescriptor{
		Mappings: []descriptor.Mapping{
			{Key: "m1", BrainID: "b", Source: "tools/", Destination: "vendor/tools/"},
		},
	}

	got, err := ModifiedNeurons(driver, cd, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Key != "m1" {
		t.Fatalf("expected dir mapping to match, got %+v", got)
	}
}

func TestModifiedNeuronsDedup(t *testing.T) {
	dir := newTestRepo(t)
	if err := ioutil.WriteFile(filepath.Join(dir, "dup.txt"), []byte("changed\n"), 0644); err != nil {
		t.Fatal(err)
	}

	driver := gitapi.NewDriver(dir)
	cd := &descriptor.ConsumerDescriptor{
		Mappings: []descriptor.Mapping{
			{Key: "m1", BrainID: "b", Source: "s.txt", Destination: "dup.txt"},
			{Key: "m2", BrainID: "b", Source: "s.txt", Destination: "dup.txt"},
		},
	}

	got, err := ModifiedNeurons(driver, cd, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected dedup to collapse to 1, got %d: %+v", len(got), got)
	}
}
