package descriptor

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func tempPath(t *testing.T, name string) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "descriptor-test-")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, name)
}

func TestBrainDescriptorRoundTrip(t *testing.T) {
	bd := &BrainDescriptor{
		ID:          "widgets",
		Description: "shared widget code",
		Export: []ExportEntry{
			{Path: "lib/*", Permission: ReadOnly},
			{Path: "tools/*", Permission: ReadWrite},
		},
		Access: map[string][]string{
			"team-infra": {"lib/*", "tools/*"},
		},
		UpdatePolicy: UpdatePolicy{
			Booleans:       map[string]bool{"REQUIRE_REVIEW": true},
			ProtectedPaths: []string{"lib/core.go"},
			Other:          map[string]string{"OWNER": "infra-team"},
		},
	}

	path := tempPath(t, "brain.ini")
	if err := bd.Save(path); err != nil {
		t.Fatal(err)
	}

	got, err := LoadBrainDescriptor(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != bd.ID || got.Description != bd.Description {
		t.Fatalf("identity mismatch: %+v", got)
	}
	if len(got.Export) != 2 {
		t.Fatalf("expected 2 export entries, got %d", len(got.Export))
	}
	if got.Export[0].Permission != ReadOnly || got.Export[1].Permission != ReadWrite {
		t.Fatalf("unexpected permissions: %+v", got.Export)
	}
	if len(got.Access["team-infra"]) != 2 {
		t.Fatalf("unexpected access entries: %+v", got.Access)
	}
	if !got.UpdatePolicy.Booleans["REQUIRE_REVIEW"] {
		t.Fatal("expected REQUIRE_REVIEW true")
	}
	if len(got.UpdatePolicy.ProtectedPaths) != 1 || got.UpdatePolicy.ProtectedPaths[0] != "lib/core.go" {
		t.Fatalf("unexpected protected paths: %+v", got.UpdatePolicy.ProtectedPaths)
	}
	if got.UpdatePolicy.Other["OWNER"] != "infra-team" {
		t.Fatalf("unexpected other key: %+v", got.UpdatePolicy.Other)
	}
}

func TestBrainDescriptorMissingID(t *testing.T) {
	path := tempPath(t, "brain.ini")
	if err := ioutil.WriteFile(path, []byte("[BRAIN]\nDESCRIPTION = no id here\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadBrainDescriptor(path); err == nil {
		t.Fatal("expected error for missing BRAIN.ID")
	}
}

func TestConsumerDescriptorRoundTrip(t *testing.T) {
	cd := &ConsumerDescriptor{
		Brains: map[string]BrainEntry{
			"widgets": {ID: "widgets", Remote: "git@example.com:org/widgets.git", Branch: "main"},
		},
		Policy: SyncPolicy{
			AutoSyncOnPull:          true,
			ConflictStrategy:        StrategyPreferBrain,
			AllowLocalModifications: false,
			AllowPushToBrain:        false,
			AutoSyncOnCheckout:      true,
		},
		Mappings: []Mapping{
			{Key: "core", BrainID: "widgets", Source: "lib/core.go", Destination: "vendor/core.go"},
			{Key: "tools", BrainID: "widgets", Source: "tools/", Destination: "vendor/tools/"},
		},
	}

	path := tempPath(t, "consumer.ini")
	if err := cd.Save(path); err != nil {
		t.Fatal(err)
	}

	got, err := LoadConsumerDescriptor(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Brains["widgets"].Remote != cd.Brains["widgets"].Remote {
		t.Fatalf("brain remote mismatch: %+v", got.Brains)
	}
	if got.Policy.ConflictStrategy != StrategyPreferBrain {
		t.Fatalf("unexpected conflict strategy: %v", got.Policy.ConflictStrategy)
	}
	if !got.Policy.AutoSyncOnCheckout {
		t.Fatal("expected AutoSyncOnCheckout true")
	}
	if len(got.Mappings) != 2 {
		t.Fatalf("expected 2 mappings, got %d", len(got.Mappings))
	}
	if got.Mappings[1].IsDirMapping() != true {
		t.Fatalf("expected tools mapping to be a dir mapping: %+v", got.Mappings[1])
	}
}

func TestConsumerDescriptorTwoPartMapShorthand(t *testing.T) {
	path := tempPath(t, "consumer.ini")
	content := `[BRAIN:widgets]
REMOTE = git@example.com:org/widgets.git

[MAP]
core = lib/core.go::vendor/core.go
`
	if err := ioutil.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cd, err := LoadConsumerDescriptor(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cd.Mappings) != 1 {
		t.Fatalf("expected 1 mapping, got %d", len(cd.Mappings))
	}
	m := cd.Mappings[0]
	if m.BrainID != "widgets" || m.Source != "lib/core.go" || m.Destination != "vendor/core.go" {
		t.Fatalf("unexpected mapping from shorthand: %+v", m)
	}

	// Save must canonicalize back to the three-part form.
	out := tempPath(t, "consumer-out.ini")
	if err := cd.Save(out); err != nil {
		t.Fatal(err)
	}
	data, err := ioutil.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !contains(string(data), "widgets::lib/core.go::vendor/core.go") {
		t.Fatalf("expected canonical three-part form in saved output, got:\n%s", data)
	}
}

func TestConsumerDescriptorTwoPartShorthandAmbiguous(t *testing.T) {
	path := tempPath(t, "consumer.ini")
	content := `[BRAIN:a]
REMOTE = git@example.com:org/a.git

[BRAIN:b]
REMOTE = git@example.com:org/b.git

[MAP]
core = lib/core.go::vendor/core.go
`
	if err := ioutil.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConsumerDescriptor(path); err == nil {
		t.Fatal("expected error for ambiguous two-part shorthand with multiple brains")
	}
}

func TestEffectiveConflictStrategyDegradation(t *testing.T) {
	p := SyncPolicy{ConflictStrategy: StrategyPrompt, AllowLocalModifications: false}
	if got := p.EffectiveConflictStrategy(); got != StrategyPreferBrain {
		t.Fatalf("expected degradation to prefer_brain, got %v", got)
	}
	p.AllowLocalModifications = true
	if got := p.EffectiveConflictStrategy(); got != StrategyPrompt {
		t.Fatalf("expected prompt to survive with local modifications allowed, got %v", got)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}
