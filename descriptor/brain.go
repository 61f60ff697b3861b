// Package descriptor models the two INI descriptor files (spec.md §3, §6):
// the brain descriptor published at a brain repo's root, and the consumer
// descriptor living in a consumer repo.
package descriptor

import (
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// Permission is the export table's value: read-only or read-write.
type Permission string

const (
	ReadOnly  Permission = "readonly"
	ReadWrite Permission = "readwrite"
)

// ExportEntry is one [EXPORT] row: a brain-relative path pattern and its
// permission. An empty RHS in the descriptor file means ReadOnly.
type ExportEntry struct {
	Path       string
	Permission Permission
}

// UpdatePolicy is the brain's optional [UPDATE_POLICY] bag. Recognized
// booleans and the reserved ProtectedPaths list get typed fields; every
// other key is preserved verbatim in Other for round-tripping, since the
// core parses but never enforces this table (spec.md §9).
type UpdatePolicy struct {
	Booleans       map[string]bool
	ProtectedPaths []string
	Other          map[string]string
}

func newUpdatePolicy() UpdatePolicy {
	return UpdatePolicy{
		Booleans: make(map[string]bool),
		Other:    make(map[string]string),
	}
}

// BrainDescriptor is the in-memory form of a brain's descriptor file.
type BrainDescriptor struct {
	ID          string
	Description string
	Export      []ExportEntry
	// Access maps an entity id to the path patterns it may touch. Parsed
	// and round-tripped, never consulted by the core (spec.md Non-goals).
	Access       map[string][]string
	UpdatePolicy UpdatePolicy
}

// LoadBrainDescriptor parses the brain descriptor file at path.
func LoadBrainDescriptor(path string) (*BrainDescriptor, error) {
	f, err := ini.LoadSources(loadOptions(), path)
	if err != nil {
		return nil, configErrorf(err, "load brain descriptor "+path)
	}

	bd := &BrainDescriptor{
		Access:       make(map[string][]string),
		UpdatePolicy: newUpdatePolicy(),
	}

	brainSec, err := f.GetSection("BRAIN")
	if err != nil {
		return nil, configErrorf(err, "missing [BRAIN] section")
	}
	bd.ID = brainSec.Key("ID").String()
	if bd.ID == "" {
		return nil, configErrorf(nil, "[BRAIN] ID is required and must be non-empty")
	}
	bd.Description = brainSec.Key("DESCRIPTION").String()

	if exportSec, err := f.GetSection("EXPORT"); err == nil {
		for _, key := range exportSec.Keys() {
			perm := ReadOnly
			val := strings.ToLower(strings.TrimSpace(key.Value()))
			if val == string(ReadWrite) {
				perm = ReadWrite
			}
			bd.Export = append(bd.Export, ExportEntry{Path: key.Name(), Permission: perm})
		}
	}

	if accessSec, err := f.GetSection("ACCESS"); err == nil {
		for _, key := range accessSec.Keys() {
			patterns := splitCommaList(key.Value())
			bd.Access[key.Name()] = patterns
		}
	}

	if upSec, err := f.GetSection("UPDATE_POLICY"); err == nil {
		for _, key := range upSec.Keys() {
			name := key.Name()
			if strings.EqualFold(name, "PROTECTED_PATHS") {
				bd.UpdatePolicy.ProtectedPaths = splitCommaList(key.Value())
				continue
			}
			if b, ok := parseBool(key.Value()); ok {
				bd.UpdatePolicy.Booleans[name] = b
			} else {
				bd.UpdatePolicy.Other[name] = key.Value()
			}
		}
	}

	return bd, nil
}

// Save serializes bd back to path as INI text.
func (bd *BrainDescriptor) Save(path string) error {
	f := ini.Empty(loadOptions())

	brainSec, err := f.NewSection("BRAIN")
	if err != nil {
		return err
	}
	brainSec.NewKey("ID", bd.ID)
	if bd.Description != "" {
		brainSec.NewKey("DESCRIPTION", bd.Description)
	}

	if len(bd.Export) > 0 {
		exportSec, err := f.NewSection("EXPORT")
		if err != nil {
			return err
		}
		for _, ent := range bd.Export {
			val := ""
			if ent.Permission == ReadWrite {
				val = string(ReadWrite)
			}
			exportSec.NewKey(ent.Path, val)
		}
	}

	if len(bd.Access) > 0 {
		accessSec, err := f.NewSection("ACCESS")
		if err != nil {
			return err
		}
		for _, entity := range sortedKeys(bd.Access) {
			accessSec.NewKey(entity, strings.Join(bd.Access[entity], ","))
		}
	}

	if hasUpdatePolicy(bd.UpdatePolicy) {
		upSec, err := f.NewSection("UPDATE_POLICY")
		if err != nil {
			return err
		}
		if len(bd.UpdatePolicy.ProtectedPaths) > 0 {
			upSec.NewKey("PROTECTED_PATHS", strings.Join(bd.UpdatePolicy.ProtectedPaths, ","))
		}
		for _, name := range sortedBoolKeys(bd.UpdatePolicy.Booleans) {
			upSec.NewKey(name, formatBool(bd.UpdatePolicy.Booleans[name]))
		}
		for _, name := range sortedKeys(bd.UpdatePolicy.Other) {
			upSec.NewKey(name, bd.UpdatePolicy.Other[name])
		}
	}

	if err := f.SaveTo(path); err != nil {
		return errors.WithMessage(err, "descriptor: save brain descriptor "+path)
	}
	return nil
}

func hasUpdatePolicy(up UpdatePolicy) bool {
	return len(up.ProtectedPaths) > 0 || len(up.Booleans) > 0 || len(up.Other) > 0
}
