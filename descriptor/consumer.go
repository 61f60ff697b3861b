package descriptor

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// ConflictStrategy selects how the Conflict Resolver settles a divergence
// between a neuron's local copy and its brain content.
type ConflictStrategy string

const (
	StrategyPrompt      ConflictStrategy = "prompt"
	StrategyPreferBrain ConflictStrategy = "prefer_brain"
	StrategyPreferLocal ConflictStrategy = "prefer_local"
)

// BrainEntry is one [BRAIN:<id>] section of the consumer descriptor.
type BrainEntry struct {
	ID     string
	Remote string
	Branch string
	// Args is parsed and preserved for round-tripping but never forwarded
	// to TempClone (spec.md §9's open question on this field).
	Args string
}

// SyncPolicy is the consumer's [SYNC_POLICY] section, with the defaults
// spec.md §3 names.
type SyncPolicy struct {
	AutoSyncOnPull         bool
	ConflictStrategy       ConflictStrategy
	AllowLocalModifications bool
	AllowPushToBrain       bool
	AutoSyncOnCheckout     bool
}

// DefaultSyncPolicy matches spec.md §3's stated defaults.
func DefaultSyncPolicy() SyncPolicy {
	return SyncPolicy{
		AutoSyncOnPull:          true,
		ConflictStrategy:        StrategyPrompt,
		AllowLocalModifications: false,
		AllowPushToBrain:        false,
		AutoSyncOnCheckout:      false,
	}
}

// Mapping is one [MAP] entry: a neuron's brain id, brain-relative source,
// consumer-relative destination, and the original config key (or a
// synthesized "map{i}" when none existed - spec.md §3 invariant).
type Mapping struct {
	Key         string
	BrainID     string
	Source      string
	Destination string
}

// IsDirMapping reports whether the destination side alone (ignoring the
// filesystem) marks this as a directory neuron, per spec.md §3: a trailing
// path separator. Callers still need to consult the filesystem for the
// other half of the rule (destination or source exists as a directory).
func (m Mapping) IsDirMapping() bool {
	return strings.HasSuffix(m.Destination, "/")
}

// ConsumerDescriptor is the in-memory form of a consumer's descriptor file.
type ConsumerDescriptor struct {
	Brains   map[string]BrainEntry
	Policy   SyncPolicy
	Mappings []Mapping
}

// BrainFor resolves a mapping's brain id against the registry, per spec.md
// §3's invariant that every mapping references a brain present in it.
func (cd *ConsumerDescriptor) BrainFor(m Mapping) (BrainEntry, error) {
	b, ok := cd.Brains[m.BrainID]
	if !ok {
		return BrainEntry{}, configErrorf(nil, fmt.Sprintf("mapping %q references unknown brain %q", m.Key, m.BrainID))
	}
	return b, nil
}

// EffectiveConflictStrategy applies the degradation rule from spec.md §4.2:
// prompt + disallowed local modifications behaves exactly as prefer_brain.
func (p SyncPolicy) EffectiveConflictStrategy() ConflictStrategy {
	if p.ConflictStrategy == StrategyPrompt && !p.AllowLocalModifications {
		return StrategyPreferBrain
	}
	return p.ConflictStrategy
}

const brainSectionPrefix = "BRAIN:"

// LoadConsumerDescriptor parses the consumer descriptor file at path.
func LoadConsumerDescriptor(path string) (*ConsumerDescriptor, error) {
	f, err := ini.LoadSources(loadOptions(), path)
	if err != nil {
		return nil, configErrorf(err, "load consumer descriptor "+path)
	}

	cd := &ConsumerDescriptor{
		Brains: make(map[string]BrainEntry),
		Policy: DefaultSyncPolicy(),
	}

	for _, sec := range f.Sections() {
		if !strings.HasPrefix(sec.Name(), brainSectionPrefix) {
			continue
		}
		id := strings.TrimPrefix(sec.Name(), brainSectionPrefix)
		remote := sec.Key("REMOTE").String()
		if remote == "" {
			return nil, configErrorf(nil, fmt.Sprintf("[BRAIN:%s] REMOTE is required and must be non-empty", id))
		}
		branch := sec.Key("BRANCH").String()
		if branch == "" {
			branch = "main"
		}
		cd.Brains[id] = BrainEntry{
			ID:     id,
			Remote: remote,
			Branch: branch,
			Args:   sec.Key("ARGS").String(),
		}
	}

	if polSec, err := f.GetSection("SYNC_POLICY"); err == nil {
		if v, ok := parseBool(polSec.Key("AUTO_SYNC_ON_PULL").String()); ok {
			cd.Policy.AutoSyncOnPull = v
		} else if polSec.HasKey("AUTO_SYNC_ON_PULL") {
			return nil, configErrorf(nil, "invalid boolean for AUTO_SYNC_ON_PULL")
		}
		if s := polSec.Key("CONFLICT_STRATEGY").String(); s != "" {
			cd.Policy.ConflictStrategy = ConflictStrategy(s)
		}
		if v, ok := parseBool(polSec.Key("ALLOW_LOCAL_MODIFICATIONS").String()); ok {
			cd.Policy.AllowLocalModifications = v
		} else if polSec.HasKey("ALLOW_LOCAL_MODIFICATIONS") {
			return nil, configErrorf(nil, "invalid boolean for ALLOW_LOCAL_MODIFICATIONS")
		}
		if v, ok := parseBool(polSec.Key("ALLOW_PUSH_TO_BRAIN").String()); ok {
			cd.Policy.AllowPushToBrain = v
		} else if polSec.HasKey("ALLOW_PUSH_TO_BRAIN") {
			return nil, configErrorf(nil, "invalid boolean for ALLOW_PUSH_TO_BRAIN")
		}
		if v, ok := parseBool(polSec.Key("AUTO_SYNC_ON_CHECKOUT").String()); ok {
			cd.Policy.AutoSyncOnCheckout = v
		} else if polSec.HasKey("AUTO_SYNC_ON_CHECKOUT") {
			return nil, configErrorf(nil, "invalid boolean for AUTO_SYNC_ON_CHECKOUT")
		}
	}

	if mapSec, err := f.GetSection("MAP"); err == nil {
		for _, key := range mapSec.Keys() {
			m, err := parseMapValue(key.Name(), key.Value(), cd.Brains)
			if err != nil {
				return nil, err
			}
			cd.Mappings = append(cd.Mappings, m)
		}
	}

	return cd, nil
}

// parseMapValue decodes one [MAP] RHS: either the explicit three-part
// "brain::source::destination" form, or the two-part "source::destination"
// shorthand, valid only when exactly one brain is registered (spec.md §6).
func parseMapValue(key, value string, brains map[string]BrainEntry) (Mapping, error) {
	parts := strings.Split(value, "::")
	switch len(parts) {
	case 3:
		brainID, source, destination := parts[0], parts[1], parts[2]
		if brainID == "" || source == "" || destination == "" {
			return Mapping{}, configErrorf(nil, fmt.Sprintf("[MAP] %s has an empty part: %q", key, value))
		}
		return Mapping{Key: key, BrainID: brainID, Source: source, Destination: destination}, nil
	case 2:
		if len(brains) != 1 {
			return Mapping{}, configErrorf(nil, fmt.Sprintf(
				"[MAP] %s uses the two-part shorthand %q but %d brains are registered (requires exactly one)",
				key, value, len(brains)))
		}
		source, destination := parts[0], parts[1]
		if source == "" || destination == "" {
			return Mapping{}, configErrorf(nil, fmt.Sprintf("[MAP] %s has an empty part: %q", key, value))
		}
		var onlyID string
		for id := range brains {
			onlyID = id
		}
		return Mapping{Key: key, BrainID: onlyID, Source: source, Destination: destination}, nil
	default:
		return Mapping{}, configErrorf(nil, fmt.Sprintf("[MAP] %s has the wrong arity (expected 2 or 3 '::'-separated parts): %q", key, value))
	}
}

// Save serializes cd back to path as INI text. [MAP] entries are always
// written in the canonical three-part form using their original key, or a
// synthesized "map{i}" when none was recorded (spec.md §3 invariant).
func (cd *ConsumerDescriptor) Save(path string) error {
	f := ini.Empty(loadOptions())

	for _, id := range sortedBrainIDs(cd.Brains) {
		b := cd.Brains[id]
		sec, err := f.NewSection(brainSectionPrefix + id)
		if err != nil {
			return err
		}
		sec.NewKey("REMOTE", b.Remote)
		if b.Branch != "" {
			sec.NewKey("BRANCH", b.Branch)
		}
		if b.Args != "" {
			sec.NewKey("ARGS", b.Args)
		}
	}

	polSec, err := f.NewSection("SYNC_POLICY")
	if err != nil {
		return err
	}
	polSec.NewKey("AUTO_SYNC_ON_PULL", formatBool(cd.Policy.AutoSyncOnPull))
	polSec.NewKey("CONFLICT_STRATEGY", string(cd.Policy.ConflictStrategy))
	polSec.NewKey("ALLOW_LOCAL_MODIFICATIONS", formatBool(cd.Policy.AllowLocalModifications))
	polSec.NewKey("ALLOW_PUSH_TO_BRAIN", formatBool(cd.Policy.AllowPushToBrain))
	polSec.NewKey("AUTO_SYNC_ON_CHECKOUT", formatBool(cd.Policy.AutoSyncOnCheckout))

	if len(cd.Mappings) > 0 {
		mapSec, err := f.NewSection("MAP")
		if err != nil {
			return err
		}
		for i, m := range cd.Mappings {
			key := m.Key
			if key == "" {
				key = "map" + strconv.Itoa(i)
			}
			value := m.BrainID + "::" + m.Source + "::" + m.Destination
			mapSec.NewKey(key, value)
		}
	}

	if err := f.SaveTo(path); err != nil {
		return errors.WithMessage(err, "descriptor: save consumer descriptor "+path)
	}
	return nil
}

func sortedBrainIDs(m map[string]BrainEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
