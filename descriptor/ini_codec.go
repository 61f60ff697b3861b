package descriptor

import (
	"sort"
	"strings"

	"gopkg.in/ini.v1"
)

// ConfigError marks a malformed or incomplete descriptor - always fatal to
// the command that triggered the load (spec.md §7).
type ConfigError struct {
	msg   string
	cause error
}

func (e *ConfigError) Error() string {
	if e.cause != nil {
		return "config: " + e.msg + ": " + e.cause.Error()
	}
	return "config: " + e.msg
}

func (e *ConfigError) Cause() error { return e.cause }

func configErrorf(cause error, msg string) *ConfigError {
	return &ConfigError{msg: msg, cause: cause}
}

// loadOptions is shared by both descriptor loaders so the two INI dialects
// stay in lockstep: case-sensitive keys (ini.v1's default), no inline
// comment stripping surprises.
func loadOptions() ini.LoadOptions {
	return ini.LoadOptions{
		IgnoreInlineComment:     true,
		AllowBooleanKeys:        true,
		SkipUnrecognizableLines: false,
	}
}

var trueValues = map[string]bool{"true": true, "yes": true, "1": true}
var falseValues = map[string]bool{"false": true, "no": true, "0": true}

// parseBool recognizes the value sets spec.md §3 names for both the brain
// descriptor's [UPDATE_POLICY] and the consumer descriptor's [SYNC_POLICY].
func parseBool(s string) (v bool, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(s))
	if trueValues[lower] {
		return true, true
	}
	if falseValues[lower] {
		return false, true
	}
	return false, false
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func splitCommaList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedBoolKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
