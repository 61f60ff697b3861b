// Package requirements implements the manifest merge rule of spec.md §4.3:
// parsing simple "name[==version]" dependency lines, merging a consumer's
// root manifest against a neuron-provided one, and serializing the result
// back in sorted, canonical form.
package requirements

import (
	"sort"
	"strings"

	"github.com/hashicorp/go-version"
)

// Entry is one parsed manifest line. Version is empty when the line names
// no specifier, or a specifier other than "==".
type Entry struct {
	Name    string
	Version string
}

// Parse reads manifest text into a name -> version mapping. Comments
// starting with '#' and blank lines are ignored. Only the "==" specifier
// captures a version; any other specifier (">=", "~=", ...) is recognized
// but discarded, matching spec.md §4.3.
func Parse(text string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, ver := parseLine(line)
		if name == "" {
			continue
		}
		out[name] = ver
	}
	return out
}

var specifiers = []string{"==", "!=", ">=", "<=", "~=", ">", "<"}

func parseLine(line string) (name, ver string) {
	for _, spec := range specifiers {
		idx := strings.Index(line, spec)
		if idx < 0 {
			continue
		}
		name = strings.TrimSpace(line[:idx])
		if spec == "==" {
			ver = strings.TrimSpace(line[idx+len(spec):])
		}
		return name, ver
	}
	return strings.TrimSpace(line), ""
}

// Merge combines a consumer's existing manifest with a neuron-provided one
// per spec.md §4.3's rule:
//   - keys present only on one side are copied as-is.
//   - keys present on both: if both versions parse as versions, keep the
//     higher; else a non-empty existing version wins over an empty neuron
//     version; otherwise the neuron's value wins; if both are empty the
//     result is empty.
func Merge(consumer, neuron map[string]string) map[string]string {
	out := make(map[string]string, len(consumer)+len(neuron))
	for name, ver := range consumer {
		out[name] = ver
	}
	for name, neuronVer := range neuron {
		consumerVer, ok := out[name]
		if !ok {
			out[name] = neuronVer
			continue
		}
		out[name] = mergeVersion(consumerVer, neuronVer)
	}
	return out
}

func mergeVersion(consumerVer, neuronVer string) string {
	cv, cErr := version.NewVersion(consumerVer)
	nv, nErr := version.NewVersion(neuronVer)
	if cErr == nil && nErr == nil {
		if cv.GreaterThan(nv) {
			return consumerVer
		}
		return neuronVer
	}
	if consumerVer != neuronVer {
		if neuronVer == "" {
			return consumerVer
		}
		return neuronVer
	}
	return consumerVer
}

// Serialize renders a merged mapping back to manifest text, one "name" or
// "name==version" line per entry, sorted by name.
func Serialize(entries map[string]string) string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		ver := entries[name]
		if ver != "" {
			b.WriteString(name)
			b.WriteString("==")
			b.WriteString(ver)
		} else {
			b.WriteString(name)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// MergeText is the convenience entry point the Sync Engine calls: parse
// both manifest texts, merge, and serialize the result.
func MergeText(consumerText, neuronText string) string {
	return Serialize(Merge(Parse(consumerText), Parse(neuronText)))
}
