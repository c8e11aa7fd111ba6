package ruleset

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

// DefaultName is the ruleset used when none is configured.
const DefaultName = "karen-3.0"

// ErrUnknownRuleset is returned for a name that has no built-in ruleset.
var ErrUnknownRuleset = errors.New("unknown ruleset")

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Names returns the built-in ruleset names in sorted order.
func Names() []string {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Builtin returns a fresh copy of the named built-in ruleset.
func Builtin(name string) (*Ruleset, error) {
	data, err := BuiltinSource(name)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// BuiltinSource returns the YAML source of a built-in ruleset.
func BuiltinSource(name string) ([]byte, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuleset, name)
	}
	data, err := builtinFS.ReadFile(path.Join("builtin", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownRuleset, name, strings.Join(Names(), ", "))
	}
	return data, nil
}

// LoadFile reads and validates a ruleset from a YAML file.
func LoadFile(filename string) (*Ruleset, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read ruleset file: %w", err)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("ruleset file %s: %w", filename, err)
	}
	return rs, nil
}

// Parse decodes and validates a ruleset.
func Parse(data []byte) (*Ruleset, error) {
	var rs Ruleset
	if err := yaml.UnmarshalStrict(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse ruleset: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// Resolve loads the ruleset file when filename is set, otherwise the named
// built-in. An empty name selects DefaultName.
func Resolve(name, filename string) (*Ruleset, error) {
	if filename != "" {
		return LoadFile(filename)
	}
	if name == "" {
		name = DefaultName
	}
	return Builtin(name)
}

// Marshal encodes a ruleset as YAML.
func Marshal(rs *Ruleset) ([]byte, error) {
	return yaml.Marshal(rs)
}
