// Package phrases loads the versioned phrase table used by fallback
// synthesis and by the safety validator's replacements.
package phrases

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/normanking/resonance/pkg/atoms"
	"github.com/normanking/resonance/pkg/safety"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Version is the only supported table version.
const Version = 1

// ErrSchema is returned for tables that parse but violate the schema.
var ErrSchema = errors.New("phrase table schema")

// Intensity is the coarse band of the dominant feature value.
type Intensity string

const (
	IntensityAny  Intensity = "*"
	IntensityLow  Intensity = "low"
	IntensityMid  Intensity = "mid"
	IntensityHigh Intensity = "high"
)

// Band maps a feature value onto an intensity band.
func Band(v float64) Intensity {
	switch {
	case v < 0.4:
		return IntensityLow
	case v < 0.7:
		return IntensityMid
	default:
		return IntensityHigh
	}
}

func (i Intensity) valid() bool {
	switch i {
	case IntensityAny, IntensityLow, IntensityMid, IntensityHigh:
		return true
	}
	return false
}

// Entry is one phrase.
type Entry struct {
	ID        string
	Feature   atoms.FeatureRef
	Zone      safety.Zone // 0 matches any zone
	Intensity Intensity
	Behavior  safety.Behavior
	Weight    float64
	Groups    []atoms.GroupID
	Safe      bool
	Text      string
}

// Template converts the entry into a validator replacement.
func (e Entry) Template() safety.SafeTemplate {
	return safety.SafeTemplate{ID: e.ID, Text: e.Text, Behavior: e.Behavior}
}

type yamlTable struct {
	Version int         `yaml:"version"`
	Entries []yamlEntry `yaml:"entries"`
}

type yamlEntry struct {
	ID        string   `yaml:"id"`
	Feature   string   `yaml:"feature"`
	Zone      int      `yaml:"zone"`
	Intensity string   `yaml:"intensity"`
	Behavior  string   `yaml:"behavior"`
	Weight    float64  `yaml:"weight"`
	Groups    []string `yaml:"groups,omitempty"`
	Safe      bool     `yaml:"safe,omitempty"`
	Text      string   `yaml:"text"`
}

// Table is an immutable, validated phrase table.
type Table struct {
	version int
	entries []Entry
	byID    map[string]int
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
	defaultErr   error
)

// Default returns the embedded table. It is parsed once.
func Default() (*Table, error) {
	defaultOnce.Do(func() {
		defaultTable, defaultErr = Parse(defaultYAML)
		if defaultErr != nil {
			defaultErr = fmt.Errorf("embedded phrase table: %w", defaultErr)
		}
	})
	return defaultTable, defaultErr
}

// MustDefault is Default for callers that cannot proceed without a table.
func MustDefault() *Table {
	t, err := Default()
	if err != nil {
		panic(err)
	}
	return t
}

// Load reads and validates a table from disk.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read phrase table: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a phrase table.
func Parse(data []byte) (*Table, error) {
	var raw yamlTable
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse phrase table: %w", err)
	}
	if raw.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrSchema, raw.Version)
	}
	if len(raw.Entries) == 0 {
		return nil, fmt.Errorf("%w: no entries", ErrSchema)
	}

	t := &Table{version: raw.Version, byID: make(map[string]int, len(raw.Entries))}
	for i, re := range raw.Entries {
		e, err := convert(re)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d (%s): %v", ErrSchema, i, re.ID, err)
		}
		if _, dup := t.byID[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrSchema, e.ID)
		}
		t.byID[e.ID] = len(t.entries)
		t.entries = append(t.entries, e)
	}

	for z := safety.ZoneOpen; z <= safety.ZonePresence; z++ {
		if len(t.Safe(z)) == 0 {
			return nil, fmt.Errorf("%w: zone %d has no usable safe entry", ErrSchema, z)
		}
	}
	return t, nil
}

func convert(re yamlEntry) (Entry, error) {
	e := Entry{
		ID:        strings.TrimSpace(re.ID),
		Zone:      safety.Zone(re.Zone),
		Intensity: Intensity(re.Intensity),
		Behavior:  safety.Behavior(re.Behavior),
		Weight:    re.Weight,
		Safe:      re.Safe,
		Text:      strings.TrimSpace(re.Text),
	}
	if e.ID == "" {
		return e, errors.New("missing id")
	}
	feature, ok := atoms.ParseFeature(re.Feature)
	if !ok {
		return e, fmt.Errorf("unknown feature %q", re.Feature)
	}
	e.Feature = feature
	if re.Zone < 0 || re.Zone > int(safety.ZonePresence) {
		return e, fmt.Errorf("zone %d out of range", re.Zone)
	}
	if e.Intensity == "" {
		e.Intensity = IntensityAny
	}
	if !e.Intensity.valid() {
		return e, fmt.Errorf("unknown intensity %q", re.Intensity)
	}
	if !e.Behavior.Valid() {
		return e, fmt.Errorf("unknown behavior %q", re.Behavior)
	}
	if !(e.Weight > 0) {
		return e, fmt.Errorf("weight must be positive, got %v", re.Weight)
	}
	if e.Text == "" {
		return e, errors.New("empty text")
	}
	for _, name := range re.Groups {
		g, ok := atoms.ParseGroup(name)
		if !ok {
			return e, fmt.Errorf("unknown group %q", name)
		}
		e.Groups = append(e.Groups, g)
	}
	return e, nil
}

// Version returns the table version.
func (t *Table) Version() int { return t.version }

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.entries) }

// Entries returns a copy of every entry in file order.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Get looks an entry up by id.
func (t *Table) Get(id string) (Entry, bool) {
	i, ok := t.byID[id]
	if !ok {
		return Entry{}, false
	}
	return t.entries[i], true
}

// Lookup returns the candidates for a signature, backing off from the exact
// key to (feature, zone, *), then (*, zone, *), then (*, 0, *). A "*" in a
// key position matches only wildcard entries. Results are ordered by id.
func (t *Table) Lookup(feature atoms.FeatureRef, zone safety.Zone, intensity Intensity) []Entry {
	wild := atoms.FeatureRef{}
	steps := []struct {
		feature   atoms.FeatureRef
		zone      safety.Zone
		intensity Intensity
	}{
		{feature, zone, intensity},
		{feature, zone, IntensityAny},
		{wild, zone, IntensityAny},
		{wild, 0, IntensityAny},
	}
	for _, s := range steps {
		var out []Entry
		for _, e := range t.entries {
			if e.Feature == s.feature && e.Zone == s.zone && e.Intensity == s.intensity {
				out = append(out, e)
			}
		}
		if len(out) > 0 {
			sortByID(out)
			return out
		}
	}
	return nil
}

// ByFeature returns every entry keyed on feature whatever its zone and
// intensity, ordered by id.
func (t *Table) ByFeature(feature atoms.FeatureRef) []Entry {
	var out []Entry
	for _, e := range t.entries {
		if e.Feature == feature {
			out = append(out, e)
		}
	}
	sortByID(out)
	return out
}

// Safe returns the safe entries usable in zone, including zone-agnostic ones.
func (t *Table) Safe(zone safety.Zone) []Entry {
	policy := safety.PolicyFor(zone)
	var out []Entry
	for _, e := range t.entries {
		if !e.Safe || (e.Zone != 0 && e.Zone != zone) {
			continue
		}
		if !policy.Permits(e.Behavior) {
			continue
		}
		if policy.Forbids(safety.BehaviorOpenInquiry) && strings.Contains(e.Text, "?") {
			continue
		}
		out = append(out, e)
	}
	sortByID(out)
	return out
}

// Source adapts the table to the validator's replacement source.
func (t *Table) Source() safety.SafeSource { return safeSource{t} }

type safeSource struct{ t *Table }

func (s safeSource) Safe(zone safety.Zone) []safety.SafeTemplate {
	entries := s.t.Safe(zone)
	out := make([]safety.SafeTemplate, len(entries))
	for i, e := range entries {
		out[i] = e.Template()
	}
	return out
}

func sortByID(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
}
