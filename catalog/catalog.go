package catalog

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownKey is returned when an orientation or tone id is not in its catalog.
	ErrUnknownKey = errors.New("unknown key")

	// ErrConfigLoad is returned when a catalog resource is missing or malformed.
	ErrConfigLoad = errors.New("config load error")
)

// SchemaVersion is the only catalog layout the loaders produce. Older flat layouts are migrated on load.
const SchemaVersion = 2

const (
	DefaultOrientationsFile = "defaults/life_orientations.json"
	DefaultTonesFile        = "defaults/tone_examples.yaml"
)

//go:embed defaults/*
var defaultsFS embed.FS

// OrientationDefinition describes one life orientation.
type OrientationDefinition struct {
	ID         string `json:"id" yaml:"id"`
	Label      string `json:"label,omitempty" yaml:"label,omitempty"`
	Definition string `json:"definition" yaml:"definition"`

	// Highlight is the aspect to emphasize when weaving the orientation into an entry.
	Highlight string `json:"highlight" yaml:"highlight"`
}

// ToneDefinition is a target stylistic register with example passages that exhibit it.
type ToneDefinition struct {
	ID       string   `json:"id" yaml:"id"`
	Label    string   `json:"label,omitempty" yaml:"label,omitempty"`
	Examples []string `json:"examples" yaml:"examples"`
}

// Catalog holds both catalogs. It is read-only after construction and safe for concurrent use.
type Catalog struct {
	orientations   map[string]OrientationDefinition
	orientationIDs []string
	tones          map[string]ToneDefinition
	toneIDs        []string
}

// New validates the definitions and builds a Catalog, preserving input order for listings.
func New(orientations []OrientationDefinition, tones []ToneDefinition) (*Catalog, error) {
	c := &Catalog{
		orientations: make(map[string]OrientationDefinition, len(orientations)),
		tones:        make(map[string]ToneDefinition, len(tones)),
	}
	if len(orientations) == 0 {
		return nil, fmt.Errorf("%w: orientation catalog is empty", ErrConfigLoad)
	}
	if len(tones) == 0 {
		return nil, fmt.Errorf("%w: tone catalog is empty", ErrConfigLoad)
	}

	for i, o := range orientations {
		o.ID = strings.TrimSpace(o.ID)
		o.Definition = strings.TrimSpace(o.Definition)
		o.Highlight = strings.TrimSpace(o.Highlight)
		o.Label = strings.TrimSpace(o.Label)
		switch {
		case o.ID == "":
			return nil, fmt.Errorf("%w: orientation %d: missing id", ErrConfigLoad, i)
		case o.Definition == "":
			return nil, fmt.Errorf("%w: orientation %q: missing definition", ErrConfigLoad, o.ID)
		case o.Highlight == "":
			return nil, fmt.Errorf("%w: orientation %q: missing highlight", ErrConfigLoad, o.ID)
		}
		if _, dup := c.orientations[o.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate orientation %q", ErrConfigLoad, o.ID)
		}
		if o.Label == "" {
			o.Label = o.ID
		}
		c.orientations[o.ID] = o
		c.orientationIDs = append(c.orientationIDs, o.ID)
	}

	for i, t := range tones {
		t.ID = strings.TrimSpace(t.ID)
		t.Label = strings.TrimSpace(t.Label)
		if t.ID == "" {
			return nil, fmt.Errorf("%w: tone %d: missing id", ErrConfigLoad, i)
		}
		if _, dup := c.tones[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate tone %q", ErrConfigLoad, t.ID)
		}
		examples := make([]string, 0, len(t.Examples))
		for _, ex := range t.Examples {
			if ex = strings.TrimSpace(ex); ex != "" {
				examples = append(examples, ex)
			}
		}
		if len(examples) == 0 {
			return nil, fmt.Errorf("%w: tone %q: no examples", ErrConfigLoad, t.ID)
		}
		t.Examples = examples
		if t.Label == "" {
			t.Label = t.ID
		}
		c.tones[t.ID] = t
		c.toneIDs = append(c.toneIDs, t.ID)
	}
	return c, nil
}

// Load reads both catalogs from disk. An empty path selects the embedded default for that catalog.
func Load(orientationsPath, tonesPath string) (*Catalog, error) {
	orientations, err := LoadOrientations(orientationsPath)
	if err != nil {
		return nil, err
	}
	tones, err := LoadTones(tonesPath)
	if err != nil {
		return nil, err
	}
	return New(orientations, tones)
}

var defaultCatalog = sync.OnceValues(func() (*Catalog, error) {
	return Load("", "")
})

// Default returns the embedded catalogs, loaded once per process.
func Default() (*Catalog, error) {
	return defaultCatalog()
}

// Orientation looks up an orientation by id.
func (c *Catalog) Orientation(id string) (OrientationDefinition, error) {
	o, ok := c.orientations[id]
	if !ok {
		return OrientationDefinition{}, fmt.Errorf("%w: orientation %q", ErrUnknownKey, id)
	}
	return o, nil
}

// Orientations lists orientation ids in catalog order.
func (c *Catalog) Orientations() []string {
	return append([]string(nil), c.orientationIDs...)
}

func (c *Catalog) OrientationDefinitions() []OrientationDefinition {
	out := make([]OrientationDefinition, 0, len(c.orientationIDs))
	for _, id := range c.orientationIDs {
		out = append(out, c.orientations[id])
	}
	return out
}

// Tone looks up a tone by id. The returned Examples slice is a copy.
func (c *Catalog) Tone(id string) (ToneDefinition, error) {
	t, ok := c.tones[id]
	if !ok {
		return ToneDefinition{}, fmt.Errorf("%w: tone %q", ErrUnknownKey, id)
	}
	t.Examples = append([]string(nil), t.Examples...)
	return t, nil
}

// ToneExamples returns the example pool for a tone.
func (c *Catalog) ToneExamples(id string) ([]string, error) {
	t, err := c.Tone(id)
	if err != nil {
		return nil, err
	}
	return t.Examples, nil
}

// Tones lists tone ids in catalog order.
func (c *Catalog) Tones() []string {
	return append([]string(nil), c.toneIDs...)
}

func (c *Catalog) ToneDefinitions() []ToneDefinition {
	out := make([]ToneDefinition, 0, len(c.toneIDs))
	for _, id := range c.toneIDs {
		t := c.tones[id]
		t.Examples = append([]string(nil), t.Examples...)
		out = append(out, t)
	}
	return out
}

func readResource(path, defaultName string) (name string, data []byte, err error) {
	if path == "" {
		data, err = defaultsFS.ReadFile(defaultName)
		if err != nil {
			return defaultName, nil, fmt.Errorf("%w: read embedded %s: %w", ErrConfigLoad, defaultName, err)
		}
		return defaultName, data, nil
	}
	data, err = os.ReadFile(path)
	if err != nil {
		return path, nil, fmt.Errorf("%w: read %s: %w", ErrConfigLoad, path, err)
	}
	return path, data, nil
}

func unmarshal(name string, data []byte, v any) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, v)
	}
}
