package catalog

import (
	"fmt"
	"sort"
	"strings"
)

type versionProbe struct {
	Version int `json:"version" yaml:"version"`
}

type orientationFile struct {
	Version      int                     `json:"version" yaml:"version"`
	Orientations []OrientationDefinition `json:"orientations" yaml:"orientations"`
}

type toneFile struct {
	Version int              `json:"version" yaml:"version"`
	Tones   []ToneDefinition `json:"tones" yaml:"tones"`
}

// legacyOrientation is the flat id -> {definition|explanation|explanation_v2, highlight} layout.
type legacyOrientation struct {
	Definition    string `json:"definition" yaml:"definition"`
	Explanation   string `json:"explanation" yaml:"explanation"`
	ExplanationV2 string `json:"explanation_v2" yaml:"explanation_v2"`
	Highlight     string `json:"highlight" yaml:"highlight"`
}

// LoadOrientations reads an orientation catalog (JSON or YAML by extension).
// An empty path reads the embedded default.
func LoadOrientations(path string) ([]OrientationDefinition, error) {
	name, data, err := readResource(path, DefaultOrientationsFile)
	if err != nil {
		return nil, err
	}
	var probe versionProbe
	if err := unmarshal(name, data, &probe); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrConfigLoad, name, err)
	}

	switch probe.Version {
	case SchemaVersion:
		var f orientationFile
		if err := unmarshal(name, data, &f); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", ErrConfigLoad, name, err)
		}
		return f.Orientations, nil
	case 0:
		var legacy map[string]legacyOrientation
		if err := unmarshal(name, data, &legacy); err != nil {
			return nil, fmt.Errorf("%w: parse legacy %s: %w", ErrConfigLoad, name, err)
		}
		return migrateOrientations(legacy), nil
	default:
		return nil, fmt.Errorf("%w: %s: unsupported catalog version %d", ErrConfigLoad, name, probe.Version)
	}
}

// migrateOrientations converts the flat legacy layout into versioned definitions, sorted by id.
// explanation_v2 wins over explanation, and definition wins over both.
func migrateOrientations(legacy map[string]legacyOrientation) []OrientationDefinition {
	ids := make([]string, 0, len(legacy))
	for id := range legacy {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]OrientationDefinition, 0, len(ids))
	for _, id := range ids {
		l := legacy[id]
		def := firstNonEmpty(l.Definition, l.ExplanationV2, l.Explanation)
		out = append(out, OrientationDefinition{
			ID:         id,
			Definition: def,
			Highlight:  l.Highlight,
		})
	}
	return out
}

// LoadTones reads a tone-example catalog (JSON or YAML by extension).
// An empty path reads the embedded default.
func LoadTones(path string) ([]ToneDefinition, error) {
	name, data, err := readResource(path, DefaultTonesFile)
	if err != nil {
		return nil, err
	}
	var probe versionProbe
	if err := unmarshal(name, data, &probe); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrConfigLoad, name, err)
	}

	switch probe.Version {
	case SchemaVersion:
		var f toneFile
		if err := unmarshal(name, data, &f); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", ErrConfigLoad, name, err)
		}
		return f.Tones, nil
	case 0:
		var legacy map[string][]string
		if err := unmarshal(name, data, &legacy); err != nil {
			return nil, fmt.Errorf("%w: parse legacy %s: %w", ErrConfigLoad, name, err)
		}
		return migrateTones(legacy), nil
	default:
		return nil, fmt.Errorf("%w: %s: unsupported catalog version %d", ErrConfigLoad, name, probe.Version)
	}
}

// migrateTones converts the flat tone -> examples layout, sorted by id.
func migrateTones(legacy map[string][]string) []ToneDefinition {
	ids := make([]string, 0, len(legacy))
	for id := range legacy {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]ToneDefinition, 0, len(ids))
	for _, id := range ids {
		out = append(out, ToneDefinition{ID: id, Examples: append([]string(nil), legacy[id]...)})
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
