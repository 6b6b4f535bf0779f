package companion

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// App modes. ModeLive is entered by opening a voice session and cannot be
// selected by the model.
const (
	ModeChat  = "chat"
	ModeLive  = "live"
	ModeImage = "image"
	ModeDiary = "diary"
)

var (
	ErrUnknownPersonality = errors.New("unknown personality")
	ErrUnknownMode        = errors.New("unknown mode")
)

type Personality struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Style string `yaml:"style" json:"style"`
	Voice string `yaml:"voice" json:"voice"`
}

type Mode struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// Catalog lists the personalities and modes a companion can take on.
type Catalog struct {
	DefaultPersonality string        `yaml:"default_personality" json:"default_personality"`
	Personalities      []Personality `yaml:"personalities" json:"personalities"`
	Modes              []Mode        `yaml:"modes" json:"modes"`
}

func DefaultCatalog() Catalog {
	return Catalog{
		DefaultPersonality: "sunny",
		Personalities: []Personality{
			{ID: "sunny", Name: "Sunny", Voice: "Aoede", Style: "Warm, upbeat and encouraging. You celebrate small wins and keep things light."},
			{ID: "sage", Name: "Sage", Voice: "Charon", Style: "Calm, thoughtful and grounded. You ask gentle questions and offer perspective."},
			{ID: "spark", Name: "Spark", Voice: "Puck", Style: "Playful and witty. You tease kindly and love a good tangent."},
			{ID: "muse", Name: "Muse", Voice: "Kore", Style: "Dreamy and creative. You think in images and invite the user to imagine."},
		},
		Modes: []Mode{
			{ID: ModeChat, Name: "Chat", Description: "Text conversation."},
			{ID: ModeLive, Name: "Live", Description: "Realtime voice conversation."},
			{ID: ModeImage, Name: "Imagine", Description: "Create images together."},
			{ID: ModeDiary, Name: "Diary", Description: "Write and reflect on diary entries."},
		},
	}
}

// LoadCatalog reads a YAML catalog. An empty path yields DefaultCatalog.
func LoadCatalog(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(c.Modes) == 0 {
		c.Modes = DefaultCatalog().Modes
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

func (c Catalog) Validate() error {
	if len(c.Personalities) == 0 {
		return errors.New("catalog has no personalities")
	}
	seen := make(map[string]bool, len(c.Personalities))
	for _, p := range c.Personalities {
		if strings.TrimSpace(p.ID) == "" {
			return errors.New("catalog personality id is required")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate personality %q", p.ID)
		}
		seen[p.ID] = true
	}
	if c.DefaultPersonality != "" && !seen[c.DefaultPersonality] {
		return fmt.Errorf("%w: default %q", ErrUnknownPersonality, c.DefaultPersonality)
	}
	if !c.HasMode(ModeChat) {
		return fmt.Errorf("catalog must include the %q mode", ModeChat)
	}
	return nil
}

func (c Catalog) Personality(id string) (Personality, bool) {
	for _, p := range c.Personalities {
		if p.ID == id {
			return p, true
		}
	}
	return Personality{}, false
}

// Default returns the default personality, or the first one listed.
func (c Catalog) Default() Personality {
	if p, ok := c.Personality(c.DefaultPersonality); ok {
		return p
	}
	return c.Personalities[0]
}

func (c Catalog) PersonalityIDs() []string {
	out := make([]string, 0, len(c.Personalities))
	for _, p := range c.Personalities {
		out = append(out, p.ID)
	}
	return out
}

func (c Catalog) HasMode(id string) bool {
	return slices.ContainsFunc(c.Modes, func(m Mode) bool { return m.ID == id })
}

// SelectableModes lists the modes the model may switch to.
func (c Catalog) SelectableModes() []string {
	out := make([]string, 0, len(c.Modes))
	for _, m := range c.Modes {
		if m.ID != ModeLive {
			out = append(out, m.ID)
		}
	}
	return out
}
