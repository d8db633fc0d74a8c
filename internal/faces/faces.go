// internal/faces/faces.go
//
// Provides face catalog management for the game engine.
//
// Responsibilities:
//   - Load the catalog from a YAML file or fall back to the embedded default.
//   - Normalize entries (trim, drop blanks, drop duplicates).
//   - Validate the catalog against the configured pair count and hand the
//     engine a deck Generator.
//
// Catalog document:
//   back: t800.png      # image shown for face-down cards
//   faces:              # one entry per distinct face; each is dealt twice
//     - 1.png
//     - 2.png
//
// Constraints:
//   • At least one face is required.
//   • The pair count may not exceed the number of distinct faces; this is a
//     configuration error reported at startup.

package faces

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/robalobadob/memorama/apps/go-server/assets"
	"github.com/robalobadob/memorama/apps/go-server/internal/game"
)

const defaultBack = "back.png"

// Catalog is the set of faces a deck is dealt from.
type Catalog struct {
	Back  string   `yaml:"back" json:"back"`
	Faces []string `yaml:"faces" json:"faces"`
}

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		data, err := assets.DefaultFaces()
		if err != nil {
			return nil, fmt.Errorf("read embedded faces: %w", err)
		}
		return Parse(data)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read faces file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and normalizes a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse faces: %w", err)
	}
	c.Back = strings.TrimSpace(c.Back)
	if c.Back == "" {
		c.Back = defaultBack
	}
	c.Faces = normalize(c.Faces)
	if len(c.Faces) == 0 {
		return nil, errors.New("faces: catalog is empty")
	}
	return &c, nil
}

// Validate reports a configuration error if the catalog cannot cover pairs.
func (c *Catalog) Validate(pairs int) error {
	return game.ValidateCatalog(c.Faces, pairs)
}

// Generator validates the catalog and returns a shuffling deck generator.
func (c *Catalog) Generator(pairs int) (game.Generator, error) {
	return game.Shuffled(c.Faces, pairs)
}

// Stats returns (distinct faces, back image).
func (c *Catalog) Stats() (count int, back string) {
	return len(c.Faces), c.Back
}

// normalize trims entries and keeps the first occurrence of each face.
func normalize(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, f := range in {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
