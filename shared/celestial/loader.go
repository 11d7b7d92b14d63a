package celestial

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type tableFile struct {
	Planets []PlanetRecord `yaml:"planets" toml:"planets"`
}

// LoadTable reads a planet table from a YAML (.yaml, .yml) or TOML (.toml)
// file with a top-level "planets" list, and validates it with NewTable.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("celestial: read planets file: %w", err)
	}
	return ParseTable(data, filepath.Ext(path))
}

// ParseTable decodes a planet table in the format named by ext.
func ParseTable(data []byte, ext string) (*Table, error) {
	var f tableFile
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("celestial: decode yaml planets: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("celestial: decode toml planets: %w", err)
		}
	default:
		return nil, fmt.Errorf("celestial: unsupported planets file extension %q", ext)
	}
	return NewTable(f.Planets)
}
