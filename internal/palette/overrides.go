package palette

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	colorful "github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"
)

// DefaultOverrides are the hand-picked colors for the most common industry codes.
func DefaultOverrides() map[string]string {
	return map[string]string{
		"Comps":        "#f2cdf9",
		"BusSv":        "#11e5e8",
		"Fun":          "#cbd818",
		"Unclassified": "#2ad547",
		"Chips":        "#ce9b0d",
	}
}

// overrideFile is the on-disk shape of a palette file:
//
//	[industries]
//	Comps = "#f2cdf9"
type overrideFile struct {
	Industries map[string]string `toml:"industries" yaml:"industries"`
}

// LoadOverrides reads an industry color map from a TOML or YAML file.
func LoadOverrides(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read palette file: %w", err)
	}

	var file overrideFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &file); err != nil {
			return nil, fmt.Errorf("failed to parse palette TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse palette YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported palette file extension %q", filepath.Ext(path))
	}

	if err := ValidateOverrides(file.Industries); err != nil {
		return nil, err
	}
	if file.Industries == nil {
		file.Industries = map[string]string{}
	}
	return file.Industries, nil
}

// ValidateOverrides checks every override is a hex color.
func ValidateOverrides(overrides map[string]string) error {
	for industry, hex := range overrides {
		if _, err := colorful.Hex(hex); err != nil {
			return fmt.Errorf("invalid color %q for industry %q: %w", hex, industry, err)
		}
	}
	return nil
}

// Merge layers maps left to right; later maps win.
func Merge(layers ...map[string]string) map[string]string {
	out := map[string]string{}
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}
