package progression

import (
	"fmt"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// curveFile mirrors Curve with optional fields so a file can override only
// part of a base curve.
type curveFile struct {
	Name      string    `yaml:"name"`
	LevelStep *int      `yaml:"levelStep"`
	Cosmetics *[]Unlock `yaml:"cosmetics"`
	Abilities *[]Unlock `yaml:"abilities"`
}

// LoadCurve applies the YAML file at path on top of base.
func LoadCurve(path string, base Curve) (Curve, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Curve{}, fmt.Errorf("read curve file: %w", err)
	}
	return ParseCurve(raw, base)
}

func ParseCurve(raw []byte, base Curve) (Curve, error) {
	var f curveFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Curve{}, fmt.Errorf("parse curve: %w", err)
	}
	out := base
	if name := strings.TrimSpace(f.Name); name != "" {
		out.Name = name
	}
	if f.LevelStep != nil {
		out.LevelStep = *f.LevelStep
	}
	if f.Cosmetics != nil {
		out.Cosmetics = append([]Unlock(nil), (*f.Cosmetics)...)
	}
	if f.Abilities != nil {
		out.Abilities = append([]Unlock(nil), (*f.Abilities)...)
	}
	if err := out.Validate(); err != nil {
		return Curve{}, err
	}
	return out, nil
}
