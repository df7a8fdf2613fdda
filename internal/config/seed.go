package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type SeedUser struct {
	FullName      string `yaml:"fullName"`
	Email         string `yaml:"email"`
	Password      string `yaml:"password"`
	Role          string `yaml:"role"`
	RelatedEntity string `yaml:"relatedEntity"`
}

type SeedProduct struct {
	Name   string `yaml:"name"`
	Code   string `yaml:"code"`
	Active *bool  `yaml:"active"`
}

// Seed is the startup data file: accounts and restoration types that must
// exist before the portal is usable.
type Seed struct {
	Users    []SeedUser    `yaml:"users"`
	Products []SeedProduct `yaml:"products"`
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	seed := &Seed{}
	if err := yaml.Unmarshal(data, seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return seed, nil
}
