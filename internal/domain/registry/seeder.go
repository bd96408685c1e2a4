package registry

import (
	"os"

	"github.com/goccy/go-yaml"
)

// Built-in seed used when no seed file is configured or readable.
const (
	DefaultTitle    = "Workspace"
	DefaultGreeting = "Upload a CSV to get started, then ask questions about your data."
)

// Seed holds the title and greeting used for synthesized and newly
// created sessions.
type Seed struct {
	Title    string `yaml:"title"`
	Greeting string `yaml:"greeting"`
}

// DefaultSeed returns the built-in seed.
func DefaultSeed() Seed {
	return Seed{Title: DefaultTitle, Greeting: DefaultGreeting}
}

// LoadSeed reads a YAML seed file. Missing or malformed files fall back
// to the built-in seed; a file may override just one field.
func LoadSeed(path string) Seed {
	seed := DefaultSeed()
	if path == "" {
		return seed
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return seed
	}

	var file Seed
	if err := yaml.Unmarshal(data, &file); err != nil {
		return seed
	}
	if file.Title != "" {
		seed.Title = file.Title
	}
	if file.Greeting != "" {
		seed.Greeting = file.Greeting
	}
	return seed
}
