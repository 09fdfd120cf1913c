package content

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed facts.yaml
var factsYAML []byte

// Fact is one "dato curioso" shown in the sidebar.
type Fact struct {
	Title   string `yaml:"titulo"`
	Content string `yaml:"contenido"`
	Source  string `yaml:"fuente"`
}

// LoadFacts parses the embedded fun facts about energy in Panama.
func LoadFacts() ([]Fact, error) {
	return ParseFacts(factsYAML)
}

// ParseFacts decodes a YAML list of facts.
func ParseFacts(data []byte) ([]Fact, error) {
	var facts []Fact
	if err := yaml.Unmarshal(data, &facts); err != nil {
		return nil, fmt.Errorf("decode facts: %w", err)
	}
	return facts, nil
}
