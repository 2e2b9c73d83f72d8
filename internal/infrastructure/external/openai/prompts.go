package openai

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/invoice-financing/internal/application/port"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// PromptConfig holds the prompts and model parameters for every oracle call
type PromptConfig struct {
	Classification port.PromptTemplate `yaml:"classification"`
	Extraction     port.PromptTemplate `yaml:"extraction"`
	Scoring        port.PromptTemplate `yaml:"scoring"`
}

// DefaultPrompts returns the built-in prompt set
func DefaultPrompts() *PromptConfig {
	var prompts PromptConfig
	if err := yaml.Unmarshal(defaultPromptsYAML, &prompts); err != nil {
		panic(fmt.Sprintf("embedded prompts.yaml: %v", err))
	}
	return &prompts
}

// LoadPrompts loads prompt configuration from a YAML file. Sections missing
// from the file keep their built-in values.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	prompts := DefaultPrompts()
	if err := yaml.Unmarshal(data, prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	return prompts, nil
}
