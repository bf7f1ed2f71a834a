package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

// Load reads the YAML file at path, merges supplier_defaults into every
// supplier and validates the result. Warnings are returned for logging.
func Load(path string) (*AppConfig, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse is Load without the file read
func Parse(data []byte) (*AppConfig, []string, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("%w: parse yaml: %v", utils.ErrConfigValidation, err)
	}

	warnings, err := cfg.Validate()
	if err != nil {
		return nil, warnings, err
	}

	for key, sup := range cfg.Suppliers {
		// Explicit supplier values win over the shared defaults. Set pointers
		// such as deferred_parse: false are kept as they are.
		if err := mergo.Merge(&sup, cfg.SupplierDefaults, mergo.WithoutDereference); err != nil {
			return nil, warnings, fmt.Errorf("%w: supplier %q: merge defaults: %v", utils.ErrConfigValidation, key, err)
		}
		supWarnings, err := sup.Validate()
		if err != nil {
			return nil, warnings, fmt.Errorf("supplier %q: %w", key, err)
		}
		for _, w := range supWarnings {
			warnings = append(warnings, fmt.Sprintf("supplier %q: %s", key, w))
		}
		cfg.Suppliers[key] = sup
	}

	return &cfg, warnings, nil
}
