package stage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type stageFile struct {
	Stages []Stage `yaml:"stages"`
}

// LoadFile reads a stage list from a YAML file of the form:
//
//	stages:
//	  - name: outline
//	    promptTemplate: "Outline: {{user_request}}"
//	  - name: draft
//	    promptTemplate: "Expand this outline: {{prev_output}}"
//	    maxRetries: 2
//
// Validators cannot be expressed in YAML; attach them after loading.
func LoadFile(path string) ([]Stage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stage file: %w", err)
	}

	var file stageFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse stage file %s: %w", path, err)
	}
	if err := validateStages(file.Stages); err != nil {
		return nil, fmt.Errorf("stage file %s: %w", path, err)
	}
	return file.Stages, nil
}
