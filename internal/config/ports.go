package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SavePorts rewrites the frontend and backend ports in the project file at path.
// Only the stored values change; defaults and environment overrides applied by
// Read are not written back.
func SavePorts(path string, frontend, backend int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if frontend > 0 {
		p.FrontendPort = frontend
	}
	if backend > 0 {
		p.BackendPort = backend
	}
	return Write(path, p)
}
