package bootstrap

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

const logPrefix = "bootstrap:loader"

// LoadServiceConfig loads the service configuration from file paths or the
// environment. Paths passed in are tried first, then SERVICE_CONFIG_FILE, then
// the defaults. JSON files parse too.
func LoadServiceConfig(paths ...string) (*ServiceConfig, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("SERVICE_CONFIG_FILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/services.yaml", "services.yaml")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		cfg, err := ParseServiceConfig(data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse service config file %s: %v", logPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded service config from %s", logPrefix, p))
		return MergeServiceConfigs(GetDefaultServiceConfig(), cfg), nil
	}

	slog.Info(fmt.Sprintf("%s - Using default service config", logPrefix))
	return GetDefaultServiceConfig(), nil
}

// ParseServiceConfig decodes a YAML or JSON document.
func ParseServiceConfig(data []byte) (*ServiceConfig, error) {
	var cfg ServiceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s - invalid service config: %w", logPrefix, err)
	}
	if cfg.Services == nil {
		cfg.Services = make(map[string]map[string]any)
	}
	return &cfg, nil
}

// GetDefaultServiceConfig returns the fallback configuration.
func GetDefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Name:        "service-host",
		Version:     "1.0.0",
		Description: "Default service host configuration",
		Services: map[string]map[string]any{
			"LogService": {
				"capacity": 200,
			},
		},
	}
}

// MergeServiceConfigs merges an override config into a base config. Service
// sections are merged key by key.
func MergeServiceConfigs(base, override *ServiceConfig) *ServiceConfig {
	merged := *base
	merged.Services = make(map[string]map[string]any, len(base.Services)+len(override.Services))
	for name, section := range base.Services {
		merged.Services[name] = copySection(section)
	}

	for name, section := range override.Services {
		target, ok := merged.Services[name]
		if !ok {
			target = make(map[string]any, len(section))
			merged.Services[name] = target
		}
		for k, v := range section {
			target[k] = v
		}
	}

	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}
	if override.Description != "" {
		merged.Description = override.Description
	}
	if override.Primary != "" {
		merged.Primary = override.Primary
	}

	return &merged
}

func copySection(section map[string]any) map[string]any {
	out := make(map[string]any, len(section))
	for k, v := range section {
		out[k] = v
	}
	return out
}
