// Package bootstrap loads the service configuration handed to every
// configurable service during the config phase.
package bootstrap

// ServiceConfig is the root service configuration file.
type ServiceConfig struct {
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// Primary names the service mounted at the HTTP root. Empty means the
	// first user service.
	Primary string `yaml:"primary,omitempty" json:"primary,omitempty"`
	// Services holds one section per service name.
	Services map[string]map[string]any `yaml:"services" json:"services"`
}

// Section returns the configuration of one service, or nil.
func (c *ServiceConfig) Section(name string) map[string]any {
	if c == nil {
		return nil
	}
	return c.Services[name]
}

// Sections returns the per-service sections as a plain map.
func (c *ServiceConfig) Sections() map[string]any {
	out := make(map[string]any)
	if c == nil {
		return out
	}
	for name, section := range c.Services {
		out[name] = section
	}
	return out
}
