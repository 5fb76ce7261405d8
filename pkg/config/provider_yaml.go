package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads and validates the complete configuration from the YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	config, err := ParseYAML(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", y.filename, err)
	}

	y.config = config
	return config, nil
}

// ParseYAML decodes and validates a YAML document.
func ParseYAML(b []byte) (*ConfigData, error) {
	// Load into temporary struct with YAML tags
	var yamlConfig ConfigYAML
	if err := yaml.UnmarshalStrict(b, &yamlConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config := &ConfigData{
		Location: LocationData{
			Latitude:  yamlConfig.Location.Latitude,
			Longitude: yamlConfig.Location.Longitude,
			Elevation: yamlConfig.Location.Elevation,
		},
		Timezone: yamlConfig.Timezone,
		Ephemeris: EphemerisData{
			Backend:       yamlConfig.Ephemeris.Backend,
			MaxIterations: yamlConfig.Ephemeris.MaxIterations,
		},
		Cache: CacheData{
			Backend: yamlConfig.Cache.Backend,
			Path:    yamlConfig.Cache.Path,
		},
	}

	var err error
	if config.Ephemeris.MaxTimeError, err = parseDuration("ephemeris.max_time_error", yamlConfig.Ephemeris.MaxTimeError); err != nil {
		return nil, err
	}
	if config.Ephemeris.ScanStep, err = parseDuration("ephemeris.scan_step", yamlConfig.Ephemeris.ScanStep); err != nil {
		return nil, err
	}

	if yamlConfig.REST != nil {
		config.REST = &RESTServerData{
			Cert:       yamlConfig.REST.Cert,
			Key:        yamlConfig.REST.Key,
			ListenAddr: yamlConfig.REST.ListenAddr,
			HTTPPort:   yamlConfig.REST.HTTPPort,
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}

func (y *YAMLProvider) loaded() (*ConfigData, error) {
	if y.config == nil {
		if _, err := y.LoadConfig(); err != nil {
			return nil, err
		}
	}
	return y.config, nil
}

// GetEphemerisConfig returns the ephemeris configuration
func (y *YAMLProvider) GetEphemerisConfig() (*EphemerisData, error) {
	cfg, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &cfg.Ephemeris, nil
}

// GetCacheConfig returns the cache configuration
func (y *YAMLProvider) GetCacheConfig() (*CacheData, error) {
	cfg, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &cfg.Cache, nil
}

// GetRESTServerConfig returns the REST configuration, or nil if the section is absent
func (y *YAMLProvider) GetRESTServerConfig() (*RESTServerData, error) {
	cfg, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return cfg.REST, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// YAML-specific structs with proper YAML tags
type ConfigYAML struct {
	Location  LocationYAML    `yaml:"location,omitempty"`
	Timezone  string          `yaml:"timezone,omitempty"`
	Ephemeris EphemerisYAML   `yaml:"ephemeris,omitempty"`
	Cache     CacheYAML       `yaml:"cache,omitempty"`
	REST      *RESTServerYAML `yaml:"rest,omitempty"`
}

type LocationYAML struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Elevation float64 `yaml:"elevation,omitempty"`
}

type EphemerisYAML struct {
	Backend       string `yaml:"backend,omitempty"`
	MaxTimeError  string `yaml:"max_time_error,omitempty"`
	ScanStep      string `yaml:"scan_step,omitempty"`
	MaxIterations int    `yaml:"max_iterations,omitempty"`
}

type CacheYAML struct {
	Backend string `yaml:"backend,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

type RESTServerYAML struct {
	Cert       string `yaml:"cert,omitempty"`
	Key        string `yaml:"key,omitempty"`
	ListenAddr string `yaml:"listen_addr,omitempty"`
	HTTPPort   int    `yaml:"http_port,omitempty"`
}
