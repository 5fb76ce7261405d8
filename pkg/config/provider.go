package config

import (
	"fmt"
	"time"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetEphemerisConfig() (*EphemerisData, error)
	GetCacheConfig() (*CacheData, error)
	GetRESTServerConfig() (*RESTServerData, error)

	IsReadOnly() bool
	Close() error
}

// Supported ephemeris backends and cache backends.
const (
	EphemerisMeeus    = "meeus"
	EphemerisAnalytic = "analytic"

	CacheMemory = "memory"
	CacheSQLite = "sqlite"
	CacheNone   = "none"
)

// Defaults applied by Validate.
const (
	DefaultTimezone      = "UTC"
	DefaultMaxTimeError  = time.Minute
	DefaultScanStep      = 6 * time.Hour
	DefaultMaxIterations = 64
	DefaultCachePath     = "lunarcal.db"
	DefaultListenAddr    = "0.0.0.0"
	DefaultHTTPPort      = 8080
)

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Location  LocationData    `json:"location"`
	Timezone  string          `json:"timezone,omitempty"`
	Ephemeris EphemerisData   `json:"ephemeris"`
	Cache     CacheData       `json:"cache"`
	REST      *RESTServerData `json:"rest,omitempty"`
}

// LocationData is the observer position handed to the ephemeris.
type LocationData struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Elevation float64 `json:"elevation"`
}

// EphemerisData selects and tunes the longitude source.
type EphemerisData struct {
	Backend       string        `json:"backend,omitempty"`
	MaxTimeError  time.Duration `json:"max_time_error,omitempty"`
	ScanStep      time.Duration `json:"scan_step,omitempty"`
	MaxIterations int           `json:"max_iterations,omitempty"`
}

// CacheData selects where computed lunar year tables are kept.
type CacheData struct {
	Backend string `json:"backend,omitempty"`
	Path    string `json:"path,omitempty"`
}

// RESTServerData holds the configuration for the REST API
type RESTServerData struct {
	Cert       string `json:"cert,omitempty"`
	Key        string `json:"key,omitempty"`
	ListenAddr string `json:"listen_addr,omitempty"`
	HTTPPort   int    `json:"http_port,omitempty"`
}

// Validate fills in defaults and rejects values the calendar cannot use.
func (c *ConfigData) Validate() error {
	if c.Location.Latitude < -90 || c.Location.Latitude > 90 {
		return fmt.Errorf("location.latitude %v out of range [-90,90]", c.Location.Latitude)
	}
	if c.Location.Longitude < -180 || c.Location.Longitude > 180 {
		return fmt.Errorf("location.longitude %v out of range [-180,180]", c.Location.Longitude)
	}

	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	e := &c.Ephemeris
	switch e.Backend {
	case "":
		e.Backend = EphemerisMeeus
	case EphemerisMeeus, EphemerisAnalytic:
	default:
		return fmt.Errorf("unknown ephemeris backend %q (want %q or %q)", e.Backend, EphemerisMeeus, EphemerisAnalytic)
	}
	if e.MaxTimeError < 0 || e.ScanStep < 0 || e.MaxIterations < 0 {
		return fmt.Errorf("ephemeris settings must not be negative")
	}
	if e.MaxTimeError == 0 {
		e.MaxTimeError = DefaultMaxTimeError
	}
	if e.ScanStep == 0 {
		e.ScanStep = DefaultScanStep
	}
	if e.ScanStep > 24*time.Hour {
		return fmt.Errorf("ephemeris.scan_step %v is too coarse to bracket new moons", e.ScanStep)
	}
	if e.MaxIterations == 0 {
		e.MaxIterations = DefaultMaxIterations
	}

	switch c.Cache.Backend {
	case "":
		c.Cache.Backend = CacheMemory
	case CacheMemory, CacheNone:
	case CacheSQLite:
		if c.Cache.Path == "" {
			c.Cache.Path = DefaultCachePath
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if c.REST != nil {
		if c.REST.ListenAddr == "" {
			c.REST.ListenAddr = DefaultListenAddr
		}
		if c.REST.HTTPPort == 0 {
			c.REST.HTTPPort = DefaultHTTPPort
		}
		if (c.REST.Cert == "") != (c.REST.Key == "") {
			return fmt.Errorf("rest.cert and rest.key must be set together")
		}
	}
	return nil
}

// TimeLocation returns the configured output time zone.
func (c *ConfigData) TimeLocation() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}
