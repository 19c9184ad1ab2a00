// Package config contains the configuration structure of pidpatrol and the
// logic to load it from a YAML file.
package config

import (
	"net/url"
	"os"
	"runtime"
	"time"

	fqdn "github.com/Showmax/go-fqdn"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	set "gopkg.in/fatih/set.v0"

	"github.com/pidpatrol/pidpatrol/internal/core/config/validation"
)

// Config is the top level config struct that everything goes under
type Config struct {
	// The host:port the dashboard and JSON API are served on
	ListenAddress string `yaml:"listenAddress" default:"127.0.0.1:8000" validate:"required"`
	// Initial pause between two sampling cycles.  Can be changed at runtime.
	IntervalSeconds float64 `yaml:"intervalSeconds" default:"5" validate:"gte=1"`
	// Process names watched from start-up
	Processes []string `yaml:"processes" default:"[]"`
	// Start monitoring immediately instead of waiting for a start request
	StartOnLaunch bool `yaml:"startOnLaunch"`
	// How long processes seen for the first time are observed before their
	// CPU usage is read.  0 reads immediately, which reports 0 CPU for them.
	CPUSampleWindowMillis int `yaml:"cpuSampleWindowMillis" default:"100" validate:"gte=0"`
	// Upper bound on the time spent sampling in one cycle
	SampleTimeoutSeconds int `yaml:"sampleTimeoutSeconds" default:"10" validate:"gte=1"`
	// Where the process table is read from: gopsutil, or procfs (Linux only)
	ProcessSource string `yaml:"processSource" default:"gopsutil" validate:"oneof=gopsutil procfs"`
	// Mount point of the proc filesystem for the procfs source
	ProcfsPath string `yaml:"procfsPath" default:"/proc"`
	// How many process handles are kept between cycles
	HandleCacheSize int `yaml:"handleCacheSize" default:"4096" validate:"gte=1"`
	// The hostname reported on datapoints.  Determined automatically if blank.
	Hostname string `yaml:"hostname"`

	Server   ServerConfig   `yaml:"server" default:"{}"`
	Metrics  MetricsConfig  `yaml:"metrics" default:"{}"`
	SignalFx SignalFxConfig `yaml:"signalFx" default:"{}"`
	Logging  LogConfig      `yaml:"logging" default:"{}"`

	// A Unix socket path, or a named pipe on Windows
	DiagnosticsSocketPath string `yaml:"diagnosticsSocketPath" default:"/tmp/pidpatrol/diagnostics.sock"`
	EnableProfiling       bool   `yaml:"profiling"`
	ProfilingAddress      string `yaml:"profilingAddress" default:"127.0.0.1:6060"`
}

// ServerConfig holds the HTTP server settings
type ServerConfig struct {
	ReadTimeoutSeconds  int `yaml:"readTimeoutSeconds" default:"10" validate:"gte=1"`
	WriteTimeoutSeconds int `yaml:"writeTimeoutSeconds" default:"10" validate:"gte=1"`
}

// ReadTimeout as a duration
func (sc *ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(sc.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout as a duration
func (sc *ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(sc.WriteTimeoutSeconds) * time.Second
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Disabled bool   `yaml:"disabled"`
	Path     string `yaml:"path" default:"/metrics" validate:"startswith=/"`
}

// SignalFxConfig controls sending snapshots to SignalFx as datapoints.
// Nothing is sent unless an access token is set.
type SignalFxConfig struct {
	AccessToken string `yaml:"accessToken" neverLog:"true"`
	// The ingest URL for SignalFx, without the path
	IngestURL string `yaml:"ingestUrl" default:"https://ingest.signalfx.com"`
	// Dimensions added to every datapoint
	ExtraDimensions map[string]string `yaml:"extraDimensions" default:"{}"`
	// Snapshots waiting to be sent beyond this are dropped
	BufferSize int `yaml:"bufferSize" default:"10" validate:"gte=1"`
	// Timeout of a single ingest request
	TimeoutSeconds int `yaml:"timeoutSeconds" default:"5" validate:"gte=1"`
	// Log every datapoint at debug level before it is sent
	LogDatapoints bool `yaml:"logDatapoints"`

	// Set from IngestURL when the config is loaded
	ParsedIngestURL *url.URL `yaml:"-"`
	// Propagated from the top-level config
	Hostname string `yaml:"-"`
}

// Enabled is true when there is somewhere to send to.
func (sc *SignalFxConfig) Enabled() bool {
	return sc.AccessToken != ""
}

// Timeout as a duration
func (sc *SignalFxConfig) Timeout() time.Duration {
	return time.Duration(sc.TimeoutSeconds) * time.Second
}

// SampleTimeout as a duration
func (c *Config) SampleTimeout() time.Duration {
	return time.Duration(c.SampleTimeoutSeconds) * time.Second
}

// CPUSampleWindow as a duration
func (c *Config) CPUSampleWindow() time.Duration {
	return time.Duration(c.CPUSampleWindowMillis) * time.Millisecond
}

func (c *Config) setDefaultHostname() {
	host, err := fqdn.FqdnHostname()
	if err != nil || host == "localhost" {
		log.WithFields(log.Fields{
			"detail": err,
		}).Debug("Error getting fully qualified hostname, using plain hostname")

		host, err = os.Hostname()
		if err != nil {
			log.Error("Error getting system simple hostname, cannot set hostname")
			return
		}
	}
	c.Hostname = host
}

const (
	defaultDiagnosticsSocketPath = "/tmp/pidpatrol/diagnostics.sock"
	windowsDiagnosticsPipe       = `\\.\pipe\pidpatrol-diagnostics`
)

func (c *Config) initialize() (*Config, error) {
	if c.Hostname == "" {
		c.setDefaultHostname()
	}

	if runtime.GOOS == "windows" && c.DiagnosticsSocketPath == defaultDiagnosticsSocketPath {
		c.DiagnosticsSocketPath = windowsDiagnosticsPipe
	}

	if err := c.validate(); err != nil {
		return nil, errors.Wrap(err, "configuration is invalid")
	}

	c.propagateValuesDown()

	return c, nil
}

// Validate everything that we can about the main config
func (c *Config) validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if _, err := url.Parse(c.SignalFx.IngestURL); err != nil {
		return errors.Wrapf(err, "%s is not a valid ingest URL", c.SignalFx.IngestURL)
	}

	return c.Logging.Validate()
}

// Send values from the top of the config down to nested configs that might
// need them
func (c *Config) propagateValuesDown() {
	ingestURL, err := url.Parse(c.SignalFx.IngestURL)
	if err != nil {
		panic("ingestUrl was supposed to be validated already")
	}

	c.SignalFx.ParsedIngestURL = ingestURL
	c.SignalFx.Hostname = c.Hostname
}

var validLogLevels = set.NewNonTS("trace", "debug", "info", "warn", "warning", "error")
var validLogFormats = set.NewNonTS("text", "json")

// LogConfig contains configuration related to logging
type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"text"`
}

// Validate the logging config
func (lc *LogConfig) Validate() error {
	if !validLogLevels.Has(lc.Level) {
		return errors.Errorf("invalid log level %s.  Valid choices are %v",
			lc.Level, validLogLevels)
	}
	if !validLogFormats.Has(lc.Format) {
		return errors.Errorf("invalid log format %s.  Valid choices are %v",
			lc.Format, validLogFormats)
	}
	return nil
}

// LogrusLevel returns a logrus log level based on the configured level in
// LogConfig.
func (lc *LogConfig) LogrusLevel() *log.Level {
	if lc.Level != "" {
		level, err := log.ParseLevel(lc.Level)
		if err != nil {
			log.WithFields(log.Fields{
				"level": lc.Level,
			}).Error("Invalid log level")
			return nil
		}
		return &level
	}
	return nil
}

// LogrusFormatter returns the formatter for the configured format, or nil to
// keep the current one.
func (lc *LogConfig) LogrusFormatter() log.Formatter {
	if lc.Format == "json" {
		return &log.JSONFormatter{}
	}
	return nil
}
