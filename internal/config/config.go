package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable consulted when no config
// path is given on the command line.
const EnvConfigPath = "GO2FLOWEVAL_CONFIG"

// IngestConfig controls how ground-truth flow records are read.
type IngestConfig struct {
	TimeLayout string `yaml:"time_layout"`
	TimeZone   string `yaml:"time_zone"`
}

// ColumnMap gives the zero-based position of each field a prediction row
// must provide.
type ColumnMap struct {
	AddressA  int `yaml:"address_a"`
	AddressB  int `yaml:"address_b"`
	Protocol  int `yaml:"protocol"`
	PortA     int `yaml:"port_a"`
	PortB     int `yaml:"port_b"`
	Timestamp int `yaml:"timestamp"`
	Label     int `yaml:"label"`
}

// PredictionsConfig controls how the classifier output table is read.
type PredictionsConfig struct {
	ExpectedColumns int       `yaml:"expected_columns"`
	Columns         ColumnMap `yaml:"columns"`
	SkipHeader      bool      `yaml:"skip_header"`
	Comma           string    `yaml:"comma"`
}

// CorrelatorConfig holds the matching parameters.
type CorrelatorConfig struct {
	// ReferenceStart is the capture start, in the flow time base (Unix
	// seconds), that the first prediction row is aligned to.
	ReferenceStart float64 `yaml:"reference_start"`
	OverlapPolicy  string  `yaml:"overlap_policy"`
}

// GobConfig configures the gob snapshot writer.
type GobConfig struct {
	RootPath string `yaml:"root_path"`
}

// CSVConfig configures an additional CSV copy of the results.
type CSVConfig struct {
	Path string `yaml:"path"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

// NATSConfig configures the NATS result publisher.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// AMQPConfig configures the AMQP result publisher.
type AMQPConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

// WriterDef defines an extra sink the results are written to after the
// primary CSV output.
type WriterDef struct {
	Type       string           `yaml:"type"`
	Enabled    bool             `yaml:"enabled"`
	CSV        CSVConfig        `yaml:"csv"`
	Gob        GobConfig        `yaml:"gob"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	NATS       NATSConfig       `yaml:"nats"`
	AMQP       AMQPConfig       `yaml:"amqp"`
}

// OutputConfig controls result emission.
type OutputConfig struct {
	UnsetLabel string      `yaml:"unset_label"`
	Writers    []WriterDef `yaml:"writers"`
}

// MetricsConfig controls Prometheus export.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
	// Textfile, when set, receives the run's metrics in the Prometheus text
	// format (for node_exporter's textfile collector).
	Textfile string `yaml:"textfile"`
}

// APIConfig configures the result query server.
type APIConfig struct {
	ListenAddr   string           `yaml:"listen_addr"`
	GRPCAddr     string           `yaml:"grpc_addr"`
	Source       string           `yaml:"source"`
	SnapshotRoot string           `yaml:"snapshot_root"`
	ClickHouse   ClickHouseConfig `yaml:"clickhouse"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Ingest      IngestConfig      `yaml:"ingest"`
	Predictions PredictionsConfig `yaml:"predictions"`
	Correlator  CorrelatorConfig  `yaml:"correlator"`
	Output      OutputConfig      `yaml:"output"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	API         APIConfig         `yaml:"api"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoadConfig builds the configuration from defaults, the YAML file at
// filePath (or $GO2FLOWEVAL_CONFIG when filePath is empty) and environment
// overrides, then validates it. With no file at all the defaults are used.
func LoadConfig(filePath string) (*Config, error) {
	if filePath == "" {
		filePath = os.Getenv(EnvConfigPath)
	}

	cfg := Default()

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", filePath, err)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration: the ISCX 2012 record layout
// and the 12-column classifier table.
func Default() Config {
	return Config{
		Ingest: IngestConfig{
			TimeLayout: "2006-01-02T15:04:05",
			TimeZone:   "UTC",
		},
		Predictions: PredictionsConfig{
			ExpectedColumns: 12,
			Columns: ColumnMap{
				AddressA:  0,
				AddressB:  1,
				Protocol:  2,
				PortA:     3,
				PortB:     4,
				Timestamp: 5,
				Label:     11,
			},
			Comma: ",",
		},
		Correlator: CorrelatorConfig{
			// 2010-06-15T00:00:00Z, start of the ISCX testbed capture day.
			ReferenceStart: 1276560000,
			OverlapPolicy:  "all",
		},
		Output: OutputConfig{
			UnsetLabel: "Nothing",
		},
		Metrics: MetricsConfig{
			Namespace: "go2floweval",
		},
		API: APIConfig{
			ListenAddr:   ":8080",
			GRPCAddr:     ":50051",
			Source:       "gob",
			SnapshotRoot: "snapshots",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Validate checks the settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	p := c.Predictions
	if p.ExpectedColumns <= 0 {
		return fmt.Errorf("predictions.expected_columns must be positive, got %d", p.ExpectedColumns)
	}
	seen := make(map[int]string, 7)
	for name, idx := range p.Columns.positions() {
		if idx < 0 || idx >= p.ExpectedColumns {
			return fmt.Errorf("predictions.columns.%s = %d is outside [0, %d)", name, idx, p.ExpectedColumns)
		}
		if other, dup := seen[idx]; dup {
			return fmt.Errorf("predictions.columns.%s and %s both use column %d", name, other, idx)
		}
		seen[idx] = name
	}
	if len([]rune(p.Comma)) != 1 {
		return fmt.Errorf("predictions.comma must be a single character, got %q", p.Comma)
	}

	if r := c.Correlator.ReferenceStart; math.IsNaN(r) || math.IsInf(r, 0) {
		return fmt.Errorf("correlator.reference_start must be finite, got %v", r)
	}

	switch c.Correlator.OverlapPolicy {
	case "", "all", "narrowest":
	default:
		return fmt.Errorf("correlator.overlap_policy must be 'all' or 'narrowest', got %q", c.Correlator.OverlapPolicy)
	}

	if c.Output.UnsetLabel == "" {
		return errors.New("output.unset_label must not be empty")
	}
	if strings.ContainsAny(c.Output.UnsetLabel, ",\n") {
		return fmt.Errorf("output.unset_label %q would break the output format", c.Output.UnsetLabel)
	}

	switch c.API.Source {
	case "", "gob", "clickhouse":
	default:
		return fmt.Errorf("api.source must be 'gob' or 'clickhouse', got %q", c.API.Source)
	}
	return nil
}

func (m ColumnMap) positions() map[string]int {
	return map[string]int{
		"address_a": m.AddressA,
		"address_b": m.AddressB,
		"protocol":  m.Protocol,
		"port_a":    m.PortA,
		"port_b":    m.PortB,
		"timestamp": m.Timestamp,
		"label":     m.Label,
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("GO2FLOWEVAL_REFERENCE_START"); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("invalid GO2FLOWEVAL_REFERENCE_START %q: must be a finite number of seconds", v)
		}
		cfg.Correlator.ReferenceStart = f
	}
	if v := os.Getenv("GO2FLOWEVAL_OVERLAP_POLICY"); v != "" {
		cfg.Correlator.OverlapPolicy = v
	}
	if v := os.Getenv("GO2FLOWEVAL_TIME_ZONE"); v != "" {
		cfg.Ingest.TimeZone = v
	}
	if v := os.Getenv("GO2FLOWEVAL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GO2FLOWEVAL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("GO2FLOWEVAL_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}
	if v := os.Getenv("GO2FLOWEVAL_API_LISTEN_ADDR"); v != "" {
		cfg.API.ListenAddr = v
	}
	if v := os.Getenv("GO2FLOWEVAL_SNAPSHOT_ROOT"); v != "" {
		cfg.API.SnapshotRoot = v
	}
	return nil
}
