package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
	Postpass  PostpassConfig  `mapstructure:"postpass"`
	Overpass  OverpassConfig  `mapstructure:"overpass"`
	OSMDB     OSMDBConfig     `mapstructure:"osmdb"`
	HOTOSM    HOTOSMConfig    `mapstructure:"hotosm"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
	// ScanTimeout bounds a single POST /v1/scans, fetch included (seconds).
	ScanTimeout int `mapstructure:"scan_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, url.QueryEscape(d.Password), d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File, when set, receives a JSON copy of every record.
	File string `mapstructure:"file"`
}

type PostpassConfig struct {
	URL         string `mapstructure:"url"`
	Timeout     int    `mapstructure:"timeout"`
	MaxFeatures int    `mapstructure:"max_features"`
}

type OverpassConfig struct {
	URL         string `mapstructure:"url"`
	Timeout     int    `mapstructure:"timeout"`
	MaxParallel int    `mapstructure:"max_parallel"`
	MaxFeatures int    `mapstructure:"max_features"`
}

// OSMDBConfig points at a self-hosted osm2pgsql database. Empty DSN disables the source.
type OSMDBConfig struct {
	DSN         string `mapstructure:"dsn"`
	Table       string `mapstructure:"table"`
	SRID        int    `mapstructure:"srid"`
	MaxFeatures int    `mapstructure:"max_features"`
}

type HOTOSMConfig struct {
	URL     string `mapstructure:"url"`
	Timeout int    `mapstructure:"timeout"`
}

type ScanConfig struct {
	DefaultSource       string  `mapstructure:"default_source"`
	MinOverlapArea      float64 `mapstructure:"min_overlap_area"`
	MaxPairs            int     `mapstructure:"max_pairs"`
	MaxComparisons      int     `mapstructure:"max_comparisons"`
	CacheTTL            int     `mapstructure:"cache_ttl"`
	MaxBBoxAreaSquareKm float64 `mapstructure:"max_bbox_area_km2"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.scan_timeout", 120)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "overlapscan")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "overlapscan")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("postpass.url", "https://postpass.geofabrik.de/api/0.2/interpreter")
	v.SetDefault("postpass.timeout", 60)
	v.SetDefault("postpass.max_features", 20000)
	v.SetDefault("overpass.url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.timeout", 90)
	v.SetDefault("overpass.max_parallel", 2)
	v.SetDefault("overpass.max_features", 20000)
	v.SetDefault("osmdb.dsn", "")
	v.SetDefault("osmdb.table", "planet_osm_polygon")
	v.SetDefault("osmdb.srid", 3857)
	v.SetDefault("osmdb.max_features", 50000)
	v.SetDefault("hotosm.url", "https://tasks.hotosm.org/api/v2.0")
	v.SetDefault("hotosm.timeout", 30)
	v.SetDefault("scan.default_source", "postpass")
	v.SetDefault("scan.min_overlap_area", 1.0)
	v.SetDefault("scan.max_pairs", 5000)
	v.SetDefault("scan.max_comparisons", 2000000)
	v.SetDefault("scan.cache_ttl", 300)
	v.SetDefault("scan.max_bbox_area_km2", 25.0)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "overlap-scans")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: OVERLAPSCAN_POSTPASS_URL → postpass.url
	v.SetEnvPrefix("OVERLAPSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Server.ScanTimeout <= 0 {
		errs = append(errs, "server.scan_timeout must be positive")
	}
	if _, err := url.ParseRequestURI(c.Postpass.URL); err != nil {
		errs = append(errs, fmt.Sprintf("postpass.url is invalid: %v", err))
	}
	if _, err := url.ParseRequestURI(c.HOTOSM.URL); err != nil {
		errs = append(errs, fmt.Sprintf("hotosm.url is invalid: %v", err))
	}
	switch c.Scan.DefaultSource {
	case "postpass", "overpass":
	case "osmdb":
		if c.OSMDB.DSN == "" {
			errs = append(errs, "osmdb.dsn is required when scan.default_source is osmdb")
		}
	default:
		errs = append(errs, fmt.Sprintf("scan.default_source must be postpass, overpass or osmdb, got %q", c.Scan.DefaultSource))
	}
	if c.Scan.MinOverlapArea < 0 {
		errs = append(errs, "scan.min_overlap_area must not be negative")
	}
	if c.Scan.MaxPairs <= 0 {
		errs = append(errs, "scan.max_pairs must be positive")
	}
	if c.Scan.MaxComparisons <= 0 {
		errs = append(errs, "scan.max_comparisons must be positive")
	}
	if c.Scan.MaxBBoxAreaSquareKm < 0 {
		errs = append(errs, "scan.max_bbox_area_km2 must not be negative")
	}
	if c.Scan.CacheTTL < 0 {
		errs = append(errs, "scan.cache_ttl must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
