package config

import (
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("overlapscan-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Telemetry.ServiceName != "overlapscan-test" {
		t.Errorf("service name = %q", cfg.Telemetry.ServiceName)
	}
	if cfg.Scan.DefaultSource != "postpass" {
		t.Errorf("default source = %q", cfg.Scan.DefaultSource)
	}
	if cfg.Scan.MaxPairs != 5000 || cfg.Scan.MaxComparisons != 2000000 {
		t.Errorf("budgets = %d/%d", cfg.Scan.MaxPairs, cfg.Scan.MaxComparisons)
	}
	if !strings.HasPrefix(cfg.Postpass.URL, "https://postpass.geofabrik.de/") {
		t.Errorf("postpass url = %q", cfg.Postpass.URL)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("OVERLAPSCAN_SCAN_MAX_PAIRS", "42")
	t.Setenv("OVERLAPSCAN_SERVER_PORT", "9090")

	cfg, err := Load("api")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Scan.MaxPairs != 42 {
		t.Errorf("max_pairs = %d, want 42", cfg.Scan.MaxPairs)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 0},
		Scan:   ScanConfig{DefaultSource: "osmdb", MaxPairs: -1},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{
		"server.port",
		"database.host is required",
		"osmdb.dsn is required",
		"scan.max_pairs must be positive",
		"postpass.url is invalid",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing %q:\n%s", want, msg)
		}
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p@ss", Host: "db", Port: 5432, DBName: "scans", SSLMode: "disable"}
	want := "postgres://u:p%40ss@db:5432/scans?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
