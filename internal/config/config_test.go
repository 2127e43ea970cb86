package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	if cfg.AppEnv != EnvDev {
		t.Fatalf("unexpected app env: got=%s want=%s", cfg.AppEnv, EnvDev)
	}
	if cfg.ServiceName != "duels-api" {
		t.Fatalf("unexpected service name: %s", cfg.ServiceName)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected http addr: %s", cfg.HTTPAddr)
	}
	if cfg.ReadTimeout != 10*time.Second || cfg.WriteTimeout != 15*time.Second {
		t.Fatalf("unexpected timeouts: read=%s write=%s", cfg.ReadTimeout, cfg.WriteTimeout)
	}
	if cfg.CurrentSeason != 2025 || cfg.CurrentWeek != 1 {
		t.Fatalf("unexpected period defaults: season=%d week=%d", cfg.CurrentSeason, cfg.CurrentWeek)
	}
	if cfg.PointsPerDollar != 100 {
		t.Fatalf("unexpected points per dollar: %d", cfg.PointsPerDollar)
	}
	if cfg.SettlementMode != SettlementModeClient {
		t.Fatalf("unexpected settlement mode: %s", cfg.SettlementMode)
	}
	if cfg.SettleWorkers != 4 {
		t.Fatalf("unexpected settle workers: %d", cfg.SettleWorkers)
	}
	if cfg.HouseAccountID == "" {
		t.Fatal("house account id must have a default")
	}
	if !cfg.ESPNCircuitEnabled || cfg.ESPNMaxRetries != 2 {
		t.Fatalf("unexpected espn defaults: circuit=%v retries=%d", cfg.ESPNCircuitEnabled, cfg.ESPNMaxRetries)
	}
	if cfg.QStashEnabled || cfg.PprofEnabled || cfg.UptraceEnabled || cfg.PyroscopeEnabled {
		t.Fatal("optional integrations must default to disabled")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("APP_HTTP_ADDR", ":9000")
	t.Setenv("CURRENT_SEASON", "2026")
	t.Setenv("CURRENT_WEEK", "7")
	t.Setenv("RAKE_RATE", "9/200")
	t.Setenv("SETTLEMENT_MODE", "SERVER")
	t.Setenv("ALLOWED_WITHDRAW_METHODS", "paypal, venmo ,cashapp")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppEnv != EnvProd {
		t.Fatalf("unexpected app env: %s", cfg.AppEnv)
	}
	if cfg.HTTPAddr != ":9000" {
		t.Fatalf("unexpected http addr: %s", cfg.HTTPAddr)
	}
	if cfg.CurrentSeason != 2026 || cfg.CurrentWeek != 7 {
		t.Fatalf("unexpected period: season=%d week=%d", cfg.CurrentSeason, cfg.CurrentWeek)
	}
	if cfg.RakeRate != "9/200" {
		t.Fatalf("unexpected rake rate: %s", cfg.RakeRate)
	}
	if cfg.SettlementMode != SettlementModeServer {
		t.Fatalf("settlement mode not lowercased: %s", cfg.SettlementMode)
	}
	if len(cfg.AllowedWithdrawMethods) != 3 || cfg.AllowedWithdrawMethods[1] != "venmo" {
		t.Fatalf("csv not split and trimmed: %v", cfg.AllowedWithdrawMethods)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("unexpected origins: %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad app env", key: "APP_ENV", value: "staging-2"},
		{name: "bad read timeout", key: "APP_READ_TIMEOUT", value: "soon"},
		{name: "season too low", key: "CURRENT_SEASON", value: "1999"},
		{name: "week zero", key: "CURRENT_WEEK", value: "0"},
		{name: "bad points rate", key: "POINTS_PER_DOLLAR", value: "0"},
		{name: "bad settlement mode", key: "SETTLEMENT_MODE", value: "oracle"},
		{name: "negative retries", key: "ESPN_MAX_RETRIES", value: "-1"},
		{name: "bad bool", key: "ESPN_CIRCUIT_ENABLED", value: "yep"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestLoadQStashRequiresWiring(t *testing.T) {
	t.Setenv("QSTASH_ENABLED", "true")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when qstash is enabled without a token")
	}

	t.Setenv("QSTASH_TOKEN", "qs-token")
	t.Setenv("QSTASH_TARGET_BASE_URL", "https://api.example.com")
	t.Setenv("INTERNAL_JOB_TOKEN", "job-token")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load with full qstash wiring: %v", err)
	}
	if !cfg.QStashEnabled || cfg.QStashToken != "qs-token" {
		t.Fatalf("unexpected qstash config: %+v", cfg)
	}
}
