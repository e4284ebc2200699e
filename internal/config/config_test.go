package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// Server timeouts / sizes (valid)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging / Docs
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v1/") // no leading slash + trailing slash -> "/api/v1"

	// Queue storage
	t.Setenv("DB_PATH", "db.sqlite")
	t.Setenv("SNAPSHOT_KEY", "prod-queue.csv")
	t.Setenv("STORE_MAX_RETRIES", "5")

	// Matching
	t.Setenv("FALLBACK_ENABLED", "1")
	t.Setenv("FALLBACK_CRON", "30 * * * *")
	t.Setenv("FALLBACK_MAX_AGE", "48h")
	t.Setenv("STATUS_CHECK_URL", "https://peers.example.org/status")

	// Admin
	t.Setenv("ADMIN_TOKEN", "s3cret")

	// Rate limiting (use invalids for parse to fall back to defaults)
	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Server
	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}

	// Logging / Docs
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}

	// Queue storage
	if cfg.DBPath != "db.sqlite" || cfg.SnapshotKey != "prod-queue.csv" || cfg.StoreMaxRetries != 5 {
		t.Fatalf("storage fields unexpected: %+v", cfg)
	}

	// Matching
	if !cfg.Fallback.Enabled || cfg.Fallback.Spec != "30 * * * *" || cfg.Fallback.MaxAge != 48*time.Hour {
		t.Fatalf("fallback unexpected: %+v", cfg.Fallback)
	}
	if cfg.StatusCheckURL != "https://peers.example.org/status" {
		t.Fatalf("status check url unexpected: %q", cfg.StatusCheckURL)
	}

	// Admin
	if cfg.AdminToken != "s3cret" {
		t.Fatalf("admin token unexpected: %q", cfg.AdminToken)
	}

	// Rate limiting (parse fallback to defaults)
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}

	// Web protection
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}

	// OTEL
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	t.Run("invalid LOG_LEVEL", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "verbose")
		if _, err := Load(); err == nil {
			t.Fatalf("expected LOG_LEVEL validation error")
		}
	})
	t.Run("empty PORT via spaces", func(t *testing.T) {
		t.Setenv("PORT", "   ")
		if _, err := Load(); err == nil || !containsErr(err, "PORT must not be empty") {
			t.Fatalf("expected port validation error, got: %v", err)
		}
	})
	t.Run("non-positive timeouts", func(t *testing.T) {
		t.Setenv("READ_TIMEOUT", "0s")
		if _, err := Load(); err == nil || !containsErr(err, "timeouts must be positive") {
			t.Fatalf("expected timeouts validation error, got: %v", err)
		}
	})
	t.Run("max header bytes <= 0", func(t *testing.T) {
		t.Setenv("MAX_HEADER_BYTES", "0")
		if _, err := Load(); err == nil || !containsErr(err, "MAX_HEADER_BYTES") {
			t.Fatalf("expected MAX_HEADER_BYTES validation error, got: %v", err)
		}
	})
	t.Run("empty DB_PATH", func(t *testing.T) {
		t.Setenv("DB_PATH", "   ")
		if _, err := Load(); err == nil || !containsErr(err, "DB_PATH must not be empty") {
			t.Fatalf("expected DB_PATH validation error, got: %v", err)
		}
	})
	t.Run("empty SNAPSHOT_KEY", func(t *testing.T) {
		t.Setenv("SNAPSHOT_KEY", "   ")
		if _, err := Load(); err == nil || !containsErr(err, "SNAPSHOT_KEY must not be empty") {
			t.Fatalf("expected SNAPSHOT_KEY validation error, got: %v", err)
		}
	})
	t.Run("store retries < 1", func(t *testing.T) {
		t.Setenv("STORE_MAX_RETRIES", "0")
		if _, err := Load(); err == nil || !containsErr(err, "STORE_MAX_RETRIES") {
			t.Fatalf("expected STORE_MAX_RETRIES validation error, got: %v", err)
		}
	})
	t.Run("fallback max age non-positive", func(t *testing.T) {
		t.Setenv("FALLBACK_MAX_AGE", "0s")
		if _, err := Load(); err == nil || !containsErr(err, "FALLBACK_MAX_AGE") {
			t.Fatalf("expected FALLBACK_MAX_AGE validation error, got: %v", err)
		}
	})
	t.Run("fallback enabled without cron spec", func(t *testing.T) {
		t.Setenv("FALLBACK_ENABLED", "1")
		t.Setenv("FALLBACK_CRON", "   ")
		if _, err := Load(); err == nil || !containsErr(err, "FALLBACK_CRON") {
			t.Fatalf("expected FALLBACK_CRON validation error, got: %v", err)
		}
	})
	t.Run("rate rps negative", func(t *testing.T) {
		t.Setenv("RATE_RPS", "-1")
		if _, err := Load(); err == nil || !containsErr(err, "RATE_RPS") {
			t.Fatalf("expected RATE_RPS validation error, got: %v", err)
		}
	})
	t.Run("rate burst < 1", func(t *testing.T) {
		t.Setenv("RATE_BURST", "0")
		if _, err := Load(); err == nil || !containsErr(err, "RATE_BURST") {
			t.Fatalf("expected RATE_BURST validation error, got: %v", err)
		}
	})
	t.Run("hsts max age negative", func(t *testing.T) {
		t.Setenv("HSTS_MAX_AGE", "-1s")
		if _, err := Load(); err == nil || !containsErr(err, "HSTS_MAX_AGE") {
			t.Fatalf("expected HSTS_MAX_AGE validation error, got: %v", err)
		}
	})
	t.Run("otel sample ratio out of range", func(t *testing.T) {
		t.Setenv("OTEL_TRACES_SAMPLER_ARG", "1.5")
		if _, err := Load(); err == nil || !containsErr(err, "OTEL_TRACES_SAMPLER_ARG") {
			t.Fatalf("expected OTEL_TRACES_SAMPLER_ARG validation error, got: %v", err)
		}
	})

	// Note: API_BASE_PATH validation is effectively unreachable due to normalizeBasePath
	// always ensuring a leading '/' and returning "/" for empty input.
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_parsers_FallBackOnBadInput(t *testing.T) {
	cases := []struct {
		env  string
		good string
		bad  string
	}{
		{"F", "3.14", "nope"},
		{"I", "42", "x"},
		{"D", "150ms", "zzz"},
	}
	// good values parse
	for _, tc := range cases {
		t.Setenv(tc.env, tc.good)
	}
	if getfloat("F", 0) != 3.14 || getint("I", 0) != 42 || getdur("D", time.Second) != 150*time.Millisecond {
		t.Fatalf("parse of valid values failed")
	}
	// bad values keep the default
	for _, tc := range cases {
		t.Setenv(tc.env, tc.bad)
	}
	if getfloat("F", 1.23) != 1.23 || getint("I", 7) != 7 || getdur("D", 2*time.Second) != 2*time.Second {
		t.Fatalf("defaults on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"} {
		t.Setenv("B", v)
		if !getbool("B", false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	for _, v := range []string{"0", "false", "FALSE", " no ", "N", "off", "Off"} {
		t.Setenv("B", v)
		if getbool("B", true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	// unset/empty keeps the default
	t.Setenv("B", "")
	if !getbool("B", true) || getbool("B", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	want := []string{"a", "b", "c"}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, want) {
		t.Fatalf("splitCSV mismatch: got %#v want %#v", got, want)
	}
}

func TestHelpers_normalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":      "/",
		"v1":    "/v1",
		"/v1/":  "/v1",
		" / ":   "/",
		"/api/": "/api",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}

// Ensure tests don’t leak env to others.
func TestMain(m *testing.M) {
	os.Unsetenv("PORT")
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_PATH", "db.sqlite")
	// Intentionally leave everything else unset.

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("API_BASE_PATH default expected '/api/v1', got %q", cfg.APIBasePath)
	}
	if cfg.SnapshotKey != "queue.csv" {
		t.Fatalf("SNAPSHOT_KEY default expected 'queue.csv', got %q", cfg.SnapshotKey)
	}
	if cfg.StoreMaxRetries != 3 {
		t.Fatalf("STORE_MAX_RETRIES default expected 3, got %d", cfg.StoreMaxRetries)
	}
	if cfg.Fallback.MaxAge != 96*time.Hour {
		t.Fatalf("FALLBACK_MAX_AGE default expected 96h, got %v", cfg.Fallback.MaxAge)
	}
	if cfg.AdminToken != "" {
		t.Fatalf("expected empty AdminToken when unset, got %q", cfg.AdminToken)
	}
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	// No special env needed; defaults are valid.
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.APIBasePath == "" {
		t.Fatalf("unexpected empty config from MustLoad")
	}
}
