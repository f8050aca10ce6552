package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:8000" || cfg.Database.Driver != "sqlite" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Auth.DemoToken != "demo-token-123" || !cfg.Auth.DemoEnabled {
		t.Fatalf("unexpected auth defaults %+v", cfg.Auth)
	}
	if cfg.AI.MaxRetries != 3 || cfg.Storage.KeyPrefix != "resumes" || !cfg.Metrics.Enabled {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RESUMEAI_SERVER_FRONTENDURL", "https://app.example.com")
	t.Setenv("RESUMEAI_DATABASE_DRIVER", "postgres")
	t.Setenv("RESUMEAI_DATABASE_DSN", "postgres://localhost/resumeai")
	t.Setenv("RESUMEAI_AUTH_DEMOENABLED", "false")
	t.Setenv("RESUMEAI_AI_MODEL", "models/gemini-2.5-pro")
	t.Setenv("RESUMEAI_AI_APIKEY", "")
	t.Setenv("GEMINI_API_KEY", "legacy-key")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.FrontendURL != "https://app.example.com" {
		t.Fatalf("frontend url = %q", cfg.Server.FrontendURL)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://localhost/resumeai" {
		t.Fatalf("unexpected database config %+v", cfg.Database)
	}
	if cfg.Auth.DemoEnabled {
		t.Fatal("expected demo token to be disabled")
	}
	if cfg.AI.Model != "models/gemini-2.5-pro" || cfg.AI.APIKey != "legacy-key" {
		t.Fatalf("unexpected ai config %+v", cfg.AI)
	}
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("RESUMEAI_DATABASE_DRIVER", "postgres")
	t.Setenv("RESUMEAI_DATABASE_DSN", "")
	if _, err := load(viper.New()); err == nil {
		t.Fatal("expected missing dsn to fail")
	}

	t.Setenv("RESUMEAI_DATABASE_DRIVER", "mysql")
	if _, err := load(viper.New()); err == nil {
		t.Fatal("expected unsupported driver to fail")
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nRESUMEAI_TEST_A=\"from file\"\nexport RESUMEAI_TEST_B=file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("RESUMEAI_TEST_B", "from env")
	t.Setenv("RESUMEAI_TEST_A", "")
	os.Unsetenv("RESUMEAI_TEST_A")

	loadDotEnv(path)
	t.Cleanup(func() { os.Unsetenv("RESUMEAI_TEST_A") })

	if got := os.Getenv("RESUMEAI_TEST_A"); got != "from file" {
		t.Fatalf("RESUMEAI_TEST_A = %q", got)
	}
	if got := os.Getenv("RESUMEAI_TEST_B"); got != "from env" {
		t.Fatalf("RESUMEAI_TEST_B = %q", got)
	}

	loadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
}
