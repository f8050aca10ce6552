package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr        string
		FrontendURL string
	}
	Database struct {
		Driver string
		Path   string
		DSN    string
	}
	Auth struct {
		FirebaseProject string
		JWTSecret       string
		Issuer          string
		Audience        string
		JWKSURL         string
		DemoToken       string
		DemoEnabled     bool
		AdminKeyHash    string
	}
	AI struct {
		APIKey         string
		Model          string
		MaxRetries     int
		TimeoutSeconds int
	}
	Scraper struct {
		TimeoutSeconds int
		UserAgent      string
	}
	Storage struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
	Metrics struct {
		Enabled bool
	}
	Log struct {
		Level string
		JSON  bool
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv(".env")
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix("RESUMEAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8000")
	v.SetDefault("server.frontendurl", "http://localhost:3000")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/resumeai.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("auth.firebaseproject", "")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.jwksurl", "")
	v.SetDefault("auth.demotoken", "demo-token-123")
	v.SetDefault("auth.demoenabled", true)
	v.SetDefault("auth.adminkeyhash", "")
	v.SetDefault("ai.apikey", "")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.maxretries", 3)
	v.SetDefault("ai.timeoutseconds", 60)
	v.SetDefault("scraper.timeoutseconds", 10)
	v.SetDefault("scraper.useragent", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "resumes")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// accept the plain GEMINI_API_KEY used by existing deployments
	if cfg.AI.APIKey == "" {
		cfg.AI.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.AI.MaxRetries < 1 {
		return fmt.Errorf("ai.maxretries must be at least 1")
	}
	return nil
}

// loadDotEnv fills unset variables from path. A missing file is not an error.
func loadDotEnv(path string) {
	_ = godotenv.Load(path)
}
