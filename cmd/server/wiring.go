package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"resume-matcher/internal/auth"
	"resume-matcher/internal/config"
	"resume-matcher/internal/repository"
	"resume-matcher/internal/repository/postgres"
	"resume-matcher/internal/repository/sqlite"
	"resume-matcher/internal/service"
	"resume-matcher/internal/storage"
)

func newLogger(cfg config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.Log.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

type stores struct {
	users    repository.UserRepository
	analyses repository.AnalysisRepository
	close    func()
}

func openStores(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (*stores, error) {
	switch cfg.Database.Driver {
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("using postgres store")
		return initStores(ctx, postgres.NewUserRepository(pool), postgres.NewAnalysisRepository(pool), pool.Close)
	default:
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		logger.Infof("using sqlite store at %s", cfg.Database.Path)
		return initStores(ctx, sqlite.NewUserRepository(db), sqlite.NewAnalysisRepository(db), closeDB(db))
	}
}

func initStores(ctx context.Context, users repository.UserRepository, analyses repository.AnalysisRepository, closeFn func()) (*stores, error) {
	if err := users.Init(ctx); err != nil {
		closeFn()
		return nil, fmt.Errorf("init user repository: %w", err)
	}
	if err := analyses.Init(ctx); err != nil {
		closeFn()
		return nil, fmt.Errorf("init analysis repository: %w", err)
	}
	return &stores{users: users, analyses: analyses, close: closeFn}, nil
}

func closeDB(db *sql.DB) func() {
	return func() { _ = db.Close() }
}

func demoIdentity(cfg config.Config) service.DemoIdentity {
	if !cfg.Auth.DemoEnabled {
		return service.DemoIdentity{}
	}
	demo := service.DefaultDemoIdentity()
	if token := strings.TrimSpace(cfg.Auth.DemoToken); token != "" {
		demo.Token = token
	}
	return demo
}

// buildIdentityProvider returns nil when no verifier is configured, leaving
// only the demo token usable.
func buildIdentityProvider(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (service.IdentityProvider, error) {
	var authCfg auth.Config
	switch {
	case strings.TrimSpace(cfg.Auth.FirebaseProject) != "":
		authCfg = auth.FirebaseConfig(cfg.Auth.FirebaseProject)
	case strings.TrimSpace(cfg.Auth.JWKSURL) != "" || cfg.Auth.JWTSecret != "":
		authCfg = auth.Config{
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
			JWKSURL:  cfg.Auth.JWKSURL,
			Secret:   cfg.Auth.JWTSecret,
		}
	default:
		logger.Warn("no identity provider configured, only the demo token is accepted")
		return nil, nil
	}

	verifier, err := auth.NewVerifier(ctx, authCfg)
	if err != nil {
		return nil, fmt.Errorf("setup token verifier: %w", err)
	}
	return verifier, nil
}

// buildArchive returns nil when no bucket is configured.
func buildArchive(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (service.ResumeArchive, error) {
	if cfg.Storage.Bucket == "" {
		logger.Info("storage bucket not configured, uploads are not archived")
		return nil, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("archiving uploads to s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewResumeArchive(storage.NewS3Service(client), cfg.Storage.Bucket, cfg.Storage.KeyPrefix), nil
}
