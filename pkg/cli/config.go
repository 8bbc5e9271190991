package cli

import (
	"log/slog"
	"os"

	"github.com/m-mizutani/caselog/pkg/adapter"
	"github.com/m-mizutani/caselog/pkg/service/directory"
	"github.com/m-mizutani/caselog/pkg/service/fetch"
	"github.com/m-mizutani/caselog/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// config holds configuration values shared across commands
type config struct {
	// Upstream API
	baseURL     string
	accessToken string
	userID      string
	orgID       string

	// Author directory
	directoryPath string

	// Logging
	logLevel  string
	logFormat string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "base-url",
			Aliases:     []string{"u"},
			Usage:       "Base URL of the upstream record API",
			Sources:     cli.EnvVars("CASELOG_BASE_URL"),
			Destination: &cfg.baseURL,
		},
		&cli.StringFlag{
			Name:        "access-token",
			Usage:       "Bearer token for the upstream API",
			Sources:     cli.EnvVars("CASELOG_ACCESS_TOKEN"),
			Destination: &cfg.accessToken,
		},
		&cli.StringFlag{
			Name:        "user-id",
			Usage:       "Upstream user identity attached to every request",
			Sources:     cli.EnvVars("CASELOG_USER_ID"),
			Destination: &cfg.userID,
		},
		&cli.StringFlag{
			Name:        "org-id",
			Usage:       "Upstream organization identity attached to every request",
			Sources:     cli.EnvVars("CASELOG_ORG_ID"),
			Destination: &cfg.orgID,
		},
		&cli.StringFlag{
			Name:        "directory",
			Aliases:     []string{"d"},
			Usage:       "YAML file mapping user IDs to display names",
			Sources:     cli.EnvVars("CASELOG_DIRECTORY"),
			Destination: &cfg.directoryPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("CASELOG_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       "console",
			Sources:     cli.EnvVars("CASELOG_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

// newLogger creates the run logger from the logging flags
func (cfg *config) newLogger() *slog.Logger {
	var opts []logging.Option
	if cfg.logFormat == "json" {
		opts = append(opts, logging.WithJSON())
	}
	return logging.New(cfg.logLevel, os.Stderr, opts...)
}

// newUpstream creates the upstream API client
func (cfg *config) newUpstream() (adapter.Upstream, error) {
	if cfg.baseURL == "" {
		return nil, goerr.New("base-url is required")
	}
	if cfg.accessToken == "" {
		return nil, goerr.New("access-token is required")
	}

	return adapter.NewHTTP(cfg.baseURL, adapter.Credentials{
		AccessToken: cfg.accessToken,
		UserID:      cfg.userID,
		OrgID:       cfg.orgID,
	}), nil
}

// newResolver creates the author resolver, seeded from the static directory
// file when one is configured
func (cfg *config) newResolver(fetcher *fetch.Service, upstream adapter.Upstream) (*directory.Resolver, error) {
	dir := directory.New()
	if cfg.directoryPath != "" {
		loaded, err := directory.LoadFile(cfg.directoryPath)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to load author directory")
		}
		dir = loaded
	}

	return directory.NewResolver(dir, fetcher, upstream), nil
}
