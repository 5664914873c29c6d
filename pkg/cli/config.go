package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redhist/redhist/pkg/adapter"
	"github.com/redhist/redhist/pkg/config"
	"github.com/redhist/redhist/pkg/model"
	"github.com/redhist/redhist/pkg/repository"
	"github.com/redhist/redhist/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// cfg holds configuration values shared across commands
type cfg struct {
	configPath string
	dbPath     string
	logLevel   string

	// Credentials, overriding the stored credential file
	clientID     string
	clientSecret string
	userAgent    string
	geminiAPIKey string
	geminiModel  string
}

// globalFlags returns common flags used across commands with destination cfg
func globalFlags(c *cfg) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "Path to credential file",
			Sources:     cli.EnvVars("REDHIST_CONFIG"),
			Destination: &c.configPath,
		},
		&cli.StringFlag{
			Name:        "db",
			Usage:       "Path to local history database",
			Sources:     cli.EnvVars("REDHIST_DB"),
			Destination: &c.dbPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("REDHIST_LOG_LEVEL"),
			Destination: &c.logLevel,
		},
	}
}

// credentialFlags returns flags for Reddit API credentials with destination cfg
func credentialFlags(c *cfg) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "client-id",
			Usage:       "Reddit API client ID",
			Sources:     cli.EnvVars("REDHIST_CLIENT_ID"),
			Destination: &c.clientID,
		},
		&cli.StringFlag{
			Name:        "client-secret",
			Usage:       "Reddit API client secret",
			Sources:     cli.EnvVars("REDHIST_CLIENT_SECRET"),
			Destination: &c.clientSecret,
		},
		&cli.StringFlag{
			Name:        "user-agent",
			Usage:       "User agent sent to the Reddit API",
			Sources:     cli.EnvVars("REDHIST_USER_AGENT"),
			Destination: &c.userAgent,
		},
	}
}

// llmFlags returns flags for Gemini configuration with destination cfg
func llmFlags(c *cfg) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key",
			Sources:     cli.EnvVars("GEMINI_API_KEY", "REDHIST_GEMINI_API_KEY"),
			Destination: &c.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model to use for analysis",
			Sources:     cli.EnvVars("REDHIST_GEMINI_MODEL"),
			Destination: &c.geminiModel,
		},
	}
}

// withLogger attaches a logger at the configured level to the context.
func (c *cfg) withLogger(ctx context.Context) context.Context {
	logger := logging.New(c.logLevel, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// credentialPath resolves the credential file path, defaulting to the user
// config directory.
func (c *cfg) credentialPath() (string, error) {
	if c.configPath != "" {
		return c.configPath, nil
	}
	return config.Path()
}

// credential merges the stored credential file with flag and environment
// overrides. Flags win over the file.
func (c *cfg) credential() (*config.Credential, error) {
	path, err := c.credentialPath()
	if err != nil {
		return nil, err
	}

	cred, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if c.clientID != "" {
		cred.ClientID = c.clientID
	}
	if c.clientSecret != "" {
		cred.ClientSecret = c.clientSecret
	}
	if c.userAgent != "" {
		cred.UserAgent = c.userAgent
	}
	if c.geminiAPIKey != "" {
		cred.GeminiAPIKey = c.geminiAPIKey
	}
	return cred, nil
}

// newReddit creates a Reddit adapter from the resolved credentials
func (c *cfg) newReddit() (adapter.Reddit, error) {
	cred, err := c.credential()
	if err != nil {
		return nil, err
	}
	if cred.ClientID == "" || cred.ClientSecret == "" {
		return nil, goerr.Wrap(model.ErrAuth,
			"reddit credentials are not configured, run 'redhist configure' first")
	}
	return adapter.NewReddit(cred.ClientID, cred.ClientSecret, cred.UserAgent), nil
}

// newGemini creates a Gemini adapter from the resolved credentials
func (c *cfg) newGemini(ctx context.Context) (adapter.Gemini, error) {
	cred, err := c.credential()
	if err != nil {
		return nil, err
	}
	if cred.GeminiAPIKey == "" {
		return nil, goerr.Wrap(model.ErrAuth,
			"gemini API key is not configured, run 'redhist configure' first")
	}

	var opts []adapter.GeminiOption
	if c.geminiModel != "" {
		opts = append(opts, adapter.WithGenerativeModel(c.geminiModel))
	}
	return adapter.NewGemini(ctx, cred.GeminiAPIKey, opts...)
}

// newRepository opens the local history database
func (c *cfg) newRepository() (repository.Repository, error) {
	dbPath := c.dbPath
	if dbPath == "" {
		dir, err := config.Dir()
		if err != nil {
			return nil, err
		}
		dbPath = filepath.Join(dir, "history.db")
	}
	return repository.New(dbPath)
}
