package config

import (
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Credential holds the API credentials for Reddit and Gemini.
type Credential struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	UserAgent    string `yaml:"user_agent"`
	GeminiAPIKey string `yaml:"gemini_api_key,omitempty"`
}

const defaultUserAgent = "redhist/1.0"

// Dir returns the platform-appropriate config directory
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", goerr.Wrap(err, "failed to resolve user config directory")
	}
	return filepath.Join(base, "redhist"), nil
}

// Path returns the full path to the credential file
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yml"), nil
}

// Load reads the credential file. A missing file is not an error; it
// returns an empty Credential with the default user agent.
func Load(path string) (*Credential, error) {
	cred := &Credential{UserAgent: defaultUserAgent}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cred, nil
		}
		return nil, goerr.Wrap(err, "failed to read credential file", goerr.V("path", path))
	}

	if err := yaml.Unmarshal(data, cred); err != nil {
		return nil, goerr.Wrap(err, "failed to parse credential file", goerr.V("path", path))
	}
	if cred.UserAgent == "" {
		cred.UserAgent = defaultUserAgent
	}
	return cred, nil
}

// Save writes the credential file with owner-only permissions. An empty
// Gemini key keeps the previously stored one, so re-running configure for
// Reddit credentials does not wipe the AI key.
func (c *Credential) Save(path string) error {
	if c.GeminiAPIKey == "" {
		prev, err := Load(path)
		if err == nil && prev.GeminiAPIKey != "" {
			c.GeminiAPIKey = prev.GeminiAPIKey
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return goerr.Wrap(err, "failed to create config directory", goerr.V("path", path))
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return goerr.Wrap(err, "failed to encode credentials")
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return goerr.Wrap(err, "failed to write credential file", goerr.V("path", path))
	}
	return nil
}
