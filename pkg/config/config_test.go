package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/redhist/redhist/pkg/config"
)

func TestLoadMissingFile(t *testing.T) {
	cred, err := config.Load(filepath.Join(t.TempDir(), "config.yml"))
	gt.NoError(t, err)
	gt.V(t, cred.ClientID).Equal("")
	gt.V(t, cred.UserAgent).Equal("redhist/1.0")
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")

	cred := &config.Credential{
		ClientID:     "my-id",
		ClientSecret: "my-secret",
		UserAgent:    "redhist-test/1.0",
		GeminiAPIKey: "gm-key",
	}
	gt.NoError(t, cred.Save(path))

	info, err := os.Stat(path)
	gt.NoError(t, err)
	gt.V(t, info.Mode().Perm()).Equal(os.FileMode(0600))

	loaded, err := config.Load(path)
	gt.NoError(t, err)
	gt.V(t, loaded.ClientID).Equal("my-id")
	gt.V(t, loaded.ClientSecret).Equal("my-secret")
	gt.V(t, loaded.UserAgent).Equal("redhist-test/1.0")
	gt.V(t, loaded.GeminiAPIKey).Equal("gm-key")
}

func TestSavePreservesGeminiKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")

	first := &config.Credential{ClientID: "id1", ClientSecret: "s1", GeminiAPIKey: "keep-me"}
	gt.NoError(t, first.Save(path))

	// Re-configuring Reddit credentials without a Gemini key must not
	// drop the stored one.
	second := &config.Credential{ClientID: "id2", ClientSecret: "s2"}
	gt.NoError(t, second.Save(path))

	loaded, err := config.Load(path)
	gt.NoError(t, err)
	gt.V(t, loaded.ClientID).Equal("id2")
	gt.V(t, loaded.GeminiAPIKey).Equal("keep-me")
}
