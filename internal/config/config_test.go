package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentforge/engine/internal/secrets"
	"contentforge/engine/internal/settings"
)

func newTestStore(t *testing.T, root string) *Store {
	t.Helper()
	return NewStore(
		settings.NewStore(filepath.Join(root, "settings.json")),
		secrets.NewStore(filepath.Join(root, "secrets.enc"), filepath.Join(root, "master.key")),
	)
}

func TestSetProviderKeyClearsValidation(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	require.NoError(t, store.SetValidationStatus(settings.ProviderAnthropic, settings.ValidationValid))
	require.NoError(t, store.SetValidationStatus(settings.ProviderOpenAI, settings.ValidationValid))

	require.NoError(t, store.SetProviderKey(settings.ProviderAnthropic, "sk-ant-new"))

	status, err := store.ValidationStatus(settings.ProviderAnthropic)
	require.NoError(t, err)
	assert.Equal(t, settings.ValidationUnknown, status)
	other, err := store.ValidationStatus(settings.ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, settings.ValidationValid, other, "other providers keep their status")
}

func TestDurableValuesSurviveRestart(t *testing.T) {
	root := t.TempDir()
	store := newTestStore(t, root)
	require.NoError(t, store.SetProviderKey(settings.ProviderGoogle, "g-key"))
	require.NoError(t, store.SetSelectedProvider(settings.ProviderGoogle))
	require.NoError(t, store.SetModel(settings.ProviderGoogle, "gemini-2.5-pro"))
	_, err := store.SetTheme(Theme{Mode: "dark", Color: "#336699"})
	require.NoError(t, err)
	require.NoError(t, store.SetSiteConfig(SiteConfig{URL: "https://blog.example.com/", Username: "admin", AppPassword: "abcd efgh"}))

	reopened := newTestStore(t, root)
	providerID, key, model, err := reopened.Credentials()
	require.NoError(t, err)
	assert.Equal(t, settings.ProviderGoogle, providerID)
	assert.Equal(t, "g-key", key)
	assert.Equal(t, "gemini-2.5-pro", model)

	theme, err := reopened.Theme()
	require.NoError(t, err)
	assert.Equal(t, Theme{Mode: "dark", Color: "#336699"}, theme)

	_, ok := reopened.SiteConfig()
	assert.False(t, ok, "site config is session scoped")
}

func TestSiteConfigLifecycle(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	_, err := store.RequireSiteConfig()
	require.ErrorIs(t, err, ErrSiteNotConfigured)

	require.NoError(t, store.SetSiteConfig(SiteConfig{URL: " https://blog.example.com/ ", Username: "admin", AppPassword: "pw"}))
	site, err := store.RequireSiteConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://blog.example.com", site.URL)

	store.ClearSiteConfig()
	_, ok := store.SiteConfig()
	assert.False(t, ok)
}

func TestSiteConfigValidation(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	assert.Error(t, store.SetSiteConfig(SiteConfig{URL: "https://blog.example.com"}))
	assert.Error(t, store.SetSiteConfig(SiteConfig{URL: "ftp://blog.example.com", Username: "a", AppPassword: "b"}))
	assert.Error(t, store.SetSiteConfig(SiteConfig{URL: "not a url", Username: "a", AppPassword: "b"}))
}

func TestUnknownProviderRejected(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	require.ErrorIs(t, store.SetProviderKey("cohere", "k"), ErrUnknownProvider)
	require.ErrorIs(t, store.SetSelectedProvider("cohere"), ErrUnknownProvider)
	_, err := store.Model("cohere")
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestSetModelResetsValidationOnChange(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	require.NoError(t, store.SetValidationStatus(settings.ProviderMistral, settings.ValidationValid))
	require.NoError(t, store.SetModel(settings.ProviderMistral, settings.DefaultModel(settings.ProviderMistral)))
	status, _ := store.ValidationStatus(settings.ProviderMistral)
	assert.Equal(t, settings.ValidationValid, status, "unchanged model keeps status")

	require.NoError(t, store.SetModel(settings.ProviderMistral, "mistral-small-latest"))
	status, _ = store.ValidationStatus(settings.ProviderMistral)
	assert.Equal(t, settings.ValidationUnknown, status)
}
