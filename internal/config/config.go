// Package config exposes the typed configuration the engine consumes. Provider
// keys, provider selection, models and theme are durable; the WordPress site
// connection lives only for the lifetime of the process.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"contentforge/engine/internal/secrets"
	"contentforge/engine/internal/settings"
)

var (
	ErrUnknownProvider   = errors.New("unknown provider")
	ErrSiteNotConfigured = errors.New("site not configured")
)

// SiteConfig holds the WordPress connection credentials.
type SiteConfig struct {
	URL         string `json:"site_url"`
	Username    string `json:"username"`
	AppPassword string `json:"app_password"`
}

// Validate normalizes the site URL and checks that every field is present.
func (c SiteConfig) Validate() (SiteConfig, error) {
	c.URL = strings.TrimRight(strings.TrimSpace(c.URL), "/")
	c.Username = strings.TrimSpace(c.Username)
	c.AppPassword = strings.TrimSpace(c.AppPassword)
	if c.URL == "" || c.Username == "" || c.AppPassword == "" {
		return SiteConfig{}, errors.New("site url, username and application password are required")
	}
	parsed, err := url.Parse(c.URL)
	if err != nil || parsed.Host == "" {
		return SiteConfig{}, fmt.Errorf("invalid site url %q", c.URL)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return SiteConfig{}, fmt.Errorf("unsupported site url scheme %q", parsed.Scheme)
	}
	return c, nil
}

// Theme is the presentation preference forwarded to snippet generation.
type Theme struct {
	Mode  string `json:"mode"`
	Color string `json:"color,omitempty"`
}

// Store is the session config store. It performs no network calls.
type Store struct {
	settings *settings.Store
	secrets  *secrets.Store

	mu   sync.RWMutex
	site *SiteConfig
}

func NewStore(settingsStore *settings.Store, secretsStore *secrets.Store) *Store {
	return &Store{settings: settingsStore, secrets: secretsStore}
}

func (s *Store) ProviderKey(providerID string) (string, error) {
	if !settings.IsKnownProvider(providerID) {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	return s.secrets.ProviderKey(providerID)
}

// SetProviderKey stores key and resets the cached validation status, since a
// changed key has not been validated yet.
func (s *Store) SetProviderKey(providerID, key string) error {
	if !settings.IsKnownProvider(providerID) {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	if err := s.secrets.SetProviderKey(providerID, key); err != nil {
		return err
	}
	return s.SetValidationStatus(providerID, settings.ValidationUnknown)
}

func (s *Store) SiteConfig() (SiteConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.site == nil {
		return SiteConfig{}, false
	}
	return *s.site, true
}

// RequireSiteConfig returns ErrSiteNotConfigured when no site is connected.
func (s *Store) RequireSiteConfig() (SiteConfig, error) {
	site, ok := s.SiteConfig()
	if !ok {
		return SiteConfig{}, ErrSiteNotConfigured
	}
	return site, nil
}

func (s *Store) SetSiteConfig(site SiteConfig) error {
	normalized, err := site.Validate()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.site = &normalized
	s.mu.Unlock()
	return nil
}

func (s *Store) ClearSiteConfig() {
	s.mu.Lock()
	s.site = nil
	s.mu.Unlock()
}

func (s *Store) Theme() (Theme, error) {
	current, err := s.settings.Load()
	if err != nil {
		return Theme{}, err
	}
	return Theme{Mode: current.Theme, Color: current.ThemeColor}, nil
}

func (s *Store) SetTheme(theme Theme) (Theme, error) {
	updated, err := s.settings.Update(func(current *settings.Settings) {
		current.Theme = settings.NormalizeTheme(theme.Mode)
		current.ThemeColor = strings.TrimSpace(theme.Color)
	})
	if err != nil {
		return Theme{}, err
	}
	return Theme{Mode: updated.Theme, Color: updated.ThemeColor}, nil
}

func (s *Store) SelectedProvider() (string, error) {
	current, err := s.settings.Load()
	if err != nil {
		return "", err
	}
	return current.SelectedProvider, nil
}

func (s *Store) SetSelectedProvider(providerID string) error {
	if !settings.IsKnownProvider(providerID) {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	_, err := s.settings.Update(func(current *settings.Settings) {
		current.SelectedProvider = providerID
	})
	return err
}

func (s *Store) Model(providerID string) (string, error) {
	if !settings.IsKnownProvider(providerID) {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	current, err := s.settings.Load()
	if err != nil {
		return "", err
	}
	return current.Providers[providerID].Model, nil
}

// SetModel changes the model for providerID. The validation status is reset
// because key validation is model-specific.
func (s *Store) SetModel(providerID, model string) error {
	if !settings.IsKnownProvider(providerID) {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	_, err := s.settings.Update(func(current *settings.Settings) {
		entry := current.Providers[providerID]
		if next := strings.TrimSpace(model); next != entry.Model {
			entry.Model = next
			entry.Validation = settings.ValidationUnknown
		}
		current.Providers[providerID] = entry
	})
	return err
}

func (s *Store) ValidationStatus(providerID string) (string, error) {
	if !settings.IsKnownProvider(providerID) {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	current, err := s.settings.Load()
	if err != nil {
		return "", err
	}
	return current.Providers[providerID].Validation, nil
}

func (s *Store) SetValidationStatus(providerID, status string) error {
	_, err := s.settings.Update(func(current *settings.Settings) {
		entry := current.Providers[providerID]
		entry.Validation = status
		current.Providers[providerID] = entry
	})
	return err
}

// Credentials resolves the key and model for the selected provider.
func (s *Store) Credentials() (providerID, apiKey, model string, err error) {
	providerID, err = s.SelectedProvider()
	if err != nil {
		return "", "", "", err
	}
	apiKey, err = s.ProviderKey(providerID)
	if err != nil {
		return "", "", "", err
	}
	model, err = s.Model(providerID)
	if err != nil {
		return "", "", "", err
	}
	return providerID, apiKey, model, nil
}
