package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const schemaVersion = 2

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderMistral   = "mistral"

	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"

	ValidationUnknown = "unknown"
	ValidationValid   = "valid"
	ValidationInvalid = "invalid"
)

// KnownProviders lists provider ids in display order.
var KnownProviders = []string{ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderMistral}

var defaultModels = map[string]string{
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderAnthropic: "claude-3-5-sonnet-latest",
	ProviderGoogle:    "gemini-2.0-flash",
	ProviderMistral:   "mistral-large-latest",
}

type ProviderSettings struct {
	Model      string `json:"model"`
	Validation string `json:"validation"`
}

type Settings struct {
	SchemaVersion    int                         `json:"schema_version"`
	SelectedProvider string                      `json:"selected_provider"`
	Providers        map[string]ProviderSettings `json:"providers"`
	Theme            string                      `json:"theme"`
	ThemeColor       string                      `json:"theme_color,omitempty"`
}

type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) Save(settings *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(settings)
}

// Update applies fn to the current settings and persists the result under a
// single lock.
func (s *Store) Update(fn func(*Settings)) (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings, err := s.load()
	if err != nil {
		return nil, err
	}
	fn(settings)
	return settings, s.save(settings)
}

func (s *Store) load() (*Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultSettings(), nil
		}
		return nil, err
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	backfillSettings(&settings)
	return &settings, nil
}

func (s *Store) save(settings *Settings) error {
	backfillSettings(settings)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// DefaultModel returns the model used for providerID when none is configured.
func DefaultModel(providerID string) string {
	return defaultModels[providerID]
}

func IsKnownProvider(providerID string) bool {
	_, ok := defaultModels[providerID]
	return ok
}

// NormalizeTheme maps unknown values to the system theme.
func NormalizeTheme(theme string) string {
	switch value := strings.ToLower(strings.TrimSpace(theme)); value {
	case ThemeLight, ThemeDark, ThemeSystem:
		return value
	default:
		return ThemeSystem
	}
}

func defaultSettings() *Settings {
	settings := &Settings{}
	backfillSettings(settings)
	return settings
}

func backfillSettings(settings *Settings) {
	settings.SchemaVersion = schemaVersion
	if settings.Providers == nil {
		settings.Providers = map[string]ProviderSettings{}
	}
	for _, id := range KnownProviders {
		entry := settings.Providers[id]
		if strings.TrimSpace(entry.Model) == "" {
			entry.Model = defaultModels[id]
		}
		entry.Validation = normalizeValidation(entry.Validation)
		settings.Providers[id] = entry
	}
	if !IsKnownProvider(settings.SelectedProvider) {
		settings.SelectedProvider = ProviderOpenAI
	}
	settings.Theme = NormalizeTheme(settings.Theme)
}

func normalizeValidation(status string) string {
	switch status {
	case ValidationValid, ValidationInvalid:
		return status
	default:
		return ValidationUnknown
	}
}
