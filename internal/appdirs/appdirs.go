package appdirs

import (
	"os"
	"path/filepath"
)

const (
	appDirName = "contentforge"

	// DataDirVar overrides the data directory.
	DataDirVar = "CONTENTFORGE_DATA_DIR"
)

func DataDir() (string, error) {
	if override := os.Getenv(DataDirVar); override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appDirName), nil
}

func SettingsPath(dataDir string) string {
	return filepath.Join(dataDir, "settings.json")
}

func SecretsPath(dataDir string) string {
	return filepath.Join(dataDir, "secrets.enc")
}

func MasterKeyPath(dataDir string) string {
	return filepath.Join(dataDir, "master.key")
}
