package mpdstats

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BeetsConfig holds the beets settings mpdstats follows: where the music
// lives and which library database to update.
type BeetsConfig struct {
	Directory string `yaml:"directory"`
	Library   string `yaml:"library"`
}

// BeetsDir returns the beets configuration directory, honouring BEETSDIR.
func BeetsDir(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	if dir := getenv("BEETSDIR"); dir != "" {
		return expandHome(dir)
	}
	if dir := getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "beets")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "beets")
}

// LoadBeetsConfig reads config.yaml from the beets directory. A missing file
// yields beets' own defaults. Relative paths resolve against dir.
func LoadBeetsConfig(dir string) (BeetsConfig, error) {
	cfg := BeetsConfig{Directory: "~/Music", Library: "library.db"}
	if dir != "" {
		path := filepath.Join(dir, "config.yaml")
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return BeetsConfig{}, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return BeetsConfig{}, fmt.Errorf("decode %s: %w", path, err)
			}
		}
	}
	cfg.Directory = resolveBeetsPath(dir, cfg.Directory)
	cfg.Library = resolveBeetsPath(dir, cfg.Library)
	return cfg, nil
}

func resolveBeetsPath(dir, path string) string {
	path = expandHome(path)
	if path == "" || filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}
