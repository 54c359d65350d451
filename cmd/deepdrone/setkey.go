package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/deepdrone/deepdrone/pkg/config"
)

// runSetKey prompts for an API key without echoing it and persists it to the
// user config file.
func runSetKey(cfg *config.Config, name string) error {
	m, ok := cfg.GetModel(name)
	if !ok {
		return fmt.Errorf("unknown model %q, see 'deepdrone models'", name)
	}
	if !m.RequiresKey() {
		fmt.Printf("%s runs on a local server and needs no API key.\n", name)
		return nil
	}

	fmt.Printf("API key for %s (%s): ", name, m.Provider)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read key: %w", err)
	}
	key := strings.TrimSpace(string(raw))
	if key == "" {
		return fmt.Errorf("empty key, nothing saved")
	}

	cfg.SetAPIKey(name, key)

	path := configPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, ".deepdrone", "config.yaml")
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("Saved key for %s to %s\n", name, path)
	if env := config.ProviderKeyEnv(m.Provider); env != "" {
		fmt.Printf("Tip: you can also set %s instead of storing the key on disk.\n", env)
	}
	return nil
}
