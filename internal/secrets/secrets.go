// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
//
// Supported key files: openai-api-key, media-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/storyboard-engine/pkg/types"
)

// Key file names recognized by Apply.
const (
	KeyOpenAI = "openai-api-key"
	KeyMedia  = "media-api-key"
)

// Environment fallbacks checked when the key file is absent.
const (
	EnvOpenAI = "OPENAI_API_KEY"
	EnvMedia  = "MEDIA_API_KEY"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files produce a warning on stderr but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Apply fills provider credentials into cfg from loaded secrets, falling
// back to environment variables. Keys already set in the config win.
func Apply(secrets map[string]string, cfg *types.PipelineConfig) {
	openai := resolve(secrets, KeyOpenAI, EnvOpenAI)
	if openai != "" {
		if cfg.References.APIKey == "" {
			cfg.References.APIKey = openai
		}
		if cfg.Segmentation.APIKey == "" {
			cfg.Segmentation.APIKey = openai
		}
		if cfg.Breakdown.APIKey == "" {
			cfg.Breakdown.APIKey = openai
		}
	}
	if cfg.Media.APIKey == "" {
		cfg.Media.APIKey = resolve(secrets, KeyMedia, EnvMedia)
	}
}

// Require returns an error naming every missing provider credential.
// Used by entry points that refuse to start without one.
func Require(cfg *types.PipelineConfig, needMedia bool) error {
	var missing []string
	if cfg.Breakdown.APIKey == "" {
		missing = append(missing, KeyOpenAI)
	}
	if needMedia && cfg.Media.APIKey == "" {
		missing = append(missing, KeyMedia)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing provider credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

func resolve(secrets map[string]string, key, env string) string {
	if v := secrets[key]; v != "" {
		return v
	}
	return os.Getenv(env)
}
