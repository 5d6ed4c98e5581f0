// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/storyboard-engine/pkg/types"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		want  map[string]string
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, KeyOpenAI, "  sk_abc123  \n")
				writeFile(t, dir, KeyMedia, "mk_xyz789")
				return dir
			},
			want: map[string]string{
				KeyOpenAI: "sk_abc123",
				KeyMedia:  "mk_xyz789",
			},
		},
		{
			name: "returns empty map for nonexistent directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: map[string]string{},
		},
		{
			name: "skips empty files and dotfiles",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, KeyOpenAI, "sk_valid")
				writeFile(t, dir, "empty-key", "")
				writeFile(t, dir, ".hidden-key", "secret")
				return dir
			},
			want: map[string]string{
				KeyOpenAI: "sk_valid",
			},
		},
		{
			name: "skips subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, KeyMedia, "mk_123")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
				return dir
			},
			want: map[string]string{
				KeyMedia: "mk_123",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.setup(t))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyFillsAllAIStages(t *testing.T) {
	var cfg types.PipelineConfig
	Apply(map[string]string{KeyOpenAI: "sk_1", KeyMedia: "mk_1"}, &cfg)

	assert.Equal(t, "sk_1", cfg.References.APIKey)
	assert.Equal(t, "sk_1", cfg.Segmentation.APIKey)
	assert.Equal(t, "sk_1", cfg.Breakdown.APIKey)
	assert.Equal(t, "mk_1", cfg.Media.APIKey)
}

func TestApplyDoesNotOverrideExistingKeys(t *testing.T) {
	var cfg types.PipelineConfig
	cfg.Breakdown.APIKey = "sk_already"

	Apply(map[string]string{KeyOpenAI: "sk_new"}, &cfg)
	assert.Equal(t, "sk_already", cfg.Breakdown.APIKey)
	assert.Equal(t, "sk_new", cfg.References.APIKey)
}

func TestApplyEnvFallback(t *testing.T) {
	t.Setenv(EnvOpenAI, "sk_env")
	t.Setenv(EnvMedia, "mk_env")

	var cfg types.PipelineConfig
	Apply(map[string]string{}, &cfg)
	assert.Equal(t, "sk_env", cfg.Breakdown.APIKey)
	assert.Equal(t, "mk_env", cfg.Media.APIKey)
}

func TestRequire(t *testing.T) {
	var cfg types.PipelineConfig
	err := Require(&cfg, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), KeyOpenAI)
	assert.Contains(t, err.Error(), KeyMedia)

	cfg.Breakdown.APIKey = "sk_1"
	require.Error(t, Require(&cfg, true))
	require.NoError(t, Require(&cfg, false))

	cfg.Media.APIKey = "mk_1"
	require.NoError(t, Require(&cfg, true))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
