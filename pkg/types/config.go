// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "storyboard-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// AIConfig holds shared settings for stages that call the generation API.
type AIConfig struct {
	// Model is the generation model identifier (e.g. "gpt-4o-mini").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the generation API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// BaseDelay is the starting backoff delay between attempts (default 1s).
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`

	// Timeout is the overall deadline for one generation call.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Temperature is the sampling temperature passed to the model.
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// ReferenceConfig holds settings for the reference extraction stage.
type ReferenceConfig struct {
	AIConfig `yaml:",inline"`

	// Style is an optional director/style hint that biases phrasing of
	// descriptions. It never invents entities.
	Style string `json:"style,omitempty" yaml:"style,omitempty"`
}

// SegmentationConfig holds settings for the segmentation stage.
type SegmentationConfig struct {
	AIConfig `yaml:",inline"`

	// Mode selects boundary detection: existing, ai-generated, or hybrid.
	Mode DetectionMode `json:"mode" yaml:"mode"`

	// TargetUnits is the requested unit count for AI-suggested
	// segmentation. Clamped to [MinUnits, MaxUnits].
	TargetUnits int `json:"target_units" yaml:"target_units"`

	// MinUnits and MaxUnits bound the returned unit count (defaults 1, 20).
	MinUnits int `json:"min_units" yaml:"min_units"`
	MaxUnits int `json:"max_units" yaml:"max_units"`
}

// BreakdownConfig holds settings for per-unit shot list generation.
type BreakdownConfig struct {
	AIConfig `yaml:",inline"`

	// Style is an optional director/style hint applied to shot phrasing.
	Style string `json:"style,omitempty" yaml:"style,omitempty"`

	// CameraLanguage includes camera movement/framing terms in shots.
	CameraLanguage bool `json:"camera_language" yaml:"camera_language"`

	// PaletteLanguage includes color-palette terms in shots.
	PaletteLanguage bool `json:"palette_language" yaml:"palette_language"`

	// TargetShots is the requested shot count per unit. Zero derives a
	// default from unit length. Clamped to [1, 50].
	TargetShots int `json:"target_shots" yaml:"target_shots"`
}

// MediaConfig holds settings for the media-generation collaborator.
type MediaConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the media provider endpoint.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// APIKey authenticates submit and poll requests.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Model is the media model identifier.
	Model string `json:"model" yaml:"model"`

	// Width and Height are the requested output dimensions.
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`

	// PollInterval is the delay between job status polls (default 1s).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// MaxPolls caps status polls before a job counts as timed out
	// (default 30).
	MaxPolls int `json:"max_polls" yaml:"max_polls"`
}

// PipelineOptions holds run-level knobs for the coordinator.
type PipelineOptions struct {
	// Concurrency bounds concurrent unit generation calls (default 4).
	// Hosted-API rate limits vary by caller, so this is configuration
	// rather than a fixed number.
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// GenerateStills renders a reference still for each unit's opening
	// shot through the media provider. Requires credit reservation.
	GenerateStills bool `json:"generate_stills" yaml:"generate_stills"`

	// StillCost is the credit cost of one still (default 1).
	StillCost int `json:"still_cost" yaml:"still_cost"`
}

// StoreConfig holds settings for the run store.
type StoreConfig struct {
	// DataDir is the base directory for persisted state (contains
	// index/storyboard.db).
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// ServerConfig holds settings for the HTTP API server.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `json:"addr" yaml:"addr"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	References   ReferenceConfig    `json:"references" yaml:"references"`
	Segmentation SegmentationConfig `json:"segmentation" yaml:"segmentation"`
	Breakdown    BreakdownConfig    `json:"breakdown" yaml:"breakdown"`
	Media        MediaConfig        `json:"media" yaml:"media"`
	Options      PipelineOptions    `json:"options" yaml:"options"`
	Store        StoreConfig        `json:"store" yaml:"store"`
	Server       ServerConfig       `json:"server" yaml:"server"`
}
