// Package config holds the generation settings for the video generator.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnvServerURL overrides the configured ComfyUI server URL when set.
const EnvServerURL = "WANVID_SERVER_URL"

// Models holds the checkpoint filenames loaded by the workflow.
type Models struct {
	HighNoise   string `yaml:"highNoise"`
	LowNoise    string `yaml:"lowNoise"`
	VAE         string `yaml:"vae"`
	TextEncoder string `yaml:"textEncoder"`
}

// PassParams holds the sampler settings for one sampling pass. The step
// boundaries and guidance values are pass-through configuration; the
// workflow builder does not interpret them.
type PassParams struct {
	Steps                   int     `yaml:"steps"`
	CFG                     float64 `yaml:"cfg"`
	SamplerName             string  `yaml:"samplerName"`
	Scheduler               string  `yaml:"scheduler"`
	StartAtStep             int     `yaml:"startAtStep"`
	EndAtStep               int     `yaml:"endAtStep"`
	AddNoise                string  `yaml:"addNoise"`
	ReturnWithLeftoverNoise string  `yaml:"returnWithLeftoverNoise"`
}

// Settings is the full application configuration.
type Settings struct {
	ServerURL string `yaml:"serverURL"`
	OutputDir string `yaml:"outputDir"`

	DefaultWidth  int `yaml:"defaultWidth"`
	DefaultHeight int `yaml:"defaultHeight"`
	DefaultFPS    int `yaml:"defaultFPS"`

	Models Models `yaml:"models"`

	FirstPass          PassParams `yaml:"firstPass"`
	SecondPass         PassParams `yaml:"secondPass"`
	ModelSamplingShift float64    `yaml:"modelSamplingShift"`

	DefaultNegativePrompt string `yaml:"defaultNegativePrompt"`

	PollIntervalSeconds int `yaml:"pollIntervalSeconds"`
	MaxPollAttempts     int `yaml:"maxPollAttempts"`
}

// Default returns the built-in settings matching the reference workflow.
func Default() *Settings {
	return &Settings{
		ServerURL:     "http://127.0.0.1:8188",
		OutputDir:     "output",
		DefaultWidth:  640,
		DefaultHeight: 640,
		DefaultFPS:    16,
		Models: Models{
			HighNoise:   "wan2.2_i2v_high_noise_14B_fp8_scaled.safetensors",
			LowNoise:    "wan2.2_i2v_low_noise_14B_fp8_scaled.safetensors",
			VAE:         "wan_2.1_vae.safetensors",
			TextEncoder: "umt5_xxl_fp8_e4m3fn_scaled.safetensors",
		},
		FirstPass: PassParams{
			Steps:                   20,
			CFG:                     3.5,
			SamplerName:             "euler",
			Scheduler:               "simple",
			StartAtStep:             0,
			EndAtStep:               10,
			AddNoise:                "enable",
			ReturnWithLeftoverNoise: "enable",
		},
		SecondPass: PassParams{
			Steps:                   20,
			CFG:                     3.5,
			SamplerName:             "euler",
			Scheduler:               "simple",
			StartAtStep:             10,
			EndAtStep:               10000,
			AddNoise:                "disable",
			ReturnWithLeftoverNoise: "disable",
		},
		ModelSamplingShift: 8.0,
		DefaultNegativePrompt: "blurry, low quality, distorted, deformed, ugly, bad anatomy, watermark, text, logo, " +
			"static, frozen, jerky motion, artifacts, noise, overexposed, underexposed",
		PollIntervalSeconds: 2,
		MaxPollAttempts:     600,
	}
}

// Load reads a settings file and overlays it on the defaults. A missing
// file is not an error; the defaults apply. The WANVID_SERVER_URL
// environment variable overrides the server URL from either source.
func Load(path string) (*Settings, error) {
	settings := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read settings file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
		}
	}

	if url := os.Getenv(EnvServerURL); url != "" {
		settings.ServerURL = url
	}

	return settings, nil
}

// Save writes the settings to a YAML file.
func (s *Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}
