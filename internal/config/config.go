package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries every pipeline tunable. All timing knobs are plain seconds
// in YAML and converted to time.Duration at the accessor level.
type Config struct {
	Compose   ComposeConfig             `yaml:"compose"`
	Captions  CaptionsConfig            `yaml:"captions"`
	Translate TranslateConfig           `yaml:"translate"`
	Viral     ViralConfig               `yaml:"viral"`
	Themes    ThemesConfig              `yaml:"themes"`
	Platforms map[string]PlatformConfig `yaml:"platforms"`
	Workers   WorkersConfig             `yaml:"workers"`
	Engines   EnginesConfig             `yaml:"engines"`
	Paths     PathsConfig               `yaml:"paths"`
}

type ComposeConfig struct {
	TargetDurationSec float64 `yaml:"target_duration_sec"`
	HookDurationSec   float64 `yaml:"hook_duration_sec"`
	CTADurationSec    float64 `yaml:"cta_duration_sec"`
	HookText          string  `yaml:"hook_text"`
	CTAText           string  `yaml:"cta_text"`
	Resolution        string  `yaml:"resolution"`
	FPS               int     `yaml:"fps"`
}

type CaptionsConfig struct {
	RateWordsPerSec float64 `yaml:"rate_words_per_sec"`
	MinCueSec       float64 `yaml:"min_cue_sec"`
	MaxCueSec       float64 `yaml:"max_cue_sec"`
}

type TranslateConfig struct {
	TargetLanguage    string  `yaml:"target_language"`
	CoverageThreshold float64 `yaml:"caption_coverage_threshold"`
}

type ViralConfig struct {
	KeywordWeights map[string]float64 `yaml:"keyword_weights"`
	EmphasisWeight float64            `yaml:"emphasis_weight"`
	PositionWeight float64            `yaml:"position_weight"`
	StrideSec      float64            `yaml:"stride_sec"`
}

type ThemesConfig struct {
	Default  string              `yaml:"default"`
	Keywords map[string][]string `yaml:"keywords"`
}

type PlatformConfig struct {
	AspectRatio    string   `yaml:"aspect_ratio"`
	MinDurationSec float64  `yaml:"min_duration_sec"`
	MaxDurationSec float64  `yaml:"max_duration_sec"`
	Effects        []string `yaml:"effects"`
	CTALine        string   `yaml:"cta_line"`
}

type WorkersConfig struct {
	Local           int     `yaml:"local"`
	Network         int     `yaml:"network"`
	RetryAttempts   int     `yaml:"retry_attempts"`
	RetryBackoffSec float64 `yaml:"retry_backoff_sec"`
	StageTimeoutSec float64 `yaml:"stage_timeout_sec"`
}

type EnginesConfig struct {
	FFmpegPath     string `yaml:"ffmpeg_path"`
	FFprobePath    string `yaml:"ffprobe_path"`
	YtdlpPath      string `yaml:"ytdlp_path"`
	WhisperBin     string `yaml:"whisper_bin"`
	WhisperModel   string `yaml:"whisper_model"`
	TranslateURL   string `yaml:"translate_url"`
	SynthesisURL   string `yaml:"synthesis_url"`
	SynthesisVoice string `yaml:"synthesis_voice"`
	FootageURL     string `yaml:"footage_url"`
}

type PathsConfig struct {
	Data  string `yaml:"data"`
	Media string `yaml:"media"`
	Cache string `yaml:"cache"`
}

// Default returns the configuration used when no config file is present.
// Keyword lists here are starter data, not architecture; operators are
// expected to replace them.
func Default() *Config {
	return &Config{
		Compose: ComposeConfig{
			TargetDurationSec: 70,
			HookDurationSec:   5,
			CTADurationSec:    5,
			HookText:          "ATTENTION !",
			CTAText:           "Likez et abonnez-vous !",
			Resolution:        "1080x1920",
			FPS:               30,
		},
		Captions: CaptionsConfig{
			RateWordsPerSec: 3.3,
			MinCueSec:       1.0,
			MaxCueSec:       6.0,
		},
		Translate: TranslateConfig{
			TargetLanguage:    "fr",
			CoverageThreshold: 0.8,
		},
		Viral: ViralConfig{
			KeywordWeights: map[string]float64{
				"secret":         0.9,
				"revelation":     0.95,
				"incredible":     0.7,
				"mistake":        0.7,
				"transformation": 0.8,
				"hack":           0.8,
				"money":          0.9,
				"free":           0.8,
				"never":          0.6,
				"always":         0.5,
			},
			EmphasisWeight: 0.3,
			PositionWeight: 0.5,
			StrideSec:      5,
		},
		Themes: ThemesConfig{
			Default: "motivation",
			Keywords: map[string][]string{
				"motivation": {"success", "discipline", "goal", "mindset"},
				"business":   {"money", "startup", "market", "invest"},
				"nature":     {"ocean", "forest", "mountain", "animal"},
			},
		},
		Platforms: map[string]PlatformConfig{
			"tiktok": {
				AspectRatio:    "9:16",
				MinDurationSec: 15,
				MaxDurationSec: 60,
				Effects:        []string{"zoom", "transitions"},
				CTALine:        "Abonne-toi pour plus !",
			},
			"youtube_shorts": {
				AspectRatio:    "9:16",
				MinDurationSec: 15,
				MaxDurationSec: 60,
				Effects:        []string{"zoom"},
				CTALine:        "Abonne-toi pour plus !",
			},
			"instagram_reels": {
				AspectRatio:    "9:16",
				MinDurationSec: 15,
				MaxDurationSec: 90,
				Effects:        []string{"zoom", "transitions"},
				CTALine:        "Suis-nous pour plus !",
			},
		},
		Workers: WorkersConfig{
			Local:           2,
			Network:         4,
			RetryAttempts:   3,
			RetryBackoffSec: 2,
			StageTimeoutSec: 600,
		},
		Engines: EnginesConfig{
			FFmpegPath:   "ffmpeg",
			FFprobePath:  "ffprobe",
			YtdlpPath:    "yt-dlp",
			WhisperBin:   ".cache/bin/whisper.cpp",
			WhisperModel: ".cache/models/ggml-base.bin",
		},
		Paths: PathsConfig{
			Data:  "data",
			Media: "media",
			Cache: ".cache",
		},
	}
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error: defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Compose.TargetDurationSec <= 0 {
		return errors.New("target duration must be > 0")
	}
	if c.Compose.HookDurationSec < 0 || c.Compose.CTADurationSec < 0 {
		return errors.New("hook/cta durations must be >= 0")
	}
	if c.Compose.HookDurationSec+c.Compose.CTADurationSec >= c.Compose.TargetDurationSec {
		return errors.New("hook + cta must leave a non-empty content window")
	}
	if c.Captions.RateWordsPerSec <= 0 {
		return errors.New("caption rate must be > 0")
	}
	if c.Captions.MinCueSec <= 0 || c.Captions.MaxCueSec < c.Captions.MinCueSec {
		return errors.New("cue bounds must satisfy 0 < min <= max")
	}
	if c.Translate.CoverageThreshold < 0 || c.Translate.CoverageThreshold > 1 {
		return errors.New("caption coverage threshold must be in [0,1]")
	}
	if len(c.Platforms) == 0 {
		return errors.New("at least one platform template is required")
	}
	for name, p := range c.Platforms {
		if p.MinDurationSec <= 0 || p.MaxDurationSec < p.MinDurationSec {
			return fmt.Errorf("platform %s: duration bounds must satisfy 0 < min <= max", name)
		}
	}
	if c.Workers.Local <= 0 || c.Workers.Network <= 0 {
		return errors.New("worker caps must be > 0")
	}
	return nil
}

func (c *Config) TargetDuration() time.Duration { return secDur(c.Compose.TargetDurationSec) }
func (c *Config) HookDuration() time.Duration   { return secDur(c.Compose.HookDurationSec) }
func (c *Config) CTADuration() time.Duration    { return secDur(c.Compose.CTADurationSec) }
func (c *Config) MinCue() time.Duration         { return secDur(c.Captions.MinCueSec) }
func (c *Config) MaxCue() time.Duration         { return secDur(c.Captions.MaxCueSec) }
func (c *Config) RetryBackoff() time.Duration   { return secDur(c.Workers.RetryBackoffSec) }
func (c *Config) StageTimeout() time.Duration   { return secDur(c.Workers.StageTimeoutSec) }

func (p PlatformConfig) MinDuration() time.Duration { return secDur(p.MinDurationSec) }
func (p PlatformConfig) MaxDuration() time.Duration { return secDur(p.MaxDurationSec) }

func secDur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
