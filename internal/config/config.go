// Package config loads the mudra settings from defaults, an optional YAML
// file and MUDRA_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/mudra/internal/sign"
)

// DefaultProfileKey names the calibration profile used when none is given.
const DefaultProfileKey = "default"

// Config is the full application configuration.
type Config struct {
	Listen     string `yaml:"listen"      env:"MUDRA_LISTEN"`
	DataDir    string `yaml:"data_dir"    env:"MUDRA_DATA_DIR"`
	StaticDir  string `yaml:"static_dir"  env:"MUDRA_STATIC_DIR"`
	ProfileKey string `yaml:"profile_key" env:"MUDRA_PROFILE_KEY"`

	// SessionIdle closes remote sessions that sent no frame for this long.
	SessionIdle time.Duration `yaml:"session_idle" env:"MUDRA_SESSION_IDLE"`

	// Native runs the local camera pipeline next to the HTTP server.
	Native   bool `yaml:"native"    env:"MUDRA_NATIVE"`
	Tray     bool `yaml:"tray"      env:"MUDRA_TRAY"`
	CameraID int  `yaml:"camera_id" env:"MUDRA_CAMERA_ID"`
	FPS      int  `yaml:"fps"       env:"MUDRA_FPS"`

	Classifier Classifier `yaml:"classifier" envPrefix:"MUDRA_CLASSIFIER_"`
	Vote       Vote       `yaml:"vote"       envPrefix:"MUDRA_VOTE_"`
}

// Classifier holds the nearest-neighbour parameters.
type Classifier struct {
	K         int     `yaml:"k"         env:"K"`
	Threshold float64 `yaml:"threshold" env:"THRESHOLD"`
}

// Vote holds the pipeline side of the stabilizer settings. Required hits and
// the confidence floor come from the calibration profile.
type Vote struct {
	WindowSize int           `yaml:"window_size" env:"WINDOW_SIZE"`
	TTL        time.Duration `yaml:"ttl"         env:"TTL"`
	Grace      time.Duration `yaml:"grace"       env:"GRACE"`
	Decay      float64       `yaml:"decay"       env:"DECAY"`
}

// Default returns the built-in configuration.
func Default() Config {
	vote := sign.DefaultVoteConfig()
	return Config{
		Listen:      ":8080",
		DataDir:     DefaultDataDir(),
		ProfileKey:  DefaultProfileKey,
		SessionIdle: 10 * time.Minute,
		CameraID:    0,
		FPS:         15,
		Classifier:  Classifier{K: 3, Threshold: 1.5},
		Vote: Vote{
			WindowSize: vote.WindowSize,
			TTL:        vote.TTL,
			Grace:      vote.Grace,
			Decay:      vote.DecayPerFrame,
		},
	}
}

// DefaultDataDir returns ~/.mudra, or .mudra when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mudra"
	}
	return filepath.Join(home, ".mudra")
}

// Load builds the configuration. An empty path skips the file step.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.ProfileKey = strings.TrimSpace(cfg.ProfileKey)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data dir is required"))
	}
	if c.ProfileKey == "" {
		errs = append(errs, errors.New("profile key is required"))
	}
	if c.SessionIdle <= 0 {
		errs = append(errs, fmt.Errorf("session idle timeout must be positive, got %s", c.SessionIdle))
	}
	if c.FPS <= 0 {
		errs = append(errs, fmt.Errorf("fps must be positive, got %d", c.FPS))
	}
	if c.Classifier.K < 1 {
		errs = append(errs, fmt.Errorf("classifier k must be at least 1, got %d", c.Classifier.K))
	}
	if !(c.Classifier.Threshold > 0) {
		errs = append(errs, fmt.Errorf("classifier threshold must be positive, got %v", c.Classifier.Threshold))
	}
	if c.Vote.WindowSize < 2 {
		errs = append(errs, fmt.Errorf("vote window size must be at least 2, got %d", c.Vote.WindowSize))
	}
	if c.Vote.TTL <= 0 {
		errs = append(errs, fmt.Errorf("vote ttl must be positive, got %s", c.Vote.TTL))
	}
	if c.Vote.Grace < 0 {
		errs = append(errs, fmt.Errorf("vote grace must not be negative, got %s", c.Vote.Grace))
	}
	if c.Vote.Decay <= 0 || c.Vote.Decay > 1 {
		errs = append(errs, fmt.Errorf("vote decay must be in (0, 1], got %v", c.Vote.Decay))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// VoteConfig returns the stabilizer settings with the default acceptance
// rule. Callers overlay a calibration profile on top.
func (c Config) VoteConfig() sign.VoteConfig {
	v := sign.DefaultVoteConfig()
	v.WindowSize = c.Vote.WindowSize
	v.TTL = c.Vote.TTL
	v.Grace = c.Vote.Grace
	v.DecayPerFrame = c.Vote.Decay
	return v
}

// DBPath returns the SQLite database location inside the data dir.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "mudra.db")
}
