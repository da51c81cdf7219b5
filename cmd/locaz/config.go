package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/Noofbiz/locaz/simple"
	"github.com/Noofbiz/locaz/split"
)

// Config is the experiment file. Zero values are replaced by defaults.
type Config struct {
	// DataDir holds the consolidated CSV tables.
	DataDir string `yaml:"data_dir"`
	// OutputDir receives the model, history and summary files.
	OutputDir string `yaml:"output_dir"`
	// Run names the experiment in the store.
	Run string `yaml:"run"`
	// Seed drives the split, shuffling and weight initialization. Zero
	// means time-seeded.
	Seed int64 `yaml:"seed"`

	Split    split.Options  `yaml:"split"`
	Sampler  SamplerConfig  `yaml:"sampler"`
	Model    simple.Config  `yaml:"model"`
	Evaluate EvaluateConfig `yaml:"evaluate"`
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`
}

type SamplerConfig struct {
	BatchSize int  `yaml:"batch_size"`
	Shuffle   bool `yaml:"shuffle"`
}

type EvaluateConfig struct {
	// BatchSize defaults to the sampler batch size.
	BatchSize int `yaml:"batch_size"`
	Workers   int `yaml:"workers"`
	// TrialsPerPosition fixes the decomposition normalizer (L·B) when set.
	TrialsPerPosition int `yaml:"trials_per_position"`
}

type StoreConfig struct {
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the configuration used for fields the file leaves
// empty.
func DefaultConfig() Config {
	return Config{
		DataDir:   "data",
		OutputDir: "output",
		Run:       "default",
		Split: split.Options{
			TestFraction:  0.2,
			ValidFraction: 0.2,
		},
		Sampler: SamplerConfig{BatchSize: 1024, Shuffle: true},
		Model: simple.Config{
			HiddenSizes:  []int{64, 32},
			LearningRate: 0.001,
			Epochs:       10,
		},
		Store: StoreConfig{Kind: "sqlite"},
		Log:   LogConfig{Level: "info"},
	}
}

// LoadConfig reads path over the defaults. An empty path returns the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.UnmarshalStrict(buf, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}
	cfg.fill()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) fill() {
	if c.Store.Kind == "sqlite" && c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.OutputDir, "locaz.db")
	}
	if c.Evaluate.BatchSize == 0 {
		c.Evaluate.BatchSize = c.Sampler.BatchSize
	}
	if c.Model.Seed == 0 {
		c.Model.Seed = c.Seed
	}
}

// Validate rejects settings no command can run with.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.Run == "" {
		return errors.New("run is required")
	}
	if c.Sampler.BatchSize <= 0 {
		return errors.Errorf("sampler.batch_size %d must be positive", c.Sampler.BatchSize)
	}
	if c.Evaluate.BatchSize <= 0 {
		return errors.Errorf("evaluate.batch_size %d must be positive", c.Evaluate.BatchSize)
	}
	switch c.Store.Kind {
	case "", "memory", "sqlite":
	default:
		return errors.Errorf("unsupported store kind %q", c.Store.Kind)
	}
	return nil
}

func (c Config) modelPath() string {
	return filepath.Join(c.OutputDir, c.Run+"_model.gob")
}

func (c Config) historyPath() string {
	return filepath.Join(c.OutputDir, c.Run+"_history.csv")
}

func (c Config) summaryPath() string {
	return filepath.Join(c.OutputDir, c.Run+"_positions.csv")
}
