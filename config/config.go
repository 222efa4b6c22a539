// Package config loads the service configuration from config.yaml.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DefaultModelURL   = "models/heart_bagging.json"
	DefaultDatasetURL = "https://github.com/difafisabill/Kelompok5_KampusMerdeka__PYTN_FP3_Hacktiv8/raw/main/data_heart_Cleaned.csv"

	ScalerArtifact = "artifact"
	ScalerDataset  = "dataset"
	ScalerRow      = "row"
)

type Config struct {
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	} `yaml:"http"`
	Log struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Model struct {
		URL          string        `yaml:"url"`
		Path         string        `yaml:"path"`
		Type         string        `yaml:"type"`
		SHA256       string        `yaml:"sha256"`
		FetchTimeout time.Duration `yaml:"fetch_timeout"`
		Watch        bool          `yaml:"watch"`
	} `yaml:"model"`
	Dataset struct {
		URL      string        `yaml:"url"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
		PageSize int           `yaml:"page_size"`
	} `yaml:"dataset"`
	ML struct {
		Scaler    string `yaml:"scaler"`
		CacheSize int    `yaml:"cache_size"`
	} `yaml:"ml"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Locale string `yaml:"locale"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.Http.Port = 8501
	cfg.Http.Timeout = 30 * time.Second
	cfg.Http.AllowedOrigins = []string{"*"}
	cfg.Http.MaxBodyBytes = 1 << 20
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Log.MaxSizeMB = 50
	cfg.Log.MaxBackups = 3
	cfg.Log.MaxAgeDays = 28
	cfg.Model.URL = DefaultModelURL
	cfg.Model.Path = "model.json"
	cfg.Model.Type = "bagging"
	cfg.Model.FetchTimeout = 60 * time.Second
	cfg.Dataset.URL = DefaultDatasetURL
	cfg.Dataset.CacheTTL = time.Hour
	cfg.Dataset.PageSize = 50
	cfg.ML.Scaler = ScalerArtifact
	cfg.ML.CacheSize = 1024
	cfg.Database.Path = "heartfail.db"
	cfg.Locale = "id"
	return cfg
}

// Load reads path on top of the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		switch {
		case err == nil:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("HEARTFAIL_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HEARTFAIL_PORT: %w", err)
		}
		c.Http.Port = port
	}
	if v := os.Getenv("HEARTFAIL_MODEL_URL"); v != "" {
		c.Model.URL = v
	}
	if v := os.Getenv("HEARTFAIL_MODEL_PATH"); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv("HEARTFAIL_DATASET_URL"); v != "" {
		c.Dataset.URL = v
	}
	if v := os.Getenv("HEARTFAIL_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("HEARTFAIL_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.Http.Port)
	}
	if c.Model.Path == "" {
		return fmt.Errorf("model.path is required")
	}
	switch c.ML.Scaler {
	case ScalerArtifact, ScalerDataset, ScalerRow:
	default:
		return fmt.Errorf("ml.scaler must be one of artifact, dataset, row: %q", c.ML.Scaler)
	}
	switch c.Locale {
	case "id", "en":
	default:
		return fmt.Errorf("locale must be id or en: %q", c.Locale)
	}
	return nil
}
