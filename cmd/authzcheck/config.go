package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Config is the JSON configuration file authzcheck's serve subcommand
// loads through its --config flag. The other subcommands take their
// settings from flags only.
type Config struct {
	RulesPath    string `json:"rules_path"`
	GroupsPath   string `json:"groups_path,omitempty"`
	CacheSeconds int    `json:"cache_seconds,omitempty"`
	MustExist    *bool  `json:"must_exist,omitempty"`

	AppLogPath   string `json:"app_log_path,omitempty"`
	QueryLogPath string `json:"query_log_path,omitempty"`

	StatusDir string `json:"status_dir,omitempty"`

	ListenAddr string `json:"listen_addr,omitempty"`
}

// LoadConfig reads a JSON config file at path, resolving its relative
// paths against the config file's own directory. A sibling ".env" file,
// if present, is loaded into the process environment first; the JSON
// values themselves are taken literally and are not expanded from it.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	configDir := filepath.Dir(path)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(configDir, p)
	}
	cfg.RulesPath = resolve(cfg.RulesPath)
	cfg.GroupsPath = resolve(cfg.GroupsPath)
	cfg.AppLogPath = resolve(cfg.AppLogPath)
	cfg.QueryLogPath = resolve(cfg.QueryLogPath)
	cfg.StatusDir = resolve(cfg.StatusDir)

	if cfg.CacheSeconds == 0 {
		cfg.CacheSeconds = 60
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8080"
	}
	if cfg.MustExist == nil {
		t := true
		cfg.MustExist = &t
	}

	return &cfg, nil
}
