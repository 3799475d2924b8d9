package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	// Config is the daemon configuration, loadable from YAML or JSON.
	Config struct {
		Network  *NetworkConfig  `yaml:"network" json:"network"`
		Logging  *LoggingConfig  `yaml:"logging" json:"logging"`
		Snapshot *SnapshotConfig `yaml:"snapshot" json:"snapshot"`
		Root     *RootConfig     `yaml:"root" json:"root"`
	}

	NetworkConfig struct {
		Address        string        `yaml:"address" json:"address"`
		MaxConnections uint          `yaml:"max_connections" json:"max_connections"`
		MaxMessageSize string        `yaml:"max_message_size" json:"max_message_size"`
		IdleTimeout    time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	}

	LoggingConfig struct {
		Level  string `yaml:"level" json:"level"`
		Output string `yaml:"output" json:"output"`
	}

	SnapshotConfig struct {
		Path        string        `yaml:"path" json:"path"`
		Compression string        `yaml:"compression" json:"compression"`
		Interval    time.Duration `yaml:"interval" json:"interval"`
	}

	// RootConfig holds the credentials AUTH checks against. An empty
	// password disables authentication.
	RootConfig struct {
		Username string `yaml:"username" json:"username"`
		Password string `yaml:"password" json:"password"`
	}
)

// GetConfig loads the configuration at path, falling back to built-in
// defaults when the file does not exist.
func GetConfig(path string) (Config, error) {
	content, err := GetConfigReader(path)
	if err != nil {
		return Config{}, err
	}

	return ParseConfig(content)
}

// ParseConfig decodes a config document, trying YAML first and JSON second.
func ParseConfig(input io.ReadCloser) (Config, error) {
	defer input.Close()

	raw, err := io.ReadAll(input)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var (
		cfg      Config
		parseErr strings.Builder
	)

	for _, parser := range []func(io.Reader, *Config) error{yamlParser, jsonParser} {
		if err := parser(bytes.NewReader(raw), &cfg); err == nil {
			return cfg, nil
		} else {
			parseErr.WriteString(fmt.Sprintf("Error parsing config: %s\n", err.Error()))
		}
	}

	return cfg, errors.New(parseErr.String())
}

func yamlParser(input io.Reader, config *Config) error {
	if err := yaml.NewDecoder(input).Decode(config); err != nil {
		return fmt.Errorf("cant decode yaml config: %w", err)
	}

	return nil
}

func jsonParser(input io.Reader, config *Config) error {
	if err := json.NewDecoder(input).Decode(config); err != nil {
		return fmt.Errorf("cant decode json config: %w", err)
	}

	return nil
}
