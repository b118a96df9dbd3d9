package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Quiz struct {
		DefaultTimeLimitSec int   `yaml:"default_time_limit_sec"`
		RevealBatchSize     int32 `yaml:"reveal_batch_size"`
	} `yaml:"quiz"`
	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	config := &Config{}
	config.Quiz.DefaultTimeLimitSec = 30
	config.Quiz.RevealBatchSize = 10

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
		// Defaults plus env overrides are fine when no config file is present.
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Environment overrides win over the file.
	config.Quiz.DefaultTimeLimitSec = getEnvAsInt("QUIZ_DEFAULT_TIME_LIMIT_SEC", config.Quiz.DefaultTimeLimitSec)
	config.Quiz.RevealBatchSize = int32(getEnvAsInt("QUIZ_REVEAL_BATCH_SIZE", int(config.Quiz.RevealBatchSize)))

	return config, nil
}
