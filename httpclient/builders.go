package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// configProcessedVals holds the file fields that need converting before they fit ClientConfig.
type configProcessedVals struct {
	CustomTimeoutSeconds  int `json:"custom_timeout_seconds"`
	RefreshTimeoutSeconds int `json:"refresh_timeout_seconds"`
}

// LoadConfigFromFile reads a JSON configuration file. Defaults are not applied.
func LoadConfigFromFile(filepath string) (*ClientConfig, error) {
	var clientConfig ClientConfig
	if err := MergeConfigFromFile(filepath, &clientConfig); err != nil {
		return nil, err
	}
	return &clientConfig, nil
}

// MergeConfigFromFile decodes a JSON configuration file over clientConfig. Fields the file
// does not mention keep their current values.
func MergeConfigFromFile(filepath string, clientConfig *ClientConfig) error {
	var processorContainer configProcessedVals

	if err := loadConfigFromJSONFile(filepath, clientConfig); err != nil {
		return err
	}

	if err := loadConfigFromJSONFile(filepath, &processorContainer); err != nil {
		return err
	}

	if processorContainer.CustomTimeoutSeconds < 0 || processorContainer.RefreshTimeoutSeconds < 0 {
		return fmt.Errorf("timeouts in %s cannot be negative", filepath)
	}
	if processorContainer.CustomTimeoutSeconds > 0 {
		clientConfig.CustomTimeout = time.Duration(processorContainer.CustomTimeoutSeconds) * time.Second
	}
	if processorContainer.RefreshTimeoutSeconds > 0 {
		clientConfig.RefreshTimeout = time.Duration(processorContainer.RefreshTimeoutSeconds) * time.Second
	}

	return nil
}

// loadConfigFromJSONFile decodes the JSON file at configFilePath into home.
func loadConfigFromJSONFile(configFilePath string, home any) error {
	file, err := os.Open(configFilePath)
	if err != nil {
		return fmt.Errorf("could not open file: %w", err)
	}
	defer file.Close()

	byteValue, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("could not read file: %w", err)
	}

	if err := json.Unmarshal(byteValue, home); err != nil {
		return fmt.Errorf("could not unmarshal JSON: %w", err)
	}

	return nil
}
