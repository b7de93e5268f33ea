package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const redacted = "[REDACTED]"

// DumpYAML renders settings as YAML with credentials replaced
func DumpYAML(settings *Settings) ([]byte, error) {
	masked := *settings
	if masked.Inference.APIKey != "" {
		masked.Inference.APIKey = redacted
	}
	if masked.MQTT.Password != "" {
		masked.MQTT.Password = redacted
	}
	if masked.Sentry.DSN != "" {
		masked.Sentry.DSN = redacted
	}
	if len(masked.Notification.URLs) > 0 {
		urls := make([]string, len(masked.Notification.URLs))
		for i := range urls {
			urls[i] = redacted
		}
		masked.Notification.URLs = urls
	}

	data, err := yaml.Marshal(&masked)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return data, nil
}

// SaveYAMLConfig writes settings to configPath atomically.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
