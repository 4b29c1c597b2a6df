package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ValidationStatus is the result of a model configuration check. Errors make
// the configuration invalid; warnings do not.
type ValidationStatus struct {
	IsValid        bool     `json:"is_valid"`
	ValidationTime string   `json:"validation_time"`
	Validator      string   `json:"validator"`
	Errors         []string `json:"errors"`
	Warnings       []string `json:"warnings"`
}

// ValidateModel performs a secondary validation of a model configuration
// file: existence, JSON shape, referenced model files and preference sanity.
func ValidateModel(path string) ValidationStatus {
	status := ValidationStatus{
		ValidationTime: time.Now().Format("2006-01-02 15:04:05"),
		Validator:      "llmrc_validator",
		Errors:         []string{},
		Warnings:       []string{},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		status.Errors = append(status.Errors, fmt.Sprintf("configuration file not found: %s", path))
		return status
	}

	var mc Model
	if err := json.Unmarshal(data, &mc); err != nil {
		status.Errors = append(status.Errors, fmt.Sprintf("invalid JSON format: %v", err))
		return status
	}

	if mc.ModelPath != "" {
		if _, err := os.Stat(mc.ModelPath); err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("model file not found: %s", mc.ModelPath))
		}
	}

	if _, err := os.Stat(mc.ModelDirectory); err != nil {
		status.Warnings = append(status.Warnings, fmt.Sprintf("model directory not found: %s", mc.ModelDirectory))
	}

	var missing []string
	for _, m := range mc.FallbackModels {
		if _, err := os.Stat(filepath.Join(mc.ModelDirectory, m)); err != nil {
			missing = append(missing, m)
		}
	}
	if len(missing) > 0 {
		status.Warnings = append(status.Warnings,
			fmt.Sprintf("some fallback models not found: %s", strings.Join(missing, ", ")))
	}

	if mc.Preferences.MaxFileSizeGB == 0 {
		status.Warnings = append(status.Warnings, "max file size is 0, may be too restrictive")
	}
	if mc.Preferences.MinFileSizeMB > mc.Preferences.MaxFileSizeGB*1024 {
		status.Warnings = append(status.Warnings, "min file size is larger than max file size")
	}

	status.IsValid = len(status.Errors) == 0
	return status
}

// SaveValidation writes the validation result next to the configuration file
// as <path>.validation.
func SaveValidation(path string, status ValidationStatus) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize validation result: %w", err)
	}
	out := path + ".validation"
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write validation result %s: %w", out, err)
	}
	return nil
}
