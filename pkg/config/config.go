// Package config loads and exports workflow definitions. YAML and JSON are
// supported; the format is picked by file extension.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/espalier/pkg/domain"
)

// Load reads a workflow definition from a YAML or JSON file.
func Load(path string) (*domain.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow config: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
		return FromMap(raw)
	}
	return Parse(data)
}

// Parse decodes a YAML workflow definition.
func Parse(data []byte) (*domain.Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse workflow config: %w", err)
	}
	return FromMap(raw)
}

// FromMap decodes a generic map into a workflow configuration.
// Durations accept Go strings ("30s") or bare numbers, read as seconds.
func FromMap(raw map[string]any) (*domain.Config, error) {
	var cfg domain.Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: &cfg,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			numberToDurationHook,
		),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid workflow config: %w", err)
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("invalid workflow config: name is required")
	}
	for _, s := range cfg.Steps {
		if !s.Type.Known() {
			return nil, fmt.Errorf("invalid workflow config: unknown step type %q in step %q", s.Type, s.Name)
		}
	}
	return &cfg, nil
}

// numberToDurationHook reads bare numbers as whole seconds when the target
// is a time.Duration.
func numberToDurationHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	default:
		return data, nil
	}
}

// ExportYAML serializes a workflow definition to YAML.
func ExportYAML(cfg *domain.Config) ([]byte, error) {
	return yaml.Marshal(toMap(cfg))
}

// ExportJSON serializes a workflow definition to indented JSON.
func ExportJSON(cfg *domain.Config) ([]byte, error) {
	return json.MarshalIndent(toMap(cfg), "", "  ")
}

// Write exports a workflow definition to a file, format by extension.
func Write(path string, cfg *domain.Config) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = ExportJSON(cfg)
	case ".yaml", ".yml":
		data, err = ExportYAML(cfg)
	default:
		return fmt.Errorf("unsupported config format %q: use .yaml, .yml or .json", filepath.Ext(path))
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// toMap renders the configuration with durations as strings, so exports
// round-trip through FromMap.
func toMap(cfg *domain.Config) map[string]any {
	steps := make([]map[string]any, 0, len(cfg.Steps))
	for _, s := range cfg.Steps {
		step := map[string]any{
			"name":      s.Name,
			"step_type": string(s.Type),
			"agents":    s.Agents,
		}
		if s.Condition != "" {
			step["condition"] = s.Condition
		}
		if s.MaxIterations > 0 {
			step["max_iterations"] = s.MaxIterations
		}
		if s.Timeout > 0 {
			step["timeout"] = s.Timeout.String()
		}
		if s.RetryCount > 0 {
			step["retry_count"] = s.RetryCount
		}
		if s.ErrorHandler != "" {
			step["error_handler"] = s.ErrorHandler
		}
		if len(s.Metadata) > 0 {
			step["metadata"] = s.Metadata
		}
		steps = append(steps, step)
	}

	out := map[string]any{
		"name":           cfg.Name,
		"steps":          steps,
		"error_recovery": cfg.ErrorRecovery,
		"observability":  cfg.Observability,
	}
	if cfg.Description != "" {
		out["description"] = cfg.Description
	}
	if cfg.GlobalTimeout > 0 {
		out["global_timeout"] = cfg.GlobalTimeout.String()
	}
	if len(cfg.Metadata) > 0 {
		out["metadata"] = cfg.Metadata
	}
	return out
}
