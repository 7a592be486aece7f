package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// Settings are the host-supplied knobs for everything around the two
// announcement templates: logging sinks, fan-out rate, the announcement
// history store, timed announcements, and the optional chat mirror.
//
// Unlike announcements.json (operator-edited, lenient), the settings file
// is decoded strictly so typos surface at startup instead of being
// silently ignored. JSON and YAML are both accepted.
type Settings struct {
	Logging   LoggingSettings    `json:"logging"`
	Broadcast BroadcastSettings  `json:"broadcast"`
	History   HistorySettings    `json:"history"`
	Schedule  []ScheduleSettings `json:"schedule,omitempty"`
	Mirror    MirrorSettings     `json:"mirror"`
}

type LoggingSettings struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
	File    struct {
		Enabled bool   `json:"enabled"`
		Path    string `json:"path"`
	} `json:"file"`
}

type BroadcastSettings struct {
	// RatePerSec caps deliveries per second across all targets. <=0 means
	// the built-in default.
	RatePerSec int `json:"rate_per_sec"`
}

type HistorySettings struct {
	Enabled bool `json:"enabled"`
	// Driver is "file" (JSON Lines) or "sqlite".
	Driver string `json:"driver"`
	Path   string `json:"path"`
}

// ScheduleSettings defines one timed announcement: a cron spec or "@every"
// interval plus a template rendered at fire time (only {time} resolves to
// a non-empty value there).
type ScheduleSettings struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Message  string `json:"message"`
}

type MirrorSettings struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token"`
	ChatID     int64  `json:"chat_id"`
	RatePerSec int    `json:"rate_per_sec"`
}

func DefaultSettings() Settings {
	var s Settings
	s.Logging.Level = "INFO"
	s.Logging.Console = true
	return s
}

// LoadSettings reads and strictly decodes a settings file. A missing path
// yields the defaults; a present-but-broken file is an error (the operator
// asked for specific settings and should not silently lose them).
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if strings.TrimSpace(path) == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	jb, err := coerceToJSONBytes(path, b)
	if err != nil {
		return s, err
	}

	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return DefaultSettings(), err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return DefaultSettings(), fmt.Errorf("invalid settings: trailing data")
		}
		return DefaultSettings(), err
	}
	return s, nil
}

// coerceToJSONBytes converts a YAML settings file to JSON bytes so the same
// strict JSON decoder (DisallowUnknownFields) serves both formats.
func coerceToJSONBytes(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	v = normalizeYAML(v)

	j, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

// normalizeYAML ensures all map keys are strings so the result can be JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}
