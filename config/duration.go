package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a human-readable duration for config files. YAML and JSON
// accept a string ("65s", "10m") or a bare number, interpreted as seconds.
type Duration struct {
	time.Duration
}

func Seconds(n int) Duration {
	return Duration{time.Duration(n) * time.Second}
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind == yaml.ScalarNode {
		switch value.Tag {
		case "!!str":
			s := strings.TrimSpace(value.Value)
			if s == "" {
				d.Duration = 0
				return nil
			}
			dd, err := time.ParseDuration(s)
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", s, err)
			}
			d.Duration = dd
			return nil
		case "!!int":
			secs, err := strconv.ParseInt(strings.TrimSpace(value.Value), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid duration seconds %q: %w", value.Value, err)
			}
			d.Duration = time.Duration(secs) * time.Second
			return nil
		case "!!float":
			f, err := strconv.ParseFloat(strings.TrimSpace(value.Value), 64)
			if err != nil {
				return fmt.Errorf("invalid duration seconds %q: %w", value.Value, err)
			}
			d.Duration = time.Duration(f * float64(time.Second))
			return nil
		}
	}
	return fmt.Errorf("unsupported duration node: kind=%d tag=%s value=%q", value.Kind, value.Tag, value.Value)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	b = []byte(strings.TrimSpace(string(b)))
	if len(b) == 0 || string(b) == "null" {
		d.Duration = 0
		return nil
	}

	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			d.Duration = 0
			return nil
		}
		dd, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		d.Duration = dd
		return nil
	}

	// number -> seconds
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return err
	}
	d.Duration = time.Duration(secs * float64(time.Second))
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}
