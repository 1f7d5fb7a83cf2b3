package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// Settings are the user-facing runtime switches persisted to
// settings.json and exposed through /api/settings.
type Settings struct {
	AutoClearOnServerChange bool `mapstructure:"autoClearOnServerChange" json:"autoClearOnServerChange"`
	AutoClearOnTimeout      bool `mapstructure:"autoClearOnTimeout" json:"autoClearOnTimeout"`
	OnlyRecordEliteDummy    bool `mapstructure:"onlyRecordEliteDummy" json:"onlyRecordEliteDummy"`
}

func defaultSettings() map[string]any {
	return map[string]any{
		"autoClearOnServerChange": true,
		"autoClearOnTimeout":      false,
		"onlyRecordEliteDummy":    false,
	}
}

// SettingsStore owns settings.json. Writes merge into the existing
// document, so keys this version does not know about survive a rewrite.
type SettingsStore struct {
	mu      sync.RWMutex
	path    string
	values  map[string]any
	current Settings
}

// OpenSettings loads the settings file, creating it with defaults when
// missing. A corrupt file is replaced by defaults rather than aborting
// startup.
func OpenSettings(path string) (*SettingsStore, error) {
	s := &SettingsStore{
		path:   path,
		values: defaultSettings(),
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := s.writeLocked(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	default:
		var fileValues map[string]any
		if err := json.Unmarshal(raw, &fileValues); err == nil {
			for k, v := range fileValues {
				s.values[k] = v
			}
		}
	}

	if err := s.decodeLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the typed view of the known settings.
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// All returns every key in the document, including unknown ones.
func (s *SettingsStore) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Update merges the patch into the document, persists it and returns
// the new typed view.
func (s *SettingsStore) Update(patch map[string]any) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range patch {
		s.values[k] = v
	}
	if err := s.decodeLocked(); err != nil {
		return s.current, err
	}
	if err := s.writeLocked(); err != nil {
		return s.current, err
	}
	return s.current, nil
}

func (s *SettingsStore) Path() string { return s.path }

func (s *SettingsStore) decodeLocked() error {
	var cur Settings
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cur,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(s.values); err != nil {
		return fmt.Errorf("failed to decode settings: %w", err)
	}
	s.current = cur
	return nil
}

func (s *SettingsStore) writeLocked() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}
