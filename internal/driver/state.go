package driver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// StorageState is the persisted snapshot of an authenticated browser: cookies
// plus local storage per origin.
type StorageState struct {
	Cookies []Cookie      `json:"cookies"`
	Origins []OriginState `json:"origins"`
}

// Cookie is a browser cookie as stored in the state file
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"` // Unix seconds, -1 for session cookies
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// OriginState holds local storage entries for one origin
type OriginState struct {
	Origin       string      `json:"origin"`
	LocalStorage []NameValue `json:"localStorage"`
}

// NameValue is a single local storage entry
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ReadStorageState loads a state file
func ReadStorageState(path string) (*StorageState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st StorageState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse storage state %s: %w", path, err)
	}
	return &st, nil
}

// WriteStorageState replaces the file at path with st, creating parent
// directories as needed.
func WriteStorageState(path string, st *StorageState) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode storage state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write storage state: %w", err)
	}
	return nil
}
