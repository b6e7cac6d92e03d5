// Package profiles persists the list of named connection profiles.
package profiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rebeliceyang/lazydb/internal/models"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the store file created inside the config directory
const DefaultFileName = "connections.json"

// ErrNotFound is returned when no profile matches a lookup
var ErrNotFound = errors.New("profile not found")

// Registry holds connection profiles in insertion order and persists them
// after every successful change.
type Registry struct {
	path     string
	profiles []models.ConnectionProfile
	mu       sync.RWMutex
}

// NewRegistry creates a registry backed by the file at path and loads it
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: path}
	profiles, err := r.Load()
	if err != nil {
		return nil, err
	}
	r.profiles = profiles
	return r, nil
}

// Path returns the backing file path
func (r *Registry) Path() string {
	return r.path
}

// Load reads the store from disk. A missing store yields an empty list.
func (r *Registry) Load() ([]models.ConnectionProfile, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.ConnectionProfile{}, nil
		}
		return nil, fmt.Errorf("failed to read profile store: %w", err)
	}

	profiles, err := decode(r.path, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile store %s: %w", r.path, err)
	}
	return profiles, nil
}

// Save writes profiles to disk in the given order
func (r *Registry) Save(profiles []models.ConnectionProfile) error {
	data, err := encode(r.path, profiles)
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// 0600: the store holds passwords
	if err := os.WriteFile(r.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write profile store: %w", err)
	}
	return nil
}

// Profiles returns the profiles sorted by driver, then name
func (r *Registry) Profiles() []models.ConnectionProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sorted := make([]models.ConnectionProfile, len(r.profiles))
	copy(sorted, r.profiles)
	SortProfiles(sorted)
	return sorted
}

// Find returns the first profile with the given name in sorted order
func (r *Registry) Find(name string) (models.ConnectionProfile, error) {
	for _, p := range r.Profiles() {
		if p.Name == name {
			return p, nil
		}
	}
	return models.ConnectionProfile{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Add validates and appends a profile, then persists the registry.
// Duplicate names are permitted.
func (r *Registry) Add(p models.ConnectionProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p = p.Normalized()

	r.mu.Lock()
	defer r.mu.Unlock()

	next := append(append([]models.ConnectionProfile{}, r.profiles...), p)
	if err := r.Save(next); err != nil {
		return err
	}
	r.profiles = next
	return nil
}

// Replace swaps the first profile matching driver and name for p
func (r *Registry) Replace(driver models.Driver, name string, p models.ConnectionProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p = p.Normalized()

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(driver, name)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	next := append([]models.ConnectionProfile{}, r.profiles...)
	next[idx] = p
	if err := r.Save(next); err != nil {
		return err
	}
	r.profiles = next
	return nil
}

// Remove deletes the first profile matching driver and name
func (r *Registry) Remove(driver models.Driver, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(driver, name)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	next := append([]models.ConnectionProfile{}, r.profiles[:idx]...)
	next = append(next, r.profiles[idx+1:]...)
	if err := r.Save(next); err != nil {
		return err
	}
	r.profiles = next
	return nil
}

func (r *Registry) indexOf(driver models.Driver, name string) int {
	for i, p := range r.profiles {
		if p.Driver == driver && p.Name == name {
			return i
		}
	}
	return -1
}

// SortProfiles orders profiles by driver, then name
func SortProfiles(profiles []models.ConnectionProfile) {
	sort.SliceStable(profiles, func(i, j int) bool {
		if profiles[i].Driver != profiles[j].Driver {
			return profiles[i].Driver < profiles[j].Driver
		}
		return profiles[i].Name < profiles[j].Name
	})
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func encode(path string, profiles []models.ConnectionProfile) ([]byte, error) {
	if profiles == nil {
		profiles = []models.ConnectionProfile{}
	}
	if isYAML(path) {
		return yaml.Marshal(profiles)
	}
	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// decode reads records loosely: keys match case-insensitively and any
// missing or non-string field becomes the empty string.
func decode(path string, data []byte) ([]models.ConnectionProfile, error) {
	var doc any
	if isYAML(path) {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	} else {
		if len(strings.TrimSpace(string(data))) == 0 {
			return []models.ConnectionProfile{}, nil
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	}

	items, ok := doc.([]any)
	if !ok {
		return []models.ConnectionProfile{}, nil
	}

	profiles := make([]models.ConnectionProfile, 0, len(items))
	for _, item := range items {
		record, ok := item.(map[string]any)
		if !ok {
			continue
		}
		profiles = append(profiles, fromRecord(record))
	}
	return profiles, nil
}

func fromRecord(record map[string]any) models.ConnectionProfile {
	fields := make(map[string]string, len(record))
	for k, v := range record {
		if s, ok := v.(string); ok {
			fields[strings.ToLower(k)] = s
		}
	}

	return models.ConnectionProfile{
		Driver:   models.Driver(fields["driver"]),
		Name:     fields["name"],
		Path:     fields["path"],
		Host:     fields["host"],
		Port:     fields["port"],
		Username: fields["username"],
		Password: fields["password"],
		Database: fields["database"],
	}
}
