// Package favorites keeps named queries in a YAML file.
package favorites

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rebeliceyang/lazydb/internal/export"
	"github.com/rebeliceyang/lazydb/internal/models"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when no favorite has the requested name
var ErrNotFound = errors.New("favorite not found")

// Manager manages query favorites
type Manager struct {
	path string

	mu        sync.Mutex
	favorites []models.Favorite
}

// NewManager loads the favorites at path. A missing file is an empty list.
func NewManager(path string) (*Manager, error) {
	m := &Manager{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return nil, fmt.Errorf("failed to read favorites file: %w", err)
	}
	if err := yaml.Unmarshal(data, &m.favorites); err != nil {
		return nil, fmt.Errorf("failed to parse favorites: %w", err)
	}
	return m, nil
}

// save writes favorites to the YAML file; callers hold m.mu
func (m *Manager) save(favorites []models.Favorite) error {
	data, err := yaml.Marshal(favorites)
	if err != nil {
		return fmt.Errorf("failed to marshal favorites: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write favorites file: %w", err)
	}
	m.favorites = favorites
	return nil
}

// Add saves a new favorite. Names are unique ignoring case.
func (m *Manager) Add(f models.Favorite) (models.Favorite, error) {
	f.Name = strings.TrimSpace(f.Name)
	f.Query = strings.TrimSpace(f.Query)
	f.Description = strings.TrimSpace(f.Description)

	if f.Name == "" {
		return f, fmt.Errorf("favorite name cannot be empty")
	}
	if f.Query == "" {
		return f, fmt.Errorf("favorite query cannot be empty")
	}
	if f.Profile == "" {
		return f, fmt.Errorf("favorite profile cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexOf(f.Name) >= 0 {
		return f, fmt.Errorf("a favorite with the name '%s' already exists (names are case-insensitive)", f.Name)
	}

	now := time.Now().UTC()
	f.ID = uuid.NewString()
	f.CreatedAt, f.UpdatedAt = now, now
	f.UsageCount = 0
	f.LastUsed = time.Time{}

	next := append(append([]models.Favorite{}, m.favorites...), f)
	if err := m.save(next); err != nil {
		return f, fmt.Errorf("failed to save favorite: %w", err)
	}
	return f, nil
}

// Delete removes a favorite by name
func (m *Manager) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	next := append(append([]models.Favorite{}, m.favorites[:i]...), m.favorites[i+1:]...)
	if err := m.save(next); err != nil {
		return fmt.Errorf("failed to save favorites after deletion: %w", err)
	}
	return nil
}

// Get returns a favorite by name
func (m *Manager) Get(name string) (models.Favorite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(name)
	if i < 0 {
		return models.Favorite{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return m.favorites[i], nil
}

// All returns all favorites ordered by name
func (m *Manager) All() []models.Favorite {
	m.mu.Lock()
	all := append([]models.Favorite(nil), m.favorites...)
	m.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		return strings.ToLower(all[i].Name) < strings.ToLower(all[j].Name)
	})
	return all
}

// Search matches text against name, description, query and tags
func (m *Manager) Search(text string) []models.Favorite {
	all := m.All()
	if text == "" {
		return all
	}

	text = strings.ToLower(text)
	var results []models.Favorite
	for _, f := range all {
		if matches(f, text) {
			results = append(results, f)
		}
	}
	return results
}

func matches(f models.Favorite, text string) bool {
	if strings.Contains(strings.ToLower(f.Name), text) ||
		strings.Contains(strings.ToLower(f.Description), text) ||
		strings.Contains(strings.ToLower(f.Query), text) {
		return true
	}
	for _, tag := range f.Tags {
		if strings.Contains(strings.ToLower(tag), text) {
			return true
		}
	}
	return false
}

// RecordUsage updates usage statistics for a favorite
func (m *Manager) RecordUsage(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	next := append([]models.Favorite{}, m.favorites...)
	next[i].UsageCount++
	next[i].LastUsed = time.Now().UTC()
	if err := m.save(next); err != nil {
		return fmt.Errorf("failed to save usage statistics: %w", err)
	}
	return nil
}

// MostUsed returns the most frequently used favorites
func (m *Manager) MostUsed(limit int) []models.Favorite {
	sorted := m.All()
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UsageCount > sorted[j].UsageCount
	})
	if limit > 0 && limit < len(sorted) {
		sorted = sorted[:limit]
	}
	return sorted
}

// Export writes all favorites to path as CSV or JSON
func (m *Manager) Export(format export.Format, path string) error {
	all := m.All()
	if len(all) == 0 {
		return fmt.Errorf("no favorites to export")
	}
	if err := export.ToFile(table(all), format, path); err != nil {
		return fmt.Errorf("failed to export favorites: %w", err)
	}
	return nil
}

func (m *Manager) indexOf(name string) int {
	name = strings.TrimSpace(name)
	for i, f := range m.favorites {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

// table presents favorites as rows for the exporter
type table []models.Favorite

func (t table) Columns() []string {
	return []string{"name", "profile", "database", "query", "description", "tags", "usage_count"}
}

func (t table) Len() int { return len(t) }

func (t table) DisplayRow(row int) []string {
	f := t[row]
	return []string{
		f.Name,
		f.Profile,
		f.Database,
		f.Query,
		f.Description,
		strings.Join(f.Tags, ","),
		strconv.Itoa(f.UsageCount),
	}
}
