package feed

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const DefaultRefreshInterval = 3600

type GroupSettings struct {
	Enabled         bool `json:"enabled" yaml:"enabled"`
	RefreshInterval int  `json:"refresh_interval" yaml:"refresh_interval"` // seconds
}

// Group is a named query loaded from <groups-dir>/<name>.yml.
type Group struct {
	Name     string        `json:"name" yaml:"-"`
	Query    `yaml:",inline"`
	Settings GroupSettings `json:"settings" yaml:"settings"`
}

type GroupCache struct {
	groupsDir string
	cache     map[string]*Group
	mu        sync.RWMutex
}

func NewGroupCache(groupsDir string) *GroupCache {
	return &GroupCache{
		groupsDir: groupsDir,
		cache:     make(map[string]*Group),
	}
}

// Run loads every group file of the directory. A missing directory is not
// an error.
func (gc *GroupCache) Run() error {
	if _, err := os.Stat(gc.groupsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(gc.groupsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yml")

		group, err := gc.LoadGroup(name)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Group loaded", "group", name, "feeds", len(group.Conditions), "enabled", group.Settings.Enabled, "refresh_interval", group.Settings.RefreshInterval)
	}

	return nil
}

// LoadGroup reads one group from disk and replaces the cached copy.
func (gc *GroupCache) LoadGroup(name string) (*Group, error) {
	groupFile := gc.getGroupFilePath(name)
	group, err := gc.parseGroup(groupFile)
	if err != nil {
		return nil, err
	}

	group.Name = name

	if err := validateGroup(group); err != nil {
		return nil, fmt.Errorf("invalid group %s: %w", groupFile, err)
	}

	gc.mu.Lock()
	defer gc.mu.Unlock()
	gc.cache[group.Name] = group

	return group, nil
}

func (gc *GroupCache) GetGroup(name string) (*Group, error) {
	gc.mu.RLock()
	defer gc.mu.RUnlock()

	group, ok := gc.cache[name]
	if !ok {
		return nil, fmt.Errorf("group with name '%s' not found", name)
	}
	return group, nil
}

func (gc *GroupCache) GetGroups() map[string]*Group {
	gc.mu.RLock()
	defer gc.mu.RUnlock()

	groups := make(map[string]*Group, len(gc.cache))
	for k, v := range gc.cache {
		groups[k] = v
	}
	return groups
}

func (gc *GroupCache) GetEnabledGroups() map[string]*Group {
	gc.mu.RLock()
	defer gc.mu.RUnlock()

	enabled := make(map[string]*Group)
	for k, v := range gc.cache {
		if v.Settings.Enabled {
			enabled[k] = v
		}
	}
	return enabled
}

// GetGroupNames returns the loaded group names in lexical order.
func (gc *GroupCache) GetGroupNames() []string {
	gc.mu.RLock()
	defer gc.mu.RUnlock()

	names := make([]string, 0, len(gc.cache))
	for name := range gc.cache {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (gc *GroupCache) GetGroupCount() int {
	gc.mu.RLock()
	defer gc.mu.RUnlock()
	return len(gc.cache)
}

func (gc *GroupCache) parseGroup(groupFile string) (*Group, error) {
	data, err := os.ReadFile(groupFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var group Group
	if err := yaml.Unmarshal(data, &group); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if group.Settings.RefreshInterval == 0 {
		group.Settings.RefreshInterval = DefaultRefreshInterval
	}

	return &group, nil
}

func validateGroup(group *Group) error {
	if group == nil {
		return fmt.Errorf("group is nil")
	}
	if group.Name == "" {
		return fmt.Errorf("group name is required")
	}
	if len(group.Conditions) == 0 {
		return fmt.Errorf("at least one feed is required")
	}
	if err := ValidateSources(group.Conditions); err != nil {
		return err
	}

	nonNegativeFields := map[string]int{
		"refresh interval": group.Settings.RefreshInterval,
		"limit":            group.Limit,
	}
	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	if _, err := ParseDirection(string(group.Order.Direction)); err != nil {
		return err
	}

	return ValidateFilters(group.Filters)
}

// ValidateSources rejects sources without an ID or URL and repeated IDs.
func ValidateSources(sources Sources) error {
	seen := make(map[string]bool, len(sources))
	for i, source := range sources {
		if source.ID == "" {
			return fmt.Errorf("feed at index %d has no id", i)
		}
		if source.URL == "" {
			return fmt.Errorf("feed %q has no URL", source.ID)
		}
		if seen[source.ID] {
			return fmt.Errorf("feed %q is listed twice", source.ID)
		}
		seen[source.ID] = true
	}
	return nil
}

func (gc *GroupCache) getGroupFilePath(name string) string {
	return filepath.Join(gc.groupsDir, name+".yml")
}
