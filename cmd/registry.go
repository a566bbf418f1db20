package cmd

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProjectConfig is one configured database target. The password never
// leaves the process: it is excluded from every JSON representation.
type ProjectConfig struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Host      string    `json:"host"`
	Database  string    `json:"database"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Port      int       `json:"port"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *SeedProject) toProject() ProjectConfig {
	port := s.Port
	if port == 0 {
		port = 5432
	}
	return ProjectConfig{
		ID:        "default-" + uuid.NewString(),
		Name:      s.Name,
		Host:      s.Host,
		Database:  s.Database,
		Username:  s.Username,
		Password:  s.Password,
		Port:      port,
		CreatedAt: time.Now().UTC(),
	}
}

// ProjectStore is the project registry. Implementations must be safe for
// concurrent use: registration, removal and export requests may overlap.
type ProjectStore interface {
	List() []ProjectConfig
	Get(id string) (ProjectConfig, bool)
	Add(project ProjectConfig)
	RemoveByID(id string) bool
}

// MemoryProjectStore keeps the registry in process memory. Projects do not
// survive a restart, matching the registration-time connectivity contract:
// anything in the store has either been seeded or has passed validation.
type MemoryProjectStore struct {
	mu       sync.RWMutex
	projects []ProjectConfig
}

func NewMemoryProjectStore() *MemoryProjectStore {
	return &MemoryProjectStore{}
}

// List returns a snapshot of the registry in insertion order.
func (s *MemoryProjectStore) List() []ProjectConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ProjectConfig, len(s.projects))
	copy(out, s.projects)
	return out
}

// Get returns the project with the given id, if present.
func (s *MemoryProjectStore) Get(id string) (ProjectConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.projects {
		if p.ID == id {
			return p, true
		}
	}
	return ProjectConfig{}, false
}

func (s *MemoryProjectStore) Add(project ProjectConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.projects = append(s.projects, project)
}

// RemoveByID removes the project with the given id and reports whether a
// matching project existed.
func (s *MemoryProjectStore) RemoveByID(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.projects {
		if p.ID == id {
			s.projects = append(s.projects[:i], s.projects[i+1:]...)
			return true
		}
	}
	return false
}
