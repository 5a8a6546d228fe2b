package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"meetscribe/internal/logging"
	"meetscribe/internal/services"
)

// Store persists jobs as a single human-inspectable JSON snapshot. Every
// mutation rewrites the whole file under one lock, which keeps crash
// recovery trivial: whatever the last complete rename produced is the state.
type Store struct {
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[string]*Job
}

// NewStore opens the snapshot at path, creating parent directories as
// needed. A missing or corrupt snapshot starts the store empty; corruption
// is logged, never fatal.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("job store path required")
	}
	s := &Store{
		path:   path,
		logger: logging.NewComponentLogger(logger, "jobstore"),
		jobs:   make(map[string]*Job),
	}
	if err := s.load(); err != nil {
		s.logger.Warn("job snapshot unreadable, starting empty",
			logging.String("path", path),
			logging.Error(err))
		s.jobs = make(map[string]*Job)
	}
	return s, nil
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return s.path
}

// Get returns a deep copy of the job if present.
func (s *Store) Get(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// Set inserts or replaces a job and rewrites the snapshot.
func (s *Store) Set(job *Job) error {
	if job == nil || strings.TrimSpace(job.ID) == "" {
		return services.Wrap(services.ErrValidation, "", "store", "job id required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := job.Clone()
	stored.UpdatedAt = time.Now().UTC()
	s.jobs[stored.ID] = stored
	return s.save()
}

// UpdateFields applies mutate to the stored job under the lock and rewrites
// the snapshot. The read-modify-write is atomic with respect to other store
// operations; concurrent updates to different fields never clobber each
// other.
func (s *Store) UpdateFields(id string, mutate func(*Job)) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "", "store", fmt.Sprintf("job %s not found", id), nil)
	}
	updated := job.Clone()
	mutate(updated)
	updated.ID = id // mutate cannot reassign identity
	updated.UpdatedAt = time.Now().UTC()
	s.jobs[id] = updated
	if err := s.save(); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// Delete removes a job and rewrites the snapshot.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return services.Wrap(services.ErrNotFound, "", "store", fmt.Sprintf("job %s not found", id), nil)
	}
	delete(s.jobs, id)
	return s.save()
}

// List returns deep copies of all jobs sorted newest first.
func (s *Store) List() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of stored jobs.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var list []*Job
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	s.jobs = make(map[string]*Job, len(list))
	for _, job := range list {
		if job != nil && strings.TrimSpace(job.ID) != "" {
			s.jobs[job.ID] = job
		}
	}
	s.logger.Debug("loaded job snapshot",
		logging.Int("job_count", len(s.jobs)),
		logging.String("path", s.path))
	return nil
}

// save rewrites the snapshot atomically. Callers must hold s.mu.
func (s *Store) save() error {
	list := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		list = append(list, job)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
