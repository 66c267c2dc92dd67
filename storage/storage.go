package storage

import (
	"fmt"
	"sync"
	"time"
)

// Storage represents a thread-safe in-memory storage for projects and stages.
// It implements the StorageInterface and is used for tests and dry runs.
type Storage struct {
	mu       sync.RWMutex
	projects []Project                             // creation order
	stages   map[string]map[StageCode]*StageRecord // map[project][code]
	now      func() time.Time
}

// New creates a new storage instance
func New() *Storage {
	return &Storage{
		stages: make(map[string]map[StageCode]*StageRecord),
		now:    time.Now,
	}
}

// SetClock replaces the time source used for LastUpdated stamps
func (s *Storage) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// ListProjects returns projects in creation order
func (s *Storage) ListProjects(activeOnly bool) ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// AddProject creates a project with empty stage records
func (s *Storage) AddProject(name string) (bool, error) {
	name = normalizeProjectName(name)
	if name == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(name) >= 0 {
		return false, nil
	}
	s.projects = append(s.projects, Project{
		Name:      name,
		Active:    true,
		CreatedAt: s.now().Format(time.RFC3339),
	})
	recs := make(map[StageCode]*StageRecord, len(Stages))
	for _, def := range Stages {
		rec := emptyStage(def.Code)
		recs[def.Code] = &rec
	}
	s.stages[name] = recs
	return true, nil
}

// SetProjectActive archives or restores a project
func (s *Storage) SetProjectActive(name string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(name)
	if i < 0 {
		return fmt.Errorf("set active %q: %w", name, ErrUnknownProject)
	}
	s.projects[i].Active = active
	return nil
}

// SetProjectFinished marks a project finished or not
func (s *Storage) SetProjectFinished(name string, finished bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(name)
	if i < 0 {
		return fmt.Errorf("set finished %q: %w", name, ErrUnknownProject)
	}
	s.projects[i].Finished = finished
	return nil
}

// ReadStage returns a copy of one stage record
func (s *Storage) ReadStage(project string, code StageCode) (StageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.stageLocked(project, code)
	if err != nil {
		return StageRecord{}, err
	}
	return copyStage(*rec), nil
}

// ReadStages returns copies of all stage records of a project
func (s *Storage) ReadStages(project string) ([]StageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]StageRecord, 0, len(Stages))
	for _, def := range Stages {
		rec, err := s.stageLocked(project, def.Code)
		if err != nil {
			return nil, err
		}
		out = append(out, copyStage(*rec))
	}
	return out, nil
}

// UpdateStage applies upd to a stage record
func (s *Storage) UpdateStage(project string, code StageCode, upd StageUpdate, editor Editor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.stageLocked(project, code)
	if err != nil {
		return err
	}
	applyUpdate(rec, upd, editor, s.now())
	return nil
}

// AppendPhoto adds a photo reference to a stage record
func (s *Storage) AppendPhoto(project string, code StageCode, ref string, editor Editor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.stageLocked(project, code)
	if err != nil {
		return err
	}
	rec.Photos = appendPhoto(rec.Photos, ref)
	stamp(rec, editor, s.now())
	return nil
}

// Close is a no-op for the in-memory storage
func (s *Storage) Close() error {
	return nil
}

func (s *Storage) indexOf(name string) int {
	for i, p := range s.projects {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// stageLocked returns the live record, creating it when missing. Callers hold s.mu.
func (s *Storage) stageLocked(project string, code StageCode) (*StageRecord, error) {
	if !code.Valid() {
		return nil, fmt.Errorf("stage %q: %w", code, ErrUnknownStage)
	}
	if s.indexOf(project) < 0 {
		return nil, fmt.Errorf("stage %s of %q: %w", code, project, ErrUnknownProject)
	}
	recs, ok := s.stages[project]
	if !ok {
		recs = make(map[StageCode]*StageRecord)
		s.stages[project] = recs
	}
	rec, ok := recs[code]
	if !ok {
		empty := emptyStage(code)
		rec = &empty
		recs[code] = rec
	}
	return rec, nil
}

func copyStage(rec StageRecord) StageRecord {
	out := rec
	if rec.Percent != nil {
		out.Percent = IntPtr(*rec.Percent)
	}
	out.Photos = append([]string(nil), rec.Photos...)
	return out
}
