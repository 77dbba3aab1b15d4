// Package session persists chat sessions grouped by optional project.
//
// Saves are serialized within one Store. Two processes writing the same
// session id race and the last writer wins.
package session

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"rag-memory/internal/domain"
	"rag-memory/internal/logging"
)

// Location addresses where a record lives. An empty Project is the default
// (project-less) location.
type Location struct {
	Project string
}

// Backend stores encoded session records.
type Backend interface {
	Write(ctx context.Context, loc Location, id string, data []byte) error
	// Read returns domain.ErrSessionNotFound when the record is missing.
	Read(ctx context.Context, loc Location, id string) ([]byte, error)
	// Delete ignores missing records.
	Delete(ctx context.Context, loc Location, id string) error
	List(ctx context.Context, loc Location) ([]string, error)
	Projects(ctx context.Context) ([]string, error)
}

// Store implements create/save/load/list/rename on top of a Backend.
type Store struct {
	backend Backend
	mu      sync.Mutex
	now     func() time.Time
	newID   func() string
}

type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateName checks that a project name or session id is usable as a
// single path segment.
func ValidateName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return domain.Invalid(kind+" is empty", kind, name)
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return domain.Invalid(kind+" must be a single path segment", kind, name)
	}
	return nil
}

// Create starts and persists an empty session.
func (s *Store) Create(ctx context.Context, project string) (*domain.ChatSession, error) {
	if project != "" {
		if err := ValidateName("project", project); err != nil {
			return nil, err
		}
	}
	now := s.now()
	sess := &domain.ChatSession{
		ID:          s.newID(),
		Name:        now.Format("Chat_20060102_150405"),
		History:     []domain.Turn{},
		LastUpdated: now,
	}
	sess.SetProjectName(project)
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Save writes the whole record to its project location and stamps
// LastUpdated.
func (s *Store) Save(ctx context.Context, sess *domain.ChatSession) error {
	if err := ValidateName("session id", sess.ID); err != nil {
		return err
	}
	if p := sess.ProjectName(); p != "" {
		if err := ValidateName("project", p); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := sess.LastUpdated
	sess.LastUpdated = s.now()
	data, err := encode(sess)
	if err != nil {
		sess.LastUpdated = prev
		return err
	}
	if err := s.backend.Write(ctx, Location{Project: sess.ProjectName()}, sess.ID, data); err != nil {
		sess.LastUpdated = prev
		return goerr.Wrap(err, "failed to save session", goerr.V("id", sess.ID))
	}
	return nil
}

// Load searches the default location, then every project.
func (s *Store) Load(ctx context.Context, id string) (*domain.ChatSession, error) {
	if err := ValidateName("session id", id); err != nil {
		return nil, err
	}
	locs, err := s.locations(ctx)
	if err != nil {
		return nil, err
	}
	for _, loc := range locs {
		data, err := s.backend.Read(ctx, loc, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read session", goerr.V("id", id), goerr.V("project", loc.Project))
		}
		return decode(data)
	}
	return nil, goerr.Wrap(domain.ErrSessionNotFound, "no session with this id", goerr.V("id", id))
}

// List returns every session, most recently updated first. Unreadable
// records are logged and skipped.
func (s *Store) List(ctx context.Context) ([]*domain.ChatSession, error) {
	locs, err := s.locations(ctx)
	if err != nil {
		return nil, err
	}
	var out []*domain.ChatSession
	for _, loc := range locs {
		ids, err := s.backend.List(ctx, loc)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list sessions", goerr.V("project", loc.Project))
		}
		for _, id := range ids {
			data, err := s.backend.Read(ctx, loc, id)
			if err != nil {
				logging.From(ctx).Warn("skipping unreadable session", "id", id, "project", loc.Project, "error", err)
				continue
			}
			sess, err := decode(data)
			if err != nil {
				logging.From(ctx).Warn("skipping corrupt session", "id", id, "project", loc.Project, "error", err)
				continue
			}
			out = append(out, sess)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].LastUpdated.After(out[j].LastUpdated)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Rename changes the display name and persists.
func (s *Store) Rename(ctx context.Context, sess *domain.ChatSession, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Invalid("session name is empty", "name", name)
	}
	prev := sess.Name
	sess.Name = name
	if err := s.Save(ctx, sess); err != nil {
		sess.Name = prev
		return err
	}
	return nil
}

// SetProject moves the session to another project (or to the default
// location when project is empty) and removes the old copy.
func (s *Store) SetProject(ctx context.Context, sess *domain.ChatSession, project string) error {
	project = strings.TrimSpace(project)
	if project != "" {
		if err := ValidateName("project", project); err != nil {
			return err
		}
	}
	old := sess.ProjectName()
	if old == project {
		return s.Save(ctx, sess)
	}

	sess.SetProjectName(project)
	if err := s.Save(ctx, sess); err != nil {
		sess.SetProjectName(old)
		return err
	}
	if err := s.backend.Delete(ctx, Location{Project: old}, sess.ID); err != nil {
		return goerr.Wrap(err, "failed to remove previous copy", goerr.V("id", sess.ID), goerr.V("project", old))
	}
	return nil
}

// Projects lists known project names, sorted.
func (s *Store) Projects(ctx context.Context) ([]string, error) {
	projects, err := s.backend.Projects(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list projects")
	}
	sort.Strings(projects)
	return projects, nil
}

func (s *Store) locations(ctx context.Context) ([]Location, error) {
	projects, err := s.Projects(ctx)
	if err != nil {
		return nil, err
	}
	locs := make([]Location, 0, len(projects)+1)
	locs = append(locs, Location{})
	for _, p := range projects {
		locs = append(locs, Location{Project: p})
	}
	return locs, nil
}
