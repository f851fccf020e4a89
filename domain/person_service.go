package domain

import (
	"context"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// PersonStore defines the persistence methods the service needs.
type PersonStore interface {
	Insert(ctx context.Context, p Person) error
	Get(ctx context.Context, id string) (Person, error)
	List(ctx context.Context) ([]Person, error)
	// Replace overwrites every mutable field of an existing record
	// (last-writer-wins) and returns ErrNotFound for unknown ids.
	Replace(ctx context.Context, p Person) error
}

// ChangeAppender captures one entry per successful mutation.
type ChangeAppender interface {
	Append(ctx context.Context, kind ChangeKind, image Person) (ChangeEntry, error)
}

// PersonService implements the CRUD surface over person records and makes
// sure every successful mutation lands exactly once on the change feed.
type PersonService struct {
	store   PersonStore
	changes ChangeAppender
	logger  *log.Logger
}

func NewPersonService(store PersonStore, changes ChangeAppender, logger *log.Logger) *PersonService {
	return &PersonService{store: store, changes: changes, logger: logger}
}

// Create validates the fields, assigns a fresh id and persists the record.
// Ids are server-generated so an "already exists" conflict is impossible.
func (s *PersonService) Create(ctx context.Context, fields Fields) (string, error) {
	if err := fields.Validate(); err != nil {
		return "", err
	}
	p := fields.apply(uuid.NewString())
	if err := s.store.Insert(ctx, p); err != nil {
		return "", err
	}
	entry, err := s.changes.Append(ctx, ChangeCreated, p)
	if err != nil {
		return "", err
	}
	s.logger.WithFields(log.Fields{
		"person": p.ID,
		"seq":    entry.SequenceToken,
	}).Debug("person created")
	return p.ID, nil
}

// Get returns a single record or ErrNotFound.
func (s *PersonService) Get(ctx context.Context, id string) (Person, error) {
	return s.store.Get(ctx, id)
}

// GetAll returns every record. Full-scan semantics, unordered, unpaginated.
func (s *PersonService) GetAll(ctx context.Context) ([]Person, error) {
	return s.store.List(ctx)
}

// Update replaces all mutable fields of an existing record. Unknown ids are
// ErrNotFound, never an upsert. Concurrent updates to the same id race and
// the later write wins without error.
func (s *PersonService) Update(ctx context.Context, id string, fields Fields) error {
	if err := fields.Validate(); err != nil {
		return err
	}
	p := fields.apply(id)
	if err := s.store.Replace(ctx, p); err != nil {
		return err
	}
	entry, err := s.changes.Append(ctx, ChangeUpdated, p)
	if err != nil {
		return err
	}
	s.logger.WithFields(log.Fields{
		"person": id,
		"seq":    entry.SequenceToken,
	}).Debug("person updated")
	return nil
}
