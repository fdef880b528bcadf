// Package catalog saves slugged entities and keeps their identifier history in
// step with every save.
//
// Service plays the part of the entity framework around the history engine:
// it normalizes titles into candidate names, asks the engine for a free
// sequence before writing the entity, and synchronizes the history inside the
// same transaction after writing it.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/urbanautomaton/friendly-id-ancient-history/internal/history"
	"github.com/urbanautomaton/friendly-id-ancient-history/internal/slug"
)

var (
	// ErrEmptyCandidate is returned when a title normalizes to nothing.
	ErrEmptyCandidate = errors.New("candidate name is empty")

	// ErrReservedWord is returned when a title normalizes to a reserved word.
	ErrReservedWord = errors.New("candidate name is reserved")
)

// DefaultReserved lists candidate names that collide with routes.
var DefaultReserved = []string{"new", "edit"}

// Service creates, renames and destroys entities.
type Service struct {
	backend   Backend
	engine    *history.Engine
	normalize func(string) string
	reserved  map[string]bool
	retries   int
	now       func() time.Time
	saveID    func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithNormalizer replaces slug.Normalize as the title-to-name function.
func WithNormalizer(fn func(string) string) Option {
	return func(s *Service) { s.normalize = fn }
}

// WithReserved replaces DefaultReserved.
func WithReserved(words ...string) Option {
	return func(s *Service) {
		s.reserved = make(map[string]bool, len(words))
		for _, w := range words {
			s.reserved[w] = true
		}
	}
}

// WithRetries re-runs a save up to n more times when it loses an identifier
// race (history.IsUniqueViolation). The default is 0: the error is returned.
func WithRetries(n int) Option {
	return func(s *Service) { s.retries = n }
}

// WithClock sets the clock used for entity timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSaveIDs replaces the UUIDv7 generator used for Result.SaveID.
func WithSaveIDs(gen func() string) Option {
	return func(s *Service) { s.saveID = gen }
}

// NewService returns a Service saving to b and keeping history with e.
func NewService(b Backend, e *history.Engine, opts ...Option) *Service {
	s := &Service{
		backend:   b,
		engine:    e,
		normalize: slug.Normalize,
		now:       time.Now,
		saveID:    newSaveID,
	}
	WithReserved(DefaultReserved...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result describes a completed save.
type Result struct {
	Entity Entity
	Sync   history.SyncResult
	// SaveID correlates log lines of one save.
	SaveID string
}

// Create inserts a new entity with an identifier derived from title.
func (s *Service) Create(ctx context.Context, typ, scope, title string) (Result, error) {
	root, err := s.engine.RootType(typ)
	if err != nil {
		return Result{}, fmt.Errorf("create: %w", err)
	}

	return s.save(ctx, "create", func(tx Tx) (Entity, error) {
		now := s.now().UTC()
		ent := Entity{
			Type:      typ,
			RootType:  root,
			Scope:     scope,
			Title:     title,
			CreatedAt: now,
			UpdatedAt: now,
		}

		id, err := s.candidate(ctx, tx, ent, nil)
		if err != nil {
			return Entity{}, err
		}
		ent.Slug = id

		key, err := tx.InsertEntity(ctx, ent)
		if err != nil {
			return Entity{}, err
		}
		ent.Key = key
		return ent, nil
	})
}

// Rename changes the title of an entity. The identifier is regenerated only
// when the new title yields a different name than the live identifier's.
func (s *Service) Rename(ctx context.Context, key int64, title string) (Result, error) {
	return s.save(ctx, "rename", func(tx Tx) (Entity, error) {
		ent, err := tx.Entity(ctx, key)
		if err != nil {
			return Entity{}, err
		}
		ent.Title = title
		ent.UpdatedAt = s.now().UTC()

		if s.shouldRegenerate(ent) {
			id, err := s.candidate(ctx, tx, ent, &ent.Key)
			if err != nil {
				return Entity{}, err
			}
			ent.Slug = id
		}

		if err := tx.UpdateEntity(ctx, ent); err != nil {
			return Entity{}, err
		}
		return ent, nil
	})
}

// Regenerate clears the identifier of an entity and derives it again from the
// stored title.
func (s *Service) Regenerate(ctx context.Context, key int64) (Result, error) {
	return s.save(ctx, "regenerate", func(tx Tx) (Entity, error) {
		ent, err := tx.Entity(ctx, key)
		if err != nil {
			return Entity{}, err
		}
		ent.Slug = ""
		ent.UpdatedAt = s.now().UTC()

		id, err := s.candidate(ctx, tx, ent, &ent.Key)
		if err != nil {
			return Entity{}, err
		}
		ent.Slug = id

		if err := tx.UpdateEntity(ctx, ent); err != nil {
			return Entity{}, err
		}
		return ent, nil
	})
}

// Destroy deletes an entity and all of its history records.
func (s *Service) Destroy(ctx context.Context, key int64) error {
	err := s.backend.InTx(ctx, func(tx Tx) error {
		ent, err := tx.Entity(ctx, key)
		if err != nil {
			return err
		}
		n, err := s.engine.Forget(ctx, tx, ent.Type, key)
		if err != nil {
			return err
		}
		if err := tx.DeleteEntity(ctx, key); err != nil {
			return err
		}
		slog.Info("entity destroyed", "key", key, "type", ent.Type, "history_records", n)
		return nil
	})
	if err != nil {
		return fmt.Errorf("destroy: %w", err)
	}
	return nil
}

// Find resolves id (raw key, current or past identifier) to an entity.
func (s *Service) Find(ctx context.Context, typ, scope, id string) (Entity, error) {
	key, err := s.engine.FindOwner(ctx, s.backend, history.LookupRequest{Type: typ, Scope: scope, ID: id})
	if err != nil {
		return Entity{}, err
	}
	return s.backend.Entity(ctx, key)
}

// Exists reports whether Find would succeed.
func (s *Service) Exists(ctx context.Context, typ, scope, id string) (bool, error) {
	return s.engine.OwnerExists(ctx, s.backend, history.LookupRequest{Type: typ, Scope: scope, ID: id})
}

// History returns the entity's history records, oldest first.
func (s *Service) History(ctx context.Context, key int64) ([]history.Record, error) {
	ent, err := s.backend.Entity(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.engine.History(ctx, s.backend, ent.Type, key)
}

// save runs write in a transaction followed by history synchronization,
// retrying on lost identifier races when configured.
func (s *Service) save(ctx context.Context, op string, write func(Tx) (Entity, error)) (Result, error) {
	saveID := s.saveID()

	var res Result
	var err error
	for attempt := 0; ; attempt++ {
		err = s.backend.InTx(ctx, func(tx Tx) error {
			ent, err := write(tx)
			if err != nil {
				return err
			}
			sync, err := s.engine.Synchronize(ctx, tx, history.Owner{
				Key:   ent.Key,
				Type:  ent.Type,
				Slug:  ent.Slug,
				Scope: ent.Scope,
			})
			if err != nil {
				return err
			}
			res = Result{Entity: ent, Sync: sync, SaveID: saveID}
			return nil
		})
		if err == nil || !history.IsUniqueViolation(err) || attempt >= s.retries {
			break
		}
		slog.Warn("identifier race lost, retrying save",
			"save_id", saveID,
			"op", op,
			"attempt", attempt+1,
			"error", err,
		)
	}
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	slog.Debug("entity saved",
		"save_id", saveID,
		"op", op,
		"key", res.Entity.Key,
		"slug", res.Entity.Slug,
		"history", string(res.Sync.Outcome),
	)
	return res, nil
}

func (s *Service) candidate(ctx context.Context, tx Tx, ent Entity, exclude *int64) (string, error) {
	name := s.normalize(ent.Title)
	if name == "" {
		return "", ErrEmptyCandidate
	}
	if s.reserved[name] {
		return "", fmt.Errorf("%w: %q", ErrReservedWord, name)
	}
	return s.engine.Candidate(ctx, tx, history.SequenceRequest{
		Name:         name,
		OwnerType:    ent.Type,
		Scope:        ent.Scope,
		ExcludeOwner: exclude,
	})
}

func (s *Service) shouldRegenerate(ent Entity) bool {
	if ent.Slug == "" {
		return true
	}
	current, _ := s.engine.Parse(ent.Slug)
	return current != s.normalize(ent.Title)
}

func newSaveID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
