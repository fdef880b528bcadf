package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/urbanautomaton/friendly-id-ancient-history/internal/catalog"
	"github.com/urbanautomaton/friendly-id-ancient-history/internal/config"
	"github.com/urbanautomaton/friendly-id-ancient-history/internal/history"
	"github.com/urbanautomaton/friendly-id-ancient-history/internal/store"
	"github.com/urbanautomaton/friendly-id-ancient-history/internal/testutil"
)

// Harness executes one scenario against a private database.
type Harness struct {
	store       *store.Store
	engine      *history.Engine
	svc         *catalog.Service
	defaultType string
	logger      *slog.Logger

	refs  map[string]int64
	types map[string]string // ref -> owner type
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. A ticking clock and
// sequential save IDs make repeated runs produce identical traces.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Build the type registry, engine and catalog service
// 3. Execute flow steps, checking expect clauses
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(scenario, st)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := NewResult()

	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	for _, errMsg := range EvaluateAssertions(ctx, h, scenario.Assertions) {
		result.AddError(errMsg)
	}

	for ref, key := range h.refs {
		result.Refs[ref] = key
	}
	return result, nil
}

func newHarness(s *Scenario, st *store.Store) (*Harness, error) {
	decls := make([]history.TypeDecl, 0, len(s.Types))
	for _, d := range s.Types {
		decls = append(decls, history.TypeDecl{Name: d.Name, Base: d.Base})
	}
	defaultType := config.DefaultType
	if len(decls) == 0 {
		decls = append(decls, history.TypeDecl{Name: defaultType})
	} else {
		defaultType = decls[0].Name
	}
	types, err := history.NewTypeRegistry(decls...)
	if err != nil {
		return nil, fmt.Errorf("scenario types: %w", err)
	}

	cfg := history.DefaultConfig()
	if s.Config.Separator != "" {
		cfg.Separator = s.Config.Separator
	}
	cfg.Scoped = s.Config.Scoped

	clock := testutil.NewDeterministicClock()
	engine, err := history.New(cfg, types, history.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("scenario config: %w", err)
	}

	opts := []catalog.Option{
		catalog.WithClock(clock.Now),
		catalog.WithSaveIDs(testutil.NewSequentialIDs("save").Generate),
	}
	if s.Config.Normalizer == "lower" {
		opts = append(opts, catalog.WithNormalizer(lower))
	}
	if s.Config.Reserved != nil {
		opts = append(opts, catalog.WithReserved(s.Config.Reserved...))
	}

	return &Harness{
		store:       st,
		engine:      engine,
		svc:         catalog.NewService(st, engine, opts...),
		defaultType: defaultType,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		refs:        make(map[string]int64),
		types:       make(map[string]string),
	}, nil
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// executeFlow runs all flow steps and validates expect clauses.
//
// Steps that fail are traced with their error class; the flow continues.
// A failure is only reported when the step had no matching expect.error.
// Referring to an undefined ref aborts the run.
func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) error {
	for i, step := range flow {
		ev := TraceEvent{
			Seq:   i + 1,
			Op:    step.Op,
			Ref:   step.Ref,
			Type:  step.Type,
			Scope: step.Scope,
			Title: step.Title,
			ID:    step.ID,
		}
		if ev.Type == "" && (step.Op == OpCreate || step.Op == OpFind || step.Op == OpExists) {
			ev.Type = h.defaultType
		}

		err := h.execute(ctx, step, &ev)
		var refErr *refError
		if errors.As(err, &refErr) {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
		if err != nil {
			ev.Error = ErrorClass(err)
		}
		result.AddTrace(ev)

		for _, msg := range checkExpect(step.Expect, ev) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Op, msg))
		}

		h.logger.Info("flow step completed", "step", i, "op", step.Op, "ref", step.Ref, "error", ev.Error)
	}
	return nil
}

type refError struct {
	ref string
}

func (e *refError) Error() string {
	return fmt.Sprintf("unknown ref %q", e.ref)
}

func (h *Harness) key(ref string) (int64, error) {
	key, ok := h.refs[ref]
	if !ok {
		return 0, &refError{ref: ref}
	}
	return key, nil
}

func (h *Harness) execute(ctx context.Context, step Step, ev *TraceEvent) error {
	var (
		res catalog.Result
		err error
	)

	switch step.Op {
	case OpCreate:
		if _, dup := h.refs[step.Ref]; dup {
			return &refError{ref: step.Ref + " (already defined)"}
		}
		res, err = h.svc.Create(ctx, ev.Type, step.Scope, step.Title)
		if err == nil {
			h.refs[step.Ref] = res.Entity.Key
			h.types[step.Ref] = ev.Type
		}

	case OpRename:
		key, kerr := h.key(step.Ref)
		if kerr != nil {
			return kerr
		}
		res, err = h.svc.Rename(ctx, key, step.Title)

	case OpRegenerate:
		key, kerr := h.key(step.Ref)
		if kerr != nil {
			return kerr
		}
		res, err = h.svc.Regenerate(ctx, key)

	case OpDestroy:
		key, kerr := h.key(step.Ref)
		if kerr != nil {
			return kerr
		}
		return h.svc.Destroy(ctx, key)

	case OpFind:
		ent, err := h.svc.Find(ctx, ev.Type, step.Scope, step.ID)
		if err != nil {
			return err
		}
		ev.Found = h.refFor(ent.Key)
		return nil

	case OpExists:
		ok, err := h.svc.Exists(ctx, ev.Type, step.Scope, step.ID)
		if err != nil {
			return err
		}
		ev.Exists = ok
		return nil
	}

	if err != nil {
		return err
	}
	ev.Slug = res.Entity.Slug
	ev.Outcome = string(res.Sync.Outcome)
	for _, r := range res.Sync.Reclaimed {
		ev.Reclaimed = append(ev.Reclaimed, h.refFor(r.OwnerID))
	}
	return nil
}

// refFor returns the ref of key, or "#key" for entities the scenario did
// not name.
func (h *Harness) refFor(key int64) string {
	refs := make([]string, 0, 1)
	for ref, k := range h.refs {
		if k == key {
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		return fmt.Sprintf("#%d", key)
	}
	sort.Strings(refs)
	return refs[0]
}

func checkExpect(exp *Expect, ev TraceEvent) []string {
	if exp == nil {
		if ev.Error != "" {
			return []string{fmt.Sprintf("unexpected error: %s", ev.Error)}
		}
		return nil
	}

	var errs []string
	if exp.Error != "" || ev.Error != "" {
		if exp.Error != ev.Error {
			errs = append(errs, fmt.Sprintf("error: expected %q, got %q", exp.Error, ev.Error))
		}
		return errs
	}

	if exp.Slug != "" && exp.Slug != ev.Slug {
		errs = append(errs, fmt.Sprintf("slug: expected %q, got %q", exp.Slug, ev.Slug))
	}
	if exp.Outcome != "" && exp.Outcome != ev.Outcome {
		errs = append(errs, fmt.Sprintf("outcome: expected %q, got %q", exp.Outcome, ev.Outcome))
	}
	if exp.Ref != "" && exp.Ref != ev.Found {
		errs = append(errs, fmt.Sprintf("ref: expected %q, got %q", exp.Ref, ev.Found))
	}
	if exp.Exists != nil && *exp.Exists != ev.Exists {
		errs = append(errs, fmt.Sprintf("exists: expected %t, got %t", *exp.Exists, ev.Exists))
	}
	return errs
}

// ErrorClass names the kind of a step error for traces and expect clauses:
// not_found, reserved, empty, invalid_name, unknown_type, unique_violation,
// configuration.
// Other errors are rendered verbatim.
func ErrorClass(err error) string {
	switch {
	case errors.Is(err, catalog.ErrReservedWord):
		return "reserved"
	case errors.Is(err, catalog.ErrEmptyCandidate):
		return "empty"
	case errors.Is(err, history.ErrInvalidName):
		return "invalid_name"
	case history.IsUnknownType(err):
		return "unknown_type"
	case history.IsUniqueViolation(err):
		return "unique_violation"
	case history.IsConfigurationError(err):
		return "configuration"
	case history.IsNotFound(err):
		return "not_found"
	default:
		return err.Error()
	}
}
