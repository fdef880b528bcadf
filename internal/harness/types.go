package harness

import (
	"fmt"
	"strings"
)

// TraceEvent records one executed step and what it produced.
type TraceEvent struct {
	Seq   int
	Op    string
	Ref   string
	Type  string
	Scope string
	Title string
	ID    string

	// Slug and Outcome are set by create, rename and regenerate.
	Slug    string
	Outcome string

	// Reclaimed lists the refs whose records were reclaimed by the save.
	Reclaimed []string

	// Found is the ref find resolved to.
	Found string

	// Exists is the answer of an exists step.
	Exists bool

	// Error is the error class when the step failed.
	Error string
}

// String renders the event as one trace line.
func (e TraceEvent) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", e.Seq, e.Op)

	switch e.Op {
	case OpCreate:
		fmt.Fprintf(&b, " %s %s %q", e.Ref, e.Type, e.Title)
	case OpRename:
		fmt.Fprintf(&b, " %s %q", e.Ref, e.Title)
	case OpRegenerate, OpDestroy:
		fmt.Fprintf(&b, " %s", e.Ref)
	case OpFind, OpExists:
		fmt.Fprintf(&b, " %s %q", e.Type, e.ID)
	}
	if e.Scope != "" {
		fmt.Fprintf(&b, " scope=%s", e.Scope)
	}

	b.WriteString(" -> ")
	switch {
	case e.Error != "":
		b.WriteString("error: " + e.Error)
	case e.Op == OpDestroy:
		b.WriteString("ok")
	case e.Op == OpFind:
		b.WriteString(e.Found)
	case e.Op == OpExists:
		fmt.Fprintf(&b, "%t", e.Exists)
	default:
		fmt.Fprintf(&b, "%s (%s", e.Slug, e.Outcome)
		if len(e.Reclaimed) > 0 {
			b.WriteString(" from " + strings.Join(e.Reclaimed, ","))
		}
		b.WriteString(")")
	}
	return b.String()
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool

	// Trace contains one event per executed step.
	Trace []TraceEvent

	// Errors contains validation error messages.
	Errors []string

	// Refs maps scenario refs to entity keys.
	Refs map[string]int64
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Refs:   make(map[string]int64),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event.
func (r *Result) AddTrace(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
