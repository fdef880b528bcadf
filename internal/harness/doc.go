// Package harness runs scripted slug scenarios against a fresh database and
// compares their traces with golden files.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	config:
//	  separator: "--"
//	  scoped: false
//	  normalizer: slug
//	types:
//	  - name: Content
//	  - name: Article
//	    base: Content
//	flow:
//	  - op: create
//	    ref: a
//	    type: Article
//	    title: Hello
//	    expect: { slug: hello, outcome: created }
//	  - op: rename
//	    ref: a
//	    title: Goodbye
//	  - op: find
//	    id: hello
//	    expect: { ref: a }
//	assertions:
//	  - type: history
//	    ref: a
//	    identifiers: [hello, goodbye]
//
// Ops are create, rename, regenerate, destroy, find and exists. A step that
// fails is traced with its error class (see ErrorClass) and reported unless
// its expect clause names that class.
//
// # Assertion Types
//
//   - history: a ref's identifiers, oldest first
//   - record_count: the number of history records a ref holds
//   - unique_identifiers: no identifier is held twice under one root type
//
// # Determinism
//
// Each run uses an in-memory SQLite database, a ticking clock starting at
// testutil.Epoch and sequential save IDs, so traces are byte-identical across
// runs and golden files can be compared exactly.
package harness
