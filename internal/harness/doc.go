// Package harness runs persistence scenarios against a fresh database.
//
// A scenario declares classes, performs record operations and asserts on
// the writes each operation issued and on what ends up stored.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	classes:
//	  - name: Post
//	    db: { Title: Varchar }
//	    has_one: { Author: Author }
//	  - name: Author
//	    db: { Name: Varchar }
//	    has_many: { Posts: Post }
//	steps:
//	  - op: create
//	    ref: author
//	    class: Author
//	    values: { Name: Ann }
//	    persist: true
//	  - op: create
//	    ref: post
//	    class: Post
//	  - op: add
//	    ref: author
//	    relation: Posts
//	    target: post
//	assertions:
//	  - type: writes
//	    step: 2
//	    writes: [insert Post, update Post]
//	  - type: components
//	    ref: author
//	    relation: Posts
//	    count: 1
//
// # Steps
//
//   - create: binds ref to a new record of class, assigning values
//   - set: assigns values on an existing ref
//   - persist: writes the ref (force writes even without changes)
//   - delete: deletes the ref
//   - add, remove: link or unlink target through relation on ref
//   - reload: replaces ref with a fresh copy read from storage
//
// create and set write straight away with persist: true. A step with
// expect_error must fail with an error containing that text.
//
// # Assertion Types
//
//   - writes: the exact "command Table" writes issued by one step
//   - count: the number of stored records of a class, optionally filtered
//   - field: one field of a ref as read back from storage
//   - components: the number of stored components of a relation
//   - final_state: one raw table row, subset matched
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory SQLite database, a clock that advances
// one second per reading (testutil.DeterministicClock) and a fixed scope
// identifier, so identities, timestamps and traces are identical across
// runs and can be compared against golden files.
package harness
