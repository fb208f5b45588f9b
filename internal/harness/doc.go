// Package harness runs dirsync conformance scenarios.
//
// A scenario drives a fresh, fully wired instance through host operations
// (create, update, withdraw, reinstate, install, fire, decide, duplicate,
// cancel) and then asserts on the resulting items, relationships and
// workflows. Nothing is stubbed: every step goes through the engine and
// its consumers exactly as a host write would.
//
// # Scenario Format
//
//	name: correction_round_trip
//	description: "A CV edit reaches the Directorio copy after review"
//	steps:
//	  - op: create
//	    ref: pub
//	    type: CvPublication
//	    metadata:
//	      dc.title: [Grafeno]
//	      perucris.sync.directorio: ["true"]
//	  - op: decide
//	    ref: pub
//	    via: [clone]
//	    action: approve
//	assertions:
//	  - type: field
//	    ref: pub
//	    via: [clone, shadow_copy]
//	    field: dc.title
//	    values: [Grafeno]
//
// Items are named with ref when created and reached from a ref through a
// path of named lookups (via). Lookup names are those of relation.ParseLookup.
//
// # Assertion Types
//
//   - exists: the item at ref/via exists (or, with absent: true, does not)
//   - field: a field carries exactly values (absent: true for no values)
//   - state: archived and withdrawn flags
//   - workflow: state of the latest workflow of the item
//   - edges: number of counterparts reached by one lookup
//
// # Deterministic Testing
//
// Item ids are item-0001, item-0002, ...; workflow ids wf-0001, ...;
// session ids session-0001, .... Each run uses its own temporary SQLite
// database. The final state is captured as a Snapshot and serialized with
// canonical JSON for golden comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/creation_approve.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
