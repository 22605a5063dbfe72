// Package harness runs recorded-step scenarios against the runtime.
//
// A scenario is a flow of actor steps whose external responses are fixtures,
// followed by assertions about what the ledger, the blob store and the
// replay verifier make of the result.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: search_then_verify
//	description: "One search step, verified offline"
//	correlation_key: corr-fixed
//	kinds:
//	  feed:
//	    items_path: [data, entries]
//	    id_fields: [guid]
//	flow:
//	  - name: first
//	    actor: search:brave
//	    kind: search
//	    params: { query: "golang generics" }
//	    response:
//	      status: 200
//	      headers: { Content-Type: application/json }
//	      body: '{"web":{"results":[{"url":"https://go.dev"}]}}'
//	  - name: second
//	    actor: search:brave
//	    kind: search
//	    parents: [first]
//	    fail_first: 2
//	    response: { status: 200, body: "{}" }
//	assertions:
//	  - type: replay
//	    step: first
//	    state: verified
//	  - type: replay
//	    step: first
//	    tamper: append
//	    state: diverged
//	    reason: hash_mismatch
//
// Every step names its actor, request kind and fixture response. Parents
// refer to earlier steps by name. fail_first makes the fixture fail that
// many times before answering, and expect names the outcome the step must
// reach (recorded by default).
//
// # Assertion Types
//
//   - replay: verifies a step's capsule in mode (dry by default), optionally
//     after tampering with its blob (flip, append or delete), and checks the
//     resulting state and reason
//   - capsule_count: the number of capsules the ledger holds for actor
//   - clock_order: the listed steps carry strictly increasing clocks
//   - pending_count: the number of capsules with uncommitted effects
//   - evidence_count: the number of evidence rows in the sink
//
// # Determinism
//
// Steps run sequentially with a fixed correlation key and a fake wall clock,
// so the same scenario always seals the same capsules. Run records into a
// fresh in-memory target; Execute records into any Target, which is how
// the CLI writes scenarios into a durable ledger for later replay.
//
// Traces compare against golden files in testdata/golden. To regenerate:
//
//	go test ./internal/harness -update
package harness
