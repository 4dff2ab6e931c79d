/*
Package graft is an intent execution runtime: callers submit typed intents,
registered handlers run them with durable state and idempotency guarantees,
and the outputs are tracked as artifacts with an explicit lifecycle.

It separates the orchestration core (dispatch, status, retries) from the
storage adapters (an ephemeral hot tier and a durable SQLite tier) behind a
Hexagonal Architecture, so the runtime can be embedded in any interface:
CLI, HTTP server, or a larger agent infrastructure.

# Key Features

  - Idempotent submission: duplicate intents within the retention window
    return the prior execution instead of running twice.
  - Two-tier state: reads hit the hot tier first and fall back to the
    durable store; durable writes always win.
  - Artifact lifecycle: outputs move Pending -> Ready -> Archived, forward
    only, with lineage and tenant isolation.
  - Boundary contracts: externally produced payloads enter through a
    two-phase ingest/authorize hand-off with an authorization deadline.

# Usage

Initialize the runtime, register handlers, and submit intents.

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/graft"
		"github.com/aretw0/graft/pkg/domain"
		"github.com/aretw0/graft/pkg/intent"
	)

	func main() {
		rt, err := graft.New("graft.db")
		if err != nil {
			log.Fatal(err)
		}
		defer rt.Close()

		rt.RegisterIntent("generate_report", func(ctx context.Context, ec *intent.ExecutionContext) (*domain.HandlerOutput, error) {
			return &domain.HandlerOutput{
				Artifacts: map[string]domain.ArtifactPayload{
					"report": {ArtifactType: "report"},
				},
			}, nil
		})

		result, err := rt.Execute(context.Background(), domain.Intent{
			Type:      "generate_report",
			TenantID:  "acme",
			SessionID: "session-123",
		})
		if err != nil {
			log.Fatal(err)
		}
		log.Println("status:", result.Status)
	}
*/
package graft
