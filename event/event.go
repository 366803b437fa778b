// Package event appends lifecycle transition records to the append-only
// transition_events table. Every state machine writes its transitions here in
// the same transaction as the state change itself.
package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Transition describes a single observed state change on a lifecycle entity.
type Transition struct {
	EntityType string
	EntityID   string
	FromState  string
	ToState    string
	ActorID    *string
	Payload    map[string]any
}

// Append inserts the transition inside the caller's transaction.
func Append(ctx context.Context, tx pgx.Tx, t Transition) error {
	if t.EntityType == "" || t.EntityID == "" {
		return fmt.Errorf("event: entity type and id required")
	}

	payload := t.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("event: marshal payload: %w", err)
	}

	var actor any
	if t.ActorID != nil && *t.ActorID != "" {
		actor = *t.ActorID
	}

	const q = `
INSERT INTO transition_events (entity_type, entity_id, from_state, to_state, actor_id, payload)
VALUES ($1, $2, $3, $4, $5::uuid, $6::jsonb)
`
	if _, err := tx.Exec(ctx, q, t.EntityType, t.EntityID, t.FromState, t.ToState, actor, body); err != nil {
		return fmt.Errorf("event: insert transition: %w", err)
	}
	return nil
}
