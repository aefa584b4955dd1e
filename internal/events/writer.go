// Package events appends audit rows for the scheduling lifecycle. Every
// mutation that commits a schedule or touches a conflict writes one event
// inside the same transaction, so the log never disagrees with the tables.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Type names one scheduling lifecycle event.
type Type string

const (
	ProjectInit       Type = "project.init"
	ScheduleGenerated Type = "schedule.generated"
	ScheduleOptimized Type = "schedule.optimized"
	ConflictsDetected Type = "conflicts.detected"
	ConflictResolved  Type = "conflict.resolved"
)

// Writer appends events. Now is injectable for tests.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event row in the caller's transaction. projectID and
// entityID may be empty for workspace-level events and are stored as NULL.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType Type, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, string(evtType), nullable(projectID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
