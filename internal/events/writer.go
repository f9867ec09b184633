package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Notification types, mirroring the ledger's external event surface.
const (
	ProjectCreated     = "project.created"
	ProjectAccepted    = "project.accepted"
	ProjectFunded      = "project.funded"
	ProjectStarted     = "project.started"
	WorkSubmitted      = "work.submitted"
	ProjectCompleted   = "project.completed"
	DisputeInitiated   = "dispute.initiated"
	DisputeResolved    = "dispute.resolved"
	ReputationUpdated  = "reputation.updated"
	PlatformFeeChanged = "settings.fee_changed"
	TreasuryChanged    = "settings.treasury_changed"
	FeesWithdrawn      = "settings.fees_withdrawn"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside the caller's transaction so the event and
// the state change commit or roll back together.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType string, projectID *int64, entityKind, entityID, caller string, payload EventPayload) error {
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
	var pid any
	if projectID != nil {
		pid = *projectID
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,caller,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, pid, entityKind, nullable(entityID), caller, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
