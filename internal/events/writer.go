package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/malone1029/nia-results-tracker-sub003/internal/db"
)

// Event types written by the hub.
const (
	SnapshotSaved     = "snapshot.saved"
	ADLIScoreRecorded = "adli_score.recorded"
	ProcessCreated    = "process.created"
	ProcessUpdated    = "process.updated"
	CategoryCreated   = "category.created"
	MetricCreated     = "metric.created"
	MetricLinked      = "metric.linked"
	EntryRecorded     = "entry.recorded"
	ImprovementLogged = "improvement.logged"
	ImportCompleted   = "import.completed"
)

type Writer struct {
	Dialect string
	Now     func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	if actorID == "" {
		actorID = "system"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, db.Rebind(w.Dialect, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`),
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
