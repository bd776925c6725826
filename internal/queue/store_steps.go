package queue

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// UpsertStep inserts or replaces the step log entry for (jobID, event.Step).
func (s *Store) UpsertStep(ctx context.Context, jobID string, event StepEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO pipeline_steps (job_id, step, status, message, detail, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(job_id, step) DO UPDATE SET
             status = excluded.status,
             message = excluded.message,
             detail = excluded.detail,
             updated_at = excluded.updated_at`,
		jobID,
		event.Step,
		event.Status,
		nullableString(event.Message),
		nullableString(event.Detail),
		event.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert step %s: %w", event.Step, err)
	}
	return nil
}

// Steps returns a job's step log in canonical stage order.
func (s *Store) Steps(ctx context.Context, jobID string) ([]StepEvent, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT step, status, message, detail, updated_at FROM pipeline_steps WHERE job_id = ?`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var events []StepEvent
	for rows.Next() {
		var (
			step       string
			status     string
			message    nullable
			detail     nullable
			updatedRaw string
		)
		if err := rows.Scan(&step, &status, &message, &detail, &updatedRaw); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		event := StepEvent{
			Step:    Step(step),
			Status:  StepStatus(status),
			Message: message.value,
			Detail:  detail.value,
		}
		if ts, err := parseTimeString(updatedRaw); err == nil {
			event.Timestamp = ts
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(events, func(i, j int) bool {
		return StepIndex(events[i].Step) < StepIndex(events[j].Step)
	})
	return events, nil
}

// ClearSteps removes a job's step log. Used by regeneration flows that replay
// a stage after completion.
func (s *Store) ClearSteps(ctx context.Context, jobID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pipeline_steps WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("clear steps: %w", err)
	}
	return nil
}

type nullable struct {
	value string
}

func (n *nullable) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		n.value = ""
	case string:
		n.value = v
	case []byte:
		n.value = string(v)
	default:
		n.value = fmt.Sprint(v)
	}
	return nil
}
