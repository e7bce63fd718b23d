package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/sunup/pkg/models"
)

// HistoryEntry is a history row joined with the acting user, when that user
// still exists.
type HistoryEntry struct {
	models.PipelineHistory
	ChangedByName  string `json:"changed_by_name,omitempty"`
	ChangedByEmail string `json:"changed_by_email,omitempty"`
}

// AppendHistory inserts one immutable pipeline history row
func (t *Tx) AppendHistory(ctx context.Context, h *models.PipelineHistory) error {
	h.ID = uuid.NewString()
	if h.Timestamp.IsZero() {
		h.Timestamp = now()
	}

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO pipeline_history (id, person_id, from_stage, to_stage, changed_by_user_id, change_reason, changed_at, tenant_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, h.ID, h.PersonID, nullString(h.FromStage), h.ToStage, h.ChangedByUserID, nullString(h.ChangeReason), h.Timestamp, h.TenantID)
	if err != nil {
		return wrapWriteErr("failed to append pipeline history", err)
	}
	return nil
}

// ListHistory returns a person's history in a tenant, newest first
func (t *Tx) ListHistory(ctx context.Context, tenantID, personID string, limit int) ([]HistoryEntry, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT h.id, h.person_id, h.from_stage, h.to_stage, h.changed_by_user_id, h.change_reason,
			h.changed_at, h.tenant_id, u.first_name, u.last_name, u.email
		FROM pipeline_history h
		LEFT JOIN users u ON u.id = h.changed_by_user_id
		WHERE h.tenant_id = $1 AND h.person_id = $2
		ORDER BY h.changed_at DESC, h.id
		LIMIT $3
	`, tenantID, personID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var (
			e                  HistoryEntry
			from, reason       sql.NullString
			first, last, email sql.NullString
		)
		err := rows.Scan(&e.ID, &e.PersonID, &from, &e.ToStage, &e.ChangedByUserID, &reason,
			&e.Timestamp, &e.TenantID, &first, &last, &email)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline history: %w", err)
		}
		e.FromStage = stringPtr(from)
		e.ChangeReason = stringPtr(reason)
		if first.Valid || last.Valid {
			u := models.User{FirstName: first.String, LastName: last.String}
			e.ChangedByName = u.FullName()
		}
		e.ChangedByEmail = email.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountHistory counts the history rows of a person
func (t *Tx) CountHistory(ctx context.Context, personID string) (int, error) {
	var n int
	err := t.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM pipeline_history WHERE person_id = $1`, personID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pipeline history: %w", err)
	}
	return n, nil
}
