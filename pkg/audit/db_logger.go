package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultSearchLimit = 100
	maxSearchLimit     = 1000
)

// DBLogger writes audit events to the audit_logs table. The table is created
// by the storage migrations.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log logs an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	var metadataJSON sql.NullString
	if len(event.Metadata) > 0 {
		b, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(b), Valid: true}
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Timestamp = event.Timestamp.UTC().Truncate(time.Microsecond)

	query := `
		INSERT INTO audit_logs (
			id, occurred_at, event_type, status,
			user_id, tenant_id,
			resource_type, resource_id,
			request_id, ip_address,
			message, error_message, metadata
		) VALUES (
			$1, $2, $3, $4,
			$5, $6,
			$7, $8,
			$9, $10,
			$11, $12, $13
		)
	`

	_, err := l.db.ExecContext(ctx, query,
		event.ID, event.Timestamp, string(event.EventType), string(event.Status),
		nullable(event.UserID), nullable(event.TenantID),
		nullable(string(event.ResourceType)), nullable(event.ResourceID),
		nullable(event.RequestID), nullable(event.IPAddress),
		nullable(event.Message), nullable(event.ErrorMessage), metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// Search retrieves audit events matching the filter, newest first
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	var conditions []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.StartTime != nil {
		conditions = append(conditions, "occurred_at >= "+arg(filter.StartTime.UTC()))
	}
	if filter.EndTime != nil {
		conditions = append(conditions, "occurred_at <= "+arg(filter.EndTime.UTC()))
	}
	if filter.UserID != "" {
		conditions = append(conditions, "user_id = "+arg(filter.UserID))
	}
	if filter.TenantID != "" {
		conditions = append(conditions, "tenant_id = "+arg(filter.TenantID))
	}
	if len(filter.EventTypes) > 0 {
		placeholders := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			placeholders[i] = arg(string(et))
		}
		conditions = append(conditions, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = "+arg(string(*filter.Status)))
	}
	if filter.ResourceType != "" {
		conditions = append(conditions, "resource_type = "+arg(string(filter.ResourceType)))
	}
	if filter.ResourceID != "" {
		conditions = append(conditions, "resource_id = "+arg(filter.ResourceID))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT id, occurred_at, event_type, status,
			user_id, tenant_id, resource_type, resource_id,
			request_id, ip_address, message, error_message, metadata
		FROM audit_logs
		%s
		ORDER BY occurred_at DESC, id
		LIMIT %s OFFSET %s
	`, where, arg(limit), arg(offset))

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	events := make([]*AuditEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit logs: %w", err)
	}

	return events, nil
}

// Cleanup deletes events older than the retention period and returns the
// number removed.
func (l *DBLogger) Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error) {
	if policy.RetentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive")
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -policy.RetentionDays)
	res, err := l.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE occurred_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up audit logs: %w", err)
	}
	return res.RowsAffected()
}

// Close is a no-op; the connection pool is owned by the caller.
func (l *DBLogger) Close() error {
	return nil
}

func scanEvent(rows *sql.Rows) (*AuditEvent, error) {
	var (
		event                                    AuditEvent
		eventType, status                        string
		userID, tenantID, resourceType, resource sql.NullString
		requestID, ip, message, errMsg, metadata sql.NullString
	)

	err := rows.Scan(
		&event.ID, &event.Timestamp, &eventType, &status,
		&userID, &tenantID, &resourceType, &resource,
		&requestID, &ip, &message, &errMsg, &metadata,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}

	event.EventType = EventType(eventType)
	event.Status = EventStatus(status)
	event.UserID = userID.String
	event.TenantID = tenantID.String
	event.ResourceType = ResourceType(resourceType.String)
	event.ResourceID = resource.String
	event.RequestID = requestID.String
	event.IPAddress = ip.String
	event.Message = message.String
	event.ErrorMessage = errMsg.String
	event.Timestamp = event.Timestamp.UTC()

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &event, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
