package audit

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestNewDBLogger_RequiresDB(t *testing.T) {
	_, err := NewDBLogger(nil)
	assert.Error(t, err)
}

func TestDBLogger_Log(t *testing.T) {
	db, mock := setupMockDB(t)
	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	event := &AuditEvent{
		EventType:    EventTypeDataPersonDelete,
		Status:       EventStatusSuccess,
		UserID:       "user-1",
		TenantID:     "tenant-1",
		ResourceType: ResourceTypePerson,
		ResourceID:   "person-1",
		Message:      "person deleted",
		Metadata:     map[string]interface{}{"email": "a@example.com"},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "data.person_delete", "success",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			`{"email":"a@example.com"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, logger.Log(context.Background(), event))
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_LogError(t *testing.T) {
	db, mock := setupMockDB(t)
	logger, _ := NewDBLogger(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnError(sql.ErrConnDone)

	err := logger.Log(context.Background(), &AuditEvent{EventType: EventTypeAuthzAccessDenied, Status: EventStatusDenied})
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestDBLogger_Search(t *testing.T) {
	db, mock := setupMockDB(t)
	logger, _ := NewDBLogger(db)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	columns := []string{"id", "occurred_at", "event_type", "status", "user_id", "tenant_id",
		"resource_type", "resource_id", "request_id", "ip_address", "message", "error_message", "metadata"}
	rows := sqlmock.NewRows(columns).
		AddRow("e1", ts, "admin.role_assign", "success", "admin-1", "tenant-1",
			"user_role", "role-1", "req-1", nil, "role assigned", nil, `{"role":"Setter"}`)

	denied := EventStatusDenied
	mock.ExpectQuery(regexp.QuoteMeta("WHERE tenant_id = $1 AND event_type IN ($2, $3) AND status = $4")).
		WithArgs("tenant-1", "admin.role_assign", "authz.access_denied", "denied", 10, 0).
		WillReturnRows(rows)

	events, err := logger.Search(context.Background(), SearchFilter{
		TenantID:   "tenant-1",
		EventTypes: []EventType{EventTypeAdminRoleAssign, EventTypeAuthzAccessDenied},
		Status:     &denied,
		Limit:      10,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].ID)
	assert.Equal(t, ResourceTypeUserRole, events[0].ResourceType)
	assert.Equal(t, "", events[0].IPAddress)
	assert.Equal(t, "Setter", events[0].Metadata["role"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_SearchDefaultsLimit(t *testing.T) {
	db, mock := setupMockDB(t)
	logger, _ := NewDBLogger(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs")).
		WithArgs(defaultSearchLimit, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	events, err := logger.Search(context.Background(), SearchFilter{Offset: -5})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NotNil(t, events)
}

func TestDBLogger_Cleanup(t *testing.T) {
	db, mock := setupMockDB(t)
	logger, _ := NewDBLogger(db)

	_, err := logger.Cleanup(context.Background(), RetentionPolicy{})
	assert.Error(t, err)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_logs WHERE occurred_at < $1")).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := logger.Cleanup(context.Background(), RetentionPolicy{RetentionDays: 90})
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
