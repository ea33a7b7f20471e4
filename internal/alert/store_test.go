package alert

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

var recordColumns = []string{
	"id", "alert_type", "title", "message", "severity", "status", "user_id", "unit", "zone_id",
	"affected_units", "affected_users", "location_lat", "location_lng", "source",
	"created_by", "created_at", "acknowledged_by", "acknowledged_at", "resolved_by", "resolved_at",
}

func recordRow(id int64, status Status) *sqlmock.Rows {
	return sqlmock.NewRows(recordColumns).AddRow(
		id, "medical", "Injury", "Man down", "high", string(status), nil, "alpha", nil,
		"{alpha}", "{3,4}", 34.05, nil, "service",
		int64(2), time.Now(), nil, nil, nil, nil,
	)
}

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestStore_Insert(t *testing.T) {
	store, mock := newTestStore(t)
	created := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO alerts")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), created))

	rec := &Record{Type: "medical", Message: "m", Severity: SeverityLow, Status: StatusActive, Source: SourceService}
	require.NoError(t, store.Insert(context.Background(), rec))
	assert.Equal(t, int64(5), rec.ID)
	assert.Equal(t, created, rec.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Get(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM alerts WHERE id = $1")).
		WithArgs(int64(5)).
		WillReturnRows(recordRow(5, StatusActive))

	rec, err := store.Get(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, "alpha", *rec.Unit)
	assert.Equal(t, []string{"alpha"}, rec.AffectedUnits)
	assert.Equal(t, []int64{3, 4}, rec.AffectedUsers)
	assert.Nil(t, rec.UserID)
	assert.Nil(t, rec.Longitude)
	assert.Equal(t, int64(2), *rec.CreatedBy)
}

func TestStore_GetNotFound(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM alerts WHERE id = $1")).WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_TransitionApplied(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND status = 'active'")).
		WithArgs(int64(5), StatusAcknowledged, int64(9)).
		WillReturnRows(recordRow(5, StatusAcknowledged))

	rec, err := store.Transition(context.Background(), 5, StatusAcknowledged, 9)
	require.NoError(t, err)
	assert.Equal(t, StatusAcknowledged, rec.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_TransitionRejected(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("status IN ('active', 'acknowledged')")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM alerts WHERE id = $1")).
		WillReturnRows(recordRow(5, StatusResolved))

	_, err := store.Transition(context.Background(), 5, StatusResolved, 9)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_TransitionMissingAlert(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND status = 'active'")).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM alerts WHERE id = $1")).WillReturnError(sql.ErrNoRows)

	_, err := store.Transition(context.Background(), 5, StatusAcknowledged, 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_TransitionToActiveRejected(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Transition(context.Background(), 5, StatusActive, 9)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStore_GetZone(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM zones WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "zone_type", "unit"}).AddRow(int64(3), "Depot", "restricted", "alpha"))

	z, err := store.GetZone(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "Depot", z.Name)

	mock.ExpectQuery(regexp.QuoteMeta("FROM zones WHERE id = $1")).WillReturnError(sql.ErrNoRows)
	_, err = store.GetZone(context.Background(), 4)
	assert.ErrorIs(t, err, ErrNotFound)
}
