package triage

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var caseColumns = []string{"id", "user_id", "turns", "symptom_frame", "triage", "action", "summary", "status", "version", "created_at", "updated_at"}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM cases WHERE id = \\$1").
		WithArgs("case-1").
		WillReturnRows(sqlmock.NewRows(caseColumns).AddRow(
			"case-1", "user-1",
			[]byte(`[{"user_message":"chest pain","system_response":"call 911","stage":"DONE"}]`),
			[]byte(`{"chief_complaint":"chest pain","duration":null,"severity_self":null,"age_band":null,"associated_symptoms":["sweating"]}`),
			[]byte(`{"severity_level":"RED","rationale":"r","recommended_action":"emergency","red_flags_triggered":["cardiac_chest_pain"]}`),
			[]byte(`{"type":"emergency","urgency":"immediate","instructions":["call"],"resources":[]}`),
			[]byte(`{"patient_summary":"p","clinician_summary":"c"}`),
			"COMPLETE", int64(3), now, now,
		))

	c, err := NewPostgresRepository(db).Get(context.Background(), "case-1")
	require.NoError(t, err)

	assert.Equal(t, "user-1", c.UserID)
	assert.Equal(t, StatusComplete, c.Status)
	assert.Equal(t, int64(3), c.Version)
	require.Len(t, c.Turns, 1)
	assert.Equal(t, "chest pain", *c.SymptomFrame.ChiefComplaint)
	require.NotNil(t, c.Triage)
	assert.Equal(t, SeverityRed, c.Triage.SeverityLevel)
	assert.Equal(t, ActionEmergency, c.Action.Type)
	assert.Equal(t, "c", c.Summary.ClinicianSummary)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_GetAwaitingInputHasNullSnapshots(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM cases").
		WithArgs("case-2").
		WillReturnRows(sqlmock.NewRows(caseColumns).AddRow(
			"case-2", "", []byte(`[]`), []byte(`{"associated_symptoms":[]}`),
			[]byte(`null`), nil, []byte(`null`), "AWAITING_INPUT", int64(1), now, now,
		))

	c, err := NewPostgresRepository(db).Get(context.Background(), "case-2")
	require.NoError(t, err)
	assert.Nil(t, c.Triage)
	assert.Nil(t, c.Action)
	assert.Nil(t, c.Summary)
	assert.Equal(t, StatusAwaitingInput, c.Status)
}

func TestPostgresRepo_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM cases").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(caseColumns))

	_, err = NewPostgresRepository(db).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCaseNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := NewCase("case-1", "user-1", time.Now().UTC())
	c.SymptomFrame = SymptomFrame{AssociatedSymptoms: []string{"cough"}}

	mock.ExpectExec("INSERT INTO cases (.+) ON CONFLICT \\(id\\) DO UPDATE SET (.+) WHERE cases.version = \\$9").
		WithArgs("case-1", "user-1", sqlmock.AnyArg(), sqlmock.AnyArg(), []byte("null"), []byte("null"), []byte("null"),
			StatusAwaitingInput, int64(0), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgresRepository(db).Save(context.Background(), c))
	assert.Equal(t, int64(1), c.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_SaveBackfillsUserID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := NewCase("case-1", "user-9", time.Now().UTC())
	c.Version = 1

	mock.ExpectExec("DO UPDATE SET user_id = CASE WHEN cases.user_id = '' THEN EXCLUDED.user_id ELSE cases.user_id END, turns = EXCLUDED.turns").
		WithArgs("case-1", "user-9", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			StatusAwaitingInput, int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgresRepository(db).Save(context.Background(), c))
	assert.Equal(t, int64(2), c.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_SaveStale(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := NewCase("case-1", "", time.Now().UTC())
	c.Version = 2

	mock.ExpectExec("INSERT INTO cases").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewPostgresRepository(db).Save(context.Background(), c)
	assert.ErrorIs(t, err, ErrStaleCase)
	assert.Equal(t, int64(2), c.Version)
}

func TestPostgresRepo_SaveError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO cases").WillReturnError(driver.ErrBadConn)

	err = NewPostgresRepository(db).Save(context.Background(), NewCase("case-1", "", time.Now()))
	assert.True(t, errors.Is(err, driver.ErrBadConn))
}

func TestMemoryRepo_RoundTripAndVersioning(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.Get(ctx, "c1")
	require.ErrorIs(t, err, ErrCaseNotFound)

	c := NewCase("c1", "", time.Now())
	require.NoError(t, repo.Save(ctx, c))
	assert.Equal(t, int64(1), c.Version)

	a, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	b, err := repo.Get(ctx, "c1")
	require.NoError(t, err)

	a.Turns = append(a.Turns, Turn{UserMessage: "first"})
	require.NoError(t, repo.Save(ctx, a))

	b.Turns = append(b.Turns, Turn{UserMessage: "second"})
	assert.ErrorIs(t, repo.Save(ctx, b), ErrStaleCase)

	stored, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, stored.Turns, 1)
	assert.Equal(t, "first", stored.Turns[0].UserMessage)

	stored.Turns[0].UserMessage = "mutated"
	again, _ := repo.Get(ctx, "c1")
	assert.Equal(t, "first", again.Turns[0].UserMessage)
}
