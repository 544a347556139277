package sink_test

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/require"

	"github.com/itchlabs/itch/api/schemas"
	"github.com/itchlabs/itch/internal/sink"
)

func TestPostgres_EmitSucceeded(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ev := sampleEvents()[0]
	mock.ExpectExec("INSERT INTO records").
		WithArgs(ev.Record.ID, ev.Record.TaskID, ev.Record.ExtractedAt, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := sink.NewPostgresWithDB(mock)
	require.NoError(t, s.Emit(context.Background(), ev))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_EmitFailed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ev := schemas.Event{
		TaskID:   "game-002",
		Outcome:  schemas.OutcomeFailed,
		Attempts: 3,
		Err:      &schemas.NavigationTimeout{URL: "https://example.com/g/2", Timeout: 45 * time.Second},
	}
	mock.ExpectExec("INSERT INTO task_failures").
		WithArgs(ev.TaskID, ev.Err.Error(), ev.Attempts).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := sink.NewPostgresWithDB(mock)
	require.NoError(t, s.Emit(context.Background(), ev))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UnknownOutcome(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := sink.NewPostgresWithDB(mock)
	err = s.Emit(context.Background(), schemas.Event{TaskID: "x", Outcome: "limbo"})
	require.ErrorContains(t, err, "unknown event outcome")
}
