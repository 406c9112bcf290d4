package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/clawpanel/internal/history"
)

func TestSQLiteSink_Integration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	sink, err := New("sqlite://" + dbPath)
	require.NoError(t, err)
	defer func() { assert.NoError(t, sink.Close()) }()

	ctx := context.Background()
	started := time.Now().Add(-time.Minute).UTC()

	require.NoError(t, sink.Send(ctx, history.NewEvent(history.EventStart, history.Record{
		Name: "gateway", PID: 4242, Port: 18789, StartedAt: started,
	})))

	stopped := time.Now().UTC()
	require.NoError(t, sink.Send(ctx, history.NewEvent(history.EventStop, history.Record{
		Name: "gateway", PID: 4242, Port: 18789, StartedAt: started, StoppedAt: &stopped,
	})))

	require.NoError(t, sink.Send(ctx, history.NewEvent(history.EventCommand, history.Record{
		Name: "doctor", Command: "openclaw doctor", Outcome: "timeout", ExitCode: -1, DurationMS: 30000,
	})))

	n, err := sink.Count(ctx, "gateway")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = sink.Count(ctx, "doctor")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteSink_Memory(t *testing.T) {
	sink, err := New(":memory:")
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	require.NoError(t, sink.Send(context.Background(), history.NewEvent(history.EventExit, history.Record{Name: "gateway", ExitCode: 2, ExitErr: "exit status 2"})))
	n, err := sink.Count(context.Background(), "gateway")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteSink_DuplicateIDRejected(t *testing.T) {
	sink, err := New(":memory:")
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	e := history.NewEvent(history.EventStart, history.Record{Name: "gateway"})
	require.NoError(t, sink.Send(context.Background(), e))
	assert.Error(t, sink.Send(context.Background(), e))
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}
