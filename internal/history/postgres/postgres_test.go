package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/clawpanel/internal/history"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sink, err := New(connStr)
	require.NoError(t, err)
	defer func() { assert.NoError(t, sink.Close()) }()

	started := time.Now().UTC()
	require.NoError(t, sink.Send(ctx, history.NewEvent(history.EventStart, history.Record{
		Name: "gateway", PID: 12345, Port: 18789, StartedAt: started,
	})))

	stopped := time.Now().UTC()
	require.NoError(t, sink.Send(ctx, history.NewEvent(history.EventStop, history.Record{
		Name: "gateway", PID: 12345, Port: 18789, StartedAt: started, StoppedAt: &stopped,
	})))

	require.NoError(t, sink.Send(ctx, history.NewEvent(history.EventCommand, history.Record{
		Name: "status", Command: "openclaw status", Outcome: "success", DurationMS: 12,
	})))

	var count int
	require.NoError(t, sink.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM panel_history WHERE name = $1", "gateway").Scan(&count))
	assert.Equal(t, 2, count)

	var outcome string
	require.NoError(t, sink.db.QueryRowContext(ctx, "SELECT outcome FROM panel_history WHERE name = $1", "status").Scan(&outcome))
	assert.Equal(t, "success", outcome)
}

func TestPostgresSink_EmptyDSN(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
