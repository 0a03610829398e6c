//go:build integration

package outbox

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
)

type recordingWriter struct {
	failures int
	written  []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, _ string, msgs ...kafka.Message) error {
	if w.failures > 0 {
		w.failures--
		return errors.New("broker unavailable")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func TestDispatcherDrainsOutbox(t *testing.T) {
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("lwc"),
		postgrescontainer.WithUsername("lwc"),
		postgrescontainer.WithPassword("lwc"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := waitForPool(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	applySchema(t, ctx, pool)

	for i := 0; i < 3; i++ {
		_, err := pool.Exec(ctx,
			`INSERT INTO outbox (event_type, partition_key, payload) VALUES ('badge.awarded', 'ath-1', '{"n":1}')`)
		require.NoError(t, err)
	}

	writer := &recordingWriter{failures: 1}
	d := NewDispatcher(pool, writer, "activity_events", time.Hour, 10)
	d.logger = log.New(testWriter{t}, "", 0)

	// First batch fails at the broker; rows stay unpublished.
	require.Error(t, d.processBatch(ctx))
	var unpublished int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&unpublished))
	require.Equal(t, 3, unpublished)

	// Retry succeeds and marks every row published.
	require.NoError(t, d.processBatch(ctx))
	require.Len(t, writer.written, 3)
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&unpublished))
	require.Zero(t, unpublished)

	// A drained outbox is a no-op.
	require.NoError(t, d.processBatch(ctx))
	require.Len(t, writer.written, 3)
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func applySchema(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	path := filepath.Join(filepath.Dir(file), "../../db/migrations/001_init.sql")
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(contents))
	require.NoError(t, err)
}

func waitForPool(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(time.Second)
	}
}
