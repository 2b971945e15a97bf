package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voicetrigger/internal/events"
	"github.com/MrWong99/voicetrigger/internal/events/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if VOICETRIGGER_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("VOICETRIGGER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOICETRIGGER_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestSink drops the decisions table and returns a freshly migrated sink.
func newTestSink(t *testing.T) *postgres.Sink {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS trigger_decisions`); err != nil {
		t.Fatalf("drop: %v", err)
	}
	pool.Close()

	sink, err := postgres.New(ctx, dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(sink.Close)
	return sink
}

func TestNew_BadDSN(t *testing.T) {
	if _, err := postgres.New(context.Background(), "://not a dsn"); err == nil {
		t.Fatal("expected error for malformed dsn")
	}
}

func TestWriteAndRecent(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute).Truncate(time.Millisecond)

	for i, text := range []string{"hello robot", "just noise"} {
		err := sink.Write(ctx, events.Decision{
			Trigger:     "robot",
			Reason:      events.ReasonSilence,
			Outcome:     events.OutcomeForwarded,
			Text:        text,
			Matched:     i == 0,
			RecognizeOK: true,
			Chunks:      12,
			Bytes:       38400,
			Forwarded:   12,
			Latency:     250 * time.Millisecond,
			At:          base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	got, err := sink.Recent(ctx, "robot", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d decisions, want 2", len(got))
	}
	if got[0].Text != "just noise" || got[1].Text != "hello robot" {
		t.Errorf("order = [%q, %q], want newest first", got[0].Text, got[1].Text)
	}
	if got[1].Latency != 250*time.Millisecond || got[1].Reason != events.ReasonSilence {
		t.Errorf("round trip mismatch: %+v", got[1])
	}
}
