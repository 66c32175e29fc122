package sessionstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBeginThenEndSessionRoundTrips(t *testing.T) {
	db := openTestDB(t)
	start := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Minute)

	require.NoError(t, db.BeginSession("sess-1", start, "/data/pack"))
	require.NoError(t, db.EndSession("sess-1", end, 1800, 0.92))

	got, err := db.RecentSessions(10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	want := Session{
		SessionID:   "sess-1",
		StartedAt:   start,
		EndedAt:     &end,
		FixCount:    1800,
		AvgFixRate:  0.92,
		MapPackPath: "/data/pack",
	}
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}
}

func TestRecentSessionsOrdersNewestFirst(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.BeginSession("older", base, "/data/pack"))
	require.NoError(t, db.BeginSession("newer", base.Add(time.Hour), "/data/pack"))

	got, err := db.RecentSessions(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "newer", got[0].SessionID)
	require.Equal(t, "older", got[1].SessionID)
}

func TestRecentSessionsRespectsLimit(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.BeginSession(
			string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute), "/data/pack"))
	}

	got, err := db.RecentSessions(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestEndSessionWithoutStartIsNoop(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.EndSession("missing", time.Now(), 0, 0))

	got, err := db.RecentSessions(10)
	require.NoError(t, err)
	require.Empty(t, got)
}
