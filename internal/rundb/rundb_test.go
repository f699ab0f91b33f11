package rundb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStartAndFinishRunRoundTrips(t *testing.T) {
	db := openTestDB(t)

	run, err := db.StartRun("openssl", "security/openssl")
	require.NoError(t, err)
	require.Equal(t, OutcomeRunning, run.Outcome)
	require.NotEmpty(t, run.ID)

	require.NoError(t, db.Finish(run, OutcomeSucceeded, ""))

	got, err := db.Get(run.ID)
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, got.Outcome)
}

func TestGetMissingRunReturnsErrRunNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Get("does-not-exist")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestLastAttemptTracksMostRecentPerBase(t *testing.T) {
	db := openTestDB(t)

	r1, err := db.StartRun("openssl", "security/openssl")
	require.NoError(t, err)
	require.NoError(t, db.Finish(r1, OutcomeFailed, "build error"))

	r2, err := db.StartRun("openssl", "security/openssl")
	require.NoError(t, err)
	require.NoError(t, db.Finish(r2, OutcomeSucceeded, ""))

	last, ok, err := db.LastAttempt("openssl")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, r2.ID, last.ID)
	require.Equal(t, OutcomeSucceeded, last.Outcome)
}

func TestLastAttemptUnknownBaseReturnsFalse(t *testing.T) {
	db := openTestDB(t)
	_, ok, err := db.LastAttempt("nonexistent")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListAttemptsReturnsOneRunPerBase(t *testing.T) {
	db := openTestDB(t)

	r1, err := db.StartRun("openssl", "security/openssl")
	require.NoError(t, err)
	require.NoError(t, db.Finish(r1, OutcomeSucceeded, ""))

	r2, err := db.StartRun("openssl", "security/openssl")
	require.NoError(t, err)
	require.NoError(t, db.Finish(r2, OutcomeFailed, "build error"))

	r3, err := db.StartRun("zlib", "devel/zlib")
	require.NoError(t, err)
	require.NoError(t, db.Finish(r3, OutcomeSucceeded, ""))

	attempts, err := db.ListAttempts()
	require.NoError(t, err)
	require.Len(t, attempts, 2)

	byBase := map[string]Run{}
	for _, r := range attempts {
		byBase[r.PkgBase] = r
	}
	require.Equal(t, r2.ID, byBase["openssl"].ID)
	require.Equal(t, OutcomeSucceeded, byBase["zlib"].Outcome)
}
