package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polybridge/internal/adapters/storage"
	"github.com/alejandrodnm/polybridge/internal/domain"
)

func makeStory(runID string, status domain.AuthStatus, at time.Time) domain.AuthStory {
	return domain.AuthStory{
		RunID:         runID,
		SignerAddress: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		FunderAddress: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		SignatureType: domain.SigTypeSafe,
		UsedEffective: true,
		Status:        status,
		BalanceUSDC:   "125.50",
		CreatedAt:     at,
	}
}

func TestSQLiteJournal_SaveAndRecentStories(t *testing.T) {
	db, err := storage.NewSQLiteJournal(":memory:")
	require.NoError(t, err)
	defer db.Close()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveStory(context.Background(), makeStory("run_1", domain.AuthStatusFailed, base)))
	require.NoError(t, db.SaveStory(context.Background(), makeStory("run_2", domain.AuthStatusOK, base.Add(time.Minute))))

	stories, err := db.RecentStories(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, stories, 2)

	// Más reciente primero
	assert.Equal(t, "run_2", stories[0].RunID)
	assert.Equal(t, domain.AuthStatusOK, stories[0].Status)
	assert.Equal(t, "run_1", stories[1].RunID)

	s := stories[0]
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", s.SignerAddress)
	assert.Equal(t, domain.SigTypeSafe, s.SignatureType)
	assert.True(t, s.UsedEffective)
	assert.Equal(t, "125.50", s.BalanceUSDC)
	assert.WithinDuration(t, base.Add(time.Minute), s.CreatedAt, time.Second)
}

func TestSQLiteJournal_SaveStoryUpsert(t *testing.T) {
	db, err := storage.NewSQLiteJournal(":memory:")
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	story := makeStory("run_x", domain.AuthStatusFailed, at)
	story.ErrorDetails = "all rungs failed"
	story.DiagnosisCause = domain.CauseDeriveFailed
	require.NoError(t, db.SaveStory(context.Background(), story))

	// El mismo run se reescribe al resolverse
	story.Status = domain.AuthStatusOK
	story.ErrorDetails = ""
	story.DiagnosisCause = ""
	story.BalanceUSDC = "42.00"
	require.NoError(t, db.SaveStory(context.Background(), story))

	stories, err := db.RecentStories(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, stories, 1)
	assert.Equal(t, domain.AuthStatusOK, stories[0].Status)
	assert.Equal(t, "42.00", stories[0].BalanceUSDC)
	assert.Empty(t, stories[0].ErrorDetails)
}

func TestSQLiteJournal_RecentStoriesLimit(t *testing.T) {
	db, err := storage.NewSQLiteJournal(":memory:")
	require.NoError(t, err)
	defer db.Close()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s := makeStory(domain.NewRunID(), domain.AuthStatusOK, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, db.SaveStory(context.Background(), s))
	}

	stories, err := db.RecentStories(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, stories, 3)
}

func TestSQLiteJournal_EmptyJournal(t *testing.T) {
	db, err := storage.NewSQLiteJournal(":memory:")
	require.NoError(t, err)
	defer db.Close()

	stories, err := db.RecentStories(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, stories)
}

func TestSQLiteJournal_SavePreflight(t *testing.T) {
	db, err := storage.NewSQLiteJournal(":memory:")
	require.NoError(t, err)
	defer db.Close()

	rec := domain.PreflightRecord{
		Status:     domain.PreflightAuthFail,
		Reason:     domain.ReasonMessageCanonicalization,
		HTTPStatus: 401,
		BackoffMs:  2000,
		CheckedAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	assert.NoError(t, db.SavePreflight(context.Background(), rec))

	// Sin CheckedAt también funciona (usa now)
	assert.NoError(t, db.SavePreflight(context.Background(), domain.PreflightRecord{
		Status: domain.PreflightOK,
	}))
}

func TestSQLiteJournal_StorySurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/journal.db"

	db, err := storage.NewSQLiteJournal(path)
	require.NoError(t, err)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveStory(context.Background(), makeStory("run_p", domain.AuthStatusOK, at)))
	require.NoError(t, db.Close())

	db2, err := storage.NewSQLiteJournal(path)
	require.NoError(t, err)
	defer db2.Close()

	stories, err := db2.RecentStories(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, stories, 1)
	assert.Equal(t, "run_p", stories[0].RunID)
}
