package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brandsignal/harvester/internal/collector"
)

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	run := collector.Run{ID: "run-1", Query: "acme", Status: collector.RunStatusRunning, Submitted: time.Now().UTC()}

	require.NoError(t, s.CreateRun(ctx, run))
	require.Error(t, s.CreateRun(ctx, run), "duplicate run IDs are rejected")

	stats := collector.RunStats{Attempted: 5, Accepted: 3}
	require.NoError(t, s.UpdateRunStatus(ctx, "run-1", collector.RunStatusDone, "", stats))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, collector.RunStatusDone, got.Status)
	require.Equal(t, 3, got.Stats.Accepted)

	err = s.UpdateRunStatus(ctx, "missing", collector.RunStatusDone, "", stats)
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestPagesOrderedByRank(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, collector.Run{ID: "run-1", Submitted: time.Now().UTC()}))

	require.NoError(t, s.RecordPage(ctx, "run-1", collector.Page{URL: "https://b.example/", Rank: 7}))
	require.NoError(t, s.RecordPage(ctx, "run-1", collector.Page{URL: "https://a.example/", Rank: 2}))

	pages, err := s.ListPages(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	require.Equal(t, "https://a.example/", pages[0].URL)

	require.ErrorIs(t, s.RecordPage(ctx, "missing", collector.Page{}), ErrRunNotFound)
	_, err = s.ListPages(ctx, "missing")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()

	require.NoError(t, s.CreateRun(ctx, collector.Run{ID: "old", Submitted: older}))
	require.NoError(t, s.CreateRun(ctx, collector.Run{ID: "new", Submitted: newer}))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "new", runs[0].ID)
}
