package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProviderSaveAndGet(t *testing.T) {
	p := NewMemoryProvider()

	summary := RunSummary{
		ID:              "run-1",
		Status:          "completed",
		StartedAt:       time.Now().Add(-time.Minute),
		FinishedAt:      time.Now(),
		ConnectionsSent: 3,
		Skipped:         2,
	}
	require.NoError(t, p.SaveRun(summary))

	got, err := p.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, summary, got)

	_, err = p.GetRun("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestMemoryProviderListMostRecentFirst(t *testing.T) {
	p := NewMemoryProvider()

	for i := 0; i < 5; i++ {
		require.NoError(t, p.SaveRun(RunSummary{
			ID:     fmt.Sprintf("run-%d", i),
			Status: "completed",
		}))
	}

	all, err := p.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "run-4", all[0].ID)
	assert.Equal(t, "run-0", all[4].ID)

	limited, err := p.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "run-4", limited[0].ID)
	assert.Equal(t, "run-3", limited[1].ID)
}

func TestMemoryProviderOverwriteKeepsOrder(t *testing.T) {
	p := NewMemoryProvider()

	require.NoError(t, p.SaveRun(RunSummary{ID: "a", Status: "error"}))
	require.NoError(t, p.SaveRun(RunSummary{ID: "b", Status: "completed"}))
	require.NoError(t, p.SaveRun(RunSummary{ID: "a", Status: "completed"}))

	all, err := p.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID)
	assert.Equal(t, "completed", all[1].Status)
}
