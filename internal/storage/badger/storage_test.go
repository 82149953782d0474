// -----------------------------------------------------------------------
// Badger storage tests - job records, blobs and key-value entries
// -----------------------------------------------------------------------

package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/veridoc/rescribo/internal/common"
	"github.com/veridoc/rescribo/internal/interfaces"
	"github.com/veridoc/rescribo/internal/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mgr, err := NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func TestJobStorage_SaveAndGet(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	job := models.NewRewriteJob("job_1", "session-1", "source_1")
	require.NoError(t, mgr.JobStorage().SaveJob(ctx, job))

	loaded, err := mgr.JobStorage().GetJob(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, loaded.ID)
	assert.Equal(t, job.SessionID, loaded.SessionID)
	assert.Equal(t, models.JobStatusProcessing, loaded.Status)

	// save is an upsert
	job.MarkFailed(models.ErrorTypeInternal, "abandoned")
	require.NoError(t, mgr.JobStorage().SaveJob(ctx, job))

	loaded, err = mgr.JobStorage().GetJob(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, loaded.Status)
	assert.Equal(t, "abandoned", loaded.Error)
}

func TestJobStorage_GetUnknownJob(t *testing.T) {
	mgr := newTestManager(t)

	_, err := mgr.JobStorage().GetJob(context.Background(), "job_missing")

	assert.ErrorIs(t, err, interfaces.ErrJobNotFound)
}

func TestJobStorage_ListNewestFirst(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	for _, id := range []string{"job_old", "job_mid", "job_new"} {
		job := models.NewRewriteJob(id, "", "source_"+id)
		require.NoError(t, mgr.JobStorage().SaveJob(ctx, job))
		time.Sleep(5 * time.Millisecond)
	}

	jobs, err := mgr.JobStorage().ListJobs(ctx, &interfaces.JobListOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "job_new", jobs[0].ID)
	assert.Equal(t, "job_mid", jobs[1].ID)
	assert.Equal(t, "job_old", jobs[2].ID)

	// pagination
	jobs, err = mgr.JobStorage().ListJobs(ctx, &interfaces.JobListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job_mid", jobs[0].ID)
}

func TestJobStorage_ListFiltersByStatus(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	processing := models.NewRewriteJob("job_p", "", "source_p")
	require.NoError(t, mgr.JobStorage().SaveJob(ctx, processing))

	failed := models.NewRewriteJob("job_f", "", "source_f")
	failed.MarkFailed(models.ErrorTypeInference, "model overloaded")
	require.NoError(t, mgr.JobStorage().SaveJob(ctx, failed))

	jobs, err := mgr.JobStorage().ListJobs(ctx, &interfaces.JobListOptions{
		Limit:  10,
		Status: string(models.JobStatusFailed),
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job_f", jobs[0].ID)
}

func TestJobStorage_Counts(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	for _, status := range []models.JobStatus{
		models.JobStatusProcessing,
		models.JobStatusCompleted,
		models.JobStatusCompleted,
	} {
		job := models.NewRewriteJob(common.NewJobID(), "", "source")
		job.Status = status
		require.NoError(t, mgr.JobStorage().SaveJob(ctx, job))
	}

	total, err := mgr.JobStorage().CountJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	completed, err := mgr.JobStorage().CountJobsByStatus(ctx, models.JobStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, 2, completed)

	failed, err := mgr.JobStorage().CountJobsByStatus(ctx, models.JobStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, 0, failed)
}

func TestJobStorage_GetStaleJobs(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	stale := models.NewRewriteJob("job_stale", "", "source_stale")
	stale.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, mgr.JobStorage().SaveJob(ctx, stale))

	fresh := models.NewRewriteJob("job_fresh", "", "source_fresh")
	require.NoError(t, mgr.JobStorage().SaveJob(ctx, fresh))

	terminal := models.NewRewriteJob("job_done", "", "source_done")
	terminal.MarkCompleted(&models.CompletionResult{ResultRef: "result_done"})
	terminal.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, mgr.JobStorage().SaveJob(ctx, terminal))

	staleJobs, err := mgr.JobStorage().GetStaleJobs(ctx, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, staleJobs, 1)
	assert.Equal(t, "job_stale", staleJobs[0].ID)
}

func TestObjectStorage_RoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.ObjectStorage().Put(ctx, "source_1", []byte("The hearing took place."), "text/plain"))

	data, err := mgr.ObjectStorage().Get(ctx, "source_1")
	require.NoError(t, err)
	assert.Equal(t, "The hearing took place.", string(data))

	require.NoError(t, mgr.ObjectStorage().Delete(ctx, "source_1"))

	_, err = mgr.ObjectStorage().Get(ctx, "source_1")
	assert.ErrorIs(t, err, interfaces.ErrObjectNotFound)
}

func TestObjectStorage_GetUnknownKey(t *testing.T) {
	mgr := newTestManager(t)

	_, err := mgr.ObjectStorage().Get(context.Background(), "source_missing")

	assert.ErrorIs(t, err, interfaces.ErrObjectNotFound)
}

func TestKVStorage_RoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.KeyValueStorage().Set(ctx, "Gemini_API_Key", "test-key", "provider credential"))

	// keys are case-insensitive
	value, err := mgr.KeyValueStorage().Get(ctx, "gemini_api_key")
	require.NoError(t, err)
	assert.Equal(t, "test-key", value)

	all, err := mgr.KeyValueStorage().GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, mgr.KeyValueStorage().Delete(ctx, "gemini_api_key"))

	_, err = mgr.KeyValueStorage().Get(ctx, "gemini_api_key")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
}
