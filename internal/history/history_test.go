package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-mixer/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
	"github.com/nerrad567/gray-logic-mixer/migrations"
)

func newRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(database.Config{Path: database.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background(), migrations.Source))
	return NewSQLiteRepository(db.DB)
}

func TestRecordAndQuery(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Record(ctx, []mixer.ParameterChange{
		{DeviceID: "qu", ChannelID: "input_1", Parameter: "fader", Value: 0.5, Source: mixer.SourceAPI, Timestamp: base},
		{DeviceID: "qu", ChannelID: "input_1", Parameter: "mute", Value: true, Source: mixer.SourceHardware, Timestamp: base.Add(time.Second)},
		{DeviceID: "qu", ChannelID: "input_2", Parameter: "name", Value: "Vox", Timestamp: base.Add(2 * time.Second)},
		{DeviceID: "c8", ChannelID: "input_1", Parameter: "fader", Value: 1.0, Timestamp: base.Add(3 * time.Second)},
	}))

	all, err := repo.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "c8", all[0].DeviceID, "newest first")
	assert.Equal(t, mixer.SourceAPI, all[1].Source, "empty source defaults to api")

	entries, err := repo.Query(ctx, Filter{ChannelID: "qu:input_1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "mute", entries[0].Parameter)
	assert.Equal(t, true, entries[0].Value)
	assert.Equal(t, mixer.SourceHardware, entries[0].Source)
	assert.Equal(t, 0.5, entries[1].Value)
	assert.True(t, entries[1].CreatedAt.Equal(base))

	entries, err = repo.Query(ctx, Filter{Parameter: "fader", Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c8", entries[0].DeviceID)

	entries, err = repo.Query(ctx, Filter{Since: base.Add(2 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = repo.Query(ctx, Filter{Limit: -1})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestRecordRejectsIncompleteChange(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	err := repo.Record(ctx, []mixer.ParameterChange{
		{DeviceID: "qu", ChannelID: "input_1", Parameter: "fader", Value: 0.1},
		{ChannelID: "input_2", Parameter: "fader", Value: 0.2},
	})
	require.Error(t, err)

	entries, err := repo.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, entries, "a failed batch records nothing")
}

func TestPrune(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Record(ctx, []mixer.ParameterChange{
		{DeviceID: "qu", ChannelID: "input_1", Parameter: "fader", Value: 0.1, Timestamp: now.Add(-48 * time.Hour)},
		{DeviceID: "qu", ChannelID: "input_1", Parameter: "fader", Value: 0.2, Timestamp: now},
	}))

	n, err := repo.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := repo.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0.2, entries[0].Value)

	_, err = repo.Prune(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestRecorderWritesInBackground(t *testing.T) {
	repo := newRepo(t)
	rec := NewRecorder(repo, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		rec.Run(ctx)
	}()

	rec.ParametersChanged([]mixer.ParameterChange{
		{DeviceID: "qu", ChannelID: "input_1", Parameter: "fader", Value: 0.3},
	})
	rec.StateChanged(nil)

	require.Eventually(t, func() bool {
		entries, err := repo.Query(context.Background(), Filter{})
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Zero(t, rec.Dropped())
}

func TestRecorderFlushesOnStop(t *testing.T) {
	repo := newRepo(t)
	rec := NewRecorder(repo, time.Hour, nil)

	for i := range 3 {
		rec.ParametersChanged([]mixer.ParameterChange{
			{DeviceID: "qu", ChannelID: "input_1", Parameter: "fader", Value: float64(i) / 10},
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Run(ctx)

	entries, err := repo.Query(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
