package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pairsurvey/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPersister struct {
	mu        sync.Mutex
	snapshots [][]models.ResponseRecord
	err       error
}

func (p *recordingPersister) Save(_ context.Context, records []models.ResponseRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, records)
	return p.err
}

func rec(participant string, pair, rating int) models.ResponseRecord {
	return models.ResponseRecord{
		PairID:          pair,
		Rating:          rating,
		ParticipantInfo: models.ParticipantInfo{ParticipantID: participant},
	}
}

func TestUpsertReplacesInsteadOfAccumulating(t *testing.T) {
	p := &recordingPersister{}
	s := New(nil, p)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, rec("a", 1, 3)))
	require.NoError(t, s.Upsert(ctx, rec("a", 2, 5)))
	require.NoError(t, s.Upsert(ctx, rec("a", 1, 6)))
	require.NoError(t, s.Upsert(ctx, rec("a", 1, 7)))

	assert.Equal(t, 2, s.Len())
	got, ok := s.Get("a", 1)
	require.True(t, ok)
	assert.Equal(t, 7, got.Rating)

	// Every mutation persists the full table.
	require.Len(t, p.snapshots, 4)
	last := p.snapshots[3]
	require.Len(t, last, 2)
	// Replaced record moves to the end, like filter-then-append.
	assert.Equal(t, 2, last[0].PairID)
	assert.Equal(t, 1, last[1].PairID)
}

func TestParticipantsAreIsolated(t *testing.T) {
	s := New(nil, nil)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, rec("a", 1, 3)))
	require.NoError(t, s.Upsert(ctx, rec("b", 1, 4)))
	require.NoError(t, s.Upsert(ctx, rec("b", 3, 4)))

	assert.True(t, s.Has("a", 1))
	assert.False(t, s.Has("a", 3))
	assert.Len(t, s.ForParticipant("b"), 2)
	assert.Equal(t, []string{"a", "b"}, s.Participants())
}

func TestForParticipantIsCanonicallyOrdered(t *testing.T) {
	s := New([]models.ResponseRecord{rec("a", 9, 1), rec("a", 2, 1), rec("a", 5, 1)}, nil)
	var ids []int
	for _, r := range s.ForParticipant("a") {
		ids = append(ids, r.PairID)
	}
	assert.Equal(t, []int{2, 5, 9}, ids)
}

func TestSeedLaterRowsWin(t *testing.T) {
	s := New([]models.ResponseRecord{rec("a", 1, 2), rec("a", 1, 6)}, nil)
	assert.Equal(t, 1, s.Len())
	got, _ := s.Get("a", 1)
	assert.Equal(t, 6, got.Rating)

	latest, ok := s.Latest("a")
	require.True(t, ok)
	assert.Equal(t, 6, latest.Rating)
	_, ok = s.Latest("nobody")
	assert.False(t, ok)
}

func TestUpsertKeepsRecordWhenPersistFails(t *testing.T) {
	p := &recordingPersister{err: errors.New("disk full")}
	s := New(nil, p)
	err := s.Upsert(context.Background(), rec("a", 1, 3))
	assert.Error(t, err)
	assert.True(t, s.Has("a", 1))
}

func TestConcurrentUpserts(t *testing.T) {
	p := &recordingPersister{}
	s := New(nil, p)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = s.Upsert(ctx, rec(string(rune('a'+w)), i%10, 1+i%7))
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 80, s.Len())
	// The final snapshot contains every participant's writes.
	assert.Len(t, p.snapshots[len(p.snapshots)-1], 80)
}

// gatedPersister blocks its first Save until release is closed.
type gatedPersister struct {
	recordingPersister
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *gatedPersister) Save(ctx context.Context, records []models.ResponseRecord) error {
	first := false
	p.once.Do(func() { first = true })
	if first {
		close(p.entered)
		<-p.release
	}
	return p.recordingPersister.Save(ctx, records)
}

func TestSlowPersistDoesNotBlockReaders(t *testing.T) {
	p := &gatedPersister{entered: make(chan struct{}), release: make(chan struct{})}
	s := New([]models.ResponseRecord{rec("bob", 1, 4)}, p)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- s.Upsert(ctx, rec("alice", 1, 5)) }()
	<-p.entered

	read := make(chan bool, 1)
	go func() { read <- s.Has("bob", 1) && s.Has("alice", 1) && s.Len() == 2 }()
	select {
	case ok := <-read:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("reader waited on an in-flight save")
	}

	// Later writes queue behind the save; only snapshots newer than the last
	// saved one reach the persister.
	var wg sync.WaitGroup
	for _, id := range []string{"carol", "dave"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, s.Upsert(ctx, rec(id, 1, 3)))
		}(id)
	}
	assert.Eventually(t, func() bool { return s.Len() == 4 }, time.Second, time.Millisecond)

	close(p.release)
	require.NoError(t, <-done)
	wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.snapshots)
	for i := 1; i < len(p.snapshots); i++ {
		assert.Greater(t, len(p.snapshots[i]), len(p.snapshots[i-1]))
	}
	assert.Len(t, p.snapshots[len(p.snapshots)-1], 4)
}
