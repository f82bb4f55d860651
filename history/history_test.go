package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"detectcam/video/process"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRows(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.FixedZone("X", -3600))
	rows := Rows(ts, []process.Detection{
		{ClassID: 4, ClassName: "boat", Confidence: 0.82, Box: process.Box{X1: 10, Y1: 11, X2: 50, Y2: 51}},
		{ClassID: 15, ClassName: "person", Confidence: 0.6},
	})
	assert.Len(t, rows, 2)
	assert.Equal(t, Detection{
		Timestamp:  ts.UTC(),
		ClassID:    4,
		ClassName:  "boat",
		Confidence: 0.82,
		X1:         10, Y1: 11, X2: 50, Y2: 51,
	}, rows[0])
	assert.Equal(t, time.UTC, rows[1].Timestamp.Location())
	assert.Empty(t, Rows(ts, nil))
}

func TestLogNothing(t *testing.T) {
	// No rows means nothing queued.
	s := newStore(0, nil)
	assert.NoError(t, s.LogDetections(time.Now(), nil))
	assert.Empty(t, s.queue)
}

func TestParseLimit(t *testing.T) {
	for in, want := range map[string]int{
		"":      defaultLimit,
		"abc":   defaultLimit,
		"-3":    defaultLimit,
		"25":    25,
		"99999": maxLimit,
	} {
		assert.Equal(t, want, parseLimit(in), "limit %q", in)
	}
}

type fakeDB struct {
	l     sync.Mutex
	rows  []Detection
	fail  bool
	block chan struct{}
}

func (f *fakeDB) insert(rows []Detection) error {
	if f.block != nil {
		<-f.block
	}
	f.l.Lock()
	defer f.l.Unlock()
	if f.fail {
		f.fail = false
		return errors.New("connection reset")
	}
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeDB) stored() []Detection {
	f.l.Lock()
	defer f.l.Unlock()
	return append([]Detection(nil), f.rows...)
}

func TestLogQueuesWhileDatabaseHangs(t *testing.T) {
	db := &fakeDB{block: make(chan struct{})}
	s := newStore(2, db.insert)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	dropped := testutil.ToFloat64(droppedBatches)
	dets := []process.Detection{{ClassName: "person"}}
	require.NoError(t, s.LogDetections(time.Now(), dets))
	// Picked up by the stalled insert.
	require.Eventually(t, func() bool {
		return len(s.queue) == 0
	}, time.Second, time.Millisecond)

	start := time.Now()
	require.NoError(t, s.LogDetections(time.Now(), dets))
	require.NoError(t, s.LogDetections(time.Now(), dets))
	assert.ErrorIs(t, s.LogDetections(time.Now(), dets), ErrQueueFull)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, dropped+1, testutil.ToFloat64(droppedBatches))

	close(db.block)
	require.Eventually(t, func() bool {
		return len(db.stored()) == 3
	}, time.Second, time.Millisecond)
	assert.NoError(t, s.LogDetections(time.Now(), dets))
}

func TestRunSurvivesInsertFailure(t *testing.T) {
	db := &fakeDB{fail: true}
	s := newStore(4, db.insert)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.NoError(t, s.LogDetections(time.Now(), []process.Detection{{ClassName: "lost"}}))
	require.NoError(t, s.LogDetections(time.Now(), []process.Detection{{ClassName: "kept"}}))
	require.Eventually(t, func() bool {
		rows := db.stored()
		return len(rows) == 1 && rows[0].ClassName == "kept"
	}, time.Second, time.Millisecond)
}
