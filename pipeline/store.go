package pipeline

import (
	"context"
	"sync"
)

// Store holds the latest published Snapshot. There is a single writer, the
// Worker, and any number of readers. Readers see complete snapshots in
// publish order but may skip intermediate ones.
type Store struct {
	l       sync.Mutex
	seq     uint64
	snap    *Snapshot
	changed chan struct{}
}

func NewStore() *Store {
	return &Store{
		changed: make(chan struct{}),
	}
}

// Publish replaces the current snapshot and wakes waiting readers. It returns
// the sequence number assigned to the new snapshot.
func (s *Store) Publish(jpeg []byte, meta Metadata) uint64 {
	s.l.Lock()
	defer s.l.Unlock()
	s.seq++
	s.snap = &Snapshot{
		Seq:  s.seq,
		JPEG: jpeg,
		Meta: meta,
	}
	close(s.changed)
	s.changed = make(chan struct{})
	return s.seq
}

// Latest returns the current snapshot, or nil before the first publish.
func (s *Store) Latest() *Snapshot {
	s.l.Lock()
	defer s.l.Unlock()
	return s.snap
}

// Wait blocks until a snapshot newer than after is published, or ctx is done.
func (s *Store) Wait(ctx context.Context, after uint64) (*Snapshot, error) {
	for {
		s.l.Lock()
		snap, changed := s.snap, s.changed
		s.l.Unlock()
		if snap != nil && snap.Seq > after {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-changed:
		}
	}
}

// NextJPEG implements sink.JPEGSource.
func (s *Store) NextJPEG(ctx context.Context, after uint64) ([]byte, uint64, error) {
	snap, err := s.Wait(ctx, after)
	if err != nil {
		return nil, 0, err
	}
	return snap.JPEG, snap.Seq, nil
}
