package services

import (
	"context"
	"sync/atomic"
)

// NonceFetcher reports the next index the chain expects for the funding
// account, including transactions already sitting in the pool.
type NonceFetcher func(ctx context.Context) (uint64, error)

// NonceSequencer is the single in-process allocation point for the funding
// identity's nonces. Exactly one caller holds the next nonce at a time; the
// counter is seeded from the chain and then advanced locally.
type NonceSequencer struct {
	sem    chan struct{}
	epoch  atomic.Uint64
	next   uint64
	synced bool
	seenAt uint64
}

func NewNonceSequencer() *NonceSequencer {
	return &NonceSequencer{sem: make(chan struct{}, 1)}
}

// WithNext runs use with the next nonce while holding the sequence. The
// counter advances only when use succeeds; any failure forces a resync from
// the chain on the next call since the node's view of the pool is unknown.
func (s *NonceSequencer) WithNext(
	ctx context.Context,
	fetch NonceFetcher,
	use func(nonce uint64) error,
) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.sem }()

	epoch := s.epoch.Load()
	if !s.synced || s.seenAt != epoch {
		next, err := fetch(ctx)
		if err != nil {
			s.synced = false
			return err
		}
		s.next = next
		s.synced = true
		s.seenAt = epoch
	}

	if err := use(s.next); err != nil {
		s.synced = false
		return err
	}
	s.next++
	return nil
}

// Invalidate forces a resync before the next allocation. It never blocks,
// so it is safe to call from connection state callbacks.
func (s *NonceSequencer) Invalidate() {
	s.epoch.Add(1)
}
