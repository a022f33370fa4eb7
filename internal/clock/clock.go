// Package clock maintains the signed offset between the local process clock
// and the exchange's server clock. Signed requests carry a timestamp that must
// fall inside the exchange's acceptance window; a skewed local clock makes the
// exchange reject every call until the offset is corrected.
package clock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ServerTimeFunc fetches the exchange's clock in Unix milliseconds.
type ServerTimeFunc func(ctx context.Context) (int64, error)

// Synchronizer owns the clock offset. The offset starts at zero, is replaced
// only by a successful sync, and is never reset on failure: a stale offset
// from an earlier sync is still better than none.
type Synchronizer struct {
	serverTime ServerTimeFunc
	logger     *slog.Logger

	mu     sync.Mutex
	offset time.Duration
	synced bool

	// now is swapped in tests.
	now func() time.Time
}

// New creates a Synchronizer that reads the exchange clock through serverTime.
func New(serverTime ServerTimeFunc, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		serverTime: serverTime,
		logger:     logger,
		now:        time.Now,
	}
}

// Sync performs one round-trip to the exchange clock and stores
// offset = serverTime - localTimeAtRequest. It returns the new offset in
// milliseconds. On failure the previous offset is kept.
func (s *Synchronizer) Sync(ctx context.Context) (int64, error) {
	local := s.now()
	server, err := s.serverTime(ctx)
	if err != nil {
		return s.OffsetMillis(), fmt.Errorf("clock: server time: %w", err)
	}

	offset := time.UnixMilli(server).Sub(local)

	s.mu.Lock()
	s.offset = offset
	s.synced = true
	s.mu.Unlock()

	s.logger.Debug("clock synced", slog.Int64("offset_ms", offset.Milliseconds()))
	return offset.Milliseconds(), nil
}

// SyncLogged is Sync for periodic background use: a failure is logged, not
// propagated, so that a missed sync never blocks trading while a previously
// learned offset is still usable.
func (s *Synchronizer) SyncLogged(ctx context.Context) {
	if _, err := s.Sync(ctx); err != nil {
		s.logger.Warn("clock sync failed, keeping last offset",
			slog.Int64("offset_ms", s.OffsetMillis()),
			slog.String("error", err.Error()),
		)
	}
}

// Now returns the current time adjusted by the learned offset, as Unix
// milliseconds suitable for stamping outbound requests.
func (s *Synchronizer) Now() int64 {
	s.mu.Lock()
	off := s.offset
	s.mu.Unlock()
	return s.now().Add(off).UnixMilli()
}

// OffsetMillis returns the currently held offset.
func (s *Synchronizer) OffsetMillis() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset.Milliseconds()
}

// Synced reports whether at least one sync has succeeded.
func (s *Synchronizer) Synced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synced
}
