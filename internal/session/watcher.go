package session

import (
	"context"
	"sync"
	"time"
)

// watcher owns the two recurring background checks that run while
// authenticated: the expiry watch and the health probe. It exists only
// between entering and leaving the authenticated state; every exit path
// goes through clearLocked, which stops it, so a stale timer can never fire
// against a torn-down session.
type watcher struct {
	done chan struct{}
	once sync.Once
}

func (w *watcher) stop() {
	w.once.Do(func() { close(w.done) })
}

// startWatcherLocked replaces any running watcher with a fresh one.
// Callers hold s.mu.
func (s *Store) startWatcherLocked() {
	w := &watcher{done: make(chan struct{})}
	s.watch = w
	go s.expiryLoop(w)
	go s.healthLoop(w)
}

func (s *Store) expiryLoop(w *watcher) {
	ticker := time.NewTicker(s.opts.ExpiryCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			s.checkExpiry()
		}
	}
}

func (s *Store) healthLoop(w *watcher) {
	ticker := time.NewTicker(s.opts.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.HealthCheckInterval)
			s.RefreshHealth(ctx)
			cancel()
		}
	}
}
