package lock

import (
	"context"
	"fmt"
	"sync"
)

type localEntry struct {
	held chan struct{}
	refs int
}

// Local is an in-process Locker. Entries are dropped once nobody holds or waits on them.
type Local struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{entries: make(map[string]*localEntry)}
}

// Lock blocks until key is free or ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()

	entry, ok := l.entries[key]
	if !ok {
		entry = &localEntry{held: make(chan struct{}, 1)}
		l.entries[key] = entry
	}

	entry.refs++
	l.mu.Unlock()

	select {
	case entry.held <- struct{}{}:
	case <-ctx.Done():
		l.release(key, entry)

		return nil, fmt.Errorf("%w %q: %w", ErrLockTimeout, key, ctx.Err())
	}

	var once sync.Once

	return func() error {
		once.Do(func() {
			<-entry.held
			l.release(key, entry)
		})

		return nil
	}, nil
}

func (l *Local) release(key string, entry *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

// size reports the number of live entries; used by tests.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}
