package classroom

import (
	"context"
	"sync"
)

// LocalLocker locks classes within the current process.
type LocalLocker struct {
	mu     sync.Mutex
	locked map[string]struct{}
}

var _ Locker = (*LocalLocker)(nil)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locked: make(map[string]struct{})}
}

func (l *LocalLocker) Lock(_ context.Context, classID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.locked[classID]; ok {
		return nil, ErrGenerationInProgress
	}
	l.locked[classID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.locked, classID)
			l.mu.Unlock()
		})
	}, nil
}
