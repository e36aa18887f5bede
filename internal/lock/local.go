package lock

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// Unlock releases a held lock. It is safe to call once.
type Unlock func()

// Local is an in-process keyed mutex. Entries are dropped once no goroutine
// holds or waits for them.
type Local struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*entry
}

type entry struct {
	held chan struct{}
	refs int
}

// NewLocal creates an in-process locker
func NewLocal() *Local {
	return &Local{locks: make(map[uuid.UUID]*entry)}
}

// Lock blocks until the area's lock is held or ctx is done
func (l *Local) Lock(ctx context.Context, areaID uuid.UUID) (Unlock, error) {
	l.mu.Lock()
	e, ok := l.locks[areaID]
	if !ok {
		e = &entry{held: make(chan struct{}, 1)}
		l.locks[areaID] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.held <- struct{}{}:
	case <-ctx.Done():
		l.release(areaID, e)
		return nil, goerr.Wrap(ctx.Err(), "lock wait cancelled", goerr.V("area_id", areaID))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.held
			l.release(areaID, e)
		})
	}, nil
}

func (l *Local) release(areaID uuid.UUID, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, areaID)
	}
}

// size reports the number of live entries
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
