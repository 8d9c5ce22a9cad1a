// Package gate is the process-wide busy lock shared by every operation that
// talks to the blog API or the generator. It never queues: callers that find
// it held get ErrBusy and decide for themselves whether to retry.
package gate

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned by TryAcquire while another operation holds the gate.
var ErrBusy = errors.New("busy")

// Holder describes the operation currently holding the gate.
type Holder struct {
	Operation string    `json:"operation"`
	Since     time.Time `json:"since"`
}

type Gate struct {
	sem *semaphore.Weighted

	mu     sync.RWMutex
	holder *Holder
	now    func() time.Time
}

func New() *Gate {
	return &Gate{
		sem: semaphore.NewWeighted(1),
		now: time.Now,
	}
}

// TryAcquire claims the gate for operation. The returned release is safe to
// call more than once.
func (g *Gate) TryAcquire(operation string) (func(), error) {
	if !g.sem.TryAcquire(1) {
		holder, _ := g.Holder()
		return nil, fmt.Errorf("%w: %s in progress", ErrBusy, holder.Operation)
	}

	g.mu.Lock()
	g.holder = &Holder{Operation: operation, Since: g.now()}
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.holder = nil
			g.mu.Unlock()
			g.sem.Release(1)
		})
	}, nil
}

// Holder reports the current holder, if any.
func (g *Gate) Holder() (Holder, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.holder == nil {
		return Holder{}, false
	}
	return *g.holder, true
}

func (g *Gate) Busy() bool {
	_, busy := g.Holder()
	return busy
}
