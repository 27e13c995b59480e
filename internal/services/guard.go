package services

import (
	"sync"

	"github.com/tbourn/mvthread/internal/domain"
)

// Guard allows at most one migration per process. The held state is the
// active migration itself, so status endpoints can report it.
type Guard struct {
	mu     sync.Mutex
	active *domain.ActiveMigration
}

// TryAcquire claims the guard for a without blocking. On success it returns
// a release function that is safe to call more than once.
func (g *Guard) TryAcquire(a domain.ActiveMigration) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active != nil {
		return nil, false
	}
	g.active = &a
	migrationInflight.Set(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.active = nil
			migrationInflight.Set(0)
			g.mu.Unlock()
		})
	}, true
}

// Active returns the migration holding the guard, if any.
func (g *Guard) Active() (domain.ActiveMigration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		return domain.ActiveMigration{}, false
	}
	return *g.active, true
}
