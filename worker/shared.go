package worker

import "sync"

// The process-wide pool lives from the first Acquire to the matching last
// Release.
var shared struct {
	mu   sync.Mutex
	pool *Pool
	refs int
}

// Acquire returns the shared pool, starting it on first use.
func Acquire() *Pool {
	shared.mu.Lock()
	defer shared.mu.Unlock()
	if shared.pool == nil {
		shared.pool = NewPool(Options{})
	}
	shared.refs++
	return shared.pool
}

// Release drops one reference to the shared pool and shuts it down when
// the last reference is gone.
func Release() {
	shared.mu.Lock()
	var p *Pool
	if shared.refs > 0 {
		shared.refs--
		if shared.refs == 0 {
			p, shared.pool = shared.pool, nil
		}
	}
	shared.mu.Unlock()
	if p != nil {
		p.Close()
	}
}
