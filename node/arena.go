package node

import (
	"sync"

	"konduit.dev/node/channel"
)

// Arena serializes work per keytag. Slots are created on first use and
// dropped once no caller holds or waits on them.
type Arena struct {
	mu    sync.Mutex
	slots map[string]*arenaSlot
}

type arenaSlot struct {
	mu   sync.Mutex
	refs int
}

func NewArena() *Arena {
	return &Arena{slots: make(map[string]*arenaSlot)}
}

// Lock blocks until the caller owns k and returns the release func.
func (a *Arena) Lock(k channel.Keytag) (unlock func()) {
	key := string(k)
	a.mu.Lock()
	s, ok := a.slots[key]
	if !ok {
		s = &arenaSlot{}
		a.slots[key] = s
	}
	s.refs++
	a.mu.Unlock()

	s.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Unlock()
			a.mu.Lock()
			s.refs--
			if s.refs == 0 {
				delete(a.slots, key)
			}
			a.mu.Unlock()
		})
	}
}

// Len reports the live slots.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.slots)
}
