package node

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"konduit.dev/node/channel"
)

func TestArena_SerializesSameKeytag(t *testing.T) {
	a := NewArena()
	k := channel.Keytag("same")
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := a.Lock(k)
			defer unlock()
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxInside.Load())
	require.Equal(t, 0, a.Len())
}

func TestArena_DistinctKeytagsProceed(t *testing.T) {
	a := NewArena()
	unlockA := a.Lock(channel.Keytag("a"))
	done := make(chan struct{})
	go func() {
		unlock := a.Lock(channel.Keytag("b"))
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on a different keytag blocked")
	}
	require.Equal(t, 1, a.Len())
	unlockA()
	unlockA()
	require.Equal(t, 0, a.Len())
}
