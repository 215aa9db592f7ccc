package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDriverWakeTriggersImmediateTick(t *testing.T) {
	var mu sync.Mutex
	var calls int

	d := NewDriver(time.Hour, func() []PowerSample {
		mu.Lock()
		calls++
		mu.Unlock()
		return []PowerSample{{NodeName: "node0", Watts: 42}}
	}, nil)
	d.Start()
	defer d.Stop()

	d.Wake()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestDriverWriterReceivesSamples(t *testing.T) {
	got := make(chan []PowerSample, 1)

	d := NewDriver(time.Hour, func() []PowerSample {
		return []PowerSample{{NodeName: "node1", Watts: 7.5}}
	}, func(s []PowerSample) { got <- s })
	d.Start()
	defer d.Stop()

	d.Wake()
	select {
	case s := <-got:
		require.Len(t, s, 1)
		require.Equal(t, "node1", s[0].NodeName)
		require.Equal(t, 7.5, s[0].Watts)
	case <-time.After(time.Second):
		t.Fatal("writer never received samples")
	}
}

func TestDriverSmoothedWattsTracksPushedSamples(t *testing.T) {
	d := NewDriver(time.Hour, func() []PowerSample {
		return []PowerSample{{NodeName: "node0", Watts: 100}}
	}, nil)
	d.Start()
	defer d.Stop()

	_, ok := d.SmoothedWatts("unknown")
	require.False(t, ok)

	for i := 0; i < 3; i++ {
		d.Wake()
		require.Eventually(t, func() bool {
			_, ok := d.SmoothedWatts("node0")
			return ok
		}, time.Second, 5*time.Millisecond)
	}

	watts, ok := d.SmoothedWatts("node0")
	require.True(t, ok, "a node with recorded samples must report an EWMA, even before its warm-up period elapses")
	require.GreaterOrEqual(t, watts, 0.0)
}

func TestDriverStopIsClean(t *testing.T) {
	d := NewDriver(time.Hour, func() []PowerSample { return nil }, nil)
	d.Start()
	d.Stop() // must return promptly, not block for the full period
}
