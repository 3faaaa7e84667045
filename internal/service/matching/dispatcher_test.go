package matching_test

import (
	"context"
	"sync"
	"testing"

	"github.com/krobus00/matching-engine/internal/service/matching"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Dispatcher_PreservesOrderPerInstrument(t *testing.T) {
	d := matching.NewDispatcher(3)
	defer d.Close()

	isins := []string{"AAA", "BBB", "CCC", "DDD"}
	seen := make(map[string][]int)
	var mu sync.Mutex

	var wg sync.WaitGroup
	for _, isin := range isins {
		wg.Add(1)
		go func(isin string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				err := d.Do(context.Background(), isin, func() {
					mu.Lock()
					seen[isin] = append(seen[isin], i)
					mu.Unlock()
				})
				assert.NoError(t, err)
			}
		}(isin)
	}
	wg.Wait()

	for _, isin := range isins {
		require.Len(t, seen[isin], 100)
		for i, v := range seen[isin] {
			require.Equal(t, i, v, "isin %s", isin)
		}
	}
}

func Test_Dispatcher_RecoversPanic(t *testing.T) {
	d := matching.NewDispatcher(1)
	defer d.Close()

	err := d.Do(context.Background(), "AAA", func() {
		panic("decrease beyond quantity")
	})
	require.ErrorIs(t, err, matching.ErrEngineFault)
	require.Contains(t, err.Error(), "decrease beyond quantity")

	ran := false
	err = d.Do(context.Background(), "AAA", func() { ran = true })
	require.NoError(t, err)
	require.True(t, ran)
}

func Test_Dispatcher_Closed(t *testing.T) {
	d := matching.NewDispatcher(2)
	d.Close()
	d.Close()

	err := d.Do(context.Background(), "AAA", func() {})
	require.ErrorIs(t, err, matching.ErrDispatcherClosed)
}

func Test_Dispatcher_CancelledContext(t *testing.T) {
	d := matching.NewDispatcher(1)
	defer d.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = d.Do(context.Background(), "AAA", func() {
			close(started)
			<-release
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Do(ctx, "AAA", func() {})
	require.ErrorIs(t, err, context.Canceled)
	close(release)
}
