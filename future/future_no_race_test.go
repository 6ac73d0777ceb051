//go:build !race

package future_test

import (
	"context"
	"sync"
	"testing"

	"github.com/casualjim/relay/future"
	"github.com/stretchr/testify/assert"
)

// many goroutines cancelling one future must cancel it exactly once
func TestCancel_FromManyGoroutines(t *testing.T) {
	for round := 0; round < 50; round++ {
		var cancels int
		var m sync.Mutex
		f := future.Do(context.Background(), func(ctx context.Context) (int, error) {
			<-ctx.Done()
			m.Lock()
			cancels++
			m.Unlock()
			return round, ctx.Err()
		})

		gate := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < 200; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-gate
				f.Cancel()
			}()
		}
		close(gate)
		wg.Wait()

		v, err := f.Get()
		assert.Equal(t, round, v)
		assert.Equal(t, context.Canceled, err)
		assert.Equal(t, 1, cancels)
	}
}
