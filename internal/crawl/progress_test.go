package crawl

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressCounter(t *testing.T) {
	counter := NewProgressCounter()
	assert.Zero(t, counter.Get("tenant-1"))

	counter.Inc("tenant-1")
	counter.Inc("tenant-1")
	counter.Inc("tenant-2")
	assert.Equal(t, int64(2), counter.Get("tenant-1"))
	assert.Equal(t, int64(1), counter.Get("tenant-2"))

	counter.Clear("tenant-1")
	assert.Zero(t, counter.Get("tenant-1"))
	assert.Equal(t, int64(1), counter.Get("tenant-2"))
}

func TestProgressCounterConcurrent(t *testing.T) {
	counter := NewProgressCounter()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				counter.Inc("tenant-1")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(800), counter.Get("tenant-1"))
}
