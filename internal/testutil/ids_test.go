package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDSequence_StartsAtStart(t *testing.T) {
	seq := NewIDSequence(123)

	assert.Equal(t, int64(122), seq.Current())
	assert.Equal(t, int64(123), seq.Next())
	assert.Equal(t, int64(124), seq.Next())
	assert.Equal(t, int64(124), seq.Current())
}

func TestIDSequence_Reset(t *testing.T) {
	seq := NewIDSequence(1)
	seq.Next()
	seq.Next()

	seq.Reset(10)
	assert.Equal(t, int64(10), seq.Next())
}

func TestIDSequence_Concurrent(t *testing.T) {
	seq := NewIDSequence(1)

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int64]bool)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := seq.Next()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// No id handed out twice
	assert.Len(t, seen, 1000)
	assert.Equal(t, int64(1000), seq.Current())
}
