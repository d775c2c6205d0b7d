package ids

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeneratorNextIsUniqueAndMonotonic(t *testing.T) {
	g := NewGenerator()

	seen := make(map[Token]bool)
	var last Token
	for i := 0; i < 1000; i++ {
		tok := g.Next()
		assert.False(t, seen[tok], "token %d reused", tok)
		assert.Greater(t, tok, last)
		seen[tok] = true
		last = tok
	}
}

func TestGeneratorConcurrentUse(t *testing.T) {
	g := NewGenerator()

	const workers = 50
	const perWorker = 200

	results := make(chan Token, workers*perWorker)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				results <- g.Next()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[Token]bool, workers*perWorker)
	for tok := range results {
		assert.False(t, seen[tok])
		seen[tok] = true
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestGeneratorObserveAdvances(t *testing.T) {
	g := NewGenerator()
	g.Observe(100)
	assert.Equal(t, Token(101), g.Next())

	// Observing a lower watermark must not move the counter backwards.
	g.Observe(5)
	assert.Equal(t, Token(102), g.Next())
}
