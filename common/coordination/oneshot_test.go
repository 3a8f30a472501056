package coordination

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOneShotFirstWins(t *testing.T) {
	o := NewOneShot[string]()
	assert.True(t, o.Fire("first"))
	assert.False(t, o.Fire("second"))

	value, ok := o.Wait(context.Background(), time.Second)
	assert.True(t, ok)
	assert.Equal(t, "first", value)
}

func TestOneShotConcurrentTriggers(t *testing.T) {
	o := NewOneShot[int]()

	var wg sync.WaitGroup
	fired := make(chan int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if o.Fire(i) {
				fired <- i
			}
		}(i)
	}
	wg.Wait()
	close(fired)

	var winners []int
	for i := range fired {
		winners = append(winners, i)
	}
	assert.Len(t, winners, 1)

	value, ok := o.Wait(context.Background(), time.Second)
	assert.True(t, ok)
	assert.Equal(t, winners[0], value)
}

func TestOneShotTimeout(t *testing.T) {
	o := NewOneShot[int]()

	value, ok := o.Wait(context.Background(), 20*time.Millisecond)
	assert.False(t, ok)
	assert.Equal(t, 0, value)
}

func TestOneShotCancelled(t *testing.T) {
	o := NewOneShot[int]()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := o.Wait(ctx, time.Minute)
	assert.False(t, ok)
}
