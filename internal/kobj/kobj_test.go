package kobj

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectionInsertAndGet(t *testing.T) {
	c := New[string]()
	a := c.Insert("buffer-0")
	b := c.Insert("buffer-1")
	require.NotEqual(t, a, b)

	v, ok := c.Get(a)
	require.True(t, ok)
	require.Equal(t, "buffer-0", v)

	_, ok = c.Get(Index(99))
	require.False(t, ok)
	require.Equal(t, 2, c.Len())
}

func TestCollectionConcurrentInsert(t *testing.T) {
	c := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Insert(i)
		}(i)
	}
	wg.Wait()
	require.Equal(t, 50, c.Len())
}
