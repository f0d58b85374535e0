package connset

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-linesrv/connid"
)

func TestNewSet(t *testing.T) {
	s := NewSet[string]()
	require.NotNil(t, s)
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Contains(1))
	assert.Empty(t, s.Snapshot())
}

func TestSet_Add_Get(t *testing.T) {
	s := NewSet[string]()

	t.Run("add then get", func(t *testing.T) {
		s.Add(1, "a")
		v, ok := s.Get(1)
		assert.True(t, ok)
		assert.Equal(t, "a", v)
		assert.True(t, s.Contains(1))
		assert.Equal(t, 1, s.Len())
	})

	t.Run("adding same id replaces value", func(t *testing.T) {
		s.Add(1, "b")
		v, _ := s.Get(1)
		assert.Equal(t, "b", v)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("missing id", func(t *testing.T) {
		_, ok := s.Get(99)
		assert.False(t, ok)
	})
}

func TestSet_Remove(t *testing.T) {
	s := NewSet[string]()
	s.Add(1, "a")
	s.Add(2, "b")

	t.Run("remove returns removed value", func(t *testing.T) {
		v, ok := s.Remove(1)
		assert.True(t, ok)
		assert.Equal(t, "a", v)
		assert.False(t, s.Contains(1))
		assert.Equal(t, 1, s.Len())
	})

	t.Run("remove missing is no-op", func(t *testing.T) {
		_, ok := s.Remove(42)
		assert.False(t, ok)
		assert.Equal(t, 1, s.Len())
	})
}

func TestSet_Snapshot(t *testing.T) {
	t.Run("ordered by id", func(t *testing.T) {
		s := NewSet[string]()
		s.Add(3, "c")
		s.Add(1, "a")
		s.Add(2, "b")
		assert.Equal(t, []string{"a", "b", "c"}, s.Snapshot())
	})

	t.Run("snapshot is detached from later mutation", func(t *testing.T) {
		s := NewSet[int]()
		s.Add(1, 10)
		snap := s.Snapshot()
		s.Add(2, 20)
		s.Remove(1)
		assert.Equal(t, []int{10}, snap)
	})
}

func TestSet_Range(t *testing.T) {
	t.Run("visits all values", func(t *testing.T) {
		s := NewSet[int]()
		for i := 1; i <= 5; i++ {
			s.Add(connid.ID(i), i)
		}
		sum := 0
		s.Range(func(v int) bool {
			sum += v
			return true
		})
		assert.Equal(t, 15, sum)
	})

	t.Run("stops when f returns false", func(t *testing.T) {
		s := NewSet[int]()
		for i := 1; i <= 5; i++ {
			s.Add(connid.ID(i), i)
		}
		count := 0
		s.Range(func(int) bool {
			count++
			return count < 2
		})
		assert.Equal(t, 2, count)
	})

	t.Run("mutating inside range does not deadlock", func(t *testing.T) {
		s := NewSet[int]()
		s.Add(1, 1)
		s.Add(2, 2)
		s.Range(func(v int) bool {
			s.Remove(connid.ID(v))
			s.Add(connid.ID(v+100), v+100)
			return true
		})
		assert.Equal(t, 2, s.Len())
		assert.True(t, s.Contains(101))
		assert.True(t, s.Contains(102))
	})
}

func TestSet_Reset(t *testing.T) {
	s := NewSet[string]()
	s.Add(1, "a")
	s.Add(2, "b")

	removed := s.Reset()
	assert.ElementsMatch(t, []string{"a", "b"}, removed)
	assert.Equal(t, 0, s.Len())
}

func TestSet_concurrent_add_while_iterating(t *testing.T) {
	s := NewSet[int]()
	gen := connid.NewGenerator(0)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s.Add(gen.Next(), i)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Range(func(int) bool { return true })
		}
	}()
	wg.Wait()

	assert.Equal(t, 1000, s.Len())
}
