package lru

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestCache(t *testing.T) {
	c := New[string, int](2)
	c.Add("a", 1)
	c.Add("b", 2)
	v, ok := c.Get("a")
	qt.Assert(t, ok, qt.IsTrue)
	qt.Assert(t, v, qt.Equals, 1)

	// "b" is the least recently used now
	c.Add("c", 3)
	_, ok = c.Get("b")
	qt.Assert(t, ok, qt.IsFalse)
	qt.Assert(t, c.Len(), qt.Equals, 2)

	c.Remove("a")
	_, ok = c.Get("a")
	qt.Assert(t, ok, qt.IsFalse)
}
