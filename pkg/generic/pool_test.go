package generic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolResetsOnPut(t *testing.T) {
	p := NewPool(func() *[]int { s := make([]int, 0, 4); return &s }, func(s *[]int) { *s = (*s)[:0] })

	s := p.Get()
	*s = append(*s, 1, 2)
	p.Put(s)
	assert.Empty(t, *s)

	assert.NotNil(t, p.Get())
}
