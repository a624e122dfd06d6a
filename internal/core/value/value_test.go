package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNumericConversions(t *testing.T) {
	i, ok := NewUint(7).AsInt()
	assert.True(t, ok)
	assert.Equal(t, int64(7), i)

	_, ok = NewUint(math.MaxUint64).AsInt()
	assert.False(t, ok)

	_, ok = NewInt(-1).AsUint()
	assert.False(t, ok)

	f, ok := NewInt(-3).AsFloat()
	assert.True(t, ok)
	assert.Equal(t, -3.0, f)

	_, ok = NewString("3").AsFloat()
	assert.False(t, ok)
}

func TestEqual(t *testing.T) {
	assert.True(t, NewInt(5).Equal(NewUint(5)))
	assert.False(t, NewInt(-5).Equal(NewUint(5)))
	assert.True(t, NewFloat(math.NaN()).Equal(NewFloat(math.NaN())))
	assert.False(t, NewFloat(1).Equal(NewInt(1)))
	assert.True(t, NewBytes(nil).Equal(NewBytes([]byte{})))

	a := NewMap(Entry{Key: "x", Value: NewFloat(1)}, Entry{Key: "y", Value: NewSeq(NewBool(true))})
	b := NewMap(Entry{Key: "x", Value: NewFloat(1)}, Entry{Key: "y", Value: NewSeq(NewBool(true))})
	c := NewMap(Entry{Key: "y", Value: NewSeq(NewBool(true))}, Entry{Key: "x", Value: NewFloat(1)})
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c), "entry order matters")
}

func TestLookupAndString(t *testing.T) {
	m := NewMap(Entry{Key: "name", Value: NewString("ball")}, Entry{Key: "mass", Value: NewNull()})
	v, ok := m.Lookup("name")
	assert.True(t, ok)
	s, _ := v.AsString()
	assert.Equal(t, "ball", s)
	_, ok = m.Lookup("radius")
	assert.False(t, ok)

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, `{name: "ball", mass: null}`, m.String())
	assert.Equal(t, "bytes(3)", NewBytes([]byte{1, 2, 3}).String())
	assert.Equal(t, "seq", Seq.String())
}
