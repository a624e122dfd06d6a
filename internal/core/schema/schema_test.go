package schema

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/prefab/internal/core/value"
	"github.com/zeusync/prefab/pkg/encoding"
)

type vec2 struct {
	X float32
	Y float32
}

type body struct {
	Position vec2
	Velocity vec2 `prefab:"vel"`
	Mass     float64
	Static   bool
	Layer    uint8
	Offset   int16
	Name     string
	Tags     []string
	Blob     []byte
	Owner    uuid.UUID
	Scores   map[string]int32
	Slots    map[int]vec2
	Corners  [2]vec2
	Hidden   int `prefab:"-"`
	private  int
}

func sampleBody() body {
	return body{
		Position: vec2{X: 0, Y: -0.2},
		Velocity: vec2{X: 1.5, Y: 2},
		Mass:     3.25,
		Static:   true,
		Layer:    7,
		Offset:   -12,
		Name:     "ground",
		Tags:     []string{"floor", "static"},
		Blob:     []byte{0xde, 0xad},
		Owner:    uuid.MustParse("8f2a1b4c-0d3e-4f56-8a7b-9c0d1e2f3a4b"),
		Scores:   map[string]int32{"a": 1, "b": -2},
		Slots:    map[int]vec2{3: {X: 1}, -1: {Y: 4}},
		Corners:  [2]vec2{{X: -1, Y: -1}, {X: 1, Y: 1}},
	}
}

func mustSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := For[body]()
	require.NoError(t, err)
	return s
}

func TestCompileRejectsUnsupportedTypes(t *testing.T) {
	type withPointer struct{ P *int }
	type withChan struct{ C chan int }

	_, err := For[withPointer]()
	assert.ErrorIs(t, err, ErrUnsupportedType)
	_, err = For[withChan]()
	assert.ErrorIs(t, err, ErrUnsupportedType)
	_, err = Of(reflect.TypeOf(3))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestCompileIsCached(t *testing.T) {
	a := mustSchema(t)
	b := mustSchema(t)
	assert.Same(t, a, b)
	assert.Equal(t, []string{"position", "vel", "mass", "static", "layer", "offset", "name", "tags", "blob", "owner", "scores", "slots", "corners"}, a.Fields())
}

func TestCompactRoundTrip(t *testing.T) {
	s := mustSchema(t)
	in := sampleBody()

	buf := encoding.NewBuffer()
	s.Encode(buf, reflect.ValueOf(in))

	var out body
	require.NoError(t, s.Decode(encoding.NewBufferFrom(buf.Bytes()), reflect.ValueOf(&out).Elem()))
	assert.Equal(t, in, out)
}

func TestCompactDeterministicMaps(t *testing.T) {
	s := mustSchema(t)
	first := encoding.NewBuffer()
	s.Encode(first, reflect.ValueOf(sampleBody()))
	for i := 0; i < 20; i++ {
		again := encoding.NewBuffer()
		s.Encode(again, reflect.ValueOf(sampleBody()))
		require.Equal(t, first.Bytes(), again.Bytes())
	}
}

func TestCompactTruncatedInput(t *testing.T) {
	s := mustSchema(t)
	buf := encoding.NewBuffer()
	s.Encode(buf, reflect.ValueOf(sampleBody()))

	var out body
	err := s.Decode(encoding.NewBufferFrom(buf.Bytes()[:buf.Len()/2]), reflect.ValueOf(&out).Elem())
	assert.Error(t, err)
}

func TestValueRoundTrip(t *testing.T) {
	s := mustSchema(t)
	in := sampleBody()

	v := s.ToValue(reflect.ValueOf(in))
	owner, ok := v.Lookup("owner")
	require.True(t, ok)
	str, _ := owner.AsString()
	assert.Equal(t, in.Owner.String(), str)

	var out body
	require.NoError(t, s.FromValue(v, reflect.ValueOf(&out).Elem()))
	assert.Equal(t, in, out)
}

func TestFromValueErrors(t *testing.T) {
	s := mustSchema(t)
	var out body

	err := s.FromValue(value.NewMap(value.Entry{Key: "nope", Value: value.NewInt(1)}), reflect.ValueOf(&out).Elem())
	assert.ErrorIs(t, err, ErrUnknownField)

	err = s.FromValue(value.NewMap(value.Entry{Key: "mass", Value: value.NewString("heavy")}), reflect.ValueOf(&out).Elem())
	assert.ErrorIs(t, err, ErrTypeMismatch)

	err = s.FromValue(value.NewMap(value.Entry{Key: "layer", Value: value.NewInt(300)}), reflect.ValueOf(&out).Elem())
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestDiffApplyInverse(t *testing.T) {
	s := mustSchema(t)
	a := sampleBody()
	b := sampleBody()
	b.Position.Y = 10
	b.Tags = append(b.Tags, "moved")
	b.Scores = map[string]int32{"c": 3}

	forward := s.Diff(reflect.ValueOf(a), reflect.ValueOf(b))
	require.Len(t, forward.Changes, 3)
	assert.Equal(t, []int{0, 1}, forward.Changes[0].Path)

	reverse := s.Diff(reflect.ValueOf(b), reflect.ValueOf(a))

	got := s.Clone(reflect.ValueOf(a)).Interface().(body)
	require.NoError(t, s.Apply(forward, reflect.ValueOf(&got).Elem()))
	assert.Equal(t, b, got)

	require.NoError(t, s.Apply(reverse, reflect.ValueOf(&got).Elem()))
	assert.Equal(t, a, got)
}

func TestDiffOfIdenticalValuesIsEmpty(t *testing.T) {
	s := mustSchema(t)
	a := sampleBody()
	clone := s.Clone(reflect.ValueOf(a)).Interface().(body)
	assert.True(t, s.Diff(reflect.ValueOf(a), reflect.ValueOf(clone)).Empty())

	withEmpty := a
	withEmpty.Tags = nil
	other := a
	other.Tags = []string{}
	assert.True(t, s.Equal(reflect.ValueOf(withEmpty), reflect.ValueOf(other)))
}

func TestCloneDoesNotAlias(t *testing.T) {
	s := mustSchema(t)
	a := sampleBody()
	c := s.Clone(reflect.ValueOf(a)).Interface().(body)
	c.Tags[0] = "changed"
	c.Scores["a"] = 99
	assert.Equal(t, "floor", a.Tags[0])
	assert.Equal(t, int32(1), a.Scores["a"])
}

func TestPatchEncodingsAreLossless(t *testing.T) {
	s := mustSchema(t)
	a := sampleBody()
	b := sampleBody()
	b.Position.X = 4
	b.Velocity = vec2{X: -1, Y: -1}
	b.Name = "renamed"

	p := s.Diff(reflect.ValueOf(a), reflect.ValueOf(b))

	raw, err := s.EncodePatch(p)
	require.NoError(t, err)
	decoded, err := s.DecodePatch(raw)
	require.NoError(t, err)

	asValue := s.PatchToValue(decoded)
	pos, ok := asValue.Lookup("position")
	require.True(t, ok)
	x, ok := pos.Lookup("x")
	require.True(t, ok)
	f, _ := x.AsFloat()
	assert.Equal(t, 4.0, f)

	fromValue, err := s.PatchFromValue(asValue)
	require.NoError(t, err)
	again, err := s.EncodePatch(fromValue)
	require.NoError(t, err)
	assert.Equal(t, raw, again)
}

func TestDecodePatchRejectsGarbage(t *testing.T) {
	s := mustSchema(t)

	buf := encoding.NewBuffer()
	buf.WriteUvarint(1)
	buf.WriteUvarint(1)
	buf.WriteUvarint(99)
	_, err := s.DecodePatch(buf.Bytes())
	assert.ErrorIs(t, err, ErrInvalidPatch)

	// path ends on the position struct itself
	buf = encoding.NewBuffer()
	buf.WriteUvarint(1)
	buf.WriteUvarint(1)
	buf.WriteUvarint(0)
	_, err = s.DecodePatch(buf.Bytes())
	assert.ErrorIs(t, err, ErrInvalidPatch)
}
