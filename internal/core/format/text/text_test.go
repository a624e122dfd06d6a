package text

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/prefab/internal/core/format"
	"github.com/zeusync/prefab/internal/core/value"
)

var docID = uuid.MustParse("1b0d7c5e-51f2-4c49-9d36-04b8a3b7f0aa")

func sampleValue() value.Value {
	return value.NewMap(
		value.Entry{Key: "position", Value: value.NewMap(
			value.Entry{Key: "x", Value: value.NewFloat(0)},
			value.Entry{Key: "y", Value: value.NewFloat(-0.2)},
		)},
		value.Entry{Key: "static", Value: value.NewBool(true)},
		value.Entry{Key: "count", Value: value.NewInt(-3)},
		value.Entry{Key: "big", Value: value.NewUint(math.MaxUint64)},
		value.Entry{Key: "label", Value: value.NewString("true")},
		value.Entry{Key: "empty", Value: value.NewString("")},
		value.Entry{Key: "digits", Value: value.NewString("0042")},
		value.Entry{Key: "raw", Value: value.NewBytes([]byte{0, 1, 2, 250})},
		value.Entry{Key: "inf", Value: value.NewFloat(math.Inf(-1))},
		value.Entry{Key: "nan", Value: value.NewFloat(math.NaN())},
		value.Entry{Key: "whole", Value: value.NewFloat(100000)},
		value.Entry{Key: "tags", Value: value.NewSeq(value.NewString("a"), value.NewNull())},
		value.Entry{Key: "none", Value: value.NewSeq()},
		value.Entry{Key: "nested", Value: value.NewMap()},
	)
}

func writeDoc(t *testing.T) []byte {
	t.Helper()
	enc := NewEncoder()
	require.NoError(t, enc.BeginMap())
	require.NoError(t, enc.Field("id"))
	require.NoError(t, enc.UUID(docID))
	require.NoError(t, enc.Field("objects"))
	require.NoError(t, enc.BeginSeq(2))
	require.NoError(t, enc.Variant(0, "entity"))
	require.NoError(t, enc.String("ground"))
	require.NoError(t, enc.EndVariant())
	require.NoError(t, enc.Variant(1, "prefab_ref"))
	require.NoError(t, enc.Bytes([]byte("blob")))
	require.NoError(t, enc.EndVariant())
	require.NoError(t, enc.EndSeq())
	require.NoError(t, enc.Field("data"))
	require.NoError(t, enc.Value(sampleValue()))
	require.NoError(t, enc.EndMap())
	out, err := enc.Finish()
	require.NoError(t, err)
	return out
}

func TestRoundTrip(t *testing.T) {
	doc := writeDoc(t)

	dec, err := NewDecoder(doc)
	require.NoError(t, err)
	require.NoError(t, dec.BeginMap("id", "objects", "data"))
	require.NoError(t, dec.Field("id"))
	id, err := dec.UUID()
	require.NoError(t, err)
	assert.Equal(t, docID, id)

	require.NoError(t, dec.Field("objects"))
	n, err := dec.BeginSeq()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	tag, err := dec.Variant("entity", "prefab_ref")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), tag)
	s, err := dec.String()
	require.NoError(t, err)
	assert.Equal(t, "ground", s)
	require.NoError(t, dec.EndVariant())

	tag, err = dec.Variant("entity", "prefab_ref")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), tag)
	p, err := dec.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), p)
	require.NoError(t, dec.EndVariant())
	require.NoError(t, dec.EndSeq())

	require.NoError(t, dec.Field("data"))
	v, err := dec.Value()
	require.NoError(t, err)
	assert.True(t, sampleValue().Equal(v), "got %s", v)
	require.NoError(t, dec.EndMap())
	require.NoError(t, dec.Finish())
}

func TestEncodingIsStable(t *testing.T) {
	assert.Equal(t, writeDoc(t), writeDoc(t))
}

func TestFieldOrderViolations(t *testing.T) {
	doc := []byte("data: 1\ntype: 2\n")

	dec, err := NewDecoder(doc)
	require.NoError(t, err)
	require.NoError(t, dec.BeginMap("type", "data"))
	assert.ErrorIs(t, dec.Field("type"), format.ErrFieldOrder)

	dec, err = NewDecoder(doc)
	require.NoError(t, err)
	require.NoError(t, dec.BeginMap("type"))
	assert.ErrorIs(t, dec.Field("type"), format.ErrUnknownField)
}

func TestEndMapRejectsExtraFields(t *testing.T) {
	dec, err := NewDecoder([]byte("type: a\nextra: b\n"))
	require.NoError(t, err)
	require.NoError(t, dec.BeginMap("type"))
	require.NoError(t, dec.Field("type"))
	_, err = dec.String()
	require.NoError(t, err)
	assert.ErrorIs(t, dec.EndMap(), format.ErrUnknownField)
}

func TestTypedScalarsAreChecked(t *testing.T) {
	dec, err := NewDecoder([]byte("id: 12\n"))
	require.NoError(t, err)
	require.NoError(t, dec.BeginMap("id"))
	require.NoError(t, dec.Field("id"))
	_, err = dec.UUID()
	assert.ErrorIs(t, err, format.ErrSyntax)
}

func TestUnknownVariant(t *testing.T) {
	dec, err := NewDecoder([]byte("mystery: {}\n"))
	require.NoError(t, err)
	_, err = dec.Variant("entity", "prefab_ref")
	assert.ErrorIs(t, err, format.ErrUnknownField)
}

func TestMalformedDocument(t *testing.T) {
	_, err := NewDecoder([]byte("a: [1, 2"))
	assert.ErrorIs(t, err, format.ErrSyntax)
}
