package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSetGet(t *testing.T) {
	r := NewRecord(0)
	r.Set("name", String("alice")).Set("age", Int(30))

	assert.Equal(t, String("alice"), r.Get("name"))
	assert.True(t, r.Get("missing").IsNull())
	assert.Equal(t, []string{"age", "name"}, r.Names())

	r.Set("age", Null())
	_, ok := r.Values["age"]
	assert.False(t, ok, "null values are not stored")

	var nilRec *Record
	assert.True(t, nilRec.Get("x").IsNull())
}

func TestRecordIdentifier(t *testing.T) {
	var h HasIdentifier = &Record{}
	assert.Zero(t, h.Identifier())
	h.SetIdentifier(12)
	assert.Equal(t, uint64(12), h.Identifier())
}

func TestRecordClone(t *testing.T) {
	r := &Record{ID: 3, Values: map[string]Value{"blob": Bytes([]byte{1})}}
	c := r.Clone()
	require.True(t, r.Equal(c))

	raw, _ := c.Values["blob"].AsBytes()
	raw[0] = 2
	orig, _ := r.Values["blob"].AsBytes()
	assert.Equal(t, byte(1), orig[0])

	c.Set("extra", Int(1))
	assert.False(t, r.Equal(c))
	assert.Nil(t, (*Record)(nil).Clone())
}

func TestRecordEqual(t *testing.T) {
	a := &Record{ID: 1, Values: map[string]Value{"x": Int(1), "y": Null()}}
	b := &Record{ID: 1, Values: map[string]Value{"x": Int(1)}}
	assert.True(t, a.Equal(b))
	assert.True(t, b.Equal(a))

	b.ID = 2
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(nil))
	assert.True(t, (*Record)(nil).Equal(nil))
}
