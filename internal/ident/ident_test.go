package ident_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/chatd/internal/ident"
)

func TestStringParseRoundTrip(t *testing.T) {
	for _, u := range []ident.Uuid{
		{Generator: 1, Sequence: 1},
		{Generator: 100, Sequence: 4294967295},
		ident.Null,
	} {
		got, err := ident.Parse(u.String())
		require.NoError(t, err)
		assert.Equal(t, u, got)
	}
}

func TestStringForm(t *testing.T) {
	assert.Equal(t, "[1.42]", ident.Uuid{Generator: 1, Sequence: 42}.String())
	assert.Equal(t, "[0.0]", ident.Null.String())
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "[1.2", "1.2]", "[1]", "[1,2]", "[a.b]", "[-1.2]", "[1.4294967296]"} {
		_, err := ident.Parse(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestIsNull(t *testing.T) {
	assert.True(t, ident.Null.IsNull())
	assert.False(t, ident.Uuid{Generator: 0, Sequence: 1}.IsNull())
	assert.False(t, ident.Uuid{Generator: 1, Sequence: 0}.IsNull())
}

func TestWireRoundTrip(t *testing.T) {
	u := ident.Uuid{Generator: 7, Sequence: 99}
	var buf bytes.Buffer
	require.NoError(t, ident.Write(&buf, u))
	assert.Equal(t, 8, buf.Len())

	got, err := ident.Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestGeneratorMintsSequentially(t *testing.T) {
	gen := ident.NewGenerator(3)
	assert.Equal(t, uint32(3), gen.ServerID())
	assert.Equal(t, ident.Uuid{Generator: 3, Sequence: 1}, gen.Next())
	assert.Equal(t, ident.Uuid{Generator: 3, Sequence: 2}, gen.Next())
}

func TestGeneratorObserveAdvancesOwnSequence(t *testing.T) {
	gen := ident.NewGenerator(3)
	gen.Observe(ident.Uuid{Generator: 3, Sequence: 10})
	assert.Equal(t, ident.Uuid{Generator: 3, Sequence: 11}, gen.Next())

	// Foreign generators never move the counter.
	gen.Observe(ident.Uuid{Generator: 9, Sequence: 500})
	assert.Equal(t, ident.Uuid{Generator: 3, Sequence: 12}, gen.Next())

	// Observing something already behind is a no-op.
	gen.Observe(ident.Uuid{Generator: 3, Sequence: 2})
	assert.Equal(t, ident.Uuid{Generator: 3, Sequence: 13}, gen.Next())
}
