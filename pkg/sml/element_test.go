package sml

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseElementMultiByteLength(t *testing.T) {
	require := require.New(t)

	data := bytes.Repeat([]byte{0xAB}, 48)
	buf := append([]byte{0x83, 0x02}, data...)

	el, next, err := parseElement(buf, 0)
	require.NoError(err)
	require.Equal(len(buf), next)
	require.Equal(elementOctetString, el.kind)
	require.Equal(data, el.data)
}

func TestParseElementIntegers(t *testing.T) {
	assert := assert.New(t)

	el, _, err := parseElement([]byte{0x52, 0xFF}, 0)
	assert.NoError(err)
	n, err := el.int64()
	assert.NoError(err)
	assert.Equal(int64(-1), n)

	el, _, err = parseElement([]byte{0x53, 0xFF, 0x38}, 0)
	assert.NoError(err)
	n, err = el.int64()
	assert.NoError(err)
	assert.Equal(int64(-200), n)

	el, _, err = parseElement([]byte{0x63, 0x01, 0x82}, 0)
	assert.NoError(err)
	u, err := el.uint64()
	assert.NoError(err)
	assert.Equal(uint64(386), u)

	_, err = el.int64()
	assert.ErrorIs(err, ErrStructural)
}

func TestParseElementList(t *testing.T) {
	require := require.New(t)

	el, next, err := parseElement([]byte{0x72, 0x62, 0x01, 0x01, 0xFF}, 0)
	require.NoError(err)
	require.Equal(4, next)
	children, err := el.list(2)
	require.NoError(err)
	require.False(children[0].absent())
	require.True(children[1].absent())

	_, err = el.list(3)
	require.ErrorIs(err, ErrStructural)
}

func TestParseElementErrors(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"invalid continuation", []byte{0x81, 0x72}},
		{"truncated continuation", []byte{0x81}},
		{"runs past end", []byte{0x05, 0x01}},
		{"length shorter than header", []byte{0x80, 0x01}},
		{"truncated list", []byte{0x73, 0x01, 0x01}},
		{"nested too deep", append(bytes.Repeat([]byte{0x71}, maxListDepth+2), 0x01)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseElement(tt.buf, 0)
			assert.ErrorIs(t, err, ErrStructural)
		})
	}
}
