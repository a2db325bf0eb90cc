package component

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLowerThenLiftStringRoundTrips(t *testing.T) {
	for _, enc := range []StringEncoding{UTF8, UTF16LE, UTF16BE, Latin1} {
		t.Run(enc.String(), func(t *testing.T) {
			raw, n := LowerString(nil, enc, "hello")
			assert.Equal(t, len(raw), n)

			got, err := LiftString(enc, raw)
			require.NoError(t, err)
			assert.Equal(t, "hello", got)
		})
	}
}

func TestLiftStringRejectsInvalidUTF8(t *testing.T) {
	_, err := LiftString(UTF8, []byte{0xff, 0xfe})
	require.Error(t, err)
}

func TestLiftStringRejectsOddLengthUTF16(t *testing.T) {
	_, err := LiftString(UTF16LE, []byte{0x41})
	require.Error(t, err)
}

func TestLowerStringUTF16ByteOrder(t *testing.T) {
	le, _ := LowerString(nil, UTF16LE, "A")
	be, _ := LowerString(nil, UTF16BE, "A")
	assert.Equal(t, []byte{0x41, 0x00}, le)
	assert.Equal(t, []byte{0x00, 0x41}, be)
}
