package codec

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// available 返回当前机器上可以运行的全部实现。
func available() []Codec {
	out := []Codec{Std{}}
	if SIMDAvailable() {
		out = append(out, SIMD{})
	}
	return out
}

func TestRoundTripCounterValues(t *testing.T) {
	for _, c := range available() {
		c := c
		t.Run(c.Name(), func(t *testing.T) {
			for _, n := range []int64{0, 1, 9, 42, 99, 1000, 123456789, 9223372036854775807} {
				text := strconv.FormatInt(n, 10)
				got, err := c.DecodeString(c.EncodeString(text))
				require.NoError(t, err)

				back, err := strconv.ParseInt(got, 10, 64)
				require.NoError(t, err)
				assert.Equal(t, n, back)
			}
		})
	}
}

func TestImplementationsAgree(t *testing.T) {
	if !SIMDAvailable() {
		t.Skip("simd codec not supported on this machine")
	}
	for _, s := range []string{"", "1", "42", "Update counter to 42", "0123456789abcdef"} {
		assert.Equal(t, Std{}.EncodeString(s), SIMD{}.EncodeString(s), "input %q", s)

		got, err := SIMD{}.DecodeString(Std{}.EncodeString(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestDecodeIgnoresLineBreaks(t *testing.T) {
	// contents API 返回的 content 每 60 个字符换行，结尾也带换行。
	for _, c := range available() {
		got, err := c.DecodeString("NDE=\n")
		require.NoError(t, err, c.Name())
		assert.Equal(t, "41", got)

		got, err = c.DecodeString("MTIz\r\nNDU2\n")
		require.NoError(t, err, c.Name())
		assert.Equal(t, "123456", got)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, c := range available() {
		_, err := c.DecodeString("***not base64***")
		assert.Error(t, err, c.Name())
	}
}

func TestKnownEncoding(t *testing.T) {
	for _, c := range available() {
		assert.Equal(t, "NDI=", c.EncodeString("42"), c.Name())
	}
}

func TestByName(t *testing.T) {
	c, err := ByName("std")
	require.NoError(t, err)
	assert.Equal(t, "std", c.Name())

	c, err = ByName("auto")
	require.NoError(t, err)
	assert.Equal(t, Probe().Name(), c.Name())

	c, err = ByName("simd")
	if SIMDAvailable() {
		require.NoError(t, err)
		assert.Equal(t, "simd", c.Name())
	} else {
		assert.Error(t, err)
	}

	_, err = ByName("hex")
	assert.Error(t, err)
}
