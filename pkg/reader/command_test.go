package reader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInt(t *testing.T) {
	testCases := []struct {
		in     string
		expect int32
	}{
		{"", 0},
		{"42", 42},
		{"1000\x00\x00", 1000},
		{"  -17", -17},
		{"+8", 8},
		{"12ab3", 12},
		{"abc", 0},
		{"-", 0},
		{"32767", 32767},
		{"5\x007", 5},
	}
	for _, tc := range testCases {
		assert.Equalf(t, tc.expect, ParseInt([]byte(tc.in)), "ParseInt(%q)", tc.in)
	}
}

func TestReadCommandStopsAtCR(t *testing.T) {
	link := (&fakeLink{}).feed("m5\rM9\r")
	tr := NewTransport(link, nil)
	tr.MaxPolls = 10
	buf := CommandBuffer{'x', 'x', 'x', 'x', 'x', 'x', 'x', 'x'}
	n, err := ReadCommand(context.Background(), tr, buf[:], CommandSize)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, CommandBuffer{'m', '5', CR, 'x', 'x', 'x', 'x', 'x'}, buf)
	require.Equal(t, "M9\r", string(link.in))
}

func TestReadCommandTruncates(t *testing.T) {
	link := (&fakeLink{}).feed("m123456789\r")
	tr := NewTransport(link, nil)
	var buf CommandBuffer
	n, err := ReadCommand(context.Background(), tr, buf[:], CommandSize)
	require.NoError(t, err)
	require.Equal(t, CommandSize, n)
	require.Equal(t, "m1234567", string(buf[:]))
	require.Equal(t, "89\r", string(link.in))
}

func TestSanitize(t *testing.T) {
	buf := CommandBuffer{'m', '1', CR, 19, 20, 0x7f, 0x80, 1}
	buf.Sanitize()
	require.Equal(t, CommandBuffer{'m', '1', 0, 0, 20, 0x7f, 0x80, 0}, buf)
}

func TestStaleBytesDoNotLeak(t *testing.T) {
	link := (&fakeLink{}).feed("m123456\rm7\r")
	tr := NewTransport(link, nil)
	var buf CommandBuffer
	ctx := context.Background()

	_, err := ReadCommand(ctx, tr, buf[:], CommandSize)
	require.NoError(t, err)
	buf.Sanitize()
	require.Equal(t, int32(123456), buf.Arg())

	_, err = ReadCommand(ctx, tr, buf[:], CommandSize)
	require.NoError(t, err)
	// "m7\r" overwrites the first three bytes only, "3456" is still there.
	require.Equal(t, "m7\r3456", string(buf[:7]))
	buf.Sanitize()
	require.Equal(t, int32(7), buf.Arg())
}

func TestCommandFromTag(t *testing.T) {
	for tag, expect := range map[byte]Command{
		'r': CmdReadParallel,
		'l': CmdReadLocation,
		'i': CmdReadI2C,
		's': CmdReadSPI,
		'm': CmdSetMin,
		'M': CmdSetMax,
		'x': CmdNone,
		'R': CmdNone,
		0:   CmdNone,
	} {
		assert.Equalf(t, expect, CommandFromTag(tag), "tag %q", tag)
	}
	assert.True(t, CmdReadI2C.IsStub())
	assert.True(t, CmdReadSPI.IsScan())
	assert.False(t, CmdReadLocation.IsScan())
	assert.True(t, CmdSetMax.HasArg())
	assert.Equal(t, "read-parallel", CmdReadParallel.String())
}
