package reader

import (
	"context"
	"fmt"
)

// CommandSize is the length of the command buffer.
const CommandSize = 8

// CR terminates a command early.
const CR byte = 13

// printableMin is the lowest byte value kept by Sanitize.
const printableMin byte = 20

// CommandBuffer holds the raw bytes of the last command read.
// It is overwritten in place and never cleared between commands.
type CommandBuffer [CommandSize]byte

// ReadCommand fills buf from t up to maxLength bytes, stopping after a CR.
// Bytes after the stop point keep their previous values.
func ReadCommand(ctx context.Context, t *Transport, buf []byte, maxLength int) (int, error) {
	if maxLength > len(buf) {
		maxLength = len(buf)
	}
	for n := 0; n < maxLength; n++ {
		b, err := t.ReceiveByte(ctx)
		if err != nil {
			return n, err
		}
		buf[n] = b
		if b == CR {
			return n + 1, nil
		}
	}
	return maxLength, nil
}

// Sanitize zeroes every byte below the printable range, including the CR
// and stale control bytes left over from a previous command.
func (b *CommandBuffer) Sanitize() {
	for n, c := range b {
		if c < printableMin {
			b[n] = 0
		}
	}
}

// Tag returns the command tag byte.
func (b *CommandBuffer) Tag() byte {
	return b[0]
}

// Arg parses the decimal argument following the tag.
func (b *CommandBuffer) Arg() int32 {
	return ParseInt(b[1:])
}

// ParseInt parses a decimal integer the way atol does: leading white space,
// an optional sign, then digits up to the first non-digit or 0 byte.
// No digits yields 0.
func ParseInt(s []byte) int32 {
	n := 0
	for n < len(s) && isSpace(s[n]) {
		n++
	}
	neg := false
	if n < len(s) && (s[n] == '+' || s[n] == '-') {
		neg = s[n] == '-'
		n++
	}
	var v int32
	for ; n < len(s) && s[n] >= '0' && s[n] <= '9'; n++ {
		v = v*10 + int32(s[n]-'0')
	}
	if neg {
		return -v
	}
	return v
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// Command is the interpreted command tag.
type Command byte

// Recognized commands, valued by their tag byte.
const (
	CmdNone         Command = 0
	CmdReadParallel Command = 'r'
	CmdReadLocation Command = 'l'
	CmdReadI2C      Command = 'i'
	CmdReadSPI      Command = 's'
	CmdSetMin       Command = 'm'
	CmdSetMax       Command = 'M'
)

// CommandFromTag classifies a tag byte. Unknown tags map to CmdNone.
func CommandFromTag(tag byte) Command {
	switch c := Command(tag); c {
	case CmdReadParallel, CmdReadLocation, CmdReadI2C, CmdReadSPI, CmdSetMin, CmdSetMax:
		return c
	}
	return CmdNone
}

// Tag returns the wire tag.
func (c Command) Tag() byte {
	return byte(c)
}

// HasArg indicates the command carries a decimal argument.
func (c Command) HasArg() bool {
	return c == CmdReadLocation || c == CmdSetMin || c == CmdSetMax
}

// IsScan indicates the command emits one byte per address in the range.
func (c Command) IsScan() bool {
	return c == CmdReadParallel || c.IsStub()
}

// IsStub indicates the command only emits placeholder bytes.
func (c Command) IsStub() bool {
	return c == CmdReadI2C || c == CmdReadSPI
}

// String implements fmt.Stringer.
func (c Command) String() string {
	switch c {
	case CmdNone:
		return "none"
	case CmdReadParallel:
		return "read-parallel"
	case CmdReadLocation:
		return "read-location"
	case CmdReadI2C:
		return "read-i2c"
	case CmdReadSPI:
		return "read-spi"
	case CmdSetMin:
		return "set-min"
	case CmdSetMax:
		return "set-max"
	}
	return fmt.Sprintf("command(%q)", byte(c))
}
