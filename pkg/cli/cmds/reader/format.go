// Package reader provides shell commands for the reader protocol.
package reader

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/robotalks/romreader/pkg/host"
)

const bytesPerLine = 16

// FormatDump formats data as lines of 16 bytes prefixed with the address,
// followed by the printable characters.
func FormatDump(dump *host.Dump) string {
	var w bytes.Buffer
	for off := 0; off < len(dump.Data); off += bytesPerLine {
		end := off + bytesPerLine
		if end > len(dump.Data) {
			end = len(dump.Data)
		}
		line := dump.Data[off:end]
		fmt.Fprintf(&w, "%08x ", int64(dump.Base)+int64(off))
		for n := 0; n < bytesPerLine; n++ {
			if n == bytesPerLine/2 {
				w.WriteByte(' ')
			}
			if n < len(line) {
				fmt.Fprintf(&w, " %02x", line[n])
			} else {
				w.WriteString("   ")
			}
		}
		w.WriteString("  |")
		for _, b := range line {
			if b < 32 || b > 126 {
				b = '.'
			}
			w.WriteByte(b)
		}
		w.WriteString("|\n")
	}
	return w.String()
}

// DumpJSON is the JSON form of a dump.
type DumpJSON struct {
	Base        int32  `json:"base"`
	Size        int    `json:"size"`
	Placeholder bool   `json:"placeholder,omitempty"`
	Data        string `json:"data"`
}

// NewDumpJSON converts a dump, data is hex encoded.
func NewDumpJSON(dump *host.Dump) *DumpJSON {
	return &DumpJSON{
		Base:        dump.Base,
		Size:        len(dump.Data),
		Placeholder: dump.Placeholder,
		Data:        hex.EncodeToString(dump.Data),
	}
}
