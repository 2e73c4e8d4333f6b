package reader

import (
	"context"
	"fmt"
	"io/ioutil"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/romreader/pkg/cli/sh"
	"github.com/robotalks/romreader/pkg/host"
	rd "github.com/robotalks/romreader/pkg/reader"
)

func parseAddr(c *ishell.Context, index int, name string) (int32, bool) {
	if len(c.Args) <= index {
		c.Err(fmt.Errorf("%s required", name))
		return 0, false
	}
	val, err := strconv.ParseInt(c.Args[index], 0, 32)
	if err != nil {
		c.Err(fmt.Errorf("Invalid %s: %v", name, err))
		return 0, false
	}
	return int32(val), true
}

func printRange(c *ishell.Context) {
	rng := sh.ClientFrom(c).Range()
	sh.PrintResult(c, rng, fmt.Sprintf("%d..%d (%d bytes)", rng.Min, rng.Max, rng.Len()))
}

// outputDump prints the dump, or writes it to the file named by the
// argument at index.
func outputDump(c *ishell.Context, dump *host.Dump, index int) {
	if len(c.Args) > index {
		if err := ioutil.WriteFile(c.Args[index], dump.Data, 0644); err != nil {
			c.Err(err)
			return
		}
		sh.PrintResult(c, map[string]interface{}{
			"file": c.Args[index],
			"base": dump.Base,
			"size": len(dump.Data),
		}, fmt.Sprintf("%d bytes from %#x written to %s", len(dump.Data), dump.Base, c.Args[index]))
		return
	}
	if sh.ShellFrom(c).OutputJSON {
		sh.PrintResult(c, NewDumpJSON(dump), "")
		return
	}
	c.Print(FormatDump(dump))
}

func scanCmd(scan func(*host.Client, context.Context) (*host.Dump, error)) func(c *ishell.Context) {
	return sh.MustBeOpen(func(c *ishell.Context) {
		dump, err := scan(sh.ClientFrom(c), context.Background())
		if err != nil {
			c.Err(err)
			return
		}
		if dump.Placeholder && !sh.ShellFrom(c).OutputJSON {
			c.Println("placeholder data, the reader doesn't implement this bus")
		}
		outputDump(c, dump, 0)
	})
}

var (
	// MinCmd sets the first address.
	MinCmd = ishell.Cmd{
		Name: "min",
		Help: "ADDR",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			addr, ok := parseAddr(c, 0, "ADDR")
			if !ok {
				return
			}
			if err := sh.ClientFrom(c).SetMin(addr); err != nil {
				c.Err(err)
				return
			}
			printRange(c)
		}),
	}

	// MaxCmd sets the last address.
	MaxCmd = ishell.Cmd{
		Name: "max",
		Help: "ADDR",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			addr, ok := parseAddr(c, 0, "ADDR")
			if !ok {
				return
			}
			if err := sh.ClientFrom(c).SetMax(addr); err != nil {
				c.Err(err)
				return
			}
			printRange(c)
		}),
	}

	// RangeCmd sets or shows the scan range.
	RangeCmd = ishell.Cmd{
		Name: "range",
		Help: "[MIN MAX]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) == 0 {
				printRange(c)
				return
			}
			min, ok := parseAddr(c, 0, "MIN")
			if !ok {
				return
			}
			max, ok := parseAddr(c, 1, "MAX")
			if !ok {
				return
			}
			if err := sh.ClientFrom(c).SetRange(rd.AddressRange{Min: min, Max: max}); err != nil {
				c.Err(err)
				return
			}
			printRange(c)
		}),
	}

	// ReadCmd scans the range over the parallel bus.
	ReadCmd = ishell.Cmd{
		Name:    "read",
		Aliases: []string{"r"},
		Help:    "[FILE]",
		Func:    scanCmd((*host.Client).Read),
	}

	// I2CCmd runs the I2C read.
	I2CCmd = ishell.Cmd{
		Name: "i2c",
		Help: "[FILE]",
		Func: scanCmd((*host.Client).ReadI2C),
	}

	// SPICmd runs the SPI read.
	SPICmd = ishell.Cmd{
		Name: "spi",
		Help: "[FILE]",
		Func: scanCmd((*host.Client).ReadSPI),
	}

	// LocationCmd reads a single address.
	LocationCmd = ishell.Cmd{
		Name:    "loc",
		Aliases: []string{"l"},
		Help:    "ADDR",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			addr, ok := parseAddr(c, 0, "ADDR")
			if !ok {
				return
			}
			b, err := sh.ClientFrom(c).ReadLocation(context.Background(), addr)
			if err != nil {
				c.Err(err)
				return
			}
			sh.PrintResult(c, map[string]interface{}{"address": addr, "value": b},
				fmt.Sprintf("%04x: %02x", addr, b))
		}),
	}

	// DumpCmd reads a range in chunks into a file.
	DumpCmd = ishell.Cmd{
		Name: "dump",
		Help: "MIN MAX FILE [CHUNK]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			min, ok := parseAddr(c, 0, "MIN")
			if !ok {
				return
			}
			max, ok := parseAddr(c, 1, "MAX")
			if !ok {
				return
			}
			if len(c.Args) < 3 {
				c.Err(fmt.Errorf("FILE required"))
				return
			}
			chunk := int32(4096)
			if len(c.Args) > 3 {
				if chunk, ok = parseAddr(c, 3, "CHUNK"); !ok {
					return
				}
			}
			var progress func(done, total int64)
			if s := sh.ShellFrom(c); s.Interactive && !s.OutputJSON {
				bar := c.ProgressBar()
				bar.Start()
				defer bar.Stop()
				progress = func(done, total int64) {
					bar.Suffix(fmt.Sprintf(" %d/%d", done, total))
					bar.Progress(int(done * 100 / total))
				}
			}
			dump, err := sh.ClientFrom(c).Dump(context.Background(), rd.AddressRange{Min: min, Max: max}, chunk, progress)
			if err != nil {
				c.Err(err)
				return
			}
			outputDump(c, dump, 2)
		}),
	}

	// RawCmd sends a command verbatim.
	RawCmd = ishell.Cmd{
		Name: "raw",
		Help: "COMMAND [RESPONSE_BYTES]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("COMMAND required"))
				return
			}
			var n int64
			if len(c.Args) > 1 {
				var err error
				if n, err = strconv.ParseInt(c.Args[1], 0, 64); err != nil || n < 0 {
					c.Err(fmt.Errorf("Invalid RESPONSE_BYTES: %s", c.Args[1]))
					return
				}
			}
			data, err := sh.ClientFrom(c).Raw(context.Background(), c.Args[0], n)
			if err != nil {
				c.Err(err)
				return
			}
			if n == 0 {
				sh.PrintResult(c, map[string]interface{}{"sent": c.Args[0]}, "OK")
				return
			}
			outputDump(c, &host.Dump{Data: data}, 2)
		}),
	}
)

func init() {
	sh.AddCmds(
		&MinCmd,
		&MaxCmd,
		&RangeCmd,
		&ReadCmd,
		&I2CCmd,
		&SPICmd,
		&LocationCmd,
		&DumpCmd,
		&RawCmd,
	)
}

