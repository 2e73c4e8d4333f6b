package sh

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/romreader/pkg/host"
	"github.com/robotalks/romreader/pkg/link"
)

// Config defines how the shell reaches the reader.
type Config struct {
	// LinkURL is opened on start when set, e.g. serial:///dev/ttyUSB0 or
	// tcp://localhost:7500.
	LinkURL  string
	ByteTime time.Duration
	Timeout  time.Duration
	// NoPlaceholders matches a reader whose stub commands send nothing.
	NoPlaceholders bool
}

var defaultConfig = Config{
	ByteTime: host.DefaultByteTime,
	Timeout:  host.DefaultTimeout,
}

func init() {
	if val := os.Getenv("ROMREADER_LINK"); val != "" {
		defaultConfig.LinkURL = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.LinkURL, "link", defaultConfig.LinkURL, "Reader link URL to open on start.")
	flag.DurationVar(&defaultConfig.ByteTime, "byte-time", defaultConfig.ByteTime, "Expected transfer time per byte.")
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Base response timeout.")
	flag.BoolVar(&defaultConfig.NoPlaceholders, "no-placeholders", defaultConfig.NoPlaceholders, "Reader stub commands send nothing.")
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell  *ishell.Shell
	Config *Config
	Conn   *Conn
}

// Conn is an open reader link.
type Conn struct {
	URL    string
	Link   io.ReadWriteCloser
	Client *host.Client
}

const (
	shellKey     = "$shell"
	closedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&OpenCmd,
		&CloseCmd,
		&StatsCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(closedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// ClientFrom gets the reader client, nil if no link is open.
func ClientFrom(c *ishell.Context) *host.Client {
	if conn := ShellFrom(c).Conn; conn != nil {
		return conn.Client
	}
	return nil
}

// MustBeOpen wraps command func requires an open link.
func MustBeOpen(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(fmt.Errorf("no link open"))
			return
		}
		fn(c)
	}
}

// PrintResult prints v as JSON in JSON mode, otherwise prints text.
func PrintResult(c *ishell.Context, v interface{}, text string) {
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text)
}

// Open opens a link to the reader, replacing the current one.
func (s *Shell) Open(url string) error {
	rwc, err := link.Open(url)
	if err != nil {
		return err
	}
	client := host.NewClient(rwc)
	client.ByteTime, client.Timeout = s.Config.ByteTime, s.Config.Timeout
	client.StubPlaceholders = !s.Config.NoPlaceholders
	s.Close()
	s.Conn = &Conn{URL: url, Link: rwc, Client: client}
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", url))
	return nil
}

// Close closes the current link.
func (s *Shell) Close() {
	if s.Conn != nil {
		s.Conn.Link.Close()
		s.Conn = nil
		s.Shell.SetPrompt(closedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.Config.LinkURL != "" {
		if s.Interactive {
			s.Shell.Printf("Opening %s ...\n", s.Config.LinkURL)
		}
		if err := s.Open(s.Config.LinkURL); err != nil {
			log.Fatalf("open %q failed: %v", s.Config.LinkURL, err)
		}
	}
	defer s.Close()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// OpenCmd opens a link.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "URL",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("URL required"))
				return
			}
			if err := ShellFrom(c).Open(c.Args[0]); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes the current link.
	CloseCmd = ishell.Cmd{
		Name: "close",
		Help: "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Close()
		},
	}

	// StatsCmd shows link activity.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "",
		Func: MustBeOpen(func(c *ishell.Context) {
			client := ClientFrom(c)
			stats, rng := client.Stats(), client.Range()
			PrintResult(c, map[string]interface{}{
				"url":      ShellFrom(c).Conn.URL,
				"commands": stats.Commands,
				"received": stats.BytesReceived,
				"min":      rng.Min,
				"max":      rng.Max,
			}, fmt.Sprintf("%s: %d commands, %d bytes received, range %d..%d",
				ShellFrom(c).Conn.URL, stats.Commands, stats.BytesReceived, rng.Min, rng.Max))
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(NewConfig()).Run(flag.Args()...)
}
