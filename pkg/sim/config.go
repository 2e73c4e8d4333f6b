package sim

import (
	"flag"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/romreader/pkg/link"
)

// Config defines the simulated reader.
type Config struct {
	// ListenURL is where hosts connect, e.g. tcp://:7500, ws://:7500/link
	// or serial:///dev/ttyS1.
	ListenURL string
	// ImagePath is a raw binary image. Empty uses a pattern image.
	ImagePath string
	// ImageSize is the size of the pattern image.
	ImageSize       int
	WatchdogTimeout time.Duration
	NoPlaceholders  bool
}

var defaultConfig = Config{
	ListenURL:       "tcp://127.0.0.1:7500",
	ImageSize:       32768,
	WatchdogTimeout: DefaultWatchdogTimeout,
}

func init() {
	if val := os.Getenv("ROMSIM_LISTEN"); val != "" {
		defaultConfig.ListenURL = val
	}
	if val := os.Getenv("ROMSIM_IMAGE"); val != "" {
		defaultConfig.ImagePath = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.ListenURL, "listen", defaultConfig.ListenURL, "Link URL to listen on.")
	flag.StringVar(&defaultConfig.ImagePath, "image", defaultConfig.ImagePath, "Raw binary chip image.")
	flag.IntVar(&defaultConfig.ImageSize, "image-size", defaultConfig.ImageSize, "Pattern image size when no image is given.")
	flag.DurationVar(&defaultConfig.WatchdogTimeout, "watchdog", defaultConfig.WatchdogTimeout, "Watchdog timeout.")
	flag.BoolVar(&defaultConfig.NoPlaceholders, "no-placeholders", defaultConfig.NoPlaceholders, "Stub commands send nothing.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewBoard creates a Board using the config.
func (c *Config) NewBoard() (*Board, error) {
	var image []byte
	if c.ImagePath != "" {
		var err error
		if image, err = LoadImage(c.ImagePath); err != nil {
			return nil, err
		}
		glog.Infof("loaded %d bytes from %s", len(image), c.ImagePath)
	} else {
		image = PatternImage(c.ImageSize)
	}
	b := NewBoard(image)
	b.Watchdog = NewWatchdog(c.WatchdogTimeout)
	b.StubPlaceholders = !c.NoPlaceholders
	return b, nil
}

// NewServer creates a Server listening on ListenURL.
func (c *Config) NewServer() (*Server, error) {
	b, err := c.NewBoard()
	if err != nil {
		return nil, err
	}
	ln, err := link.Listen(c.ListenURL)
	if err != nil {
		return nil, err
	}
	return &Server{Listener: ln, Board: b}, nil
}
