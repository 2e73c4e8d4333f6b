package bridge

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"

	fx "github.com/robotalks/romreader/pkg/framework"
	"github.com/robotalks/romreader/pkg/host"
	"github.com/robotalks/romreader/pkg/link"
)

// Config defines a bridge.
type Config struct {
	// BrokerURL specifies the MQTT broker and topic prefix,
	// e.g. mqtt://host:port/romreader/
	BrokerURL string
	// LinkURL is the reader link, e.g. serial:///dev/ttyUSB0?baud=115200.
	LinkURL     string
	Device      string
	Description string
	Chunk       int
	ByteTime    time.Duration
	Timeout     time.Duration
	// RetryDelay is the pause before a failed bridge is recreated.
	RetryDelay time.Duration
	// NoPlaceholders matches a reader whose stub commands send nothing.
	NoPlaceholders bool
}

var defaultConfig = Config{
	BrokerURL:  "mqtt://localhost:1883/romreader/",
	LinkURL:    "serial:///dev/ttyUSB0",
	Chunk:      DefaultChunk,
	ByteTime:   host.DefaultByteTime,
	Timeout:    host.DefaultTimeout,
	RetryDelay: 5 * time.Second,
}

func init() {
	if val := os.Getenv("ROMREADER_MQTT_URL"); val != "" {
		defaultConfig.BrokerURL = val
	}
	if val := os.Getenv("ROMREADER_LINK"); val != "" {
		defaultConfig.LinkURL = val
	}
	defaultConfig.Device = MachineID()
}

// MachineID returns an id for the local machine scoped to this application,
// or empty if the platform doesn't provide one.
func MachineID() string {
	id, err := machineid.ProtectedID("romreader")
	if err != nil {
		glog.Warningf("machine id: %v", err)
		return ""
	}
	if len(id) > 16 {
		id = id[:16]
	}
	return id
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.BrokerURL, "mqtt", defaultConfig.BrokerURL, "MQTT broker URL.")
	flag.StringVar(&defaultConfig.LinkURL, "link", defaultConfig.LinkURL, "Reader link URL.")
	flag.StringVar(&defaultConfig.Device, "device", defaultConfig.Device, "Device ID, defaults to the machine ID.")
	flag.StringVar(&defaultConfig.Description, "description", defaultConfig.Description, "Description published in meta.")
	flag.IntVar(&defaultConfig.Chunk, "chunk", defaultConfig.Chunk, "Default dump chunk size.")
	flag.DurationVar(&defaultConfig.ByteTime, "byte-time", defaultConfig.ByteTime, "Expected transfer time per byte.")
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Base response timeout.")
	flag.DurationVar(&defaultConfig.RetryDelay, "retry-delay", defaultConfig.RetryDelay, "Delay before recreating a failed bridge.")
	flag.BoolVar(&defaultConfig.NoPlaceholders, "no-placeholders", defaultConfig.NoPlaceholders, "Reader stub commands send nothing.")
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

// NewQueue creates the MQTT queue. The broker clears the device meta if the
// bridge goes away without a clean shutdown.
func (c *Config) NewQueue() (*Queue, error) {
	if c.Device == "" {
		return nil, fmt.Errorf("device id must be specified")
	}
	opts, prefix, qos, err := ClientOptionsFromURL(c.BrokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(prefix+DeviceTopic(c.Device, TopicMeta), nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("romreader:" + c.Device)
	}
	q := NewQueue(opts, prefix)
	q.QoS = qos
	return q, nil
}

// NewBridge opens the reader link and creates the Bridge.
func (c *Config) NewBridge() (*Bridge, error) {
	q, err := c.NewQueue()
	if err != nil {
		return nil, err
	}
	conn, err := link.Open(c.LinkURL)
	if err != nil {
		return nil, fmt.Errorf("open link %s: %w", c.LinkURL, err)
	}
	client := host.NewClient(conn)
	client.ByteTime, client.Timeout = c.ByteTime, c.Timeout
	client.StubPlaceholders = !c.NoPlaceholders
	b := NewBridge(q, c.Device, client, conn)
	b.Meta.Link = c.LinkURL
	b.Meta.Description = c.Description
	if c.Chunk > 0 {
		b.Executor.Chunk = int32(c.Chunk)
	}
	return b, nil
}

// Service keeps a bridge running. A bridge that fails, e.g. the link went
// out of sync or the broker is unreachable, is recreated from the config.
type Service struct {
	Config *Config
	Bridge *Bridge
}

// NewService creates a Service.
func (c *Config) NewService() *Service {
	return &Service{Config: c}
}

// Name implements Named.
func (s *Service) Name() string {
	return "bridge"
}

// Run implements Runnable.
func (s *Service) Run(ctx context.Context) error {
	if s.Bridge == nil {
		b, err := s.Config.NewBridge()
		if err != nil {
			return err
		}
		s.Bridge = b
	}
	return s.Bridge.Run(ctx)
}

// Reset implements Restartable.
func (s *Service) Reset() {
	s.Bridge = nil
}

// RunWithRetry runs the Service until ctx is done.
func (s *Service) RunWithRetry(ctx context.Context) error {
	return fx.Restart(ctx, s.Config.RetryDelay, s)
}
