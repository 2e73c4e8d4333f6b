package link

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/tarm/serial"
	"golang.org/x/net/websocket"
)

// DefaultBaud is the baud rate of the reader firmware.
const DefaultBaud = 115200

// Open connects to a reader by URL:
//
//   tcp://host:port
//   ws://host:port/path
//   serial:///dev/ttyUSB0?baud=115200
//   /dev/ttyUSB0 (same as serial://)
func Open(rawurl string) (io.ReadWriteCloser, error) {
	u, err := parseURL(rawurl)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "tcp":
		conn, err := net.Dial("tcp", u.Host)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case "ws", "wss":
		origin := "http://" + u.Host + "/"
		conn, err := websocket.Dial(u.String(), "", origin)
		if err != nil {
			return nil, err
		}
		conn.PayloadType = websocket.BinaryFrame
		return conn, nil
	case "serial":
		return openSerial(u)
	default:
		return nil, fmt.Errorf("unknown link URL scheme: %q", u.Scheme)
	}
}

func parseURL(rawurl string) (*url.URL, error) {
	if !strings.Contains(rawurl, "://") {
		rawurl = "serial://" + rawurl
	}
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, fmt.Errorf("invalid link URL: %v", err)
	}
	return u, nil
}

// SerialConfig builds the serial port config from a serial:// URL.
func SerialConfig(u *url.URL) (*serial.Config, error) {
	conf := &serial.Config{Name: u.Path, Baud: DefaultBaud}
	if conf.Name == "" {
		// serial://COM3
		conf.Name = u.Host
	}
	if conf.Name == "" {
		return nil, fmt.Errorf("serial device required")
	}
	q := u.Query()
	if val := q.Get("baud"); val != "" {
		baud, err := strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid baud %q: %v", val, err)
		}
		conf.Baud = baud
	}
	if val := q.Get("timeout"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %v", val, err)
		}
		conf.ReadTimeout = d
	}
	return conf, nil
}

func openSerial(u *url.URL) (io.ReadWriteCloser, error) {
	conf, err := SerialConfig(u)
	if err != nil {
		return nil, err
	}
	glog.V(1).Infof("open serial %s at %d baud", conf.Name, conf.Baud)
	port, err := serial.OpenPort(conf)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Listener accepts links from hosts.
type Listener interface {
	Accept() (io.ReadWriteCloser, error)
	Close() error
	Addr() string
}

// Listen listens for hosts on a tcp:// or ws:// URL. A serial URL yields the
// opened device once, as if a host had connected.
func Listen(rawurl string) (Listener, error) {
	u, err := parseURL(rawurl)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "tcp":
		ln, err := net.Listen("tcp", u.Host)
		if err != nil {
			return nil, err
		}
		return &tcpListener{ln}, nil
	case "ws":
		ln, err := listenWebsocket(u)
		if err != nil {
			return nil, err
		}
		return ln, nil
	case "serial":
		conf, err := SerialConfig(u)
		if err != nil {
			return nil, err
		}
		return newDeviceListener(conf.Name, func() (io.ReadWriteCloser, error) {
			port, err := serial.OpenPort(conf)
			if err != nil {
				return nil, err
			}
			return port, nil
		}), nil
	default:
		return nil, fmt.Errorf("unknown listen URL scheme: %q", u.Scheme)
	}
}

type tcpListener struct {
	net.Listener
}

func (l *tcpListener) Accept() (io.ReadWriteCloser, error) {
	return l.Listener.Accept()
}

func (l *tcpListener) Addr() string {
	return "tcp://" + l.Listener.Addr().String()
}

type wsConn struct {
	*websocket.Conn
	done chan struct{}
	once sync.Once
}

func (c *wsConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() { close(c.done) })
	return err
}

type wsListener struct {
	ln     net.Listener
	path   string
	connCh chan *wsConn
	done   chan struct{}
	once   sync.Once
}

func listenWebsocket(u *url.URL) (*wsListener, error) {
	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, err
	}
	l := &wsListener{
		ln:     ln,
		path:   u.Path,
		connCh: make(chan *wsConn),
		done:   make(chan struct{}),
	}
	if l.path == "" {
		l.path = "/"
	}
	mux := http.NewServeMux()
	mux.Handle(l.path, websocket.Handler(l.serve))
	go http.Serve(ln, mux)
	return l, nil
}

func (l *wsListener) serve(conn *websocket.Conn) {
	conn.PayloadType = websocket.BinaryFrame
	c := &wsConn{Conn: conn, done: make(chan struct{})}
	select {
	case l.connCh <- c:
	case <-l.done:
		conn.Close()
		return
	}
	// the handler owns the connection until the link is closed
	select {
	case <-c.done:
	case <-l.done:
	}
}

func (l *wsListener) Accept() (io.ReadWriteCloser, error) {
	select {
	case c := <-l.connCh:
		return c, nil
	case <-l.done:
		return nil, ErrClosed
	}
}

func (l *wsListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return l.ln.Close()
}

func (l *wsListener) Addr() string {
	return "ws://" + l.ln.Addr().String() + l.path
}

type deviceListener struct {
	name   string
	open   func() (io.ReadWriteCloser, error)
	opened bool
	done   chan struct{}
	once   sync.Once
	lock   sync.Mutex
}

func newDeviceListener(name string, open func() (io.ReadWriteCloser, error)) *deviceListener {
	return &deviceListener{name: name, open: open, done: make(chan struct{})}
}

func (l *deviceListener) Accept() (io.ReadWriteCloser, error) {
	l.lock.Lock()
	opened := l.opened
	l.opened = true
	l.lock.Unlock()
	if !opened {
		return l.open()
	}
	<-l.done
	return nil, ErrClosed
}

func (l *deviceListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *deviceListener) Addr() string {
	return "serial://" + l.name
}
