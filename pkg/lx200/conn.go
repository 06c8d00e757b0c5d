package lx200

import (
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const (
	// Terminator closes every command and every framed response.
	Terminator = '#'

	// NetworkPort is the fixed TCP port the AM mounts listen on in WiFi mode.
	NetworkPort = 4030

	serialBaudRate = 9600
	dialTimeout    = 5 * time.Second

	// Read windows for a framed response: generous for the first byte, tight
	// once the mount has started talking.
	firstByteTimeout = 3 * time.Second
	interByteTimeout = 100 * time.Millisecond

	// Drain windows. Opening tolerates a slow burst of stale output; the
	// pre-command drain only has to sweep bytes that are already buffered.
	drainOpenTimeout = time.Second
	drainNextTimeout = 100 * time.Millisecond
	drainPollTimeout = 10 * time.Millisecond
)

// port is a byte stream with a per-read timeout. A timed-out read returns
// (0, nil), matching go.bug.st/serial semantics; the TCP adapter below
// normalizes net deadlines to the same contract.
type port interface {
	io.ReadWriteCloser
	SetReadTimeout(time.Duration) error
}

type netPort struct {
	conn    net.Conn
	timeout time.Duration
}

func (p *netPort) SetReadTimeout(d time.Duration) error {
	p.timeout = d
	return nil
}

func (p *netPort) Read(b []byte) (int, error) {
	if p.timeout > 0 {
		if err := p.conn.SetReadDeadline(time.Now().Add(p.timeout)); err != nil {
			return 0, err
		}
	}
	n, err := p.conn.Read(b)
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return n, nil
	}
	return n, err
}

func (p *netPort) Write(b []byte) (int, error) {
	return p.conn.Write(b)
}

func (p *netPort) Close() error {
	return p.conn.Close()
}

// Conn is one open link to a mount. All command/response exchanges, from any
// consumer, serialize through its lock; nothing else may touch the wire.
type Conn struct {
	mu     sync.Mutex
	port   port
	target string
	logger log.FieldLogger
}

// Open connects to the mount at target. A "scheme://host[:port]" form is
// dialed over TCP (port 4030 unless given); anything else is treated as a
// serial device path. Stale bytes left over from a previous session are
// drained before the connection is handed out.
func Open(target string, logger log.FieldLogger) (*Conn, error) {
	var p port
	if addr, ok := networkAddress(target); ok {
		nc, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err != nil {
			return nil, &TransportError{Op: "open " + target, Err: err}
		}
		p = &netPort{conn: nc}
	} else {
		sp, err := serial.Open(target, &serial.Mode{BaudRate: serialBaudRate})
		if err != nil {
			return nil, &TransportError{Op: "open " + target, Err: err}
		}
		p = sp
	}

	c := &Conn{port: p, target: target, logger: logger}
	if err := c.drain(drainOpenTimeout); err != nil {
		p.Close()
		return nil, err
	}
	c.logger.Infof("Connected to %s", target)
	return c, nil
}

// networkAddress reports whether target selects the network transport and
// returns the dialable address.
func networkAddress(target string) (string, bool) {
	i := strings.Index(target, "://")
	if i < 0 {
		return "", false
	}
	host := target[i+3:]
	if host == "" {
		return "", false
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, fmt.Sprint(NetworkPort))
	}
	return host, true
}

// drain swallows buffered bytes until a read window passes with nothing
// arriving. The first window is timeout; once data starts flowing the window
// shrinks so a chatty mount cannot stall us forever.
func (c *Conn) drain(timeout time.Duration) error {
	buf := make([]byte, 1)
	for {
		if err := c.port.SetReadTimeout(timeout); err != nil {
			return &TransportError{Op: "drain " + c.target, Err: err}
		}
		n, err := c.port.Read(buf)
		if err != nil {
			return &TransportError{Op: "drain " + c.target, Err: err}
		}
		if n == 0 {
			return nil
		}
		timeout = drainNextTimeout
	}
}

// Command performs one framed exchange: drain, write request, optionally
// sleep for delay, then read a '#'-terminated response of at most max bytes.
// With max <= 0 the command is fire-and-forget. The terminator is not part
// of the returned string.
func (c *Conn) Command(request string, max int, delay time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port == nil {
		return "", &TransportError{Op: request, Err: ErrClosed}
	}

	if err := c.drain(drainPollTimeout); err != nil {
		commandsTotal.WithLabelValues("error").Inc()
		return "", err
	}

	if _, err := io.WriteString(c.port, request); err != nil {
		commandsTotal.WithLabelValues("error").Inc()
		return "", &TransportError{Op: "write " + request, Err: err}
	}

	if delay > 0 {
		time.Sleep(delay)
	}

	if max <= 0 {
		c.logger.Debugf("Command %s", request)
		commandsTotal.WithLabelValues("ok").Inc()
		return "", nil
	}

	response := make([]byte, 0, max)
	buf := make([]byte, 1)
	timeout := firstByteTimeout
	for len(response) < max {
		if err := c.port.SetReadTimeout(timeout); err != nil {
			commandsTotal.WithLabelValues("error").Inc()
			return "", &TransportError{Op: "read " + request, Err: err}
		}
		n, err := c.port.Read(buf)
		if err != nil {
			commandsTotal.WithLabelValues("error").Inc()
			return "", &TransportError{Op: "read " + request, Err: err}
		}
		if n == 0 {
			// Some responses (the single-byte acks) arrive without a
			// terminator; the inter-byte window expiring is how they end.
			// Only a window with nothing at all in it is a dead mount.
			if len(response) == 0 {
				commandsTotal.WithLabelValues("timeout").Inc()
				return "", &TransportError{Op: "read " + request, Err: ErrTimeout}
			}
			break
		}
		b := buf[0]
		if b > 0x7f {
			// The firmware occasionally emits bytes with the high bit set
			// around mode changes; map them to ':' so they parse as noise.
			b = ':'
		}
		if b == Terminator {
			break
		}
		response = append(response, b)
		timeout = interByteTimeout
	}

	c.logger.Debugf("Command %s -> %s", request, response)
	commandsTotal.WithLabelValues("ok").Inc()
	return string(response), nil
}

// Close shuts the underlying handle. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	c.logger.Infof("Disconnected from %s", c.target)
	return err
}
