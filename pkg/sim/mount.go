// Package sim is a protocol-level simulator of a ZWO AM mount. It listens on
// TCP and answers the same LX200-dialect command set the real firmware does,
// which is enough to run the full driver, the test suite, and any Alpaca
// client against it without hardware.
package sim

import (
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Mount holds the simulated device state. All fields are guarded by mu; the
// per-connection goroutines funnel through handle.
type Mount struct {
	mu     sync.Mutex
	ln     net.Listener
	logger log.FieldLogger
	done   chan struct{}

	Product  string
	Firmware string

	ra, dec             float64
	targetRA, targetDec float64
	slewing             bool
	tracking            bool
	trackRate           byte // '0' sidereal, '1' lunar, '2' solar
	atHome              bool
	pier                byte // 'W', 'E' or 'N'
	latitude            float64
	longitude           float64 // device convention
	guideRate           float64
	buzzer              int

	date, clock, offset string

	// SlewDuration is how long a GoTo or homing run stays in the slewing
	// state. Tests keep it short.
	SlewDuration time.Duration
}

func NewMount(logger log.FieldLogger) *Mount {
	return &Mount{
		logger:       logger,
		done:         make(chan struct{}),
		Product:      "AM5",
		Firmware:     "v1.0.0",
		ra:           12,
		dec:          45,
		tracking:     true,
		trackRate:    '0',
		pier:         'W',
		latitude:     42,
		longitude:    337, // device form of 23 degrees east
		guideRate:    0.5,
		date:         "01/01/25",
		clock:        "12:00:00",
		offset:       "+00",
		SlewDuration: 200 * time.Millisecond,
	}
}

// Listen binds the simulator and starts serving. Use "127.0.0.1:0" in tests
// and read the port back from Addr.
func (s *Mount) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %v", addr, err)
	}
	s.ln = ln
	go s.serve()
	return nil
}

// Addr returns the bound address.
func (s *Mount) Addr() string {
	return s.ln.Addr().String()
}

// Close stops the listener and any per-connection goroutines.
func (s *Mount) Close() {
	close(s.done)
	s.ln.Close()
}

func (s *Mount) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.logger.Errorf("Accept failed: %v", err)
				return
			}
		}
		go s.session(conn)
	}
}

func (s *Mount) session(conn net.Conn) {
	defer conn.Close()
	buf := make([]byte, 1)
	var command []byte
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
		command = append(command, buf[0])
		if buf[0] != '#' {
			continue
		}
		response := s.handle(string(command))
		command = command[:0]
		if response == "" {
			continue
		}
		if _, err := conn.Write([]byte(response)); err != nil {
			return
		}
	}
}

// handle dispatches one framed command and returns the raw reply, empty for
// the fire-and-forget commands.
func (s *Mount) handle(command string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Debugf("Command %s", command)
	body := strings.TrimSuffix(strings.TrimPrefix(command, ":"), "#")

	switch {
	case body == "GVP":
		return s.Product + "#"
	case body == "GV":
		return s.Firmware + "#"

	case body == "GR":
		return formatHMS(s.ra) + "#"
	case body == "GD":
		return formatSigned(s.dec) + "#"
	case strings.HasPrefix(body, "Sr"):
		if v, err := parseAngle(body[2:]); err == nil {
			s.targetRA = v
			return "1"
		}
		return "e2"
	case strings.HasPrefix(body, "Sd"):
		if v, err := parseAngle(body[2:]); err == nil {
			s.targetDec = v
			return "1"
		}
		return "e2"
	case body == "MS":
		if s.targetDec < -89 {
			return "e5#"
		}
		s.startSlew(s.targetRA, s.targetDec)
		return "0"
	case body == "CM":
		s.ra, s.dec = s.targetRA, s.targetDec
		return "Synced#"

	case body == "Gt":
		return formatSigned(s.latitude) + "#"
	case body == "Gg":
		return formatUnsigned(s.longitude) + "#"
	case strings.HasPrefix(body, "St"):
		if v, err := parseAngle(body[2:]); err == nil {
			s.latitude = v
			return "1"
		}
		return "e2"
	case strings.HasPrefix(body, "Sg"):
		if v, err := parseAngle(body[2:]); err == nil {
			s.longitude = v
			return "1"
		}
		return "e2"

	case body == "GC":
		return s.date + "#"
	case body == "GL":
		return s.clock + "#"
	case body == "GG":
		return s.offset + "#"
	case body == "GH":
		return "0#"
	case body == "GS":
		return "10:30:00#"
	case strings.HasPrefix(body, "SC"):
		s.date = body[2:]
		// The real firmware follows the ack with two progress strings.
		return "1Updating Planetary Data#                #"
	case strings.HasPrefix(body, "SG"):
		s.offset = body[2:]
		return "1"
	case strings.HasPrefix(body, "SL"):
		s.clock = body[2:]
		return "1"
	case strings.HasPrefix(body, "SH"):
		return ""

	case body == "Te":
		s.tracking = true
		return ""
	case body == "Td":
		s.tracking = false
		return ""
	case body == "TQ":
		s.trackRate = '0'
		return ""
	case body == "TS":
		s.trackRate = '2'
		return ""
	case body == "TL":
		s.trackRate = '1'
		return ""
	case body == "GT":
		return string(s.trackRate) + "#"

	case body == "RG", body == "RC", body == "RM", body == "RS":
		return ""
	case body == "Mn", body == "Ms", body == "Mw", body == "Me":
		s.slewing = true
		return ""
	case body == "Qn", body == "Qs", body == "Qw", body == "Qe", body == "Q":
		s.slewing = false
		return ""
	case strings.HasPrefix(body, "Mg"):
		return ""
	case body == "hC":
		s.startHoming()
		return ""

	case strings.HasPrefix(body, "Rg"):
		if v, err := strconv.ParseFloat(body[2:], 64); err == nil {
			s.guideRate = v
		}
		return ""
	case body == "Ggr":
		return fmt.Sprintf("%.2f#", s.guideRate)

	case body == "GU":
		flags := "G"
		if !s.slewing {
			flags += "N"
		}
		if !s.tracking {
			flags += "n"
		}
		if s.atHome {
			flags += "H"
		}
		return flags + "#"
	case body == "Gm":
		return string(s.pier) + "#"

	case strings.HasPrefix(body, "SBu"):
		if v, err := strconv.Atoi(body[3:]); err == nil {
			s.buzzer = v
		}
		return ""
	case body == "GBu":
		return fmt.Sprintf("%d#", s.buzzer)
	}

	s.logger.Warnf("Unknown command: %s", command)
	return "e2#"
}

// startSlew flips to the slewing state and lands on the target after
// SlewDuration. Called with mu held.
func (s *Mount) startSlew(ra, dec float64) {
	s.slewing = true
	s.atHome = false
	time.AfterFunc(s.SlewDuration, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.ra, s.dec = ra, dec
		s.slewing = false
	})
}

func (s *Mount) startHoming() {
	s.slewing = true
	time.AfterFunc(s.SlewDuration, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.slewing = false
		s.atHome = true
		s.tracking = false
	})
}

// SetPier forces the reported pier side; tests use it to provoke
// change-only notifications.
func (s *Mount) SetPier(side byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pier = side
}

// SetClock forces the reported date, time and device offset strings.
func (s *Mount) SetClock(date, clock, offset string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.date, s.clock, s.offset = date, clock, offset
}

func formatHMS(v float64) string {
	d := int(v)
	rem := (v - float64(d)) * 60
	m := int(rem)
	sec := (rem - float64(m)) * 60
	return fmt.Sprintf("%02d:%02d:%02.0f", d, m, sec)
}

func formatSigned(v float64) string {
	sign := '+'
	if v < 0 {
		sign = '-'
		v = -v
	}
	d := int(v)
	rem := (v - float64(d)) * 60
	m := int(rem)
	sec := (rem - float64(m)) * 60
	return fmt.Sprintf("%c%02d*%02d:%02.0f", sign, d, m, sec)
}

func formatUnsigned(v float64) string {
	d := int(v)
	m := int(math.Round((v - float64(d)) * 60))
	return fmt.Sprintf("%03d*%02d", d, m)
}

// parseAngle decodes the sexagesimal arguments of the set commands.
func parseAngle(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty angle")
	}
	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if len(fields) < 2 || len(fields) > 3 {
		return 0, fmt.Errorf("malformed angle %q", s)
	}
	var parts [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed angle %q", s)
		}
		parts[i] = v
	}
	v := parts[0] + parts[1]/60 + parts[2]/3600
	if negative {
		v = -v
	}
	return v, nil
}
