package am

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"asimount/pkg/lx200"
)

// session shares one physical mount link between the mount and guider
// devices. The first consumer to connect opens the transport, the last one
// to disconnect closes it; the count and the handle change together under
// one lock.
type session struct {
	mu     sync.Mutex
	conn   *lx200.Conn
	refs   int
	logger log.FieldLogger

	// open is swappable for tests.
	open func(target string, logger log.FieldLogger) (*lx200.Conn, error)
}

func newSession(logger log.FieldLogger) *session {
	return &session{
		logger: logger.WithField("component", "session"),
		open:   lx200.Open,
	}
}

// acquire registers a consumer, opening the link if this is the first one.
func (s *session) acquire(target string) (*lx200.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		conn, err := s.open(target, s.logger)
		if err != nil {
			return nil, err
		}
		s.conn = conn
	}
	s.refs++
	return s.conn, nil
}

// release drops a consumer. On the last release, stop (if non-nil) runs
// against the still-open link before it closes; the mount driver uses it to
// halt motion on the way out.
func (s *session) release(stop func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		return
	}
	s.refs--
	if s.refs > 0 {
		return
	}
	if stop != nil {
		stop()
	}
	if err := s.conn.Close(); err != nil {
		s.logger.Errorf("Failed to close connection: %v", err)
	}
	s.conn = nil
}
