package am

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"asimount/pkg/alpaca"
	"asimount/pkg/lx200"
)

const (
	guiderUID        = "c4f1d2ab-7e63-4d8a-8f09-5a6be20d317c"
	guiderName       = "ZWO AM Guider"
	guiderDeviceType = "Telescope"
)

// Guider is the second logical device on the mount link. It connects
// through the same refcounted session as the mount driver, so either device
// can come up first and the transport closes only when both are gone.
type Guider struct {
	number  int
	store   *store
	session *session
	logger  log.FieldLogger

	mu     sync.Mutex
	state  connState
	mount  mountAPI
	timer  *time.Timer
	active bool
}

// Guider builds the pulse-guide device sharing this driver's store and
// session.
func (d *Driver) Guider(number int) *Guider {
	return &Guider{
		number:  number,
		store:   d.store,
		session: d.session,
		logger:  d.logger.WithField("device", "guider"),
		state:   connStateDisconnected,
	}
}

func (g *Guider) Connect() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != connStateDisconnected {
		return fmt.Errorf("guider is already connected")
	}

	cfg, err := g.store.GetConfig()
	if err != nil {
		return fmt.Errorf("failed to get mount config: %v", err)
	}

	g.state = connStateConnecting

	conn, err := g.session.acquire(cfg.Target)
	if err != nil {
		g.state = connStateDisconnected
		return fmt.Errorf("failed to open mount link: %v", err)
	}

	mount := lx200.NewMount(conn)
	if _, err := mount.Identify(); err != nil {
		g.session.release(nil)
		g.state = connStateDisconnected
		return fmt.Errorf("failed to identify mount: %v", err)
	}

	g.mount = mount
	g.state = connStateConnected
	g.logger.Info("Guider connected")
	return nil
}

func (g *Guider) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != connStateConnected {
		return alpaca.ErrNotConnected
	}

	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.active = false

	g.session.release(nil)
	g.mount = nil
	g.state = connStateDisconnected
	g.logger.Info("Guider disconnected")
	return nil
}

func (g *Guider) Connecting() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == connStateConnecting
}

func (g *Guider) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == connStateConnected
}

func (g *Guider) DeviceInfo() alpaca.DeviceInfo {
	return alpaca.DeviceInfo{
		Name:     guiderName,
		Type:     guiderDeviceType,
		Number:   g.number,
		UniqueID: guiderUID,
	}
}

func (g *Guider) DriverInfo() alpaca.DriverInfo {
	return alpaca.DriverInfo{
		Name:             driverName,
		Version:          driverVersion,
		InterfaceVersion: 1,
	}
}

func (g *Guider) GetState() []alpaca.StateProperty {
	return []alpaca.StateProperty{
		{
			Name:  "TimeStamp",
			Value: time.Now().Format(time.RFC3339),
		},
		{
			Name:  "IsPulseGuiding",
			Value: g.IsPulseGuiding(),
		},
	}
}

// Pulse fires a timed guide correction. The command returns immediately on
// the wire, so the guiding flag is held for the nominal pulse duration.
func (g *Guider) Pulse(direction alpaca.GuideDirection, duration time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != connStateConnected {
		return alpaca.ErrNotConnected
	}

	ms := int(duration / time.Millisecond)
	var err error
	switch direction {
	case alpaca.GuideNorth:
		err = g.mount.GuideDec(ms, 0)
	case alpaca.GuideSouth:
		err = g.mount.GuideDec(0, ms)
	case alpaca.GuideWest:
		err = g.mount.GuideRA(ms, 0)
	case alpaca.GuideEast:
		err = g.mount.GuideRA(0, ms)
	default:
		return fmt.Errorf("invalid guide direction: %d", direction)
	}
	if err != nil {
		return err
	}

	if duration > lx200.MaxPulse*time.Millisecond {
		duration = lx200.MaxPulse * time.Millisecond
	}

	g.active = true
	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(duration, func() {
		g.mu.Lock()
		g.active = false
		g.mu.Unlock()
	})
	return nil
}

func (g *Guider) IsPulseGuiding() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
