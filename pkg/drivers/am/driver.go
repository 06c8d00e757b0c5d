// Package am implements the Alpaca driver for the ZWO AM series of
// harmonic-drive mounts, speaking their LX200 dialect over serial or TCP.
package am

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"asimount/pkg/alpaca"
	"asimount/pkg/astro"
	"asimount/pkg/lx200"
)

const (
	mountUID      = "6b9e8a21-44d0-4b53-9db5-2f1c07a4e9d3"
	deviceName    = "ZWO AM Mount"
	deviceType    = "Telescope"
	driverName    = "ZWO AM Mount Alpaca Driver"
	driverVersion = "1.0"
)

// A mount that has never been told the time reports a date around its
// 2000-01-01 epoch. Anything before this instant means the clock and site
// were never pushed.
var mountEpochThreshold = time.Date(2001, 1, 1, 1, 0, 0, 0, time.UTC)

type connState int

const (
	connStateDisconnected connState = iota
	connStateConnecting
	connStateConnected
)

// Driver is the Alpaca telescope device for the AM mount.
type Driver struct {
	number  int
	store   *store
	tmpl    *template.Template
	session *session
	logger  log.FieldLogger

	mu     sync.Mutex
	state  connState
	mount  mountAPI
	cancel context.CancelFunc
	wg     sync.WaitGroup

	st mountState

	statusMu sync.Mutex
	status   alpaca.TelescopeStatus
	prevHome bool
	prevPier string

	telemetry *Publisher

	handlersMu sync.Mutex
	handlers   []func(Event)

	product  string
	firmware string
}

func NewDriver(number int, db *bolt.DB, tmpl *template.Template, logger log.FieldLogger) (*Driver, error) {
	store, err := NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %v", err)
	}

	logger = logger.WithField("device", "mount")
	driver := Driver{
		number:  number,
		store:   store,
		tmpl:    tmpl,
		session: newSession(logger),
		state:   connStateDisconnected,
		logger:  logger,
	}

	return &driver, nil
}

// Subscribe registers a handler for poller events. Handlers run on the
// poller goroutine and must not block.
func (d *Driver) Subscribe(fn func(Event)) {
	d.handlersMu.Lock()
	defer d.handlersMu.Unlock()
	d.handlers = append(d.handlers, fn)
}

func (d *Driver) publish(ev Event) {
	d.handlersMu.Lock()
	handlers := d.handlers
	d.handlersMu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

func (d *Driver) Close() {
	d.logger.Info("Closing AM mount driver")

	if !d.Connected() {
		return
	}
	if err := d.Disconnect(); err != nil {
		d.logger.Errorf("failed to disconnect: %v", err)
	}
}

func (d *Driver) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != connStateDisconnected {
		return fmt.Errorf("driver is already connected")
	}

	cfg, err := d.store.GetConfig()
	if err != nil {
		return fmt.Errorf("failed to get mount config: %v", err)
	}

	d.state = connStateConnecting

	conn, err := d.session.acquire(cfg.Target)
	if err != nil {
		d.state = connStateDisconnected
		return fmt.Errorf("failed to open mount link: %v", err)
	}

	mount := lx200.NewMount(conn)
	mount.UseDSTCommands = cfg.UseDST
	d.mount = mount

	if err := d.initMount(cfg); err != nil {
		d.session.release(nil)
		d.mount = nil
		d.state = connStateDisconnected
		return err
	}

	if cfg.Telemetry.Enabled {
		pub, err := NewPublisher(cfg.Telemetry, d.logger)
		if err != nil {
			d.logger.Errorf("Telemetry disabled: %v", err)
		} else {
			d.telemetry = pub
			d.Subscribe(pub.HandleEvent)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.wg.Add(1)
	go d.poll(ctx, d.mount)

	d.state = connStateConnected
	d.logger.Infof("Connected to %s (firmware %s) on %s", d.product, d.firmware, cfg.Target)

	return nil
}

// initMount runs the connect-time handshake: verify the product, read the
// firmware, seed the rate caches and push time and site if the mount has
// never been initialized.
func (d *Driver) initMount(cfg Config) error {
	product, err := d.mount.Identify()
	if err != nil {
		return fmt.Errorf("failed to identify mount: %v", err)
	}
	d.product = product

	d.firmware, err = d.mount.FirmwareVersion()
	if err != nil {
		return fmt.Errorf("failed to read firmware version: %v", err)
	}

	status, err := d.mount.Status()
	if err != nil {
		return fmt.Errorf("failed to read mount status: %v", err)
	}
	if status.AltAz() {
		d.logger.Warn("Mount is in alt-azimuth mode; coordinates are still reported equatorially")
	}
	mode := alignmentMode(status)

	guideRate, err := d.mount.GuideRate()
	if err != nil {
		d.logger.Warnf("Failed to read guide rate, pushing %d%%: %v", cfg.GuideRate, err)
		guideRate = cfg.GuideRate
		if err := d.mount.SetGuideRate(guideRate, guideRate); err != nil {
			return fmt.Errorf("failed to set guide rate: %v", err)
		}
	}

	if utc, _, err := d.mount.UTC(); err != nil || utc.Before(mountEpochThreshold) {
		if err := d.pushTimeAndSite(cfg); err != nil {
			return err
		}
	}

	trackRate, err := d.mount.TrackRateSetting()
	if err != nil {
		d.logger.Warnf("Failed to read track rate, assuming sidereal: %v", err)
		trackRate = lx200.TrackRateSidereal
	}

	if level, err := d.mount.Buzzer(); err != nil {
		d.logger.Warnf("Failed to read buzzer level: %v", err)
	} else if int(level) != cfg.Buzzer {
		if err := d.mount.SetBuzzer(lx200.BuzzerLevel(cfg.Buzzer)); err != nil {
			d.logger.Warnf("Failed to set buzzer level: %v", err)
		}
	}

	d.st.seed(trackRate, guideRate)

	ra, dec, err := d.mount.Coordinates()
	if err != nil {
		return fmt.Errorf("failed to read coordinates: %v", err)
	}
	now := time.Now()
	ra2000, dec2000 := astro.ToJ2000(now, ra, dec)

	d.statusMu.Lock()
	d.status = alpaca.TelescopeStatus{
		RightAscension:       ra2000,
		Declination:          dec2000,
		TargetRightAscension: ra2000,
		TargetDeclination:    dec2000,
		Tracking:             status.Tracking(),
		AtHome:               status.AtHome(),
		AlignmentMode:        mode,
		UTCDate:              now.UTC().Format(time.RFC3339),
		Valid:                true,
	}
	d.prevHome = status.AtHome()
	d.prevPier = ""
	d.statusMu.Unlock()

	return nil
}

// pushTimeAndSite initializes a factory-fresh mount from the host clock and
// the configured site.
func (d *Driver) pushTimeAndSite(cfg Config) error {
	now := time.Now()
	_, offsetSec := now.Zone()

	d.logger.Infof("Mount clock not set, pushing host time and configured site")
	if err := d.mount.SetUTC(now, offsetSec/3600, now.IsDST()); err != nil {
		return fmt.Errorf("failed to set mount time: %v", err)
	}
	if err := d.mount.SetSite(cfg.Latitude, cfg.Longitude); err != nil {
		return fmt.Errorf("failed to set mount site: %v", err)
	}
	return nil
}

func (d *Driver) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != connStateConnected {
		return alpaca.ErrNotConnected
	}

	d.cancel()
	d.cancel = nil
	d.wg.Wait()

	if d.telemetry != nil {
		d.telemetry.Close()
		d.telemetry = nil
	}

	mount := d.mount
	d.session.release(func() {
		if err := mount.Stop(); err != nil {
			d.logger.Errorf("Failed to stop mount on disconnect: %v", err)
		}
	})
	d.st.clearMotion()
	d.mount = nil
	d.state = connStateDisconnected

	d.statusMu.Lock()
	d.status = alpaca.TelescopeStatus{}
	d.statusMu.Unlock()

	d.logger.Info("Disconnected from mount")
	return nil
}

func (d *Driver) Connecting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == connStateConnecting
}

func (d *Driver) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == connStateConnected
}

// api returns the protocol handle if the driver is connected.
func (d *Driver) api() (mountAPI, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != connStateConnected || d.mount == nil {
		return nil, alpaca.ErrNotConnected
	}
	return d.mount, nil
}

func (d *Driver) GetState() []alpaca.StateProperty {
	props := []alpaca.StateProperty{
		{
			Name:  "TimeStamp",
			Value: time.Now().Format(time.RFC3339),
		},
	}

	if d.Connected() {
		props = append(props, d.Status().ToProperties()...)
	}

	return props
}

func (d *Driver) Status() alpaca.TelescopeStatus {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	return d.status
}

func (d *Driver) Capabilities() alpaca.TelescopeCapabilities {
	return alpaca.TelescopeCapabilities{
		CanFindHome:      true,
		CanMoveAxis:      true,
		CanPulseGuide:    true,
		CanSetGuideRates: true,
		CanSetTracking:   true,
		CanSlew:          true,
		CanSync:          true,
	}
}

// alignmentMode maps the mount's reported mode onto the ASCOM enumeration.
// The AM series is a German-style equatorial unless it reports alt-azimuth.
func alignmentMode(flags lx200.StatusFlags) alpaca.AlignmentMode {
	if flags.AltAz() {
		return alpaca.AlignAltAz
	}
	return alpaca.AlignGermanPolar
}

func (d *Driver) DeviceInfo() alpaca.DeviceInfo {
	return alpaca.DeviceInfo{
		Name:     deviceName,
		Type:     deviceType,
		Number:   d.number,
		UniqueID: mountUID,
	}
}

func (d *Driver) DriverInfo() alpaca.DriverInfo {
	return alpaca.DriverInfo{
		Name:             driverName,
		Version:          driverVersion,
		InterfaceVersion: 1,
	}
}

func (d *Driver) SiteCoordinates() (latitude, longitude float64, err error) {
	m, err := d.api()
	if err != nil {
		return 0, 0, err
	}
	return m.Site()
}

func (d *Driver) SetSiteCoordinates(latitude, longitude float64) error {
	m, err := d.api()
	if err != nil {
		return err
	}
	if err := m.SetSite(latitude, longitude); err != nil {
		return err
	}

	// Remember the site so a factory-fresh mount gets it on the next
	// connect.
	cfg, err := d.store.GetConfig()
	if err == nil {
		cfg.Latitude = latitude
		cfg.Longitude = longitude
		if err := d.store.SetConfig(cfg); err != nil {
			d.logger.Errorf("Failed to persist site: %v", err)
		}
	}
	return nil
}

func (d *Driver) SetUTCDate(t time.Time) error {
	m, err := d.api()
	if err != nil {
		return err
	}
	now := time.Now()
	_, offsetSec := now.Zone()
	return m.SetUTC(t, offsetSec/3600, now.IsDST())
}

// SlewToCoordinates starts an asynchronous slew. Coordinates are J2000 and
// get precessed to the mount's current epoch on the way out.
func (d *Driver) SlewToCoordinates(ra, dec float64) error {
	m, err := d.api()
	if err != nil {
		return err
	}

	raNow, decNow := astro.FromJ2000(time.Now(), ra, dec)
	if err := m.Slew(raNow, decNow); err != nil {
		return err
	}

	d.statusMu.Lock()
	d.status.TargetRightAscension = ra
	d.status.TargetDeclination = dec
	d.statusMu.Unlock()
	return nil
}

func (d *Driver) SyncToCoordinates(ra, dec float64) error {
	m, err := d.api()
	if err != nil {
		return err
	}

	raNow, decNow := astro.FromJ2000(time.Now(), ra, dec)
	if err := m.Sync(raNow, decNow); err != nil {
		return err
	}

	d.statusMu.Lock()
	d.status.TargetRightAscension = ra
	d.status.TargetDeclination = dec
	d.statusMu.Unlock()
	return nil
}

// AbortSlew stops every kind of motion and resets the target to wherever
// the mount ended up.
func (d *Driver) AbortSlew() error {
	m, err := d.api()
	if err != nil {
		return err
	}

	if err := m.Stop(); err != nil {
		return err
	}
	d.st.clearMotion()

	if ra, dec, err := m.Coordinates(); err == nil {
		ra2000, dec2000 := astro.ToJ2000(time.Now(), ra, dec)
		d.statusMu.Lock()
		d.status.TargetRightAscension = ra2000
		d.status.TargetDeclination = dec2000
		d.statusMu.Unlock()
	}
	return nil
}

func (d *Driver) FindHome() error {
	m, err := d.api()
	if err != nil {
		return err
	}

	if err := m.Home(); err != nil {
		return err
	}

	// Re-arm the home edge so arrival fires an event even if the mount was
	// parked at home before.
	d.statusMu.Lock()
	d.prevHome = false
	d.statusMu.Unlock()
	return nil
}

func (d *Driver) SetTracking(on bool) error {
	m, err := d.api()
	if err != nil {
		return err
	}
	return m.SetTracking(on)
}

func (d *Driver) SetTrackingRate(rate alpaca.DriveRate) error {
	m, err := d.api()
	if err != nil {
		return err
	}

	var tr lx200.TrackRate
	switch rate {
	case alpaca.DriveSidereal:
		tr = lx200.TrackRateSidereal
	case alpaca.DriveLunar:
		tr = lx200.TrackRateLunar
	case alpaca.DriveSolar:
		tr = lx200.TrackRateSolar
	default:
		return fmt.Errorf("invalid drive rate: %d", rate)
	}
	return d.st.setTrackRate(m, tr)
}

// MoveAxis starts or stops manual motion. Axis 0 is RA (positive rates move
// west), axis 1 is Dec (positive rates move north). The rate magnitude 1..4
// selects guide, centering, find or max speed; zero stops the axis.
func (d *Driver) MoveAxis(axis int, rate float64) error {
	m, err := d.api()
	if err != nil {
		return err
	}

	if axis != 0 && axis != 1 {
		return fmt.Errorf("invalid axis: %d", axis)
	}

	if rate == 0 {
		if axis == 0 {
			return d.st.motionRA(m, lx200.DirNone)
		}
		return d.st.motionDec(m, lx200.DirNone)
	}

	mag := rate
	if mag < 0 {
		mag = -mag
	}
	var slew lx200.SlewRate
	switch {
	case mag <= 1:
		slew = lx200.SlewRateGuide
	case mag <= 2:
		slew = lx200.SlewRateCentering
	case mag <= 3:
		slew = lx200.SlewRateFind
	case mag <= 4:
		slew = lx200.SlewRateMax
	default:
		return fmt.Errorf("invalid axis rate: %g", rate)
	}
	if err := d.st.setSlewRate(m, slew); err != nil {
		return err
	}

	if axis == 0 {
		dir := lx200.DirWest
		if rate < 0 {
			dir = lx200.DirEast
		}
		return d.st.motionRA(m, dir)
	}
	dir := lx200.DirNorth
	if rate < 0 {
		dir = lx200.DirSouth
	}
	return d.st.motionDec(m, dir)
}

func (d *Driver) PulseGuide(direction alpaca.GuideDirection, duration time.Duration) error {
	m, err := d.api()
	if err != nil {
		return err
	}

	ms := int(duration / time.Millisecond)
	switch direction {
	case alpaca.GuideNorth:
		return m.GuideDec(ms, 0)
	case alpaca.GuideSouth:
		return m.GuideDec(0, ms)
	case alpaca.GuideWest:
		return m.GuideRA(ms, 0)
	case alpaca.GuideEast:
		return m.GuideRA(0, ms)
	}
	return fmt.Errorf("invalid guide direction: %d", direction)
}

func (d *Driver) GuideRate() (int, error) {
	m, err := d.api()
	if err != nil {
		return 0, err
	}
	return m.GuideRate()
}

func (d *Driver) SetGuideRate(percent int) error {
	m, err := d.api()
	if err != nil {
		return err
	}
	return d.st.setGuideRate(m, percent)
}

func (d *Driver) HandleSetup(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := d.store.GetConfig()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		d.renderSetupForm(w, cfg, false, "")

	case http.MethodPost:
		cfg, err := parseMountSetupForm(r)
		if err != nil {
			d.renderSetupForm(w, cfg, false, err.Error())
			return
		}

		d.logger.Infof("Setting mount config: %+v", cfg)
		if err := d.store.SetConfig(cfg); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		d.renderSetupForm(w, cfg, true, "")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (d *Driver) renderSetupForm(w http.ResponseWriter, cfg Config, success bool, err string) {
	data := struct {
		Config
		Success bool
		Error   string
	}{cfg, success, err}

	if err := d.tmpl.ExecuteTemplate(w, "mount_setup.html", data); err != nil {
		http.Error(w, "Error rendering template", http.StatusInternalServerError)
		d.logger.Errorf("Error rendering template: %v", err)
	}
}

func parseMountSetupForm(r *http.Request) (Config, error) {
	if err := r.ParseForm(); err != nil {
		return Config{}, fmt.Errorf("error parsing form: %v", err)
	}

	cfg := defaultConfig
	cfg.Target = r.FormValue("target")
	cfg.UseDST = r.FormValue("use-dst") == "true"
	cfg.GuideRate, _ = strconv.Atoi(r.FormValue("guide-rate"))
	cfg.Buzzer, _ = strconv.Atoi(r.FormValue("buzzer"))
	cfg.Latitude, _ = strconv.ParseFloat(r.FormValue("latitude"), 64)
	cfg.Longitude, _ = strconv.ParseFloat(r.FormValue("longitude"), 64)

	cfg.Telemetry.Enabled = r.FormValue("telemetry-enabled") == "true"
	cfg.Telemetry.Host = r.FormValue("mqtt-host")
	cfg.Telemetry.Username = r.FormValue("mqtt-username")
	cfg.Telemetry.Password = r.FormValue("mqtt-password")
	cfg.Telemetry.TopicRoot = r.FormValue("mqtt-topic-root")

	return cfg, nil
}
