package am

import (
	"html/template"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"asimount/pkg/alpaca"
	"asimount/pkg/sim"
)

func newSimDriver(t *testing.T) (*Driver, *sim.Mount) {
	t.Helper()

	simMount := sim.NewMount(log.WithField("test", "sim"))
	simMount.SlewDuration = 50 * time.Millisecond
	require.NoError(t, simMount.Listen("127.0.0.1:0"))
	t.Cleanup(simMount.Close)

	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, SetTarget(db, "lx200://"+simMount.Addr()))

	d, err := NewDriver(0, db, template.New("none"), log.WithField("test", "driver"))
	require.NoError(t, err)
	t.Cleanup(d.Close)

	return d, simMount
}

func TestDriverConnectLifecycle(t *testing.T) {
	d, _ := newSimDriver(t)

	assert.False(t, d.Connected())
	require.NoError(t, d.Connect())
	assert.True(t, d.Connected())
	assert.Error(t, d.Connect(), "double connect is rejected")

	st := d.Status()
	assert.True(t, st.Valid)
	assert.True(t, st.Tracking)
	assert.InDelta(t, 12, st.RightAscension, 0.1)
	assert.InDelta(t, 45, st.Declination, 0.5)

	require.NoError(t, d.Disconnect())
	assert.False(t, d.Connected())
	assert.Error(t, d.Disconnect())
}

func TestDriverRejectsForeignMount(t *testing.T) {
	d, s := newSimDriver(t)
	s.Product = "LX90"

	assert.Error(t, d.Connect())
	assert.False(t, d.Connected())
}

func TestDriverSlew(t *testing.T) {
	d, _ := newSimDriver(t)
	require.NoError(t, d.Connect())

	require.NoError(t, d.SlewToCoordinates(6, 30))

	st := d.Status()
	assert.InDelta(t, 6, st.TargetRightAscension, 1e-9)
	assert.InDelta(t, 30, st.TargetDeclination, 1e-9)

	// A poll cycle can pair fresh flags with coordinates read just before
	// the mount landed, so wait for settled flags and coordinates together.
	assert.Eventually(t, func() bool {
		st := d.Status()
		return st.Valid && !st.Slewing &&
			math.Abs(st.RightAscension-6) < 0.1 &&
			math.Abs(st.Declination-30) < 0.5
	}, 3*time.Second, 20*time.Millisecond)
}

func TestInitMountPushesBuzzer(t *testing.T) {
	d := &Driver{logger: log.WithField("test", true)}
	f := newFakeMount()
	f.buzzer = 2
	d.mount = f

	require.NoError(t, d.initMount(Config{GuideRate: 50, Buzzer: 0}))
	assert.Contains(t, f.callLog(), "setbuzzer 0")
	assert.Equal(t, alpaca.AlignGermanPolar, d.Status().AlignmentMode)
}

func TestInitMountKeepsMatchingBuzzer(t *testing.T) {
	d := &Driver{logger: log.WithField("test", true)}
	f := newFakeMount()
	f.buzzer = 1
	d.mount = f

	require.NoError(t, d.initMount(Config{GuideRate: 50, Buzzer: 1}))
	assert.NotContains(t, f.callLog(), "setbuzzer 1")
}

func TestDriverFindHome(t *testing.T) {
	d, _ := newSimDriver(t)
	require.NoError(t, d.Connect())

	var mu sync.Mutex
	var events []EventKind
	d.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev.Kind)
		mu.Unlock()
	})

	require.NoError(t, d.FindHome())
	assert.Eventually(t, func() bool {
		return d.Status().AtHome
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, events, EventHome)
}

func TestDriverSharedSessionWithGuider(t *testing.T) {
	d, _ := newSimDriver(t)
	g := d.Guider(1)

	require.NoError(t, d.Connect())
	require.NoError(t, g.Connect())

	// Dropping the mount must leave the guider's link alive.
	require.NoError(t, d.Disconnect())
	assert.True(t, g.Connected())

	require.NoError(t, g.Pulse(alpaca.GuideNorth, 100*time.Millisecond))
	assert.True(t, g.IsPulseGuiding())
	assert.Eventually(t, func() bool { return !g.IsPulseGuiding() }, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, g.Disconnect())
}

func TestParseMountSetupForm(t *testing.T) {
	form := url.Values{
		"target":     {"lx200://mount:4030"},
		"use-dst":    {"true"},
		"guide-rate": {"70"},
		"buzzer":     {"2"},
		"latitude":   {"41.99"},
		"longitude":  {"-22.75"},
	}
	r := httptest.NewRequest(http.MethodPost, "/setup", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	cfg, err := parseMountSetupForm(r)
	require.NoError(t, err)
	assert.Equal(t, "lx200://mount:4030", cfg.Target)
	assert.True(t, cfg.UseDST)
	assert.Equal(t, 70, cfg.GuideRate)
	assert.Equal(t, 2, cfg.Buzzer)
	assert.InDelta(t, 41.99, cfg.Latitude, 1e-9)
	assert.InDelta(t, -22.75, cfg.Longitude, 1e-9)
}

func TestDriverNotConnectedErrors(t *testing.T) {
	d, _ := newSimDriver(t)

	assert.Error(t, d.SlewToCoordinates(1, 2))
	assert.Error(t, d.SetTracking(true))
	assert.Error(t, d.AbortSlew())
	_, err := d.GuideRate()
	assert.Error(t, err)
}
