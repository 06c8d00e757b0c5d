package alpaca

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTelescope records the last call made through the handler.
type stubTelescope struct {
	status   TelescopeStatus
	lastCall string
	lastRA   float64
	lastDec  float64
	lastAxis int
	lastRate float64
	err      error
}

func (s *stubTelescope) DeviceInfo() DeviceInfo {
	return DeviceInfo{Name: "stub", Type: "Telescope", Number: 0, UniqueID: "stub-uid"}
}

func (s *stubTelescope) DriverInfo() DriverInfo {
	return DriverInfo{Name: "stub", Version: "1.0", InterfaceVersion: 1}
}

func (s *stubTelescope) GetState() []StateProperty { return nil }
func (s *stubTelescope) Connected() bool           { return true }
func (s *stubTelescope) Connecting() bool          { return false }
func (s *stubTelescope) Connect() error            { return s.err }
func (s *stubTelescope) Disconnect() error         { return s.err }

func (s *stubTelescope) Capabilities() TelescopeCapabilities {
	return TelescopeCapabilities{CanSlew: true, CanPulseGuide: true}
}

func (s *stubTelescope) Status() TelescopeStatus { return s.status }

func (s *stubTelescope) SiteCoordinates() (float64, float64, error) {
	return 42, 23, s.err
}

func (s *stubTelescope) SetSiteCoordinates(latitude, longitude float64) error {
	s.lastCall = "setsite"
	s.lastRA, s.lastDec = latitude, longitude
	return s.err
}

func (s *stubTelescope) SetUTCDate(t time.Time) error {
	s.lastCall = "setutcdate"
	return s.err
}

func (s *stubTelescope) SlewToCoordinates(ra, dec float64) error {
	s.lastCall = "slew"
	s.lastRA, s.lastDec = ra, dec
	return s.err
}

func (s *stubTelescope) SyncToCoordinates(ra, dec float64) error {
	s.lastCall = "sync"
	s.lastRA, s.lastDec = ra, dec
	return s.err
}

func (s *stubTelescope) AbortSlew() error {
	s.lastCall = "abort"
	return s.err
}

func (s *stubTelescope) FindHome() error {
	s.lastCall = "findhome"
	return s.err
}

func (s *stubTelescope) SetTracking(on bool) error {
	s.lastCall = "settracking"
	return s.err
}

func (s *stubTelescope) SetTrackingRate(rate DriveRate) error {
	s.lastCall = "settrackingrate"
	return s.err
}

func (s *stubTelescope) MoveAxis(axis int, rate float64) error {
	s.lastCall = "moveaxis"
	s.lastAxis, s.lastRate = axis, rate
	return s.err
}

func (s *stubTelescope) PulseGuide(direction GuideDirection, duration time.Duration) error {
	s.lastCall = "pulseguide"
	return s.err
}

func (s *stubTelescope) GuideRate() (int, error)        { return 50, s.err }
func (s *stubTelescope) SetGuideRate(percent int) error { return s.err }

func newTelescopeMux(dev Telescope) *http.ServeMux {
	mux := http.NewServeMux()
	NewTelescopeHandler(dev).RegisterRoutes(mux)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, target, body string) baseResponse {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, target, reader)
	if method == http.MethodPut {
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var resp baseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestTelescopeStatusRoutes(t *testing.T) {
	dev := &stubTelescope{status: TelescopeStatus{
		RightAscension: 5.5,
		Declination:    -20.25,
		Slewing:        true,
		SideOfPier:     "west",
		AlignmentMode:  AlignGermanPolar,
	}}
	mux := newTelescopeMux(dev)

	resp := doJSON(t, mux, http.MethodGet, "/rightascension", "")
	assert.Equal(t, 5.5, resp.Value)

	resp = doJSON(t, mux, http.MethodGet, "/declination", "")
	assert.Equal(t, -20.25, resp.Value)

	resp = doJSON(t, mux, http.MethodGet, "/slewing", "")
	assert.Equal(t, true, resp.Value)

	resp = doJSON(t, mux, http.MethodGet, "/sideofpier", "")
	assert.Equal(t, "west", resp.Value)

	resp = doJSON(t, mux, http.MethodGet, "/alignmentmode", "")
	assert.Equal(t, float64(AlignGermanPolar), resp.Value)
}

// Each site setter takes one coordinate and keeps the other half as read
// back from the device.
func TestTelescopeSetSiteRoutes(t *testing.T) {
	dev := &stubTelescope{}
	mux := newTelescopeMux(dev)

	resp := doJSON(t, mux, http.MethodPut, "/sitelatitude", "SiteLatitude=-33.85")
	assert.Zero(t, resp.ErrorNumber)
	assert.Equal(t, "setsite", dev.lastCall)
	assert.Equal(t, -33.85, dev.lastRA)
	assert.Equal(t, 23.0, dev.lastDec)

	resp = doJSON(t, mux, http.MethodPut, "/sitelongitude", "SiteLongitude=151.2")
	assert.Zero(t, resp.ErrorNumber)
	assert.Equal(t, 42.0, dev.lastRA)
	assert.Equal(t, 151.2, dev.lastDec)
}

func TestTelescopeSlewRoute(t *testing.T) {
	dev := &stubTelescope{}
	mux := newTelescopeMux(dev)

	resp := doJSON(t, mux, http.MethodPut, "/slewtocoordinatesasync",
		"RightAscension=6.25&Declination=30.5&ClientTransactionID=11")
	assert.Zero(t, resp.ErrorNumber)
	assert.Equal(t, 11, resp.ClientTransactionID)
	assert.Equal(t, "slew", dev.lastCall)
	assert.Equal(t, 6.25, dev.lastRA)
	assert.Equal(t, 30.5, dev.lastDec)
}

func TestTelescopeSlewRouteMissingParam(t *testing.T) {
	dev := &stubTelescope{}
	mux := newTelescopeMux(dev)

	resp := doJSON(t, mux, http.MethodPut, "/slewtocoordinatesasync", "RightAscension=6.25")
	assert.NotZero(t, resp.ErrorNumber)
	assert.Empty(t, dev.lastCall)
}

func TestTelescopeMoveAxisRoute(t *testing.T) {
	dev := &stubTelescope{}
	mux := newTelescopeMux(dev)

	resp := doJSON(t, mux, http.MethodPut, "/moveaxis", "Axis=1&Rate=-3")
	assert.Zero(t, resp.ErrorNumber)
	assert.Equal(t, "moveaxis", dev.lastCall)
	assert.Equal(t, 1, dev.lastAxis)
	assert.Equal(t, -3.0, dev.lastRate)
}

func TestTelescopeDeviceError(t *testing.T) {
	dev := &stubTelescope{err: ErrNotConnected}
	mux := newTelescopeMux(dev)

	resp := doJSON(t, mux, http.MethodPut, "/findhome", "")
	assert.NotZero(t, resp.ErrorNumber)
	assert.Contains(t, resp.ErrorMessage, "not connected")
}
