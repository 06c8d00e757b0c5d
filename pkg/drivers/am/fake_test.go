package am

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"asimount/pkg/lx200"
)

// fakeMount records every protocol call and answers from settable fields.
// Setting fail makes every command-issuing method report a wire error;
// failOn limits the failure to the named calls.
type fakeMount struct {
	mu    sync.Mutex
	calls []string

	fail   bool
	failOn map[string]bool

	product   string
	firmware  string
	ra, dec   float64
	latitude  float64
	longitude float64
	utc       time.Time
	utcOffset int
	sidereal  float64
	flags     lx200.StatusFlags
	pier      lx200.PierSide
	guideRate int
	trackRate lx200.TrackRate
	buzzer    lx200.BuzzerLevel
}

func newFakeMount() *fakeMount {
	return &fakeMount{
		product:   "AM5",
		firmware:  "v1.0",
		ra:        12,
		dec:       45,
		utc:       time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC),
		flags:     "GN",
		pier:      lx200.PierWest,
		guideRate: 50,
		trackRate: lx200.TrackRateSidereal,
	}
}

func (f *fakeMount) record(format string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := fmt.Sprintf(format, args...)
	f.calls = append(f.calls, call)
	if f.fail || f.failOn[strings.Fields(call)[0]] {
		return &lx200.TransportError{Op: "fake", Err: lx200.ErrTimeout}
	}
	return nil
}

func (f *fakeMount) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeMount) Identify() (string, error) {
	return f.product, f.record("identify")
}

func (f *fakeMount) FirmwareVersion() (string, error) {
	return f.firmware, f.record("firmware")
}

func (f *fakeMount) SetUTC(t time.Time, utcOffset int, dst bool) error {
	err := f.record("setutc %s %d", t.UTC().Format(time.RFC3339), utcOffset)
	if err == nil {
		f.utc = t
		f.utcOffset = utcOffset
	}
	return err
}

func (f *fakeMount) UTC() (time.Time, int, error) {
	return f.utc, f.utcOffset, f.record("utc")
}

func (f *fakeMount) SiderealTime() (float64, error) {
	return f.sidereal, f.record("sidereal")
}

func (f *fakeMount) Site() (float64, float64, error) {
	return f.latitude, f.longitude, f.record("site")
}

func (f *fakeMount) SetSite(latitude, longitude float64) error {
	err := f.record("setsite %.4f %.4f", latitude, longitude)
	if err == nil {
		f.latitude, f.longitude = latitude, longitude
	}
	return err
}

func (f *fakeMount) Coordinates() (float64, float64, error) {
	return f.ra, f.dec, f.record("coordinates")
}

func (f *fakeMount) Slew(ra, dec float64) error {
	return f.record("slew %.4f %.4f", ra, dec)
}

func (f *fakeMount) Sync(ra, dec float64) error {
	return f.record("sync %.4f %.4f", ra, dec)
}

func (f *fakeMount) SetGuideRate(ra, dec int) error {
	err := f.record("setguiderate %d", ra)
	if err == nil {
		f.guideRate = ra
	}
	return err
}

func (f *fakeMount) GuideRate() (int, error) {
	return f.guideRate, f.record("guiderate")
}

func (f *fakeMount) SetTracking(on bool) error {
	return f.record("settracking %v", on)
}

func (f *fakeMount) SetTrackRate(rate lx200.TrackRate) error {
	return f.record("settrackrate %s", rate)
}

func (f *fakeMount) TrackRateSetting() (lx200.TrackRate, error) {
	return f.trackRate, f.record("trackratesetting")
}

func (f *fakeMount) SetSlewRate(rate lx200.SlewRate) error {
	return f.record("setslewrate %s", rate)
}

func (f *fakeMount) Move(d lx200.Direction) error {
	return f.record("move %s", d)
}

func (f *fakeMount) StopMove(d lx200.Direction) error {
	return f.record("stopmove %s", d)
}

func (f *fakeMount) Home() error {
	return f.record("home")
}

func (f *fakeMount) Stop() error {
	return f.record("stop")
}

func (f *fakeMount) GuideDec(north, south int) error {
	return f.record("guidedec %d %d", north, south)
}

func (f *fakeMount) GuideRA(west, east int) error {
	return f.record("guidera %d %d", west, east)
}

func (f *fakeMount) Status() (lx200.StatusFlags, error) {
	return f.flags, f.record("status")
}

func (f *fakeMount) SideOfPier() (lx200.PierSide, error) {
	return f.pier, f.record("sideofpier")
}

func (f *fakeMount) SetBuzzer(level lx200.BuzzerLevel) error {
	return f.record("setbuzzer %d", level)
}

func (f *fakeMount) Buzzer() (lx200.BuzzerLevel, error) {
	return f.buzzer, f.record("buzzer")
}
