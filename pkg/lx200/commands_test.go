package lx200

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptPort answers each written command with the next scripted response.
// Bytes a previous exchange did not consume stay readable, so the
// pre-command drain sees them exactly like stale mount output.
type scriptPort struct {
	responses []string
	requests  []string
	buf       []byte
}

func (p *scriptPort) SetReadTimeout(time.Duration) error { return nil }

func (p *scriptPort) Read(b []byte) (int, error) {
	if len(p.buf) == 0 {
		return 0, nil
	}
	b[0] = p.buf[0]
	p.buf = p.buf[1:]
	return 1, nil
}

func (p *scriptPort) Write(b []byte) (int, error) {
	p.requests = append(p.requests, string(b))
	if len(p.responses) > 0 {
		p.buf = append(p.buf, p.responses[0]...)
		p.responses = p.responses[1:]
	}
	return len(b), nil
}

func (p *scriptPort) Close() error { return nil }

func newTestMount(responses ...string) (*Mount, *scriptPort) {
	p := &scriptPort{responses: responses}
	c := &Conn{port: p, target: "test", logger: log.WithField("test", true)}
	return NewMount(c), p
}

func TestIdentify(t *testing.T) {
	tests := []struct {
		name        string
		response    string
		product     string
		expectError bool
	}{
		{name: "AM5", response: "AM5#", product: "AM5"},
		{name: "AM3", response: "AM3#", product: "AM3"},
		{name: "other vendor", response: "LX90#", expectError: true},
		{name: "AM without model digit", response: "AMx#", expectError: true},
		{name: "too short", response: "AM#", expectError: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, p := newTestMount(tc.response)
			product, err := m.Identify()
			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.product, product)
			}
			assert.Equal(t, []string{":GVP#"}, p.requests)
		})
	}
}

func TestSetUTC(t *testing.T) {
	// The ":SC" answer carries two status strings after the ack byte; they
	// must get drained before the next command, not parsed as its answer.
	m, p := newTestMount(
		"1Updating Planetary Data#                #",
		"1",
		"1",
	)

	utc := time.Date(2022, 12, 31, 23, 59, 58, 0, time.UTC)
	require.NoError(t, m.SetUTC(utc, 2, false))

	assert.Equal(t, []string{
		":SC01/01/23#",
		":SG-02#",
		":SL01:59:58#",
	}, p.requests)
}

func TestSetUTCWithDST(t *testing.T) {
	m, p := newTestMount("1", "", "1", "1")
	m.UseDSTCommands = true

	utc := time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.SetUTC(utc, 0, true))

	assert.Equal(t, []string{
		":SC06/15/23#",
		":SH1#",
		":SG+00#",
		":SL12:00:00#",
	}, p.requests)
}

func TestUTC(t *testing.T) {
	m, p := newTestMount("01/01/23#", "01:59:58#", "-02#")

	utc, offset, err := m.UTC()
	require.NoError(t, err)
	assert.Equal(t, 2, offset)
	assert.Equal(t, time.Date(2022, 12, 31, 23, 59, 58, 0, time.UTC), utc.UTC())
	assert.Equal(t, []string{":GC#", ":GL#", ":GG#"}, p.requests)
}

func TestSiderealTime(t *testing.T) {
	m, _ := newTestMount("06:30:00#")

	lst, err := m.SiderealTime()
	require.NoError(t, err)
	assert.InDelta(t, 6.5, lst, 1e-9)
}

func TestSite(t *testing.T) {
	m, p := newTestMount("+41*59#", "337*15#")

	lat, lon, err := m.Site()
	require.NoError(t, err)
	assert.InDelta(t, 41.0+59.0/60, lat, 1e-9)
	assert.InDelta(t, 22.75, lon, 1e-9)
	assert.Equal(t, []string{":Gt#", ":Gg#"}, p.requests)
}

func TestSetSite(t *testing.T) {
	m, p := newTestMount("1", "1")

	require.NoError(t, m.SetSite(41.0+59.0/60, 22.75))
	assert.Equal(t, []string{":St+41*59#", ":Sg337*15#"}, p.requests)
}

func TestSlew(t *testing.T) {
	m, p := newTestMount("1#", "1#", "0#")

	require.NoError(t, m.Slew(5.5, 45.5))
	assert.Equal(t, []string{
		":Sr05:30:00#",
		":Sd+45*30:00#",
		":MS#",
	}, p.requests)
}

func TestSlewDeviceError(t *testing.T) {
	m, _ := newTestMount("1#", "1#", "e5#")

	err := m.Slew(5.5, -89.5)
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, 5, devErr.Code)
	assert.EqualError(t, err, "Target is below horizon")
}

func TestSlewTargetRejected(t *testing.T) {
	m, p := newTestMount("e2#")

	err := m.Slew(5.5, 45.5)
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, 2, devErr.Code)
	// Rejected target must short-circuit; no GoTo goes out.
	assert.Equal(t, []string{":Sr05:30:00#"}, p.requests)
}

func TestSync(t *testing.T) {
	m, p := newTestMount("1#", "1#", "N/A#")

	require.NoError(t, m.Sync(12, -5.25))
	assert.Equal(t, []string{
		":Sr12:00:00#",
		":Sd-05*15:00#",
		":CM#",
	}, p.requests)
}

func TestSyncFailure(t *testing.T) {
	m, _ := newTestMount("1#", "1#", "e2#")

	err := m.Sync(12, -5.25)
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, 2, devErr.Code)
}

// The clamp is lopsided: the floor applies to ra, and an out-of-range dec
// caps ra rather than dec. These cases pin that down.
func TestSetGuideRateClamp(t *testing.T) {
	tests := []struct {
		name     string
		ra, dec  int
		expected string
	}{
		{name: "plain", ra: 50, dec: 50, expected: ":Rg0.5#"},
		{name: "ra floor", ra: 5, dec: 50, expected: ":Rg0.1#"},
		{name: "dec over cap clamps ra", ra: 80, dec: 95, expected: ":Rg0.9#"},
		{name: "ra over cap passes through", ra: 100, dec: 50, expected: ":Rg1.0#"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, p := newTestMount()
			require.NoError(t, m.SetGuideRate(tc.ra, tc.dec))
			assert.Equal(t, []string{tc.expected}, p.requests)
		})
	}
}

func TestGuideRate(t *testing.T) {
	m, _ := newTestMount("0.50#")

	rate, err := m.GuideRate()
	require.NoError(t, err)
	assert.Equal(t, 50, rate)
}

func TestGuidePulses(t *testing.T) {
	t.Run("north wins and clamps", func(t *testing.T) {
		m, p := newTestMount()
		require.NoError(t, m.GuideDec(5000, 200))
		assert.Equal(t, []string{":Mgn3000#"}, p.requests)
	})

	t.Run("south pads to four digits", func(t *testing.T) {
		m, p := newTestMount()
		require.NoError(t, m.GuideDec(0, 150))
		assert.Equal(t, []string{":Mgs0150#"}, p.requests)
	})

	t.Run("west wins over east", func(t *testing.T) {
		m, p := newTestMount()
		require.NoError(t, m.GuideRA(100, 250))
		assert.Equal(t, []string{":Mgw0100#"}, p.requests)
	})

	t.Run("no duration is an error", func(t *testing.T) {
		m, p := newTestMount()
		assert.Error(t, m.GuideDec(0, 0))
		assert.Empty(t, p.requests)
	})
}

func TestStatusFlags(t *testing.T) {
	tests := []struct {
		flags    StatusFlags
		slewing  bool
		tracking bool
		atHome   bool
	}{
		{flags: "GnN", slewing: false, tracking: false, atHome: false},
		{flags: "Gn", slewing: true, tracking: false, atHome: false},
		{flags: "GN", slewing: false, tracking: true, atHome: false},
		{flags: "GnNH", slewing: false, tracking: false, atHome: true},
		{flags: "G", slewing: true, tracking: true, atHome: false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.slewing, tc.flags.Slewing(), "flags %q slewing", tc.flags)
		assert.Equal(t, tc.tracking, tc.flags.Tracking(), "flags %q tracking", tc.flags)
		assert.Equal(t, tc.atHome, tc.flags.AtHome(), "flags %q home", tc.flags)
	}

	assert.True(t, StatusFlags("Gn").Equatorial())
	assert.True(t, StatusFlags("Zn").AltAz())
}

func TestTrackRateSetting(t *testing.T) {
	tests := []struct {
		response    string
		expected    TrackRate
		expectError bool
	}{
		{response: "0#", expected: TrackRateSidereal},
		{response: "1#", expected: TrackRateLunar},
		{response: "2#", expected: TrackRateSolar},
		{response: "x#", expectError: true},
	}

	for _, tc := range tests {
		m, _ := newTestMount(tc.response)
		rate, err := m.TrackRateSetting()
		if tc.expectError {
			assert.Error(t, err)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tc.expected, rate)
	}
}

func TestMoveAndStop(t *testing.T) {
	m, p := newTestMount()

	require.NoError(t, m.Move(DirNorth))
	require.NoError(t, m.StopMove(DirWest))
	require.NoError(t, m.Stop())
	assert.Error(t, m.Move(DirNone))

	assert.Equal(t, []string{":Mn#", ":Qw#", ":Q#"}, p.requests)
}

func TestSideOfPier(t *testing.T) {
	tests := []struct {
		response    string
		expected    PierSide
		expectError bool
	}{
		{response: "W#", expected: PierWest},
		{response: "E#", expected: PierEast},
		{response: "N#", expected: PierUnknown},
		{response: "?#", expectError: true},
	}

	for _, tc := range tests {
		m, _ := newTestMount(tc.response)
		side, err := m.SideOfPier()
		if tc.expectError {
			assert.Error(t, err)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tc.expected, side)
	}
}

func TestBuzzer(t *testing.T) {
	m, p := newTestMount("1#")

	level, err := m.Buzzer()
	require.NoError(t, err)
	assert.Equal(t, BuzzerLevel(1), level)

	require.NoError(t, m.SetBuzzer(2))
	assert.Error(t, m.SetBuzzer(3))

	assert.Equal(t, []string{":GBu#", ":SBu2#"}, p.requests)
}

func TestParseTriplet(t *testing.T) {
	h, m, s, err := parseTriplet("12/31/22")
	require.NoError(t, err)
	assert.Equal(t, []int{12, 31, 22}, []int{h, m, s})

	_, _, _, err = parseTriplet("12/31")
	assert.Error(t, err)

	_, _, _, err = parseTriplet("garbage")
	assert.Error(t, err)
}
