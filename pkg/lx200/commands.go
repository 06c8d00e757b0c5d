package lx200

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TrackRate selects what the mount tracks while sidereal drive is on.
type TrackRate int

const (
	TrackRateNone TrackRate = iota
	TrackRateSidereal
	TrackRateSolar
	TrackRateLunar
)

func (r TrackRate) String() string {
	switch r {
	case TrackRateSidereal:
		return "sidereal"
	case TrackRateSolar:
		return "solar"
	case TrackRateLunar:
		return "lunar"
	}
	return "none"
}

// SlewRate selects the speed used for directional motion.
type SlewRate int

const (
	SlewRateNone SlewRate = iota
	SlewRateGuide
	SlewRateCentering
	SlewRateFind
	SlewRateMax
)

func (r SlewRate) String() string {
	switch r {
	case SlewRateGuide:
		return "guide"
	case SlewRateCentering:
		return "centering"
	case SlewRateFind:
		return "find"
	case SlewRateMax:
		return "max"
	}
	return "none"
}

// Direction is one of the four manual-motion directions.
type Direction int

const (
	DirNone Direction = iota
	DirNorth
	DirSouth
	DirWest
	DirEast
)

func (d Direction) String() string {
	switch d {
	case DirNorth:
		return "north"
	case DirSouth:
		return "south"
	case DirWest:
		return "west"
	case DirEast:
		return "east"
	}
	return "none"
}

// letter is the protocol suffix shared by the move, stop and pulse commands.
func (d Direction) letter() (byte, bool) {
	switch d {
	case DirNorth:
		return 'n', true
	case DirSouth:
		return 's', true
	case DirWest:
		return 'w', true
	case DirEast:
		return 'e', true
	}
	return 0, false
}

// PierSide reports which side of the pier the tube currently hangs.
type PierSide int

const (
	PierUnknown PierSide = iota
	PierWest
	PierEast
)

func (p PierSide) String() string {
	switch p {
	case PierWest:
		return "west"
	case PierEast:
		return "east"
	}
	return "unknown"
}

// BuzzerLevel is the confirmation-beep volume: 0 off, 1 low, 2 high.
type BuzzerLevel int

/// StatusFlags wraps the character set a ":GU#" query returns. Flag presence
// is all that matters; order is not specified.
type StatusFlags string

// Slewing is true until the firmware raises the slew-complete flag.
func (f StatusFlags) Slewing() bool { return !strings.ContainsRune(string(f), 'N') }

// Tracking is true unless the not-tracking flag is present.
func (f StatusFlags) Tracking() bool { return !strings.ContainsRune(string(f), 'n') }

// AtHome reports the home sensor.
func (f StatusFlags) AtHome() bool { return strings.ContainsRune(string(f), 'H') }

// Equatorial reports equatorial mode; AltAz the alt-azimuth mode.
func (f StatusFlags) Equatorial() bool { return strings.ContainsRune(string(f), 'G') }
func (f StatusFlags) AltAz() bool      { return strings.ContainsRune(string(f), 'Z') }

const (
	// MaxPulse is the longest guide pulse the AM firmware accepts, in
	// milliseconds.
	MaxPulse = 3000

	// productPrefix is the model-string check that gates the handshake.
	productPrefix = "AM"

	responseMax = 127

	// The firmware wants a beat between a slew/sync request and reading its
	// verdict.
	goPulseDelay = 100 * time.Millisecond
)

// Mount speaks the ZWO AM dialect of the LX200 protocol over a shared
// connection. It is stateless; redundant-command suppression lives with the
// caller.
type Mount struct {
	conn *Conn

	// UseDSTCommands enables the ":SH" daylight-saving exchange, which only
	// some firmware revisions accept.
	UseDSTCommands bool
}

func NewMount(conn *Conn) *Mount {
	return &Mount{conn: conn}
}

// Identify reads the product string and rejects anything that is not an AM
// series mount ("AM" followed by a digit).
func (m *Mount) Identify() (string, error) {
	product, err := m.conn.Command(":GVP#", responseMax, 0)
	if err != nil {
		return "", err
	}
	if len(product) < 3 || !strings.HasPrefix(product, productPrefix) ||
		product[2] < '0' || product[2] > '9' {
		return product, fmt.Errorf("not a ZWO AM mount: %q", product)
	}
	return product, nil
}

// FirmwareVersion reads the firmware identification string.
func (m *Mount) FirmwareVersion() (string, error) {
	return m.conn.Command(":GV#", responseMax, 0)
}

// acked sends a command whose only valid response is a single '1'.
func (m *Mount) acked(command string) error {
	response, err := m.conn.Command(command, 1, 0)
	if err != nil {
		return err
	}
	if response != "1" {
		return &ProtocolError{Command: command, Response: response}
	}
	return nil
}

// SetUTC pushes date, UTC offset and local time as three acknowledged
// commands. The device stores the offset with inverted sign relative to the
// civil convention. The ":SC" date command answers '1' followed by two
// status strings; only the first byte is read here, the rest is drained by
// the next exchange.
func (m *Mount) SetUTC(t time.Time, utcOffset int, dst bool) error {
	local := t.UTC().Add(time.Duration(utcOffset) * time.Hour)
	if err := m.acked(fmt.Sprintf(":SC%02d/%02d/%02d#", int(local.Month()), local.Day(), local.Year()%100)); err != nil {
		return err
	}
	if m.UseDSTCommands {
		flag := 0
		if dst {
			flag = 1
		}
		if _, err := m.conn.Command(fmt.Sprintf(":SH%d#", flag), 0, 0); err != nil {
			return err
		}
	}
	if err := m.acked(fmt.Sprintf(":SG%+03d#", -utcOffset)); err != nil {
		return err
	}
	return m.acked(fmt.Sprintf(":SL%02d:%02d:%02d#", local.Hour(), local.Minute(), local.Second()))
}

// UTC reads the mount clock back as a UTC instant plus the civil-convention
// hour offset.
func (m *Mount) UTC() (time.Time, int, error) {
	date, err := m.conn.Command(":GC#", responseMax, 0)
	if err != nil {
		return time.Time{}, 0, err
	}
	month, day, year, err := parseTriplet(date)
	if err != nil {
		return time.Time{}, 0, &ProtocolError{Command: ":GC#", Response: date}
	}

	clock, err := m.conn.Command(":GL#", responseMax, 0)
	if err != nil {
		return time.Time{}, 0, err
	}
	hour, min, sec, err := parseTriplet(clock)
	if err != nil {
		return time.Time{}, 0, &ProtocolError{Command: ":GL#", Response: clock}
	}

	offsetText, err := m.conn.Command(":GG#", responseMax, 0)
	if err != nil {
		return time.Time{}, 0, err
	}
	deviceOffset, err := strconv.Atoi(strings.TrimSpace(offsetText))
	if err != nil {
		return time.Time{}, 0, &ProtocolError{Command: ":GG#", Response: offsetText}
	}
	offset := -deviceOffset

	if m.UseDSTCommands {
		// The DST flag is already folded into the local clock; read it only
		// to keep the exchange identical across firmware revisions.
		if _, err := m.conn.Command(":GH#", responseMax, 0); err != nil {
			return time.Time{}, 0, err
		}
	}

	zone := time.FixedZone("", offset*3600)
	local := time.Date(2000+year, time.Month(month), day, hour, min, sec, 0, zone)
	return local.UTC(), offset, nil
}

// SiderealTime reads the local sidereal time in hours.
func (m *Mount) SiderealTime() (float64, error) {
	response, err := m.conn.Command(":GS#", responseMax, 0)
	if err != nil {
		return 0, err
	}
	h, min, s, err := parseTriplet(response)
	if err != nil {
		return 0, &ProtocolError{Command: ":GS#", Response: response}
	}
	return float64(h) + float64(min)/60 + float64(s)/3600, nil
}

// Site reads latitude and longitude. The device reports longitude in its own
// convention; the value returned here is the standard east-positive form in
// [0, 360).
func (m *Mount) Site() (latitude, longitude float64, err error) {
	response, err := m.conn.Command(":Gt#", responseMax, 0)
	if err != nil {
		return 0, 0, err
	}
	latitude, err = parseSexagesimal(response)
	if err != nil {
		return 0, 0, &ProtocolError{Command: ":Gt#", Response: response}
	}

	response, err = m.conn.Command(":Gg#", responseMax, 0)
	if err != nil {
		return 0, 0, err
	}
	longitude, err = parseSexagesimal(response)
	if err != nil {
		return 0, 0, &ProtocolError{Command: ":Gg#", Response: response}
	}
	return latitude, deviceLongitude(longitude), nil
}

// SetSite pushes latitude and longitude as two acknowledged commands.
func (m *Mount) SetSite(latitude, longitude float64) error {
	if err := m.acked(fmt.Sprintf(":St%s#", formatLatitude(latitude))); err != nil {
		return err
	}
	return m.acked(fmt.Sprintf(":Sg%s#", formatLongitude(deviceLongitude(longitude))))
}

// deviceLongitude converts between the standard east-positive longitude and
// the device convention. The mapping is its own inverse:
// device = (360 - standard) mod 360.
func deviceLongitude(longitude float64) float64 {
	if longitude < 0 {
		longitude += 360
	}
	return math.Mod(360-longitude, 360)
}

// Coordinates reads the current RA (hours) and declination (degrees) in the
// mount's epoch of date.
func (m *Mount) Coordinates() (ra, dec float64, err error) {
	response, err := m.conn.Command(":GR#", responseMax, 0)
	if err != nil {
		return 0, 0, err
	}
	ra, err = parseSexagesimal(response)
	if err != nil {
		return 0, 0, &ProtocolError{Command: ":GR#", Response: response}
	}

	response, err = m.conn.Command(":GD#", responseMax, 0)
	if err != nil {
		return 0, 0, err
	}
	dec, err = parseSexagesimal(response)
	if err != nil {
		return 0, 0, &ProtocolError{Command: ":GD#", Response: response}
	}
	return ra, dec, nil
}

// setTarget loads the firmware's target registers. A non-'1' answer decodes
// to the device error it carries.
func (m *Mount) setTarget(ra, dec float64) error {
	command := fmt.Sprintf(":Sr%s#", formatRA(ra))
	response, err := m.conn.Command(command, responseMax, 0)
	if err != nil {
		return err
	}
	if response != "1" {
		return targetError(command, response)
	}
	command = fmt.Sprintf(":Sd%s#", formatDec(dec))
	response, err = m.conn.Command(command, responseMax, 0)
	if err != nil {
		return err
	}
	if response != "1" {
		return targetError(command, response)
	}
	return nil
}

func targetError(command, response string) error {
	if code := ErrorCode(response); code > 0 {
		return &DeviceError{Code: code}
	}
	return &ProtocolError{Command: command, Response: response}
}

// Slew loads the target and starts a GoTo. Success is a '0' answer to
// ":MS#"; anything else is decoded through the error table.
func (m *Mount) Slew(ra, dec float64) error {
	if err := m.setTarget(ra, dec); err != nil {
		return err
	}
	response, err := m.conn.Command(":MS#", responseMax, goPulseDelay)
	if err != nil {
		return err
	}
	if response != "0" {
		return targetError(":MS#", response)
	}
	return nil
}

// Sync declares the current pointing to be the target coordinates without
// moving. Failure is an 'e'-prefixed answer.
func (m *Mount) Sync(ra, dec float64) error {
	if err := m.setTarget(ra, dec); err != nil {
		return err
	}
	response, err := m.conn.Command(":CM#", responseMax, goPulseDelay)
	if err != nil {
		return err
	}
	if strings.HasPrefix(response, "e") {
		return targetError(":CM#", response)
	}
	return nil
}

// SetGuideRate programs the autoguide rate as a fraction of sidereal. The
// device keeps one shared rate for both axes. The clamp is lopsided on
// purpose: ra is raised to 10, and ra (not dec) is capped to 90 when dec
// exceeds it, matching how ASIAIR drives these mounts.
func (m *Mount) SetGuideRate(ra, dec int) error {
	if ra < 10 {
		ra = 10
	}
	if dec > 90 {
		ra = 90
	}
	_, err := m.conn.Command(fmt.Sprintf(":Rg%.1f#", float64(ra)/100), 0, 0)
	return err
}

// GuideRate reads the shared autoguide rate back as a percentage.
func (m *Mount) GuideRate() (int, error) {
	response, err := m.conn.Command(":Ggr#", responseMax, 0)
	if err != nil {
		return 0, err
	}
	rate, err := strconv.ParseFloat(strings.TrimSpace(response), 64)
	if err != nil {
		return 0, &ProtocolError{Command: ":Ggr#", Response: response}
	}
	return int(math.Round(rate * 100)), nil
}

// SetTracking switches sidereal drive on or off. Fire-and-forget.
func (m *Mount) SetTracking(on bool) error {
	command := ":Td#"
	if on {
		command = ":Te#"
	}
	_, err := m.conn.Command(command, 0, 0)
	return err
}

// SetTrackRate selects the tracking rate. Fire-and-forget.
func (m *Mount) SetTrackRate(rate TrackRate) error {
	var command string
	switch rate {
	case TrackRateSidereal:
		command = ":TQ#"
	case TrackRateSolar:
		command = ":TS#"
	case TrackRateLunar:
		command = ":TL#"
	default:
		return fmt.Errorf("invalid track rate: %d", rate)
	}
	_, err := m.conn.Command(command, 0, 0)
	return err
}

// TrackRateSetting reads the selected tracking rate back.
func (m *Mount) TrackRateSetting() (TrackRate, error) {
	response, err := m.conn.Command(":GT#", responseMax, 0)
	if err != nil {
		return TrackRateNone, err
	}
	switch {
	case strings.ContainsRune(response, '0'):
		return TrackRateSidereal, nil
	case strings.ContainsRune(response, '1'):
		return TrackRateLunar, nil
	case strings.ContainsRune(response, '2'):
		return TrackRateSolar, nil
	}
	return TrackRateNone, &ProtocolError{Command: ":GT#", Response: response}
}

// SetSlewRate selects the manual-motion speed. Fire-and-forget.
func (m *Mount) SetSlewRate(rate SlewRate) error {
	var command string
	switch rate {
	case SlewRateGuide:
		command = ":RG#"
	case SlewRateCentering:
		command = ":RC#"
	case SlewRateFind:
		command = ":RM#"
	case SlewRateMax:
		command = ":RS#"
	default:
		return fmt.Errorf("invalid slew rate: %d", rate)
	}
	_, err := m.conn.Command(command, 0, 0)
	return err
}

// Move starts manual motion in one direction at the selected slew rate.
func (m *Mount) Move(d Direction) error {
	letter, ok := d.letter()
	if !ok {
		return fmt.Errorf("invalid direction: %d", d)
	}
	_, err := m.conn.Command(fmt.Sprintf(":M%c#", letter), 0, 0)
	return err
}

// StopMove stops manual motion in one direction.
func (m *Mount) StopMove(d Direction) error {
	letter, ok := d.letter()
	if !ok {
		return fmt.Errorf("invalid direction: %d", d)
	}
	_, err := m.conn.Command(fmt.Sprintf(":Q%c#", letter), 0, 0)
	return err
}

// Home sends the mount to its home position. Fire-and-forget; arrival shows
// up in the status flags.
func (m *Mount) Home() error {
	_, err := m.conn.Command(":hC#", 0, 0)
	return err
}

// Stop aborts all motion.
func (m *Mount) Stop() error {
	_, err := m.conn.Command(":Q#", 0, 0)
	return err
}

// GuideDec fires one timed pulse on the declination axis. Durations are
// milliseconds; when both are set, north wins. Both zero is an error, since
// there is nothing to send.
func (m *Mount) GuideDec(north, south int) error {
	if north > 0 {
		return m.pulse(DirNorth, north)
	}
	if south > 0 {
		return m.pulse(DirSouth, south)
	}
	return fmt.Errorf("no pulse duration given")
}

// GuideRA fires one timed pulse on the RA axis; west wins over east.
func (m *Mount) GuideRA(west, east int) error {
	if west > 0 {
		return m.pulse(DirWest, west)
	}
	if east > 0 {
		return m.pulse(DirEast, east)
	}
	return fmt.Errorf("no pulse duration given")
}

func (m *Mount) pulse(d Direction, ms int) error {
	if ms > MaxPulse {
		ms = MaxPulse
	}
	letter, _ := d.letter()
	_, err := m.conn.Command(fmt.Sprintf(":Mg%c%04d#", letter, ms), 0, 0)
	return err
}

// Status reads the ":GU#" flag set.
func (m *Mount) Status() (StatusFlags, error) {
	response, err := m.conn.Command(":GU#", responseMax, 0)
	if err != nil {
		return "", err
	}
	return StatusFlags(response), nil
}

// SideOfPier reads the pier side: 'W', 'E', or 'N' for neither.
func (m *Mount) SideOfPier() (PierSide, error) {
	response, err := m.conn.Command(":Gm#", responseMax, 0)
	if err != nil {
		return PierUnknown, err
	}
	switch {
	case strings.ContainsRune(response, 'W'):
		return PierWest, nil
	case strings.ContainsRune(response, 'E'):
		return PierEast, nil
	case strings.ContainsRune(response, 'N'):
		return PierUnknown, nil
	}
	return PierUnknown, &ProtocolError{Command: ":Gm#", Response: response}
}

// SetBuzzer sets the confirmation-beep volume. Fire-and-forget.
func (m *Mount) SetBuzzer(level BuzzerLevel) error {
	if level < 0 || level > 2 {
		return fmt.Errorf("invalid buzzer level: %d", level)
	}
	_, err := m.conn.Command(fmt.Sprintf(":SBu%d#", level), 0, 0)
	return err
}

// Buzzer reads the confirmation-beep volume back.
func (m *Mount) Buzzer() (BuzzerLevel, error) {
	response, err := m.conn.Command(":GBu#", responseMax, 0)
	if err != nil {
		return 0, err
	}
	switch {
	case strings.ContainsRune(response, '0'):
		return 0, nil
	case strings.ContainsRune(response, '1'):
		return 1, nil
	case strings.ContainsRune(response, '2'):
		return 2, nil
	}
	return 0, &ProtocolError{Command: ":GBu#", Response: response}
}

// parseTriplet splits strings like "12/31/22" or "23:59:58" into three
// integers, tolerating whichever separator the firmware uses.
func parseTriplet(s string) (int, int, int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r < '0' || r > '9'
	})
	if len(fields) != 3 {
		return 0, 0, 0, fmt.Errorf("malformed triplet %q", s)
	}
	var v [3]int
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("malformed triplet %q", s)
		}
		v[i] = n
	}
	return v[0], v[1], v[2], nil
}
