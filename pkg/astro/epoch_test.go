package astro

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	when := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	coords := []struct{ ra, dec float64 }{
		{0, 0},
		{5.5755, 7.407},    // Betelgeuse
		{14.2610, -60.834}, // Alpha Centauri
		{2.5303, 89.264},   // Polaris
		{23.99, -45},
	}

	for _, c := range coords {
		raNow, decNow := FromJ2000(when, c.ra, c.dec)
		ra, dec := ToJ2000(when, raNow, decNow)
		assert.InDelta(t, c.ra, ra, 1e-6, "ra for %v", c)
		assert.InDelta(t, c.dec, dec, 1e-6, "dec for %v", c)
	}
}

func TestPrecessionDirection(t *testing.T) {
	// General precession moves the equinox westward about 50 arcsec per
	// year, so for most of the sky RA of date grows over time.
	when := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	raNow, _ := FromJ2000(when, 12, 0)
	assert.Greater(t, raNow, 12.0)
	assert.InDelta(t, 12.0, raNow, 0.05)
}

func TestIdentityAtEpoch(t *testing.T) {
	when := time.Unix(j2000Unix, 0)
	ra, dec := FromJ2000(when, 6.75, -16.716)
	assert.InDelta(t, 6.75, ra, 1e-9)
	assert.InDelta(t, -16.716, dec, 1e-9)
}

func TestKnownPrecession(t *testing.T) {
	// Over one Julian century the zeta+z sum alone is about 4612.7 arcsec,
	// roughly 307 seconds of RA at the equator.
	when := time.Unix(j2000Unix+36525*86400, 0)
	raNow, _ := FromJ2000(when, 0, 0)
	assert.InDelta(t, 4612.7/15/3600, raNow, 0.005)
}
