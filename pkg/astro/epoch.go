// Package astro provides the epoch conversion between the J2000 catalog
// frame and the equinox of date that the mount works in. Rigid-rotation
// precession with the IAU 1976 angles; good to well under an arcsecond over
// the decades this driver will see, which is far below mount pointing
// accuracy.
package astro

import (
	"math"
	"time"
)

const (
	degToRad    = math.Pi / 180
	hoursToRad  = math.Pi / 12
	arcsecToRad = degToRad / 3600

	// Julian date of the J2000.0 epoch and Unix time of 2000-01-01T12:00Z.
	j2000JD   = 2451545.0
	j2000Unix = 946728000
)

// centuriesSinceJ2000 returns Julian centuries between J2000.0 and t.
func centuriesSinceJ2000(t time.Time) float64 {
	days := float64(t.Unix()-j2000Unix) / 86400
	return days / 36525
}

// precessionAngles returns the IAU 1976 equatorial precession angles
// (zeta, z, theta) in radians for the given interval in Julian centuries.
func precessionAngles(T float64) (zeta, z, theta float64) {
	zeta = (2306.2181*T + 0.30188*T*T + 0.017998*T*T*T) * arcsecToRad
	z = (2306.2181*T + 1.09468*T*T + 0.018203*T*T*T) * arcsecToRad
	theta = (2004.3109*T - 0.42665*T*T - 0.041833*T*T*T) * arcsecToRad
	return
}

// rotate applies the precession rotation for angles (zeta, z, theta) to
// equatorial coordinates given as RA hours and Dec degrees.
func rotate(ra, dec, zeta, z, theta float64) (float64, float64) {
	a := ra*hoursToRad + zeta
	d := dec * degToRad

	sinD, cosD := math.Sincos(d)
	sinA, cosA := math.Sincos(a)
	sinT, cosT := math.Sincos(theta)

	x := cosD * sinA
	y := cosD*cosA*cosT - sinD*sinT
	w := cosD*cosA*sinT + sinD*cosT

	raOut := math.Atan2(x, y) + z
	raOut = math.Mod(raOut/hoursToRad+24, 24)
	return raOut, math.Asin(w) / degToRad
}

// FromJ2000 precesses J2000 coordinates to the equinox of date at t.
// RA is in hours, Dec in degrees.
func FromJ2000(t time.Time, ra, dec float64) (float64, float64) {
	zeta, z, theta := precessionAngles(centuriesSinceJ2000(t))
	return rotate(ra, dec, zeta, z, theta)
}

// ToJ2000 precesses equinox-of-date coordinates at t back to J2000.
func ToJ2000(t time.Time, ra, dec float64) (float64, float64) {
	zeta, z, theta := precessionAngles(centuriesSinceJ2000(t))
	// The inverse rotation swaps zeta and z and negates all three angles.
	return rotate(ra, dec, -z, -zeta, -theta)
}
