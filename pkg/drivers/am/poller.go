package am

import (
	"context"
	"time"

	"asimount/pkg/astro"
	"asimount/pkg/lx200"
)

const (
	pollIntervalBusy = 500 * time.Millisecond
	pollIntervalIdle = time.Second
)

// poll refreshes the published status until the context is cancelled. The
// cadence tightens while the mount is slewing or under manual motion and
// relaxes when it is idle.
func (d *Driver) poll(ctx context.Context, m mountAPI) {
	defer d.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		busy := d.pollOnce(m)

		interval := pollIntervalIdle
		if busy {
			interval = pollIntervalBusy
		}
		timer.Reset(interval)
	}
}

// pollOnce reads one round of mount state and folds it into the published
// status. A failed read marks the status stale instead of tearing the
// connection down; the next round recovers on its own. It reports whether
// the mount is busy enough to deserve the faster cadence.
func (d *Driver) pollOnce(m mountAPI) bool {
	now := time.Now()

	ra, dec, coordErr := m.Coordinates()
	flags, statusErr := m.Status()
	if coordErr != nil || statusErr != nil {
		if coordErr != nil {
			d.logger.Warnf("Failed to read coordinates: %v", coordErr)
		}
		if statusErr != nil {
			d.logger.Warnf("Failed to read status: %v", statusErr)
		}
		d.statusMu.Lock()
		d.status.Valid = false
		d.statusMu.Unlock()
		return d.st.moving()
	}

	// The remaining reads still degrade the published status on failure,
	// but the round carries on with whatever it got.
	healthy := true

	pier, err := m.SideOfPier()
	if err != nil {
		d.logger.Warnf("Failed to read pier side: %v", err)
		pier = lx200.PierUnknown
		healthy = false
	}

	utc, _, utcErr := m.UTC()
	if utcErr != nil {
		d.logger.Warnf("Failed to read mount time: %v", utcErr)
		healthy = false
	}

	lst, lstErr := m.SiderealTime()
	if lstErr != nil {
		d.logger.Warnf("Failed to read sidereal time: %v", lstErr)
		healthy = false
	}

	ra2000, dec2000 := astro.ToJ2000(now, ra, dec)
	slewing := flags.Slewing() || d.st.moving()

	var events []Event

	d.statusMu.Lock()
	d.status.RightAscension = ra2000
	d.status.Declination = dec2000
	d.status.Slewing = slewing
	d.status.AtHome = flags.AtHome()
	d.status.AlignmentMode = alignmentMode(flags)
	d.status.Valid = healthy

	trackingChanged := d.status.Tracking != flags.Tracking()
	d.status.Tracking = flags.Tracking()

	if pier != lx200.PierUnknown {
		side := pier.String()
		if side != d.prevPier {
			d.prevPier = side
			d.status.SideOfPier = side
			events = append(events, Event{Kind: EventPierSide, Message: side})
		}
	}

	homeArrived := flags.AtHome() && !d.prevHome
	d.prevHome = flags.AtHome()

	if utcErr == nil {
		d.status.UTCDate = utc.UTC().Format(time.RFC3339)
	}
	if lstErr == nil {
		d.status.SiderealTime = lst
	}

	status := d.status
	d.statusMu.Unlock()

	events = append(events, Event{Kind: EventCoordinates})
	if utcErr == nil || lstErr == nil {
		events = append(events, Event{Kind: EventTime})
	}
	if trackingChanged {
		events = append(events, Event{Kind: EventTracking})
	}
	if homeArrived {
		events = append(events, Event{Kind: EventHome, Message: "mount reached home"})
	}

	for _, ev := range events {
		ev.Status = status
		d.publish(ev)
	}

	return slewing
}
