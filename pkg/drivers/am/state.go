package am

import (
	"fmt"
	"sync"
	"time"

	"asimount/pkg/lx200"
)

// mountAPI is the slice of the protocol codec the driver needs.
// *lx200.Mount satisfies it; tests substitute a scripted fake.
type mountAPI interface {
	Identify() (string, error)
	FirmwareVersion() (string, error)
	SetUTC(t time.Time, utcOffset int, dst bool) error
	UTC() (time.Time, int, error)
	SiderealTime() (float64, error)
	Site() (latitude, longitude float64, err error)
	SetSite(latitude, longitude float64) error
	Coordinates() (ra, dec float64, err error)
	Slew(ra, dec float64) error
	Sync(ra, dec float64) error
	SetGuideRate(ra, dec int) error
	GuideRate() (int, error)
	SetTracking(on bool) error
	SetTrackRate(rate lx200.TrackRate) error
	TrackRateSetting() (lx200.TrackRate, error)
	SetSlewRate(rate lx200.SlewRate) error
	Move(d lx200.Direction) error
	StopMove(d lx200.Direction) error
	Home() error
	Stop() error
	GuideDec(north, south int) error
	GuideRA(west, east int) error
	Status() (lx200.StatusFlags, error)
	SideOfPier() (lx200.PierSide, error)
	SetBuzzer(level lx200.BuzzerLevel) error
	Buzzer() (lx200.BuzzerLevel, error)
}

// mountState caches the last successfully commanded rates and directions so
// the driver never repeats a selection the mount already has, and never
// starts a motion over one still active. Each transition method holds the
// lock across compare, issue and update; a cached field only advances after
// the command went out successfully.
type mountState struct {
	mu        sync.Mutex
	trackRate lx200.TrackRate
	slewRate  lx200.SlewRate
	motionNS  lx200.Direction
	motionWE  lx200.Direction
	guideRate int
}

func (st *mountState) setTrackRate(m mountAPI, rate lx200.TrackRate) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.trackRate == rate {
		return nil
	}
	if err := m.SetTrackRate(rate); err != nil {
		return err
	}
	st.trackRate = rate
	return nil
}

func (st *mountState) setSlewRate(m mountAPI, rate lx200.SlewRate) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.slewRate == rate {
		return nil
	}
	if err := m.SetSlewRate(rate); err != nil {
		return err
	}
	st.slewRate = rate
	return nil
}

func (st *mountState) setGuideRate(m mountAPI, rate int) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.guideRate == rate {
		return nil
	}
	if err := m.SetGuideRate(rate, rate); err != nil {
		return err
	}
	st.guideRate = rate
	return nil
}

// motionDec drives the north/south pair. DirNone stops whatever is running.
// A direction change stops the active motion first and gives up if the stop
// fails, so opposite directions can never be live together.
func (st *mountState) motionDec(m mountAPI, dir lx200.Direction) error {
	if dir != lx200.DirNone && dir != lx200.DirNorth && dir != lx200.DirSouth {
		return fmt.Errorf("invalid declination direction: %s", dir)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.motionNS == dir {
		return nil
	}
	if st.motionNS != lx200.DirNone {
		if err := m.StopMove(st.motionNS); err != nil {
			return err
		}
		st.motionNS = lx200.DirNone
	}
	if dir != lx200.DirNone {
		if err := m.Move(dir); err != nil {
			return err
		}
		st.motionNS = dir
	}
	return nil
}

// motionRA drives the west/east pair with the same discipline.
func (st *mountState) motionRA(m mountAPI, dir lx200.Direction) error {
	if dir != lx200.DirNone && dir != lx200.DirWest && dir != lx200.DirEast {
		return fmt.Errorf("invalid RA direction: %s", dir)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.motionWE == dir {
		return nil
	}
	if st.motionWE != lx200.DirNone {
		if err := m.StopMove(st.motionWE); err != nil {
			return err
		}
		st.motionWE = lx200.DirNone
	}
	if dir != lx200.DirNone {
		if err := m.Move(dir); err != nil {
			return err
		}
		st.motionWE = dir
	}
	return nil
}

// moving reports whether either axis pair has an active manual motion.
func (st *mountState) moving() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.motionNS != lx200.DirNone || st.motionWE != lx200.DirNone
}

// clearMotion forgets any cached motion after a stop-all command.
func (st *mountState) clearMotion() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.motionNS = lx200.DirNone
	st.motionWE = lx200.DirNone
}

// seed primes the caches from values read back at connect time and forgets
// whatever a previous connection left behind.
func (st *mountState) seed(trackRate lx200.TrackRate, guideRate int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.trackRate = trackRate
	st.guideRate = guideRate
	st.slewRate = lx200.SlewRateNone
	st.motionNS = lx200.DirNone
	st.motionWE = lx200.DirNone
}
