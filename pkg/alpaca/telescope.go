package alpaca

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

type TelescopeCapabilities struct {
	CanFindHome      bool `json:"CanFindHome"`
	CanMoveAxis      bool `json:"CanMoveAxis"`
	CanPulseGuide    bool `json:"CanPulseGuide"`
	CanSetGuideRates bool `json:"CanSetGuideRates"`
	CanSetTracking   bool `json:"CanSetTracking"`
	CanSlew          bool `json:"CanSlew"`
	CanSync          bool `json:"CanSync"`
}

// AlignmentMode follows the ASCOM AlignmentModes enumeration.
type AlignmentMode int

const (
	AlignAltAz AlignmentMode = iota
	AlignPolar
	AlignGermanPolar
)

// DriveRate follows the ASCOM DriveRates enumeration.
type DriveRate int

const (
	DriveSidereal DriveRate = iota
	DriveLunar
	DriveSolar
)

// GuideDirection follows the ASCOM GuideDirections enumeration.
type GuideDirection int

const (
	GuideNorth GuideDirection = iota
	GuideSouth
	GuideEast
	GuideWest
)

// TelescopeStatus is the published mount state. Coordinates are J2000, RA in
// hours, Dec in degrees. Valid is cleared when a poll cycle failed and the
// values are stale.
type TelescopeStatus struct {
	RightAscension       float64       `json:"RightAscension"`
	Declination          float64       `json:"Declination"`
	TargetRightAscension float64       `json:"TargetRightAscension"`
	TargetDeclination    float64       `json:"TargetDeclination"`
	Slewing              bool          `json:"Slewing"`
	Tracking             bool          `json:"Tracking"`
	AtHome               bool          `json:"AtHome"`
	SideOfPier           string        `json:"SideOfPier"`
	AlignmentMode        AlignmentMode `json:"AlignmentMode"`
	UTCDate              string        `json:"UTCDate"`
	SiderealTime         float64       `json:"SiderealTime"`
	Valid                bool          `json:"Valid"`
}

func (ts TelescopeStatus) ToProperties() []StateProperty {
	return []StateProperty{
		{"RightAscension", ts.RightAscension},
		{"Declination", ts.Declination},
		{"Slewing", ts.Slewing},
		{"Tracking", ts.Tracking},
		{"AtHome", ts.AtHome},
		{"SideOfPier", ts.SideOfPier},
		{"AlignmentMode", ts.AlignmentMode},
		{"UTCDate", ts.UTCDate},
		{"SiderealTime", ts.SiderealTime},
	}
}

type Telescope interface {
	Device

	Capabilities() TelescopeCapabilities
	Status() TelescopeStatus

	SiteCoordinates() (latitude, longitude float64, err error)
	SetSiteCoordinates(latitude, longitude float64) error
	SetUTCDate(t time.Time) error

	SlewToCoordinates(ra, dec float64) error
	SyncToCoordinates(ra, dec float64) error
	AbortSlew() error
	FindHome() error

	SetTracking(on bool) error
	SetTrackingRate(rate DriveRate) error

	// MoveAxis starts manual motion on axis 0 (RA, positive west) or 1
	// (Dec, positive north). The magnitude 1..4 selects the slew rate;
	// rate 0 stops the axis.
	MoveAxis(axis int, rate float64) error

	PulseGuide(direction GuideDirection, duration time.Duration) error
	GuideRate() (int, error)
	SetGuideRate(percent int) error
}

type TelescopeHandler struct {
	DeviceHandler
	dev Telescope
}

func NewTelescopeHandler(dev Telescope) *TelescopeHandler {
	return &TelescopeHandler{
		DeviceHandler: DeviceHandler{dev: dev},
		dev:           dev,
	}
}

func (th *TelescopeHandler) RegisterRoutes(mux *http.ServeMux) {
	th.DeviceHandler.RegisterRoutes(mux)

	mux.HandleFunc("GET /rightascension", th.handleStatus)
	mux.HandleFunc("GET /declination", th.handleStatus)
	mux.HandleFunc("GET /targetrightascension", th.handleStatus)
	mux.HandleFunc("GET /targetdeclination", th.handleStatus)
	mux.HandleFunc("GET /slewing", th.handleStatus)
	mux.HandleFunc("GET /tracking", th.handleStatus)
	mux.HandleFunc("GET /athome", th.handleStatus)
	mux.HandleFunc("GET /sideofpier", th.handleStatus)
	mux.HandleFunc("GET /alignmentmode", th.handleStatus)
	mux.HandleFunc("GET /utcdate", th.handleStatus)
	mux.HandleFunc("GET /siderealtime", th.handleStatus)

	mux.HandleFunc("GET /canfindhome", th.handleCapabilities)
	mux.HandleFunc("GET /canmoveaxis", th.handleCapabilities)
	mux.HandleFunc("GET /canpulseguide", th.handleCapabilities)
	mux.HandleFunc("GET /cansetguiderates", th.handleCapabilities)
	mux.HandleFunc("GET /cansettracking", th.handleCapabilities)
	mux.HandleFunc("GET /canslew", th.handleCapabilities)
	mux.HandleFunc("GET /cansync", th.handleCapabilities)

	mux.HandleFunc("GET /sitelatitude", th.handleSite)
	mux.HandleFunc("GET /sitelongitude", th.handleSite)
	mux.HandleFunc("PUT /sitelatitude", th.handleSetSite)
	mux.HandleFunc("PUT /sitelongitude", th.handleSetSite)
	mux.HandleFunc("PUT /utcdate", th.handleSetUTCDate)

	mux.HandleFunc("PUT /slewtocoordinatesasync", th.handleSlew)
	mux.HandleFunc("PUT /synctocoordinates", th.handleSync)
	mux.HandleFunc("PUT /abortslew", th.handleAbortSlew)
	mux.HandleFunc("PUT /findhome", th.handleFindHome)
	mux.HandleFunc("PUT /tracking", th.handleSetTracking)
	mux.HandleFunc("PUT /trackingrate", th.handleSetTrackingRate)
	mux.HandleFunc("PUT /moveaxis", th.handleMoveAxis)
	mux.HandleFunc("PUT /pulseguide", th.handlePulseGuide)
	mux.HandleFunc("GET /guideratedeclination", th.handleGuideRate)
	mux.HandleFunc("GET /guideraterightascension", th.handleGuideRate)
	mux.HandleFunc("PUT /guideratedeclination", th.handleSetGuideRate)
	mux.HandleFunc("PUT /guideraterightascension", th.handleSetGuideRate)
}

func (th *TelescopeHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	property := r.URL.Path[1:]
	log.Debugf("Telescope property: %s", property)

	status := th.dev.Status()

	switch property {
	case "rightascension":
		handleResponse(w, r, status.RightAscension)
	case "declination":
		handleResponse(w, r, status.Declination)
	case "targetrightascension":
		handleResponse(w, r, status.TargetRightAscension)
	case "targetdeclination":
		handleResponse(w, r, status.TargetDeclination)
	case "slewing":
		handleResponse(w, r, status.Slewing)
	case "tracking":
		handleResponse(w, r, status.Tracking)
	case "athome":
		handleResponse(w, r, status.AtHome)
	case "sideofpier":
		handleResponse(w, r, status.SideOfPier)
	case "alignmentmode":
		handleResponse(w, r, int(status.AlignmentMode))
	case "utcdate":
		handleResponse(w, r, status.UTCDate)
	case "siderealtime":
		handleResponse(w, r, status.SiderealTime)
	default:
		handleError(w, r, http.StatusNotFound, "Property not found")
	}
}

func (th *TelescopeHandler) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	property := r.URL.Path[1:]
	log.Debugf("Telescope property: %s", property)

	cap := th.dev.Capabilities()

	switch property {
	case "canfindhome":
		handleResponse(w, r, cap.CanFindHome)
	case "canmoveaxis":
		handleResponse(w, r, cap.CanMoveAxis)
	case "canpulseguide":
		handleResponse(w, r, cap.CanPulseGuide)
	case "cansetguiderates":
		handleResponse(w, r, cap.CanSetGuideRates)
	case "cansettracking":
		handleResponse(w, r, cap.CanSetTracking)
	case "canslew":
		handleResponse(w, r, cap.CanSlew)
	case "cansync":
		handleResponse(w, r, cap.CanSync)
	default:
		handleError(w, r, http.StatusNotFound, "Property not found")
	}
}

func (th *TelescopeHandler) handleSite(w http.ResponseWriter, r *http.Request) {
	latitude, longitude, err := th.dev.SiteCoordinates()
	if err != nil {
		handleError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if r.URL.Path[1:] == "sitelatitude" {
		handleResponse(w, r, latitude)
	} else {
		handleResponse(w, r, longitude)
	}
}

// handleSetSite covers both PUT sitelatitude and PUT sitelongitude. The mount
// takes the pair in one command, so the untouched half is read back first.
func (th *TelescopeHandler) handleSetSite(w http.ResponseWriter, r *http.Request) {
	latitude, longitude, err := th.dev.SiteCoordinates()
	if err != nil {
		handleError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	if r.URL.Path[1:] == "sitelatitude" {
		latitude, err = parseFloatRequest(r, "SiteLatitude")
	} else {
		longitude, err = parseFloatRequest(r, "SiteLongitude")
	}
	if err != nil {
		handleError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := th.dev.SetSiteCoordinates(latitude, longitude); err != nil {
		handleError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	handleResponse(w, r, nil)
}

func (th *TelescopeHandler) handleSetUTCDate(w http.ResponseWriter, r *http.Request) {
	value, err := parseRequest(r, "UTCDate")
	if err != nil {
		handleError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		handleError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := th.dev.SetUTCDate(t); err != nil {
		handleError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	handleResponse(w, r, nil)
}

func (th *TelescopeHandler) handleSlew(w http.ResponseWriter, r *http.Request) {
	ra, err := parseFloatRequest(r, "RightAscension")
	if err != nil {
		handleError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	dec, err := parseFloatRequest(r, "Declination")
	if err != nil {
		handleError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := th.dev.SlewToCoordinates(ra, dec); err != nil {
		handleError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	handleResponse(w, r, nil)
}

func (th *TelescopeHandler) handleSync(w http.ResponseWriter, r *http.Request) {
	ra, err := parseFloatRequest(r, "RightAscension")
	if err != nil {
		handleError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	dec, err := parseFloatRequest(r, "Declination")
	if err != nil {
		handleError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := th.dev.SyncToCoordinates(ra, dec); err != nil {
		handleError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	handleResponse(w, r, nil)
}

func (th *TelescopeHandler) handleAbortSlew(w http.ResponseWriter, r *http.Request) {
	if err := th.dev.AbortSlew(); err != nil {
		handleError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	handleResponse(w, r, nil)
}

func (th *TelescopeHandler) handleFindHome(w http.ResponseWriter, r *http.Request) {
	if err := th.dev.FindHome(); err != nil {
		handleError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	handleResponse(w, r, nil)
}

func (th *TelescopeHandler) handleSetTracking(w http.ResponseWriter, r *http.Request) {
	on, err := parseBoolRequest(r, "Tracking")
	if err != nil {
		handleError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := th.dev.SetTracking(on); err != nil {
		handleError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	handleResponse(w, r, nil)
}

func (th *TelescopeHandler) handleSetTrackingRate(w http.ResponseWriter, r *http.Request) {
	rate, err := parseIntRequest(r, "TrackingRate")
	if err != nil {
		handleError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := th.dev.SetTrackingRate(DriveRate(rate)); err != nil {
		handleError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	handleResponse(w, r, nil)
}

func (th *TelescopeHandler) handleMoveAxis(w http.ResponseWriter, r *http.Request) {
	axis, err := parseIntRequest(r, "Axis")
	if err != nil {
		handleError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rate, err := parseFloatRequest(r, "Rate")
	if err != nil {
		handleError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := th.dev.MoveAxis(axis, rate); err != nil {
		handleError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	handleResponse(w, r, nil)
}

func (th *TelescopeHandler) handlePulseGuide(w http.ResponseWriter, r *http.Request) {
	direction, err := parseIntRequest(r, "Direction")
	if err != nil {
		handleError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	duration, err := parseIntRequest(r, "Duration")
	if err != nil {
		handleError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := th.dev.PulseGuide(GuideDirection(direction), time.Duration(duration)*time.Millisecond); err != nil {
		handleError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	handleResponse(w, r, nil)
}

func (th *TelescopeHandler) handleGuideRate(w http.ResponseWriter, r *http.Request) {
	rate, err := th.dev.GuideRate()
	if err != nil {
		handleError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	// The mount keeps one shared rate, reported as a fraction of sidereal.
	handleResponse(w, r, float64(rate)/100)
}

func (th *TelescopeHandler) handleSetGuideRate(w http.ResponseWriter, r *http.Request) {
	field := "GuideRateDeclination"
	if r.URL.Path[1:] == "guideraterightascension" {
		field = "GuideRateRightAscension"
	}
	rate, err := parseFloatRequest(r, field)
	if err != nil {
		handleError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := th.dev.SetGuideRate(int(rate * 100)); err != nil {
		handleError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	handleResponse(w, r, nil)
}
