package alpaca

import (
	"net/http"
	"time"
)

// Guider is the second logical device on the mount link: it only fires
// timed guide pulses.
type Guider interface {
	Device

	Pulse(direction GuideDirection, duration time.Duration) error
	IsPulseGuiding() bool
}

type GuiderHandler struct {
	DeviceHandler
	dev Guider
}

func NewGuiderHandler(dev Guider) *GuiderHandler {
	return &GuiderHandler{
		DeviceHandler: DeviceHandler{dev: dev},
		dev:           dev,
	}
}

func (gh *GuiderHandler) RegisterRoutes(mux *http.ServeMux) {
	gh.DeviceHandler.RegisterRoutes(mux)

	mux.HandleFunc("GET /ispulseguiding", gh.handleIsPulseGuiding)
	mux.HandleFunc("PUT /pulseguide", gh.handlePulseGuide)
}

func (gh *GuiderHandler) handleIsPulseGuiding(w http.ResponseWriter, r *http.Request) {
	handleResponse(w, r, gh.dev.IsPulseGuiding())
}

func (gh *GuiderHandler) handlePulseGuide(w http.ResponseWriter, r *http.Request) {
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

	if err := gh.dev.Pulse(GuideDirection(direction), time.Duration(duration)*time.Millisecond); err != nil {
		handleError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	handleResponse(w, r, nil)
}
