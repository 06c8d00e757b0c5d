// Package alpaca implements the subset of the ASCOM Alpaca device API this
// server exposes: the management endpoints, per-device routing, discovery,
// and the JSON transaction envelope.
//
// Documentation: https://ascom-standards.org/api/
package alpaca

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
)

// Global transaction counter
var txCounter atomic.Int32

type baseResponse struct {
	ClientTransactionID int    `json:"ClientTransactionID"`
	ServerTransactionID int    `json:"ServerTransactionID"`
	ErrorNumber         int    `json:"ErrorNumber"`
	ErrorMessage        string `json:"ErrorMessage"`
	Value               any    `json:"Value,omitempty"`
}

// Helper to read and parse the request body as URL-encoded data.
func parseBodyParams(r *http.Request) (url.Values, error) {
	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	// Reset the body so it can be read again later.
	r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	return url.ParseQuery(string(bodyBytes))
}

// requestParams returns the Alpaca parameters of a request: the body for
// PUT, the query string otherwise.
func requestParams(r *http.Request) url.Values {
	if r.Method == http.MethodPut {
		params, _ := parseBodyParams(r)
		return params
	}
	return r.URL.Query()
}

// parseRequest extracts one named parameter, case-insensitively as the
// Alpaca spec requires.
func parseRequest(r *http.Request, field string) (string, error) {
	for param, value := range requestParams(r) {
		if strings.EqualFold(param, field) && len(value) > 0 {
			return value[0], nil
		}
	}
	return "", errors.New("missing field " + field)
}

func parseBoolRequest(r *http.Request, field string) (bool, error) {
	value, err := parseRequest(r, field)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(value)
}

func parseFloatRequest(r *http.Request, field string) (float64, error) {
	value, err := parseRequest(r, field)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(value, 64)
}

func parseIntRequest(r *http.Request, field string) (int, error) {
	value, err := parseRequest(r, field)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}

// getClientTxID obtains the client transaction ID from the request.
func getClientTxID(params url.Values) int {
	for param, value := range params {
		if strings.EqualFold(param, "clienttransactionid") {
			id, _ := strconv.Atoi(value[0])
			if id > 0 {
				return id
			}
		}
	}
	return 0
}
