package lx200

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrTimeout is reported (wrapped in a TransportError) when the mount does
// not deliver a response terminator within the read window.
var ErrTimeout = errors.New("response timed out")

// ErrClosed is reported when a command is issued on a closed connection.
var ErrClosed = errors.New("connection is closed")

// TransportError wraps an open/read/write failure on the underlying serial
// port or socket. It aborts the operation in progress; recovery is left to
// the caller, typically by disconnecting.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError means the mount answered, but not with anything this driver
// understands for the command that was sent.
type ProtocolError struct {
	Command  string
	Response string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unexpected response to %s: %q", e.Command, e.Response)
}

// DeviceError is a mount-reported failure, decoded from an "e<code>"
// response.
type DeviceError struct {
	Code int
}

// Error codes the AM firmware reports. Code 0 and anything above 8 have no
// description. The strings match the firmware table verbatim, typos included,
// so logs line up with what other ZWO tooling shows.
var errorStrings = [...]string{
	"",
	"Prameters out of range",
	"Format error",
	"Mount not initialized",
	"Mount is Moving",
	"Target is below horizon",
	"Target is beow the altitude limit",
	"Time and location is not set",
	"Unkonwn error",
}

func (e *DeviceError) Error() string {
	if s := ErrorString(e.Code); s != "" {
		return s
	}
	return fmt.Sprintf("device error %d", e.Code)
}

// ErrorString returns the description for a device error code, or the empty
// string when the code carries none.
func ErrorString(code int) string {
	if code < 0 || code >= len(errorStrings) {
		return ""
	}
	return errorStrings[code]
}

// ErrorCode extracts the numeric code from an "e<digits>" response.
// Responses in any other shape decode to 0.
func ErrorCode(response string) int {
	if !strings.HasPrefix(response, "e") {
		return 0
	}
	code, err := strconv.Atoi(response[1:])
	if err != nil || code < 0 {
		return 0
	}
	return code
}
