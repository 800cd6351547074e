package session

import (
	"errors"
	"fmt"
)

// User input errors: reported to the user, no state change.
var (
	ErrEmptyURL      = errors.New("please enter or select a URL")
	ErrNoActiveLayer = errors.New("no layer is currently active")
	ErrNoSelection   = errors.New("please select a feature on the map first")
	ErrNoFeatureID   = errors.New("feature has no ID")
)

// State errors.
var (
	ErrAlreadyLoading = errors.New("layer is already loading")
	ErrNotReady       = errors.New("no layer is ready")
	ErrNoFields       = errors.New("no filterable fields found in layer")
	ErrStaleHandle    = errors.New("stale layer handle")
)

const genericLoadMessage = "Check URL/CORS/Permissions"

// LoadError reports a failed layer load.
type LoadError struct {
	URL string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("error loading layer: %s", UpstreamMessage(e.Err))
}

func (e *LoadError) Unwrap() error { return e.Err }

// messenger is implemented by errors that carry service-supplied messages,
// most specific first.
type messenger interface {
	Messages() []string
}

// UpstreamMessage picks the best message for a load failure: the first
// non-empty service message, then the error text, then a generic hint.
func UpstreamMessage(err error) string {
	if err == nil {
		return genericLoadMessage
	}
	var m messenger
	if errors.As(err, &m) {
		for _, msg := range m.Messages() {
			if msg != "" {
				return msg
			}
		}
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return genericLoadMessage
}

// IsUserError reports whether err is a user input error.
func IsUserError(err error) bool {
	return errors.Is(err, ErrEmptyURL) || errors.Is(err, ErrNoActiveLayer) ||
		errors.Is(err, ErrNoSelection) || errors.Is(err, ErrNoFeatureID)
}
