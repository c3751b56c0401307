package wolf

import "errors"

// Domain errors for the Wolf bridge package.
var (
	// ErrNoSettings is returned when an MQTT operation is requested but no
	// broker is configured.
	ErrNoSettings = errors.New("wolf: MQTT client is not configured")

	// ErrIntervalNeedsMQTT is returned when interval mode is requested
	// without an MQTT broker.
	ErrIntervalNeedsMQTT = errors.New("wolf: interval mode requires an MQTT server url (mqtt.url)")

	// ErrInvalidCommand is returned by ParseCommand for unusable payloads.
	ErrInvalidCommand = errors.New("wolf: invalid set payload")
)
