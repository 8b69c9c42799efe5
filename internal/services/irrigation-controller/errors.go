package irrigation_controller

import "errors"

var (
	// ErrMalformedPayload: the telemetry is not a JSON object. Dropped at ingestion.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrInvalidParameter: a caller passed a value the engine refuses.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrDeliveryUncertain: the broker did not confirm a command. State was
	// still updated.
	ErrDeliveryUncertain = errors.New("command delivery uncertain")
	// ErrDuplicate: the message id was already processed within the dedup window.
	ErrDuplicate = errors.New("duplicate message")
)
