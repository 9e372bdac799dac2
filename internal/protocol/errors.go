// internal/protocol/errors.go
package protocol

import "errors"

// ErrMalformedPayload is returned when a buffer is too short or carries
// values outside the wire format.
var ErrMalformedPayload = errors.New("protocol: malformed payload")

// ErrEncodeInvariant is returned when a field is not an exact multiple of its
// wire unit, or does not fit its wire byte after scaling.
var ErrEncodeInvariant = errors.New("protocol: encode invariant violated")
