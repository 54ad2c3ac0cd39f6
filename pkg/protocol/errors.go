package protocol

import "errors"

var (
	// ErrMalformed marks frames that failed JSON decoding or lack required
	// envelope fields. Such frames are dropped without a reply because the
	// sender field cannot be trusted.
	ErrMalformed = errors.New("malformed frame")
)
