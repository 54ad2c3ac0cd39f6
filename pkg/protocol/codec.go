package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Decode parses one inbound text frame. Frames that are not JSON objects or
// lack the type or sender field are rejected with ErrMalformed; the kind
// itself is not validated here, unknown kinds are the dispatcher's call.
func Decode(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if req.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if req.Sender == "" {
		return nil, fmt.Errorf("%w: missing sender", ErrMalformed)
	}
	return &req, nil
}

// Encode stamps the frame's timestamp from now and renders compact UTF-8
// JSON. Every outbound frame goes through here so no frame leaves the server
// without type and timestamp set.
func Encode(resp *Response, now time.Time) ([]byte, error) {
	resp.Timestamp = now.Format(TimeLayout)
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", resp.Type, err)
	}
	return data, nil
}
