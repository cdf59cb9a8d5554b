package batchexecute

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// PayloadMarker identifies the response frame that carries the RPC result.
const PayloadMarker = "wrb.fr"

// ErrNoPayload is returned when a response has no usable payload frame.
var ErrNoPayload = errors.New("no payload frame")

// DecodePayload locates the first line containing PayloadMarker, decodes it,
// and decodes the JSON string held in its third field. The response layout is
//
//	)]}'
//
//	<length>
//	[["wrb.fr","<rpc id>","<json payload>",null,null,null,"generic"]]
//	<length>
//	[["di",123],...]
//
// Only the payload of the first matching frame is returned.
func DecodePayload(raw string) (interface{}, error) {
	for _, line := range strings.Split(raw, "\n") {
		if !strings.Contains(line, PayloadMarker) {
			continue
		}
		var outer []interface{}
		if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &outer); err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
		if len(outer) == 0 {
			return nil, ErrNoPayload
		}
		frame, ok := outer[0].([]interface{})
		if !ok || len(frame) < 3 {
			return nil, ErrNoPayload
		}
		data, ok := frame[2].(string)
		if !ok {
			return nil, ErrNoPayload
		}
		var inner interface{}
		if err := json.Unmarshal([]byte(data), &inner); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		return inner, nil
	}
	return nil, ErrNoPayload
}
