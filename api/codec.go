package api

import (
	"encoding/json"
	"fmt"
	"mime"

	"github.com/fxamacker/cbor/v2"
)

const (
	MediaTypeJSON = "application/json"
	MediaTypeCBOR = "application/cbor"
)

// MediaType normalizes a Content-Type header. Anything that is not CBOR is
// treated as JSON.
func MediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err == nil && mt == MediaTypeCBOR {
		return MediaTypeCBOR
	}
	return MediaTypeJSON
}

func Marshal(mediaType string, v any) ([]byte, error) {
	switch MediaType(mediaType) {
	case MediaTypeCBOR:
		return cbor.Marshal(v)
	default:
		return json.Marshal(v)
	}
}

func Unmarshal(mediaType string, data []byte, v any) error {
	var err error
	switch MediaType(mediaType) {
	case MediaTypeCBOR:
		err = cbor.Unmarshal(data, v)
	default:
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		return fmt.Errorf("unmarshal %s: %w", MediaType(mediaType), err)
	}
	return nil
}
