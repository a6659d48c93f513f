// ABOUTME: Diagnostic bundles captured when transaction proving fails
// ABOUTME: Encoded as deterministic CBOR and compressed with zstd for offline debugging

package diag

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// FormatVersion is written into every bundle. Decoders reject other versions.
const FormatVersion = 1

// ErrUnsupportedVersion is returned when decoding a bundle of another format.
var ErrUnsupportedVersion = errors.New("unsupported diagnostic bundle version")

// Bundle is a structured execution trace plus the context it was captured in.
type Bundle struct {
	Version       int            `cbor:"version"`
	ID            string         `cbor:"id"`
	AppID         string         `cbor:"app_id"`
	Method        string         `cbor:"method"`
	InteractionID string         `cbor:"interaction_id"`
	Error         string         `cbor:"error"`
	CapturedAt    time.Time      `cbor:"captured_at"`
	Trace         map[string]any `cbor:"trace"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	// zstd encoders and decoders are safe for concurrent use.
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("diag: CBOR encoder initialization failed: " + err.Error())
	}

	// Trace values decode into map[string]any so they can be re-encoded as JSON.
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("diag: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("diag: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("diag: zstd decoder initialization failed: " + err.Error())
	}
}

// Encode serializes b. The same bundle always produces the same bytes.
func Encode(b Bundle) ([]byte, error) {
	if b.Version == 0 {
		b.Version = FormatVersion
	}
	raw, err := encMode.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encoding diagnostic bundle: %w", err)
	}
	return zstdEncoder.EncodeAll(raw, nil), nil
}

// Decode parses data produced by Encode.
func Decode(data []byte) (Bundle, error) {
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return Bundle{}, fmt.Errorf("zstd decompress: %w", err)
	}
	var b Bundle
	if err := decMode.Unmarshal(raw, &b); err != nil {
		return Bundle{}, fmt.Errorf("decoding diagnostic bundle: %w", err)
	}
	if b.Version != FormatVersion {
		return Bundle{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, b.Version)
	}
	return b, nil
}
