package store

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/Skryldev/image-convert/adapters/storage"
	"github.com/Skryldev/image-convert/core"
	apperrors "github.com/Skryldev/image-convert/errors"
)

const encodingZstd = "zstd"

// envelope is the serialised form of a result in remote backends. Redis
// stores it whole as CBOR; blob stores keep Payload as the object body and
// the rest as object metadata.
type envelope struct {
	ContentType string `cbor:"1,keyasint"`
	CreatedAt   int64  `cbor:"2,keyasint"` // unix nanoseconds
	ExpiresAt   int64  `cbor:"3,keyasint,omitempty"`
	Encoding    string `cbor:"4,keyasint,omitempty"`
	Size        int    `cbor:"5,keyasint"` // uncompressed payload size
	Checksum    []byte `cbor:"6,keyasint"` // blake3 of the uncompressed payload
	Payload     []byte `cbor:"7,keyasint"`
}

var (
	encMode cbor.EncMode

	// Encoder and Decoder are safe for concurrent use.
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("store: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("store: zstd decoder initialization failed: " + err.Error())
	}
}

// checksum returns the blake3-256 digest of data.
func checksum(data []byte) []byte {
	sum := blake3.Sum256(data)
	return sum[:]
}

// seal builds the envelope for a. Payloads of formats that are not already
// compressed are zstd-compressed when that makes them smaller.
func seal(a core.Artifact, created, expires time.Time) *envelope {
	env := &envelope{
		ContentType: a.ContentType,
		CreatedAt:   created.UnixNano(),
		Size:        len(a.Data),
		Checksum:    checksum(a.Data),
		Payload:     a.Data,
	}
	if !expires.IsZero() {
		env.ExpiresAt = expires.UnixNano()
	}
	if !core.ParseFormat(a.ContentType).Compressed() {
		if z := zstdEncoder.EncodeAll(a.Data, nil); len(z) < len(a.Data) {
			env.Encoding = encodingZstd
			env.Payload = z
		}
	}
	return env
}

func (e *envelope) expiresAt() time.Time {
	if e.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(0, e.ExpiresAt)
}

// open decompresses and verifies the payload and returns the result for id.
func (e *envelope) open(id string) (*core.Result, error) {
	const op = "store.envelope.open"
	data := e.Payload
	switch e.Encoding {
	case "":
	case encodingZstd:
		var err error
		data, err = zstdDecoder.DecodeAll(e.Payload, make([]byte, 0, e.Size))
		if err != nil {
			return nil, apperrors.New(apperrors.CategoryStorage, op, fmt.Errorf("zstd: %w", err))
		}
	default:
		return nil, apperrors.New(apperrors.CategoryStorage, op, fmt.Errorf("unknown encoding %q", e.Encoding))
	}
	if len(data) != e.Size || !bytes.Equal(checksum(data), e.Checksum) {
		return nil, apperrors.New(apperrors.CategoryStorage, op, apperrors.ErrChecksum)
	}
	return &core.Result{
		ID:          id,
		Data:        data,
		ContentType: e.ContentType,
		CreatedAt:   time.Unix(0, e.CreatedAt),
		ExpiresAt:   e.expiresAt(),
		Checksum:    hex.EncodeToString(e.Checksum),
	}, nil
}

func marshalEnvelope(e *envelope) ([]byte, error) {
	return encMode.Marshal(e)
}

func unmarshalEnvelope(data []byte) (*envelope, error) {
	var e envelope
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, apperrors.New(apperrors.CategoryStorage, "store.envelope.decode", err)
	}
	return &e, nil
}

// Object metadata keys used by the blob store.
const (
	metaCreated  = "created-at"
	metaExpires  = "expires-at"
	metaEncoding = "encoding"
	metaSize     = "size"
	metaChecksum = "checksum"
)

// metadata returns every field except Payload as string metadata.
func (e *envelope) metadata() map[string]string {
	m := map[string]string{
		storage.MetaContentType: e.ContentType,
		metaCreated:             strconv.FormatInt(e.CreatedAt, 10),
		metaSize:                strconv.Itoa(e.Size),
		metaChecksum:            hex.EncodeToString(e.Checksum),
	}
	if e.ExpiresAt != 0 {
		m[metaExpires] = strconv.FormatInt(e.ExpiresAt, 10)
	}
	if e.Encoding != "" {
		m[metaEncoding] = e.Encoding
	}
	return m
}

// envelopeFromMetadata is the inverse of metadata. payload may be nil when
// only the header fields are needed.
func envelopeFromMetadata(meta map[string]string, payload []byte) (*envelope, error) {
	const op = "store.envelope.metadata"
	e := &envelope{
		ContentType: meta[storage.MetaContentType],
		Encoding:    meta[metaEncoding],
		Payload:     payload,
	}
	var err error
	if e.CreatedAt, err = strconv.ParseInt(meta[metaCreated], 10, 64); err != nil {
		return nil, apperrors.New(apperrors.CategoryStorage, op, fmt.Errorf("created-at: %w", err))
	}
	if v := meta[metaExpires]; v != "" {
		if e.ExpiresAt, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, apperrors.New(apperrors.CategoryStorage, op, fmt.Errorf("expires-at: %w", err))
		}
	}
	if e.Size, err = strconv.Atoi(meta[metaSize]); err != nil {
		return nil, apperrors.New(apperrors.CategoryStorage, op, fmt.Errorf("size: %w", err))
	}
	if e.Checksum, err = hex.DecodeString(meta[metaChecksum]); err != nil {
		return nil, apperrors.New(apperrors.CategoryStorage, op, fmt.Errorf("checksum: %w", err))
	}
	return e, nil
}
