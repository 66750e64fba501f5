// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package handoff

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/warden-project/warden/lib/capability"
	"github.com/warden-project/warden/lib/codec"
	"github.com/warden-project/warden/lib/scope"
)

// Compression identifies the algorithm behind the envelope's payload.
// Values are protocol constants; changing them breaks envelope
// compatibility.
type Compression uint8

const (
	// CompressionNone stores the CBOR payload as-is. Also the
	// automatic fallback when compression does not shrink the
	// payload.
	CompressionNone Compression = 0

	// CompressionLZ4 applies LZ4 block compression. Fast, modest
	// ratio.
	CompressionLZ4 Compression = 1

	// CompressionZstd applies zstd at the default level. Better
	// ratio for the text-heavy records large profiles produce.
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a compression name as accepted on the
// wardenctl command line.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// envelopeHeaderSize is the 1-byte compression tag plus the 4-byte
// big-endian uncompressed payload length.
const envelopeHeaderSize = 5

// maxPayloadSize caps the declared uncompressed length so a hostile
// envelope cannot turn a few bytes into a giant allocation.
const maxPayloadSize = 16 << 20

// zstd coder pair, reused across calls; both are safe for concurrent
// use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("handoff: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("handoff: zstd decoder initialization failed: " + err.Error())
	}
}

// Encode turns a record into an envelope string: deterministic CBOR,
// the requested compression behind a tag byte, base64. If the
// compressed form is not smaller than the plain CBOR the envelope
// silently carries CompressionNone instead.
func Encode(record *Record, compression Compression) (string, error) {
	if record.Version != FormatVersion {
		return "", fmt.Errorf("encoding record with version %d (current is %d)",
			record.Version, FormatVersion)
	}
	payload, err := codec.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encoding hand-off record: %w", err)
	}
	if len(payload) > maxPayloadSize {
		return "", fmt.Errorf("hand-off record is %d bytes (limit %d)", len(payload), maxPayloadSize)
	}

	compressed, tag, err := compress(payload, compression)
	if err != nil {
		return "", err
	}

	framed := make([]byte, envelopeHeaderSize+len(compressed))
	framed[0] = byte(tag)
	binary.BigEndian.PutUint32(framed[1:envelopeHeaderSize], uint32(len(payload)))
	copy(framed[envelopeHeaderSize:], compressed)
	return base64.StdEncoding.EncodeToString(framed), nil
}

// Decode reverses Encode. It rejects envelopes with unknown
// compression tags, implausible declared sizes, or a format version
// this build does not understand.
func Decode(envelope string) (*Record, error) {
	framed, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return nil, fmt.Errorf("decoding envelope base64: %w", err)
	}
	if len(framed) < envelopeHeaderSize {
		return nil, fmt.Errorf("envelope truncated: %d bytes", len(framed))
	}
	tag := Compression(framed[0])
	declared := int(binary.BigEndian.Uint32(framed[1:envelopeHeaderSize]))
	if declared > maxPayloadSize {
		return nil, fmt.Errorf("envelope declares %d byte payload (limit %d)", declared, maxPayloadSize)
	}

	payload, err := decompress(framed[envelopeHeaderSize:], tag, declared)
	if err != nil {
		return nil, err
	}

	var record Record
	if err := codec.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decoding hand-off record: %w", err)
	}
	if record.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported hand-off format version %d (current is %d)",
			record.Version, FormatVersion)
	}
	return &record, nil
}

// Serialize is the one-call export path: flatten the scope as of now,
// encode, compress, base64.
func Serialize(s *scope.Scope, now time.Time, compression Compression) (string, error) {
	return Encode(Export(s, now), compression)
}

// Deserialize is the one-call import path. The error covers envelope
// decoding only; per-token restoration failures come back in the
// skipped list, exactly as from Import.
func Deserialize(keyring *capability.Keyring, envelope string, opts ImportOptions) (*scope.Scope, []error, error) {
	record, err := Decode(envelope)
	if err != nil {
		return nil, nil, err
	}
	s, skipped := Import(keyring, record, opts)
	return s, skipped, nil
}

func compress(payload []byte, compression Compression) ([]byte, Compression, error) {
	switch compression {
	case CompressionNone:
		return payload, CompressionNone, nil

	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(payload))
		destination := make([]byte, bound)
		written, err := lz4.CompressBlock(payload, destination, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("lz4 compress: %w", err)
		}
		if written == 0 || written >= len(payload) {
			return payload, CompressionNone, nil
		}
		return destination[:written], CompressionLZ4, nil

	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(payload, nil)
		if len(compressed) >= len(payload) {
			return payload, CompressionNone, nil
		}
		return compressed, CompressionZstd, nil

	default:
		return nil, 0, fmt.Errorf("unsupported compression %d", compression)
	}
}

func decompress(compressed []byte, tag Compression, declared int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(compressed) != declared {
			return nil, fmt.Errorf("envelope payload is %d bytes, header declares %d",
				len(compressed), declared)
		}
		return compressed, nil

	case CompressionLZ4:
		destination := make([]byte, declared)
		read, err := lz4.UncompressBlock(compressed, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != declared {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, declared)
		}
		return destination, nil

	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, declared))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != declared {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), declared)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unsupported compression tag %d in envelope", tag)
	}
}
