// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checkpoint

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/AleutianAI/beamsearch/services/beam/search"
)

// Format header bytes.
const (
	formatJSON byte = 0x01
	formatZstd byte = 0x02
)

// Codec encodes checkpoints as a one-byte format header followed by JSON,
// optionally zstd-compressed. Decode accepts both formats regardless of
// how the codec was configured.
//
// Thread Safety: Safe for concurrent use.
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCodec creates a codec.
//
// Inputs:
//   - compress: Whether Encode compresses with zstd.
//   - level: zstd level (1-22) when compressing; 0 uses the default.
//
// Outputs:
//   - *Codec: The codec.
//   - error: Non-nil if the zstd encoder or decoder cannot be created.
func NewCodec(compress bool, level int) (*Codec, error) {
	c := &Codec{}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	c.decoder = dec

	if compress {
		opts := []zstd.EOption{}
		if level > 0 {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		}
		enc, err := zstd.NewWriter(nil, opts...)
		if err != nil {
			dec.Close()
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		c.encoder = enc
	}
	return c, nil
}

// Compressed reports whether Encode compresses.
func (c *Codec) Compressed() bool {
	return c.encoder != nil
}

// Encode serializes a checkpoint.
func (c *Codec) Encode(cp *search.Checkpoint) ([]byte, error) {
	body, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	if c.encoder == nil {
		out := make([]byte, 0, len(body)+1)
		out = append(out, formatJSON)
		return append(out, body...), nil
	}
	return c.encoder.EncodeAll(body, []byte{formatZstd}), nil
}

// Decode deserializes a checkpoint.
//
// Outputs:
//   - *search.Checkpoint: The checkpoint.
//   - error: ErrCorrupt for unreadable data, ErrVersion for a layout
//     version other than search.CheckpointVersion.
func (c *Codec) Decode(data []byte) (*search.Checkpoint, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(data))
	}

	body := data[1:]
	switch data[0] {
	case formatJSON:
	case formatZstd:
		var err error
		body, err = c.decoder.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress: %v", ErrCorrupt, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format 0x%02x", ErrCorrupt, data[0])
	}

	var cp search.Checkpoint
	if err := json.Unmarshal(body, &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if cp.Version != search.CheckpointVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, cp.Version)
	}
	return &cp, nil
}

// Close releases the zstd encoder and decoder.
func (c *Codec) Close() {
	if c.encoder != nil {
		_ = c.encoder.Close()
	}
	c.decoder.Close()
}
