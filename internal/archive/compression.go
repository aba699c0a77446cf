package archive

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// CompressionOptions configures how diff bodies are stored.
type CompressionOptions struct {
	// Bodies smaller than MinSize are stored as is.
	MinSize int
	// Level is the zstd level, 1 (fastest) to 4 (best). 0 disables
	// compression.
	Level int
}

func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		MinSize: 512,
		Level:   2,
	}
}

// codec compresses diff bodies with pooled zstd encoders and decoders.
type codec struct {
	opts     CompressionOptions
	encoders sync.Pool
	decoders sync.Pool
}

func newCodec(opts CompressionOptions) (*codec, error) {
	if opts.Level < 0 || opts.Level > 4 {
		return nil, fmt.Errorf("compression level %d out of range", opts.Level)
	}

	c := &codec{opts: opts}
	if opts.Level > 0 {
		enc, err := c.newEncoder()
		if err != nil {
			return nil, fmt.Errorf("creating encoder: %w", err)
		}
		c.encoders.Put(enc)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}
	c.decoders.Put(dec)

	return c, nil
}

func (c *codec) newEncoder() (*zstd.Encoder, error) {
	return zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.opts.Level)),
		zstd.WithEncoderConcurrency(1),
	)
}

func (c *codec) encoder() (*zstd.Encoder, error) {
	if enc, ok := c.encoders.Get().(*zstd.Encoder); ok {
		return enc, nil
	}
	return c.newEncoder()
}

func (c *codec) decoder() (*zstd.Decoder, error) {
	if dec, ok := c.decoders.Get().(*zstd.Decoder); ok {
		return dec, nil
	}
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
}

func (c *codec) shouldCompress(size int) bool {
	return c.opts.Level > 0 && size >= c.opts.MinSize
}

// compress returns the stored form of body and whether it was compressed.
func (c *codec) compress(body []byte) ([]byte, bool, error) {
	if !c.shouldCompress(len(body)) {
		return body, false, nil
	}

	enc, err := c.encoder()
	if err != nil {
		return nil, false, fmt.Errorf("creating encoder: %w", err)
	}
	defer c.encoders.Put(enc)

	return enc.EncodeAll(body, make([]byte, 0, len(body)/2)), true, nil
}

// decompress reverses compress for a body stored compressed.
func (c *codec) decompress(stored []byte) ([]byte, error) {
	if len(stored) < len(zstdMagic) || !bytes.Equal(stored[:len(zstdMagic)], zstdMagic) {
		return nil, fmt.Errorf("stored body is not a zstd frame")
	}

	dec, err := c.decoder()
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}
	defer c.decoders.Put(dec)

	out, err := dec.DecodeAll(stored, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	return out, nil
}
