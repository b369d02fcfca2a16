package pagestore

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/objectfs/pagestate/pkg/errors"
	"github.com/objectfs/pagestate/pkg/types"
)

// GobSerializer serializes page objects with encoding/gob. Concrete types
// stored behind interfaces must be registered with gob.Register.
type GobSerializer struct{}

// Serialize implements types.Serializer.
func (GobSerializer) Serialize(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerializationFailed, "failed to encode page").
			WithComponent("pagestore")
	}
	return buf.Bytes(), nil
}

// Deserialize implements types.Serializer.
func (GobSerializer) Deserialize(data []byte, into any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(into); err != nil {
		return errors.Wrap(err, errors.ErrCodeDeserializationError, "failed to decode page").
			WithComponent("pagestore")
	}
	return nil
}

// CompressingSerializer gzips the output of another serializer.
type CompressingSerializer struct {
	Inner types.Serializer
	Level int
}

// NewCompressingSerializer wraps inner with gzip at the default level.
func NewCompressingSerializer(inner types.Serializer) *CompressingSerializer {
	return &CompressingSerializer{Inner: inner, Level: gzip.DefaultCompression}
}

// Serialize implements types.Serializer.
func (s *CompressingSerializer) Serialize(v any) ([]byte, error) {
	raw, err := s.Inner.Serialize(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, s.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid compression level %d: %w", s.Level, err)
	}
	if _, err := w.Write(raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerializationFailed, "failed to compress page")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerializationFailed, "failed to compress page")
	}
	return buf.Bytes(), nil
}

// Deserialize implements types.Serializer.
func (s *CompressingSerializer) Deserialize(data []byte, into any) error {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDeserializationError, "failed to open compressed page")
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDeserializationError, "failed to decompress page")
	}
	return s.Inner.Deserialize(raw, into)
}
