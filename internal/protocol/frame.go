// Package protocol implements the length-prefixed frame codec. A frame is a
// 4-byte big-endian header followed by the payload; the header's high bit
// marks a gzip-compressed payload and the low 31 bits carry the payload
// length.
package protocol

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

const (
	headerBytes = 4
	// MaxFrameSize is the largest payload a frame can carry.
	MaxFrameSize = 1<<31 - 1
	// Payloads above this size get gzipped before framing.
	compressionThreshold = 1024
	compressionBit       = uint32(1) << 31
)

// ErrFrameOversize is returned when a message serializes beyond MaxFrameSize.
var ErrFrameOversize = errors.New("frame payload exceeds maximum size")

// Message is anything the codec can put on the wire.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// EncodeFrame serializes m, compresses it when above the threshold, and
// writes header plus payload to w in a single write.
func EncodeFrame(w io.Writer, m Message) error {
	payload, err := m.Marshal()
	if err != nil {
		return errors.Wrap(err, "marshal frame payload")
	}
	if len(payload) > MaxFrameSize {
		return ErrFrameOversize
	}

	header := uint32(len(payload))
	if len(payload) > compressionThreshold {
		var zbuf bytes.Buffer
		zw := gzip.NewWriter(&zbuf)
		if _, err := zw.Write(payload); err != nil {
			return errors.Wrap(err, "gzip frame payload")
		}
		if err := zw.Close(); err != nil {
			return errors.Wrap(err, "gzip frame payload")
		}
		payload = zbuf.Bytes()
		if len(payload) > MaxFrameSize {
			return ErrFrameOversize
		}
		header = uint32(len(payload)) | compressionBit
	}

	buf := make([]byte, headerBytes+len(payload))
	binary.BigEndian.PutUint32(buf[:headerBytes], header)
	copy(buf[headerBytes:], payload)
	if _, err := w.Write(buf); err != nil {
		return errors.Wrap(err, "write frame")
	}
	return nil
}

// DecodeFrame reads one frame from r into m. A short read anywhere in the
// frame is a hard error; the caller is expected to drop the stream.
func DecodeFrame(r io.Reader, m Message) error {
	var header [headerBytes]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return err
		}
		return errors.Wrap(err, "read frame header")
	}

	h := binary.BigEndian.Uint32(header[:])
	length := int(h &^ compressionBit)
	compressed := h&compressionBit != 0

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return errors.Wrap(err, "read frame payload")
	}

	if compressed {
		zr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return errors.Wrap(err, "gunzip frame payload")
		}
		payload, err = io.ReadAll(zr)
		if err != nil {
			return errors.Wrap(err, "gunzip frame payload")
		}
		if err := zr.Close(); err != nil {
			return errors.Wrap(err, "gunzip frame payload")
		}
	}

	if err := m.Unmarshal(payload); err != nil {
		return errors.Wrap(err, "unmarshal frame payload")
	}
	return nil
}
