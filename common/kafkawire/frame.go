package kafkawire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ReadFrame reads one size prefixed frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var sizeBytes [4]byte
	if _, err := io.ReadFull(r, sizeBytes[:]); err != nil {
		return nil, err
	}

	size := int32(binary.BigEndian.Uint32(sizeBytes[:]))
	if size < 0 {
		return nil, fmt.Errorf("%w: frame size %d", ErrInvalidLength, size)
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	return payload, nil
}

// WriteFrame writes payload with its size prefix in a single write.
func WriteFrame(w io.Writer, payload []byte) error {
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)

	_, err := w.Write(frame)
	return err
}
