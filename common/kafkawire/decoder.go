package kafkawire

import (
	"encoding/binary"
	"fmt"
)

type decoder struct {
	data []byte
	off  int
}

func newDecoder(data []byte) *decoder {
	return &decoder{data: data}
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || d.off+n > len(d.data) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d of %d", ErrTruncated, n, d.off, len(d.data))
	}

	b := d.data[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) int8() (int8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

func (d *decoder) bool() (bool, error) {
	v, err := d.int8()
	return v != 0, err
}

func (d *decoder) int16() (int16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

func (d *decoder) int32() (int32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (d *decoder) nullableString() (*string, error) {
	n, err := d.int16()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}

	b, err := d.take(int(n))
	if err != nil {
		return nil, err
	}

	s := string(b)
	return &s, nil
}

func (d *decoder) string() (string, error) {
	s, err := d.nullableString()
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", nil
	}
	return *s, nil
}

// arrayLen returns the number of entries of an array, null arrays have a
// length of -1.  Each entry takes at least minEntrySize bytes which lets
// absurd lengths be rejected before anything is allocated.
func (d *decoder) arrayLen(minEntrySize int) (int, error) {
	n, err := d.int32()
	if err != nil {
		return 0, err
	}
	if n < -1 {
		return 0, fmt.Errorf("%w: array length %d", ErrInvalidLength, n)
	}
	if n > 0 && int(n)*minEntrySize > d.remaining() {
		return 0, fmt.Errorf("%w: array of %d entries exceeds message", ErrTruncated, n)
	}
	return int(n), nil
}

func (d *decoder) int32Array() ([]int32, error) {
	n, err := d.arrayLen(4)
	if err != nil {
		return nil, err
	}

	var vs []int32
	for i := 0; i < n; i++ {
		v, err := d.int32()
		if err != nil {
			return nil, err
		}
		vs = append(vs, v)
	}
	return vs, nil
}

func (d *decoder) remaining() int {
	return len(d.data) - d.off
}

func (d *decoder) rest() []byte {
	b := d.data[d.off:]
	d.off = len(d.data)
	return b
}
