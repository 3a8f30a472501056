package kafkawire

import "encoding/binary"

type encoder struct {
	buf []byte
}

func (e *encoder) int8(v int8) {
	e.buf = append(e.buf, byte(v))
}

func (e *encoder) bool(v bool) {
	if v {
		e.int8(1)
	} else {
		e.int8(0)
	}
}

func (e *encoder) int16(v int16) {
	e.buf = binary.BigEndian.AppendUint16(e.buf, uint16(v))
}

func (e *encoder) int32(v int32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(v))
}

func (e *encoder) string(v string) {
	e.int16(int16(len(v)))
	e.buf = append(e.buf, v...)
}

func (e *encoder) nullableString(v *string) {
	if v == nil {
		e.int16(-1)
		return
	}
	e.string(*v)
}

func (e *encoder) arrayLen(n int) {
	e.int32(int32(n))
}

func (e *encoder) int32Array(vs []int32) {
	e.arrayLen(len(vs))
	for _, v := range vs {
		e.int32(v)
	}
}

func (e *encoder) bytes() []byte {
	return e.buf
}
