package kafkawire

// RequestHeader is the v1 request header.
type RequestHeader struct {
	APIKey        int16
	APIVersion    int16
	CorrelationID int32
	ClientID      *string
}

// EncodeRequest builds the payload of a request frame.
func EncodeRequest(header RequestHeader, body []byte) []byte {
	e := &encoder{}
	e.int16(header.APIKey)
	e.int16(header.APIVersion)
	e.int32(header.CorrelationID)
	e.nullableString(header.ClientID)
	e.buf = append(e.buf, body...)
	return e.bytes()
}

// DecodeRequest splits a request payload into its header and body.
func DecodeRequest(payload []byte) (RequestHeader, []byte, error) {
	d := newDecoder(payload)

	var header RequestHeader
	var err error
	if header.APIKey, err = d.int16(); err != nil {
		return RequestHeader{}, nil, err
	}
	if header.APIVersion, err = d.int16(); err != nil {
		return RequestHeader{}, nil, err
	}
	if header.CorrelationID, err = d.int32(); err != nil {
		return RequestHeader{}, nil, err
	}
	if header.ClientID, err = d.nullableString(); err != nil {
		return RequestHeader{}, nil, err
	}

	return header, d.rest(), nil
}

// EncodeResponse builds the payload of a response frame using the v0
// response header.
func EncodeResponse(correlationID int32, body []byte) []byte {
	e := &encoder{}
	e.int32(correlationID)
	e.buf = append(e.buf, body...)
	return e.bytes()
}

// DecodeResponse splits a response payload into its correlation id and body.
func DecodeResponse(payload []byte) (int32, []byte, error) {
	d := newDecoder(payload)

	correlationID, err := d.int32()
	if err != nil {
		return 0, nil, err
	}

	return correlationID, d.rest(), nil
}
