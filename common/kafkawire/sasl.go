package kafkawire

import (
	"bytes"
	"fmt"
)

// SaslHandshakeVersion is the handshake version after which the raw SASL
// tokens are exchanged as bare size prefixed frames.
const SaslHandshakeVersion int16 = 0

const MechanismPlain = "PLAIN"

type SaslHandshakeRequest struct {
	Mechanism string
}

type SaslHandshakeResponse struct {
	ErrorCode         ErrorCode
	EnabledMechanisms []string
}

func EncodeSaslHandshakeRequest(req SaslHandshakeRequest) []byte {
	e := &encoder{}
	e.string(req.Mechanism)
	return e.bytes()
}

func DecodeSaslHandshakeRequest(body []byte) (SaslHandshakeRequest, error) {
	d := newDecoder(body)

	mechanism, err := d.string()
	if err != nil {
		return SaslHandshakeRequest{}, err
	}

	return SaslHandshakeRequest{Mechanism: mechanism}, nil
}

func EncodeSaslHandshakeResponse(resp SaslHandshakeResponse) []byte {
	e := &encoder{}
	e.int16(int16(resp.ErrorCode))
	e.arrayLen(len(resp.EnabledMechanisms))
	for _, mechanism := range resp.EnabledMechanisms {
		e.string(mechanism)
	}
	return e.bytes()
}

func DecodeSaslHandshakeResponse(body []byte) (*SaslHandshakeResponse, error) {
	d := newDecoder(body)

	errorCode, err := d.int16()
	if err != nil {
		return nil, err
	}

	count, err := d.arrayLen(2)
	if err != nil {
		return nil, err
	}

	resp := &SaslHandshakeResponse{ErrorCode: ErrorCode(errorCode)}
	for i := 0; i < count; i++ {
		mechanism, err := d.string()
		if err != nil {
			return nil, err
		}
		resp.EnabledMechanisms = append(resp.EnabledMechanisms, mechanism)
	}

	return resp, nil
}

// PlainToken builds a SASL PLAIN initial response.
func PlainToken(authzid, username, password string) []byte {
	token := make([]byte, 0, len(authzid)+len(username)+len(password)+2)
	token = append(token, authzid...)
	token = append(token, 0)
	token = append(token, username...)
	token = append(token, 0)
	token = append(token, password...)
	return token
}

// ParsePlainToken splits a SASL PLAIN initial response into its parts.
func ParsePlainToken(token []byte) (authzid, username, password string, err error) {
	parts := bytes.Split(token, []byte{0})
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("%w: expected 3 parts, got %d", ErrInvalidToken, len(parts))
	}

	return string(parts[0]), string(parts[1]), string(parts[2]), nil
}
