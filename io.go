package netaio

import (
	"fmt"
	"io"
)

// ReadMessage reads one complete frame from r: the fixed-size header,
// then exactly header.AuthLength bytes of auth fields, then exactly
// header.BodyLength bytes of body. Each stage uses io.ReadFull so a
// short read from a slow or misbehaving peer blocks for more data
// instead of silently truncating the frame.
func ReadMessage(r io.Reader) (Message, error) {
	var hdrBuf [HeaderSize]byte
	if _, err := io.ReadFull(r, hdrBuf[:]); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	header, err := DeserializeHeader(hdrBuf[:])
	if err != nil {
		return Message{}, err
	}

	authBuf := make([]byte, header.AuthLength)
	if header.AuthLength > 0 {
		if _, err := io.ReadFull(r, authBuf); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}
	}
	auth, err := DeserializeAuthFields(authBuf)
	if err != nil {
		return Message{}, err
	}

	bodyBuf := make([]byte, header.BodyLength)
	if header.BodyLength > 0 {
		if _, err := io.ReadFull(r, bodyBuf); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}
	}
	body, err := DeserializeBody(bodyBuf)
	if err != nil {
		return Message{}, err
	}

	msg := Message{Header: header, AuthFields: auth, Body: body}
	if err := msg.VerifyChecksum(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// ParseMessage decodes a complete frame from a single buffer, for
// transports like UDP where a read yields one whole datagram rather
// than a byte stream to pull a header, then auth fields, then body
// from in turn.
func ParseMessage(data []byte) (Message, error) {
	if len(data) < HeaderSize {
		return Message{}, fmt.Errorf("%w: short datagram", ErrMalformedFrame)
	}
	header, err := DeserializeHeader(data[:HeaderSize])
	if err != nil {
		return Message{}, err
	}
	pos := HeaderSize
	end := pos + int(header.AuthLength)
	if end > len(data) {
		return Message{}, fmt.Errorf("%w: truncated auth fields", ErrMalformedFrame)
	}
	auth, err := DeserializeAuthFields(data[pos:end])
	if err != nil {
		return Message{}, err
	}
	pos = end
	end = pos + int(header.BodyLength)
	if end > len(data) {
		return Message{}, fmt.Errorf("%w: truncated body", ErrMalformedFrame)
	}
	body, err := DeserializeBody(data[pos:end])
	if err != nil {
		return Message{}, err
	}
	msg := Message{Header: header, AuthFields: auth, Body: body}
	if err := msg.VerifyChecksum(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// EncodeMessage serializes msg into a fresh byte slice, for transports
// that send a whole buffer at once rather than writing to a stream.
func EncodeMessage(msg Message) ([]byte, error) {
	buf := getBuf()
	defer putBuf(buf)
	if err := msg.Serialize(buf); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.B)
	return out, nil
}

// WriteMessage serializes msg and writes it to w in one call.
func WriteMessage(w io.Writer, msg Message) error {
	buf := getBuf()
	defer putBuf(buf)
	if err := msg.Serialize(buf); err != nil {
		return err
	}
	_, err := w.Write(buf.B)
	return err
}
