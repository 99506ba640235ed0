package netaio

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/valyala/bytebufferpool"
)

// HeaderSize is the fixed on-wire size of a Header: message_type(1) +
// auth_length(4) + body_length(4) + checksum(4).
const HeaderSize = 13

// MaxFrameSize bounds a single auth_length or body_length field to
// guard against a peer declaring an unreasonable allocation.
const MaxFrameSize = 64 << 20

// Header is the fixed-size preamble of every frame on the wire.
type Header struct {
	MessageType MessageType
	AuthLength  uint32
	BodyLength  uint32
	Checksum    uint32
}

// Serialize writes the header's wire representation into dst, which
// must be at least HeaderSize bytes.
func (h Header) Serialize(dst []byte) error {
	if len(dst) < HeaderSize {
		return fmt.Errorf("%w: header buffer too small", ErrMalformedFrame)
	}
	dst[0] = byte(h.MessageType)
	binary.BigEndian.PutUint32(dst[1:5], h.AuthLength)
	binary.BigEndian.PutUint32(dst[5:9], h.BodyLength)
	binary.BigEndian.PutUint32(dst[9:13], h.Checksum)
	return nil
}

// DeserializeHeader parses exactly HeaderSize bytes of data into a Header.
func DeserializeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: short header", ErrMalformedFrame)
	}
	h := Header{
		MessageType: MessageType(data[0]),
		AuthLength:  binary.BigEndian.Uint32(data[1:5]),
		BodyLength:  binary.BigEndian.Uint32(data[5:9]),
		Checksum:    binary.BigEndian.Uint32(data[9:13]),
	}
	if h.AuthLength > MaxFrameSize || h.BodyLength > MaxFrameSize {
		return Header{}, fmt.Errorf("%w: declared length exceeds maximum", ErrFrameTooLarge)
	}
	return h, nil
}

// AuthFields carries named authentication material (HMACs, nonces,
// timestamps, signatures) alongside a message. Plugins read and write
// fields by name so multiple auth layers can share one map without
// colliding, as long as they're configured with distinct field names.
type AuthFields struct {
	Fields map[string][]byte
}

// NewAuthFields returns an AuthFields with an initialized, empty map.
func NewAuthFields() AuthFields {
	return AuthFields{Fields: make(map[string][]byte)}
}

// Get returns the named field and whether it was present.
func (a AuthFields) Get(name string) ([]byte, bool) {
	if a.Fields == nil {
		return nil, false
	}
	v, ok := a.Fields[name]
	return v, ok
}

// Set stores a named field, initializing the map if necessary.
func (a *AuthFields) Set(name string, value []byte) {
	if a.Fields == nil {
		a.Fields = make(map[string][]byte)
	}
	a.Fields[name] = value
}

// Serialize encodes the map deterministically: field count (u16), then
// for each field sorted by name: name_length(u8) + name +
// value_length(u32) + value. Sorting keeps the encoding of a given
// field set byte-stable regardless of map iteration order.
func (a AuthFields) Serialize(buf *bytebufferpool.ByteBuffer) error {
	names := make([]string, 0, len(a.Fields))
	for name := range a.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0xFFFF {
		return fmt.Errorf("%w: too many auth fields", ErrMalformedFrame)
	}

	var countBuf [2]byte
	binary.BigEndian.PutUint16(countBuf[:], uint16(len(names)))
	buf.Write(countBuf[:])

	for _, name := range names {
		if len(name) > 0xFF {
			return fmt.Errorf("%w: auth field name too long", ErrMalformedFrame)
		}
		value := a.Fields[name]
		buf.Write([]byte{byte(len(name))})
		buf.WriteString(name)

		var valLenBuf [4]byte
		binary.BigEndian.PutUint32(valLenBuf[:], uint32(len(value)))
		buf.Write(valLenBuf[:])
		buf.Write(value)
	}
	return nil
}

// DeserializeAuthFields parses the format written by Serialize.
func DeserializeAuthFields(data []byte) (AuthFields, error) {
	af := NewAuthFields()
	if len(data) < 2 {
		if len(data) == 0 {
			return af, nil
		}
		return af, fmt.Errorf("%w: short auth fields", ErrMalformedFrame)
	}
	count := binary.BigEndian.Uint16(data[0:2])
	pos := 2
	for i := uint16(0); i < count; i++ {
		if pos+1 > len(data) {
			return af, fmt.Errorf("%w: truncated auth field name length", ErrMalformedFrame)
		}
		nameLen := int(data[pos])
		pos++
		if pos+nameLen > len(data) {
			return af, fmt.Errorf("%w: truncated auth field name", ErrMalformedFrame)
		}
		name := string(data[pos : pos+nameLen])
		pos += nameLen

		if pos+4 > len(data) {
			return af, fmt.Errorf("%w: truncated auth field value length", ErrMalformedFrame)
		}
		valLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if valLen < 0 || pos+valLen > len(data) {
			return af, fmt.Errorf("%w: truncated auth field value", ErrMalformedFrame)
		}
		value := make([]byte, valLen)
		copy(value, data[pos:pos+valLen])
		pos += valLen

		af.Fields[name] = value
	}
	return af, nil
}

// Body holds the addressed payload of a message: a URI naming the
// resource or handler, and opaque content bytes.
type Body struct {
	URI     string
	Content []byte
}

// Prepare returns a Body with the given content and URI. It mirrors
// the constructor shape used throughout the plugin interfaces, where
// a cipher or auth plugin rebuilds a Body after transforming content.
func Prepare(content []byte, uri string) Body {
	return Body{URI: uri, Content: content}
}

// Serialize appends the wire form of the body to buf: uri_length(u32)
// + uri + content.
func (b Body) Serialize(buf *bytebufferpool.ByteBuffer) error {
	if len(b.URI) > MaxFrameSize {
		return fmt.Errorf("%w: uri too long", ErrMalformedFrame)
	}
	var uriLenBuf [4]byte
	binary.BigEndian.PutUint32(uriLenBuf[:], uint32(len(b.URI)))
	buf.Write(uriLenBuf[:])
	buf.WriteString(b.URI)
	buf.Write(b.Content)
	return nil
}

// DeserializeBody parses the format written by Serialize.
func DeserializeBody(data []byte) (Body, error) {
	if len(data) < 4 {
		return Body{}, fmt.Errorf("%w: short body", ErrMalformedFrame)
	}
	uriLen := int(binary.BigEndian.Uint32(data[0:4]))
	if uriLen < 0 || 4+uriLen > len(data) {
		return Body{}, fmt.Errorf("%w: truncated uri", ErrMalformedFrame)
	}
	uri := string(data[4 : 4+uriLen])
	content := make([]byte, len(data)-4-uriLen)
	copy(content, data[4+uriLen:])
	return Body{URI: uri, Content: content}, nil
}

// Checksum returns the CRC-32 (IEEE polynomial) of the body's wire
// encoding. The checksum covers the body only; auth fields are
// integrity-protected separately by whichever auth plugin is in use.
func (b Body) Checksum() (uint32, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := b.Serialize(buf); err != nil {
		return 0, err
	}
	return crc32.ChecksumIEEE(buf.B), nil
}

// Message is a fully assembled frame: header, auth fields, and body.
type Message struct {
	Header     Header
	AuthFields AuthFields
	Body       Body
}

// NewMessage builds a Message with a correctly computed header from
// the given message type, auth fields, and body.
func NewMessage(mt MessageType, auth AuthFields, body Body) (Message, error) {
	checksum, err := body.Checksum()
	if err != nil {
		return Message{}, err
	}
	authBuf := bytebufferpool.Get()
	defer bytebufferpool.Put(authBuf)
	if err := auth.Serialize(authBuf); err != nil {
		return Message{}, err
	}
	bodyBuf := bytebufferpool.Get()
	defer bytebufferpool.Put(bodyBuf)
	if err := body.Serialize(bodyBuf); err != nil {
		return Message{}, err
	}
	return Message{
		Header: Header{
			MessageType: mt,
			AuthLength:  uint32(authBuf.Len()),
			BodyLength:  uint32(bodyBuf.Len()),
			Checksum:    checksum,
		},
		AuthFields: auth,
		Body:       body,
	}, nil
}

// Serialize writes the full frame (header + auth fields + body) to buf.
func (m Message) Serialize(buf *bytebufferpool.ByteBuffer) error {
	var hdr [HeaderSize]byte
	if err := m.Header.Serialize(hdr[:]); err != nil {
		return err
	}
	buf.Write(hdr[:])
	if err := m.AuthFields.Serialize(buf); err != nil {
		return err
	}
	return m.Body.Serialize(buf)
}

// VerifyChecksum recomputes the body checksum and compares it against
// the header's declared value.
func (m Message) VerifyChecksum() error {
	got, err := m.Body.Checksum()
	if err != nil {
		return err
	}
	if got != m.Header.Checksum {
		return ErrChecksumMismatch
	}
	return nil
}

// WithBody returns a copy of m with a new body and recomputed
// checksum/length, used by cipher and auth plugins that must treat
// messages as immutable values rather than mutating them in place.
func (m Message) WithBody(body Body) (Message, error) {
	checksum, err := body.Checksum()
	if err != nil {
		return Message{}, err
	}
	bodyBuf := bytebufferpool.Get()
	defer bytebufferpool.Put(bodyBuf)
	if err := body.Serialize(bodyBuf); err != nil {
		return Message{}, err
	}
	m.Body = body
	m.Header.BodyLength = uint32(bodyBuf.Len())
	m.Header.Checksum = checksum
	return m, nil
}

// WithAuthFields returns a copy of m with a new auth field set and
// recomputed auth_length.
func (m Message) WithAuthFields(auth AuthFields) (Message, error) {
	authBuf := bytebufferpool.Get()
	defer bytebufferpool.Put(authBuf)
	if err := auth.Serialize(authBuf); err != nil {
		return Message{}, err
	}
	m.AuthFields = auth
	m.Header.AuthLength = uint32(authBuf.Len())
	return m, nil
}
