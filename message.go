package dbus

import (
	"fmt"

	"github.com/danderson/go-dbus/fragments"
)

// Message is a DBus message.
type Message struct {
	Header
	// Body holds the message's arguments.
	Body []Value
	// Files holds the file descriptors that accompany the message.
	// [UnixFD] values in Body are indices into Files.
	Files *FDTable
}

var headerFieldSignature = mustParseSignature("(yv)")

// MarshalAppend appends the DBus wire encoding of m to bs, in the
// given byte order. len(bs) must be a multiple of 8.
//
// MarshalAppend sets the body signature and file descriptor count in
// m's header to match m.Body, and adds the file descriptors found in
// the body to m.Files, allocating it if needed.
func (m *Message) MarshalAppend(bs []byte, order fragments.ByteOrder) ([]byte, error) {
	if err := m.Valid(); err != nil {
		return nil, err
	}
	sig, err := bodySignature(m.Body)
	if err != nil {
		return nil, err
	}
	if m.Files == nil {
		m.Files = &FDTable{}
	}
	opts := &Options{Order: order}

	var body []byte
	if !sig.IsZero() {
		body, err = Marshal(bodyValue(m.Body), sig, m.Files, opts)
		if err != nil {
			return nil, fmt.Errorf("encoding message body: %w", err)
		}
	}
	m.Signature = sig
	m.NumFDs = uint32(m.Files.Len())

	hdr := NewStruct(
		Byte(order.Flag()),
		Byte(m.Type),
		Byte(m.Flags),
		Byte(protocolVersion),
		Uint32(len(body)),
		Uint32(m.Serial),
		NewArray(headerFieldSignature, m.fields()...),
	)
	start := len(bs)
	ret, err := MarshalAppend(bs, hdr, headerSignature, nil, opts)
	if err != nil {
		return nil, fmt.Errorf("encoding message header: %w", err)
	}
	for len(ret)%8 != 0 {
		ret = append(ret, 0)
	}
	if len(ret)-start+len(body) > maxMessageLen {
		return nil, MessageError{fmt.Sprintf("message length %d exceeds maximum %d", len(ret)-start+len(body), maxMessageLen)}
	}
	return append(ret, body...), nil
}

// Marshal returns the DBus wire encoding of m, in the given byte
// order. See [Message.MarshalAppend].
func (m *Message) Marshal(order fragments.ByteOrder) ([]byte, error) {
	return m.MarshalAppend(nil, order)
}

// bodyValue returns the value to encode for a body of vals, whose
// signature is given by bodySignature.
func bodyValue(vals []Value) Value {
	if len(vals) == 1 {
		return vals[0]
	}
	return Struct{vals}
}

// MessageLen returns the total length of the message that begins
// with prefix, which must hold at least the first 16 bytes of the
// message.
func MessageLen(prefix []byte) (int, error) {
	if len(prefix) < fixedHeaderLen {
		return 0, ErrOutOfBounds
	}
	order, err := fragments.OrderForFlag(prefix[0])
	if err != nil {
		return 0, MessageError{err.Error()}
	}
	bodyLen := order.Uint32(prefix[4:8])
	fieldsLen := order.Uint32(prefix[12:16])
	if bodyLen > maxMessageLen || fieldsLen > maxMessageLen {
		return 0, MessageError{fmt.Sprintf("message length exceeds maximum %d", maxMessageLen)}
	}
	total := alignUp(fixedHeaderLen+int(fieldsLen), 8) + int(bodyLen)
	if total > maxMessageLen {
		return 0, MessageError{fmt.Sprintf("message length %d exceeds maximum %d", total, maxMessageLen)}
	}
	return total, nil
}

// UnmarshalMessage decodes the DBus message held in bs, which must
// be exactly one complete message.
//
// files holds the file descriptors received with the message. cache,
// if not nil, is used to parse the signatures in the message.
func UnmarshalMessage(bs []byte, files *FDTable, cache *SignatureCache) (*Message, error) {
	hdr, opts, bodyStart, err := decodeHeader(bs, cache)
	if err != nil {
		return nil, err
	}
	ret := &Message{
		Header: hdr,
		Files:  files,
	}
	if int(ret.NumFDs) > files.Len() {
		return nil, MessageError{fmt.Sprintf("message has %d file descriptors, only %d received", ret.NumFDs, files.Len())}
	}

	body := bs[bodyStart:]
	switch {
	case ret.Signature.IsZero():
		if len(body) != 0 {
			return nil, MessageError{fmt.Sprintf("%d bytes of body with no body signature", len(body))}
		}
	default:
		bv, err := Unmarshal(body, ret.Signature, files, opts)
		if err != nil {
			return nil, fmt.Errorf("decoding message body: %w", err)
		}
		if ret.Signature.IsMultiple() {
			ret.Body = bv.(Struct).Fields
		} else {
			ret.Body = []Value{bv}
		}
	}

	if err := ret.Valid(); err != nil {
		return nil, err
	}
	return ret, nil
}

// decodeHeader decodes the header of the complete message in bs. It
// returns the header, the decoding options for the body, and the
// offset of the body in bs.
func decodeHeader(bs []byte, cache *SignatureCache) (Header, *Options, int, error) {
	n, err := MessageLen(bs)
	if err != nil {
		return Header{}, nil, 0, err
	}
	if n != len(bs) {
		return Header{}, nil, 0, MessageError{fmt.Sprintf("message is %d bytes, header says %d", len(bs), n)}
	}
	order, _ := fragments.OrderForFlag(bs[0])
	hdrEnd := fixedHeaderLen + int(order.Uint32(bs[12:16]))
	opts := &Options{
		Order:      order,
		Signatures: cache,
	}

	v, err := Unmarshal(bs[:hdrEnd], headerSignature, nil, opts)
	if err != nil {
		return Header{}, nil, 0, fmt.Errorf("decoding message header: %w", err)
	}
	fs := v.(Struct).Fields
	if version := fs[3].(Byte); version != protocolVersion {
		return Header{}, nil, 0, MessageError{fmt.Sprintf("unsupported protocol version %d", version)}
	}
	ret := Header{
		Type:   MsgType(fs[1].(Byte)),
		Flags:  MsgFlags(fs[2].(Byte)),
		Serial: uint32(fs[5].(Uint32)),
	}
	for _, f := range fs[6].(Array).Items {
		field := f.(Struct).Fields
		if err := ret.setField(uint8(field[0].(Byte)), field[1].(Variant)); err != nil {
			return Header{}, nil, 0, err
		}
	}

	bodyStart := alignUp(hdrEnd, 8)
	if err := checkPadding(bs[hdrEnd:bodyStart], hdrEnd); err != nil {
		return Header{}, nil, 0, err
	}
	return ret, opts, bodyStart, nil
}
