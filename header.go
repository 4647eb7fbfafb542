package dbus

import (
	"fmt"
	"maps"
	"slices"
)

// MsgType is the type of a DBus message.
type MsgType byte

const (
	MsgCall MsgType = iota + 1
	MsgReturn
	MsgError
	MsgSignal
)

func (t MsgType) String() string {
	switch t {
	case MsgCall:
		return "call"
	case MsgReturn:
		return "return"
	case MsgError:
		return "error"
	case MsgSignal:
		return "signal"
	default:
		return fmt.Sprintf("MsgType(%d)", byte(t))
	}
}

// MsgFlags are the flags of a DBus message.
type MsgFlags byte

const (
	// FlagNoReplyExpected marks a call that does not want a reply.
	FlagNoReplyExpected MsgFlags = 1 << iota
	// FlagNoAutoStart asks the bus not to launch the destination
	// if it is not running.
	FlagNoAutoStart
	// FlagAllowInteractive marks a call whose sender is prepared
	// to wait for an interactive authorization prompt.
	FlagAllowInteractive
)

// header field codes.
const (
	fieldPath        = 1
	fieldInterface   = 2
	fieldMember      = 3
	fieldErrName     = 4
	fieldReplySerial = 5
	fieldDestination = 6
	fieldSender      = 7
	fieldSignature   = 8
	fieldUnixFDs     = 9
)

// headerSignature is the type of a message header, up to but not
// including the padding before the body.
var headerSignature = mustParseSignature("yyyyuua(yv)")

// fieldTypes are the required variant types of the known header
// fields.
var fieldTypes = map[uint8]Signature{
	fieldPath:        sigObjectPath,
	fieldInterface:   sigString,
	fieldMember:      sigString,
	fieldErrName:     sigString,
	fieldReplySerial: sigUint32,
	fieldDestination: sigString,
	fieldSender:      sigString,
	fieldSignature:   sigSignature,
	fieldUnixFDs:     sigUint32,
}

const (
	// protocolVersion is the major version of the DBus protocol.
	protocolVersion = 1
	// maxMessageLen is the maximum length of a complete message,
	// header and body included.
	maxMessageLen = 1 << 27
	// fixedHeaderLen is the length of the header up to the start of
	// the header field array's data.
	fixedHeaderLen = 16
)

// Header is a DBus message header.
type Header struct {
	// Type is the message's type.
	Type MsgType
	// Flags is the message's flag byte.
	Flags MsgFlags
	// Serial is the serial for this message. It must be non-zero.
	Serial uint32

	// Path is the target object for a call, or the source object
	// for a signal. Required for MsgCall and MsgSignal.
	Path ObjectPath
	// Interface is the interface to target for a call, or the
	// source interface for a signal. Required for MsgSignal.
	Interface string
	// Member is the method name for a call, or signal name for a
	// signal. Required for MsgCall and MsgSignal.
	Member string
	// ErrName is the name of the error that occurred. Required
	// for MsgError.
	ErrName string
	// ReplySerial is the message serial to which this message is
	// replying. Required for MsgReturn and MsgError.
	ReplySerial uint32
	// Destination is the target for a message.
	Destination string
	// Sender is the client ID of the message sender. The message
	// bus populates this value itself, any sent value is ignored
	// and removed.
	Sender string
	// Signature is the type signature of the message body.
	Signature Signature
	// NumFDs is the number of file descriptors attached to this
	// message.
	NumFDs uint32

	// Unknown collects unknown header fields present in the
	// message.
	Unknown map[uint8]Variant
}

// Valid checks that the message header is valid for its message type.
func (h *Header) Valid() error {
	if h.Serial == 0 {
		return MessageError{"zero Serial"}
	}
	switch h.Type {
	case 0:
		return MessageError{"message Type 0"}
	case MsgCall:
		if h.Path == "" {
			return MessageError{"missing required header field Path"}
		}
		if h.Member == "" {
			return MessageError{"missing required header field Member"}
		}
	case MsgReturn:
		if h.ReplySerial == 0 {
			return MessageError{"missing required header field ReplySerial"}
		}
	case MsgError:
		if h.ReplySerial == 0 {
			return MessageError{"missing required header field ReplySerial"}
		}
		if h.ErrName == "" {
			return MessageError{"missing required header field ErrName"}
		}
	case MsgSignal:
		if h.Path == "" {
			return MessageError{"missing required header field Path"}
		}
		if h.Interface == "" {
			return MessageError{"missing required header field Interface"}
		}
		if h.Member == "" {
			return MessageError{"missing required header field Member"}
		}
	default:
		// Unknown message types are suspect, but the DBus
		// specification requires us to gracefully allow them.
	}
	return nil
}

// WantReply reports whether this message requires a response.
func (h *Header) WantReply() bool {
	return h.Type == MsgCall && h.Flags&FlagNoReplyExpected == 0
}

// CanInteract reports whether the message's sender is prepared to
// wait for an interactive authorization prompt, if the sender lacks
// the necessary privileges for the message, and the bus or
// destination wish to trigger an interactive prompt.
func (h *Header) CanInteract() bool {
	return h.Type == MsgCall && h.Flags&FlagAllowInteractive != 0
}

// fields returns the header fields array of h.
func (h *Header) fields() []Value {
	var ret []Value
	add := func(code uint8, v Value) {
		ret = append(ret, NewStruct(Byte(code), NewVariant(v)))
	}
	if h.Path != "" {
		add(fieldPath, h.Path)
	}
	if h.Interface != "" {
		add(fieldInterface, String(h.Interface))
	}
	if h.Member != "" {
		add(fieldMember, String(h.Member))
	}
	if h.ErrName != "" {
		add(fieldErrName, String(h.ErrName))
	}
	if h.ReplySerial != 0 {
		add(fieldReplySerial, Uint32(h.ReplySerial))
	}
	if h.Destination != "" {
		add(fieldDestination, String(h.Destination))
	}
	if h.Sender != "" {
		add(fieldSender, String(h.Sender))
	}
	if !h.Signature.IsZero() {
		add(fieldSignature, h.Signature)
	}
	if h.NumFDs != 0 {
		add(fieldUnixFDs, Uint32(h.NumFDs))
	}
	for _, code := range slices.Sorted(maps.Keys(h.Unknown)) {
		ret = append(ret, NewStruct(Byte(code), h.Unknown[code]))
	}
	return ret
}

// setField records the header field code with value v.
func (h *Header) setField(code uint8, v Variant) error {
	want, known := fieldTypes[code]
	if !known {
		if h.Unknown == nil {
			h.Unknown = map[uint8]Variant{}
		}
		h.Unknown[code] = v
		return nil
	}
	if !v.Sig.Equal(want) {
		return MessageError{fmt.Sprintf("header field %d has type %q, want %q", code, v.Sig, want)}
	}
	switch code {
	case fieldPath:
		h.Path = v.Value.(ObjectPath)
	case fieldInterface:
		h.Interface = string(v.Value.(String))
	case fieldMember:
		h.Member = string(v.Value.(String))
	case fieldErrName:
		h.ErrName = string(v.Value.(String))
	case fieldReplySerial:
		h.ReplySerial = uint32(v.Value.(Uint32))
	case fieldDestination:
		h.Destination = string(v.Value.(String))
	case fieldSender:
		h.Sender = string(v.Value.(String))
	case fieldSignature:
		h.Signature = v.Value.(Signature)
	case fieldUnixFDs:
		h.NumFDs = uint32(v.Value.(Uint32))
	}
	return nil
}
