package dbus_test

import (
	"errors"
	"testing"

	"github.com/danderson/go-dbus"
	"github.com/danderson/go-dbus/fragments"
	"github.com/google/go-cmp/cmp"
)

func TestMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  dbus.Message
	}{
		{
			"call",
			dbus.Message{
				Header: dbus.Header{
					Type:        dbus.MsgCall,
					Serial:      1,
					Path:        "/org/freedesktop/DBus",
					Interface:   "org.freedesktop.DBus",
					Member:      "Hello",
					Destination: "org.freedesktop.DBus",
				},
			},
		},
		{
			"call with body",
			dbus.Message{
				Header: dbus.Header{
					Type:      dbus.MsgCall,
					Flags:     dbus.FlagNoAutoStart,
					Serial:    42,
					Path:      "/a/b",
					Interface: "org.example.Thing",
					Member:    "Set",
				},
				Body: []dbus.Value{
					dbus.String("key"),
					dbus.NewVariant(dbus.Uint32(7)),
					dbus.NewArray(mustSigNoT("x"), dbus.Int64(-1)),
				},
			},
		},
		{
			"return",
			dbus.Message{
				Header: dbus.Header{
					Type:        dbus.MsgReturn,
					Serial:      2,
					ReplySerial: 1,
					Sender:      ":1.5",
				},
				Body: []dbus.Value{dbus.String(":1.6")},
			},
		},
		{
			"error",
			dbus.Message{
				Header: dbus.Header{
					Type:        dbus.MsgError,
					Serial:      3,
					ReplySerial: 1,
					ErrName:     "org.example.Error.Nope",
				},
				Body: []dbus.Value{dbus.String("nope")},
			},
		},
		{
			"signal",
			dbus.Message{
				Header: dbus.Header{
					Type:      dbus.MsgSignal,
					Serial:    4,
					Path:      "/",
					Interface: "org.example.Thing",
					Member:    "Changed",
				},
				Body: []dbus.Value{dbus.NewStruct(dbus.Byte(1), dbus.Double(2.5))},
			},
		},
		{
			"unknown header field",
			dbus.Message{
				Header: dbus.Header{
					Type:   dbus.MsgCall,
					Serial: 5,
					Path:   "/",
					Member: "M",
					Unknown: map[uint8]dbus.Variant{
						200: dbus.NewVariant(dbus.String("extra")),
						201: dbus.NewVariant(dbus.NewStruct(dbus.Int32(1), dbus.Bool(true))),
					},
				},
			},
		},
	}

	for _, tc := range tests {
		for _, order := range []fragments.ByteOrder{le, be} {
			t.Run(tc.name+"/"+orderName(order), func(t *testing.T) {
				msg := tc.msg
				bs, err := msg.Marshal(order)
				if err != nil {
					t.Fatalf("Marshal got err: %v", err)
				}
				if bs[0] != order.Flag() {
					t.Errorf("byte order flag is %q, want %q", bs[0], order.Flag())
				}
				if dbus.MsgType(bs[1]) != msg.Type {
					t.Errorf("message type byte is %d, want %d", bs[1], msg.Type)
				}
				if bs[3] != 1 {
					t.Errorf("protocol version is %d, want 1", bs[3])
				}
				if got := order.Uint32(bs[8:12]); got != msg.Serial {
					t.Errorf("serial is %d, want %d", got, msg.Serial)
				}
				n, err := dbus.MessageLen(bs[:16])
				if err != nil {
					t.Fatalf("MessageLen got err: %v", err)
				}
				if n != len(bs) {
					t.Errorf("MessageLen got %d, want %d", n, len(bs))
				}

				got, err := dbus.UnmarshalMessage(bs, nil, nil)
				if err != nil {
					t.Fatalf("UnmarshalMessage got err: %v", err)
				}
				if diff := cmp.Diff(got.Header, msg.Header); diff != "" {
					t.Errorf("UnmarshalMessage wrong header (-got+want):\n%s", diff)
				}
				if diff := cmp.Diff(got.Body, msg.Body); diff != "" {
					t.Errorf("UnmarshalMessage wrong body (-got+want):\n%s", diff)
				}
			})
		}
	}
}

func TestMessageBodySignature(t *testing.T) {
	msg := dbus.Message{
		Header: dbus.Header{
			Type:   dbus.MsgCall,
			Serial: 1,
			Path:   "/",
			Member: "M",
		},
		Body: []dbus.Value{dbus.String("a"), mustDict(t, "s", "v")},
	}
	if _, err := msg.Marshal(le); err != nil {
		t.Fatal(err)
	}
	if got, want := msg.Signature.String(), "sa{sv}"; got != want {
		t.Errorf("Marshal set body signature %q, want %q", got, want)
	}
	if !msg.Signature.IsMultiple() {
		t.Errorf("body signature %q is not a multiple type signature", msg.Signature)
	}

	msg.Body = msg.Body[:1]
	if _, err := msg.Marshal(le); err != nil {
		t.Fatal(err)
	}
	if got, want := msg.Signature.String(), "s"; got != want {
		t.Errorf("Marshal set body signature %q, want %q", got, want)
	}
}

func TestMessageFDs(t *testing.T) {
	msg := dbus.Message{
		Header: dbus.Header{
			Type:   dbus.MsgCall,
			Serial: 1,
			Path:   "/",
			Member: "TakeFiles",
		},
		Body: []dbus.Value{
			dbus.NewArray(mustSig(t, "h"), dbus.UnixFD(7), dbus.UnixFD(9), dbus.UnixFD(7)),
		},
	}
	bs, err := msg.Marshal(le)
	if err != nil {
		t.Fatal(err)
	}
	if msg.NumFDs != 2 {
		t.Errorf("Marshal set NumFDs %d, want 2", msg.NumFDs)
	}
	if diff := cmp.Diff(msg.Files.FDs(), []int{7, 9}); diff != "" {
		t.Errorf("Marshal collected wrong files (-got+want):\n%s", diff)
	}

	got, err := dbus.UnmarshalMessage(bs, dbus.NewFDTable(7, 9), nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got.Body, msg.Body); diff != "" {
		t.Errorf("UnmarshalMessage wrong body (-got+want):\n%s", diff)
	}

	if _, err := dbus.UnmarshalMessage(bs, dbus.NewFDTable(7), nil); err == nil {
		t.Errorf("UnmarshalMessage with missing files succeeded, want error")
	}
}

func TestMessageValid(t *testing.T) {
	tests := []struct {
		name string
		hdr  dbus.Header
	}{
		{"zero serial", dbus.Header{Type: dbus.MsgCall, Path: "/", Member: "M"}},
		{"zero type", dbus.Header{Serial: 1}},
		{"call without path", dbus.Header{Type: dbus.MsgCall, Serial: 1, Member: "M"}},
		{"call without member", dbus.Header{Type: dbus.MsgCall, Serial: 1, Path: "/"}},
		{"return without reply serial", dbus.Header{Type: dbus.MsgReturn, Serial: 1}},
		{"error without name", dbus.Header{Type: dbus.MsgError, Serial: 1, ReplySerial: 1}},
		{"signal without interface", dbus.Header{Type: dbus.MsgSignal, Serial: 1, Path: "/", Member: "S"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.hdr.Valid(); err == nil {
				t.Fatalf("Valid() succeeded, want error")
			}
			msg := dbus.Message{Header: tc.hdr}
			_, err := msg.Marshal(le)
			var merr dbus.MessageError
			if !errors.As(err, &merr) {
				t.Errorf("Marshal got err %v, want MessageError", err)
			}
		})
	}

	unknown := dbus.Header{Type: dbus.MsgType(9), Serial: 1}
	if err := unknown.Valid(); err != nil {
		t.Errorf("Valid() for unknown message type got err: %v", err)
	}
}

func TestUnmarshalMessageErrors(t *testing.T) {
	msg := dbus.Message{
		Header: dbus.Header{
			Type:   dbus.MsgCall,
			Serial: 1,
			Path:   "/",
			Member: "M",
		},
		Body: []dbus.Value{dbus.Uint32(1)},
	}
	good, err := msg.Marshal(le)
	if err != nil {
		t.Fatal(err)
	}
	mutate := func(f func([]byte) []byte) []byte {
		bs := append([]byte(nil), good...)
		return f(bs)
	}

	tests := []struct {
		name string
		in   []byte
	}{
		{"truncated", good[:len(good)-1]},
		{"trailing", append(append([]byte(nil), good...), 0)},
		{"short prefix", good[:8]},
		{"bad byte order", mutate(func(bs []byte) []byte { bs[0] = 'x'; return bs })},
		{"bad version", mutate(func(bs []byte) []byte { bs[3] = 2; return bs })},
		{"zero serial", mutate(func(bs []byte) []byte { clear(bs[8:12]); return bs })},
		{"huge body", mutate(func(bs []byte) []byte { le.PutUint32(bs[4:8], 1<<28); return bs })},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := dbus.UnmarshalMessage(tc.in, nil, nil)
			if err == nil {
				t.Fatalf("UnmarshalMessage succeeded with %+v, want error", got.Header)
			}
		})
	}

	if _, err := dbus.MessageLen(good[:15]); !errors.Is(err, dbus.ErrOutOfBounds) {
		t.Errorf("MessageLen of short prefix got err %v, want ErrOutOfBounds", err)
	}
}

func TestUnmarshalMessageSignatureCache(t *testing.T) {
	var cache dbus.SignatureCache
	for i := range 3 {
		msg := dbus.Message{
			Header: dbus.Header{
				Type:   dbus.MsgCall,
				Serial: uint32(i + 1),
				Path:   "/",
				Member: "M",
			},
			Body: []dbus.Value{dbus.Uint32(1), dbus.String("x")},
		}
		bs, err := msg.Marshal(le)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := dbus.UnmarshalMessage(bs, nil, &cache); err != nil {
			t.Fatal(err)
		}
	}
	// Header field variants of type o, s, g, plus the body "us".
	if got, want := cache.Len(), 4; got != want {
		t.Errorf("cache holds %d signatures, want %d", got, want)
	}
}
