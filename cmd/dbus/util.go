package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danderson/go-dbus"
)

type indenter struct {
	out        io.Writer
	prefix     string
	indentNext bool
}

func (i *indenter) f(msg string, args ...any) {
	fmt.Fprintf(i, msg+"\n", args...)
}

func (i *indenter) Write(bs []byte) (int, error) {
	out := i.out
	if out == nil {
		out = os.Stdout
	}
	ret := 0
	for len(bs) > 0 {
		if i.indentNext {
			i.indentNext = false
			_, err := io.WriteString(out, i.prefix)
			if err != nil {
				return ret, err
			}
		}

		var wr []byte
		idx := bytes.IndexByte(bs, '\n')
		if idx >= 0 {
			i.indentNext = true
			wr, bs = bs[:idx+1], bs[idx+1:]
		} else {
			wr, bs = bs, nil
		}

		n, err := out.Write(wr)
		ret += n
		if err != nil {
			return ret, err
		}
	}
	return ret, nil
}

func (i *indenter) indent(n int) {
	i.prefix = strings.Repeat("  ", n)
}

// describe writes the layout of sig and its component types to out.
func describe(out *indenter, sig dbus.Signature, level int) {
	out.indent(level)
	kind := sig.Kind().String()
	switch {
	case sig.IsMultiple():
		kind = "sequence"
	case sig.IsDict():
		kind = "dict"
	}
	size := "variable size"
	if n := sig.FixedSize(); n > 0 {
		size = fmt.Sprintf("fixed size %d", n)
	}
	out.f("%s: %s, align dbus=%d gvariant=%d, %s", sig, kind, sig.Alignment(dbus.FormatDBus), sig.Alignment(dbus.FormatGVariant), size)

	switch {
	case sig.IsDict():
		describe(out, sig.Key(), level+1)
		describe(out, sig.Value(), level+1)
	case sig.Kind() == dbus.KindArray, sig.Kind() == dbus.KindMaybe:
		describe(out, sig.Elem(), level+1)
	case sig.Kind() == dbus.KindStruct, sig.Kind() == dbus.KindDictEntry:
		for _, f := range sig.Fields() {
			describe(out, f, level+1)
		}
	}
}
