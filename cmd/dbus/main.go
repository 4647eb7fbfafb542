package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/danderson/go-dbus"
	"github.com/danderson/go-dbus/fragments"
	"github.com/kr/pretty"
	"gopkg.in/yaml.v3"
)

var globalArgs struct {
	UseSessionBus bool `flag:"session,Connect to session bus instead of system bus"`
}

var codecArgs struct {
	Format string `flag:"format,Encoding format, dbus or gvariant (default dbus)"`
	Order  string `flag:"order,Byte order, little, big or native (default native)"`
}

var decodeArgs struct {
	NumFDs int  `flag:"fds,Number of file descriptors accompanying the data"`
	Pretty bool `flag:"pretty,Print the decoded Go value instead of YAML"`
}

func busConn(ctx context.Context) (*dbus.Conn, error) {
	if globalArgs.UseSessionBus {
		return dbus.SessionBus(ctx)
	}
	return dbus.SystemBus(ctx)
}

func main() {
	root := &command.C{
		Name:     "dbus",
		Usage:    "command args...",
		SetFlags: command.Flags(flax.MustBind, &globalArgs),
		Commands: []*command.C{
			{
				Name:  "sig",
				Usage: "sig signature...",
				Help:  "Parse type signatures and describe their layout.",
				Run:   runSig,
			},
			{
				Name:  "encode",
				Usage: "encode signature [yaml]",
				Help: `Encode a value and print it in hex.

The value is read as YAML from the second argument, or from stdin if
absent. Arrays and structs are YAML sequences, dicts are mappings,
variants are mappings with "sig" and "value" keys, and a null maybe
is Nothing.`,
				SetFlags: command.Flags(flax.MustBind, &codecArgs),
				Run:      runEncode,
			},
			{
				Name:  "decode",
				Usage: "decode signature hex",
				Help: `Decode a hex encoded value and print it as YAML.

File descriptors decode as their index in the accompanying table.`,
				SetFlags: command.Flags(flax.MustBind, &codecArgs, &decodeArgs),
				Run:      runDecode,
			},
			{
				Name:  "ping",
				Usage: "ping peer",
				Help:  "Ping a peer.",
				Run:   runPing,
			},
			{
				Name:  "machine-id",
				Usage: "machine-id [peer]",
				Help:  "Print the machine ID of a peer, or of the local host.",
				Run:   runMachineID,
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env := root.NewEnv(nil).SetContext(ctx)
	command.RunOrFail(env, os.Args[1:])
}

func codecOptions() (*dbus.Options, error) {
	ret := &dbus.Options{}
	if codecArgs.Format != "" {
		f, err := dbus.ParseFormat(codecArgs.Format)
		if err != nil {
			return nil, err
		}
		ret.Format = f
	}
	switch codecArgs.Order {
	case "", "native":
		ret.Order = fragments.NativeEndian
	case "little":
		ret.Order = fragments.LittleEndian
	case "big":
		ret.Order = fragments.BigEndian
	default:
		return nil, fmt.Errorf("unknown byte order %q", codecArgs.Order)
	}
	return ret, nil
}

func runSig(env *command.Env) error {
	if len(env.Args) == 0 {
		return env.Usagef("missing signature")
	}
	var out indenter
	for _, arg := range env.Args {
		sig, err := dbus.ParseSignature(arg)
		if err != nil {
			return err
		}
		describe(&out, sig, 0)
	}
	return nil
}

func runEncode(env *command.Env) error {
	if len(env.Args) < 1 || len(env.Args) > 2 {
		return env.Usagef("wrong number of arguments")
	}
	opts, err := codecOptions()
	if err != nil {
		return err
	}
	sig, err := dbus.ParseSignature(env.Args[0])
	if err != nil {
		return err
	}

	var doc []byte
	if len(env.Args) == 2 {
		doc = []byte(env.Args[1])
	} else if doc, err = io.ReadAll(os.Stdin); err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(doc, &node); err != nil {
		return fmt.Errorf("parsing value: %w", err)
	}
	v, err := fromYAML(&node, sig)
	if err != nil {
		return err
	}

	files := dbus.NewFDTable()
	bs, err := dbus.Marshal(v, sig, files, opts)
	if err != nil {
		return err
	}
	fmt.Println(hex.EncodeToString(bs))
	if files.Len() > 0 {
		fmt.Printf("fds: %v\n", files.FDs())
	}
	return nil
}

func runDecode(env *command.Env) error {
	if len(env.Args) != 2 {
		return env.Usagef("wrong number of arguments")
	}
	opts, err := codecOptions()
	if err != nil {
		return err
	}
	sig, err := dbus.ParseSignature(env.Args[0])
	if err != nil {
		return err
	}
	bs, err := hex.DecodeString(strings.Join(strings.Fields(env.Args[1]), ""))
	if err != nil {
		return fmt.Errorf("parsing hex: %w", err)
	}

	fds := make([]int, decodeArgs.NumFDs)
	for i := range fds {
		fds[i] = i
	}
	v, err := dbus.Unmarshal(bs, sig, dbus.NewFDTable(fds...), opts)
	if err != nil {
		return err
	}

	if decodeArgs.Pretty {
		pretty.Println(v)
		return nil
	}
	out, err := yaml.Marshal(toYAML(v))
	if err != nil {
		return err
	}
	os.Stdout.Write(out)
	return nil
}

func runPing(env *command.Env) error {
	if len(env.Args) != 1 {
		return env.Usagef("missing peer name")
	}
	conn, err := busConn(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer conn.Close()

	for {
		ctx, cancel := context.WithTimeout(env.Context(), 5*time.Second)
		start := time.Now()
		err := conn.Peer(env.Args[0]).Ping(ctx)
		cancel()
		if errors.Is(err, context.Canceled) {
			return nil
		} else if err != nil {
			fmt.Printf("ping %s: %v\n", env.Args[0], err)
		} else {
			fmt.Printf("ping %s: %v\n", env.Args[0], time.Since(start).Round(time.Microsecond))
		}
		select {
		case <-env.Context().Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func runMachineID(env *command.Env) error {
	switch len(env.Args) {
	case 0:
		id, err := dbus.MachineID()
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	case 1:
	default:
		return env.Usagef("too many arguments")
	}

	conn, err := busConn(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(env.Context(), 10*time.Second)
	defer cancel()
	id, err := conn.Peer(env.Args[0]).MachineID(ctx)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}
