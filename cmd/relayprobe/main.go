// relayprobe connects to a relay as a controller or source and prints every
// frame it receives.
// Usage: go run ./cmd/relayprobe --client-type termux --password termux456 --payload '{"battery":80}'
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/tidwall/gjson"

	"github.com/rickgao/phone-relay/internal/connection"
	"github.com/rickgao/phone-relay/internal/protocol"
	"github.com/rickgao/phone-relay/internal/version"
)

type options struct {
	url        string
	clientType string
	password   string
	command    string
	data       string
	payload    string
	verbose    bool
	version    bool
}

func main() {
	var opts options

	flagSet := pflag.NewFlagSet("relayprobe", pflag.ContinueOnError)
	flagSet.StringVar(&opts.url, "url", "ws://localhost:3001/", "relay WebSocket URL")
	flagSet.StringVar(&opts.clientType, "client-type", protocol.ClientTypeWebsite, "website or termux")
	flagSet.StringVar(&opts.password, "password", "", "role secret")
	flagSet.StringVar(&opts.command, "command", "", "command to send after authenticating (website only)")
	flagSet.StringVar(&opts.data, "data", "", "JSON data for --command")
	flagSet.StringVar(&opts.payload, "payload", "", "JSON payload to send as phoneData after authenticating (termux only)")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	flagSet.BoolVar(&opts.version, "version", false, "print version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if opts.version {
		version.Print(os.Stdout, "relayprobe")
		return
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(opts, logger); err != nil {
		logger.Error("probe failed", "error", err)
		os.Exit(1)
	}
}

func run(opts options, logger *slog.Logger) error {
	followUp, err := buildFollowUp(opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	conn, err := connection.Dial(ctx, opts.url, nil, connection.DefaultConfig(), logger)
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.url, err)
	}
	defer conn.Close()

	logger.Info("connected", "url", opts.url, "client_type", opts.clientType)

	if err := conn.Send(protocol.EncodeAuth(opts.clientType, opts.password)); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-conn.Events():
			if !ok {
				return nil
			}
			switch ev.Kind {
			case connection.EventClose:
				logger.Info("relay closed the connection")
				return nil
			case connection.EventError:
				return ev.Err
			}

			printFrame(ev.Data)

			frame := gjson.ParseBytes(ev.Data)
			switch frame.Get("type").String() {
			case string(protocol.KindPing):
				if err := conn.Send(protocol.EncodePong()); err != nil {
					return fmt.Errorf("send pong: %w", err)
				}
			case string(protocol.KindAuthResult):
				if !frame.Get("success").Bool() {
					return fmt.Errorf("authentication rejected: %s", frame.Get("message").String())
				}
				if followUp != nil {
					if err := conn.Send(followUp); err != nil {
						return fmt.Errorf("send follow-up: %w", err)
					}
					logger.Info("sent", "frame", string(followUp))
					followUp = nil
				}
			}
		}
	}
}

// buildFollowUp encodes the optional frame sent once authentication succeeds.
func buildFollowUp(opts options) ([]byte, error) {
	switch {
	case opts.command != "" && opts.payload != "":
		return nil, errors.New("--command and --payload are mutually exclusive")
	case opts.command != "":
		var data json.RawMessage
		if opts.data != "" {
			if !gjson.Valid(opts.data) {
				return nil, fmt.Errorf("--data is not valid JSON: %s", opts.data)
			}
			data = json.RawMessage(opts.data)
		}
		return protocol.EncodeCommand(opts.command, data)
	case opts.payload != "":
		if !gjson.Valid(opts.payload) {
			return nil, fmt.Errorf("--payload is not valid JSON: %s", opts.payload)
		}
		return protocol.EncodePhoneData(json.RawMessage(opts.payload))
	default:
		return nil, nil
	}
}

func printFrame(data []byte) {
	frame := gjson.ParseBytes(data)
	if typ := frame.Get("type"); frame.IsObject() && typ.Exists() {
		fmt.Printf("[%s] %s\n", typ.String(), data)
		return
	}
	// phoneData payloads arrive bare.
	fmt.Printf("[payload] %s\n", data)
}
