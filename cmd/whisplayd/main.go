package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return buildCLI().ParseAndRun(ctx, os.Args[1:])
}

func buildCLI() *ffcli.Command {
	serveFlagSet := flag.NewFlagSet("whisplayd serve", flag.ExitOnError)
	serveConfig := serveFlagSet.String("config", "/etc/whisplayd.yaml", "Path to the YAML config file")
	serveSim := serveFlagSet.Bool("sim", false, "Render to an in-memory panel instead of the HAT")
	serveDebug := serveFlagSet.Bool("debug", false, "Log at debug level")

	serveCmd := &ffcli.Command{
		Name:       "serve",
		ShortUsage: "whisplayd serve [flags]",
		ShortHelp:  "Drive the display and accept control clients",
		FlagSet:    serveFlagSet,
		Options:    []ff.Option{ff.WithEnvVarPrefix("WHISPLAYD")},
		Exec: func(ctx context.Context, _ []string) error {
			return execServe(ctx, serveOptions{
				configPath: *serveConfig,
				sim:        *serveSim,
				debug:      *serveDebug,
			})
		},
	}

	sendFlagSet := flag.NewFlagSet("whisplayd send", flag.ExitOnError)
	sendAddr := sendFlagSet.String("addr", "127.0.0.1:12345", "Control server address")

	sendCmd := &ffcli.Command{
		Name:       "send",
		ShortUsage: "whisplayd send [flags] <json>",
		ShortHelp:  "Send one control message and print the replies",
		FlagSet:    sendFlagSet,
		Options:    []ff.Option{ff.WithEnvVarPrefix("WHISPLAYD")},
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("send takes exactly one JSON argument")
			}
			return execSend(ctx, *sendAddr, []byte(args[0]), os.Stdout)
		},
	}

	return &ffcli.Command{
		ShortUsage:  "whisplayd <subcommand> [flags]",
		ShortHelp:   "Status display daemon for the Whisplay HAT",
		FlagSet:     flag.NewFlagSet("whisplayd", flag.ExitOnError),
		Subcommands: []*ffcli.Command{serveCmd, sendCmd},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}
}
