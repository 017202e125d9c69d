// Command setsctl plays Sets from a terminal.
//
// It registers a profile, creates or joins rooms and follows a game live over
// the broker connection. Configuration comes from flags, SETS_* environment
// variables or a .env file in the working directory.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

const version = "0.3.0"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: error loading .env file: %v\n", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "setsctl",
		Usage:   "play Sets from the terminal",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "ws-url",
				Usage:   "broker websocket endpoint",
				Value:   "ws://localhost:8080/ws-game/websocket",
				Sources: cli.EnvVars("SETS_WS_URL"),
			},
			&cli.StringFlag{
				Name:    "api-url",
				Usage:   "REST API base URL",
				Value:   "http://localhost:8080",
				Sources: cli.EnvVars("SETS_API_URL"),
			},
			&cli.StringFlag{
				Name:    "identity-file",
				Usage:   "where the signed-in profile is kept (default: user config dir)",
				Sources: cli.EnvVars("SETS_IDENTITY_FILE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "trace, debug, info, warn or error",
				Value:   "warn",
				Sources: cli.EnvVars("SETS_LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "register",
				Usage: "create a profile and sign in with it",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "display-name", Usage: "defaults to the username"},
				},
				Action: registerAction,
			},
			{
				Name:   "whoami",
				Usage:  "print the signed-in profile",
				Action: whoamiAction,
			},
			{
				Name:   "logout",
				Usage:  "forget the signed-in profile",
				Action: logoutAction,
			},
			{
				Name:  "create",
				Usage: "host a new room and follow it",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "max-players", Value: 8, Usage: "3 to 8"},
					&cli.BoolFlag{Name: "private", Usage: "only players with the code can join"},
				},
				Action: createAction,
			},
			{
				Name:      "join",
				Usage:     "join a room by code and follow it",
				ArgsUsage: "CODE",
				Action:    joinAction,
			},
			{
				Name:      "play",
				Usage:     "follow a room you are already in",
				ArgsUsage: "CODE",
				Action:    playAction,
			},
		},
	}
}
