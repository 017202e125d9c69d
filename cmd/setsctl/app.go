package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets"
	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets/identity"
	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets/logadapter"
	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets/model"
	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets/rest"
	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets/room"
)

const connectTimeout = 15 * time.Second

var errNotSignedIn = errors.New("not signed in, run `setsctl register` first")

// app wires the SDK pieces the way a front-end would: the identity store
// drives the Binder, the Binder drives the Session.
type app struct {
	logger  zerolog.Logger
	sdkLog  sets.Logger
	store   *identity.Store
	api     *rest.Client
	session *sets.Session
	binder  *sets.Binder
	unbind  func()
}

func newApp(cmd *cli.Command) (*app, error) {
	lvl, err := zerolog.ParseLevel(cmd.String("log-level"))
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().Timestamp().Logger()

	path := cmd.String("identity-file")
	if path == "" {
		if path, err = identity.DefaultPath(); err != nil {
			return nil, err
		}
	}
	store := identity.NewStore(identity.NewFilePersistence(path))
	if err := store.Restore(); err != nil {
		return nil, err
	}

	return &app{
		logger: logger,
		sdkLog: logadapter.Zerolog(logger.With().Str("component", "sdk").Logger()),
		store:  store,
		api:    rest.NewClient(cmd.String("api-url")),
	}, nil
}

// online builds the Session, binds it to the identity and waits for the
// first connection.
func (a *app) online(ctx context.Context, cmd *cli.Command) (model.User, error) {
	user, ok := a.store.User()
	if !ok {
		return model.User{}, errNotSignedIn
	}

	cfg := sets.DefaultConfig()
	cfg.URL = cmd.String("ws-url")
	a.session = sets.NewSession(cfg)
	a.session.SetLogger(a.sdkLog)
	a.session.OnError(func(err error) {
		a.logger.Error().Err(err).Msg("broker error")
	})
	a.session.Watch(func(ev sets.StateEvent) {
		e := a.logger.Debug()
		if ev.Error != nil {
			e = a.logger.Warn().Err(ev.Error)
		}
		e.Str("from", ev.OldState.String()).Str("to", ev.NewState.String()).Msg("connection state")
	})

	a.binder = sets.NewBinder(a.session)
	a.unbind = a.store.Subscribe(a.binder.Update)

	waitCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := a.session.WaitConnected(waitCtx); err != nil {
		return model.User{}, fmt.Errorf("connect to %s: %w", cfg.URL, err)
	}
	return user, nil
}

func (a *app) close() {
	if a.unbind != nil {
		a.unbind()
	}
	if a.binder != nil {
		a.binder.Close()
	}
}

func registerAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	name := cmd.String("display-name")
	if name == "" {
		name = cmd.String("username")
	}
	user, err := a.api.Register(ctx, rest.RegisterRequest{
		Username:    cmd.String("username"),
		Email:       cmd.String("email"),
		DisplayName: name,
	})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if err := a.store.SetUser(*user); err != nil {
		return err
	}
	fmt.Printf("Signed in as %s (%s)\n", user.DisplayName, user.UserID)
	return nil
}

func whoamiAction(_ context.Context, cmd *cli.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	user, ok := a.store.User()
	if !ok {
		return errNotSignedIn
	}
	fmt.Printf("%s (@%s, id %s): %d games, %d won\n",
		user.DisplayName, user.Username, user.UserID, user.GamesPlayed, user.GamesWon)
	return nil
}

func logoutAction(_ context.Context, cmd *cli.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	return a.store.Logout()
}

func createAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	user, err := a.online(ctx, cmd)
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	lobby := room.NewLobby(room.Bind(a.session), user.UserID, a.sdkLog)
	created, err := lobby.CreateRoom(waitCtx, int(cmd.Int("max-players")), cmd.Bool("private"))
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	fmt.Printf("Room %s is live. Share the code with your friends.\n", created.RoomCode)
	return a.play(ctx, user, created.RoomCode, a.api.GetRoom)
}

func joinAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	user, err := a.online(ctx, cmd)
	if err != nil {
		return err
	}

	lobby := room.NewLobby(room.Bind(a.session), user.UserID, a.sdkLog)
	code, err := lobby.JoinRoom(ctx, cmd.Args().First())
	if err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	return a.play(ctx, user, code, a.api.GetRoom)
}

func playAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	user, err := a.online(ctx, cmd)
	if err != nil {
		return err
	}
	return a.play(ctx, user, cmd.Args().First(), a.api.GetGame)
}
