package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets"
	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets/model"
	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets/room"
)

const playHelp = `commands: pass CARD | start | declare | show | quit`

var cardIcons = map[string]string{
	"LION": "🦁", "TIGER": "🐯", "ELEPHANT": "🐘", "MONKEY": "🐒", "EAGLE": "🦅",
}

// play follows a room until the game is won, stdin closes or ctx ends.
func (a *app) play(ctx context.Context, user model.User, code string, fetch room.Fetcher) error {
	in, err := room.NewInterpreter(room.Config{
		Session:  room.Bind(a.session),
		Fetch:    fetch,
		UserID:   user.UserID,
		RoomCode: code,
		Logger:   a.sdkLog,
	})
	if err != nil {
		return err
	}

	finished := make(chan struct{})
	in.OnEvent(func(ev room.Event) {
		switch ev.Kind {
		case room.EventSnapshot:
			render(in, ev.Snapshot)
		case room.EventNotification:
			fmt.Printf(">> %s\n", ev.Notification.Text())
		case room.EventPhaseChanged:
			fmt.Printf("== %s ==\n", ev.Phase)
		case room.EventSetDeclared:
			if ev.Auto {
				fmt.Println(">> Four of a kind! Set declared.")
			}
		case room.EventGameWon:
			fmt.Printf("👑 WINNER: %s\n", ev.Winner)
			close(finished)
		}
	})

	if err := in.Start(ctx); err != nil {
		if errors.Is(err, sets.ErrRoomNotFound) {
			return fmt.Errorf("room %s not found", strings.ToUpper(code))
		}
		return err
	}
	defer in.Close()

	fmt.Printf("Following room %s. %s\n", in.RoomCode(), playHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-finished:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := a.command(ctx, in, line); quit {
				return nil
			}
		}
	}
}

func (a *app) command(ctx context.Context, in *room.Interpreter, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	var err error
	switch strings.ToLower(fields[0]) {
	case "pass":
		if len(fields) < 2 {
			fmt.Println("usage: pass CARD")
			return false
		}
		err = in.PassCard(ctx, strings.ToUpper(fields[1]))
	case "start":
		err = in.StartGame(ctx)
	case "declare":
		err = in.DeclareSet(ctx)
	case "show":
		snap, ok := in.Snapshot()
		if !ok {
			fmt.Println("waiting for the room state...")
			return false
		}
		render(in, &snap)
	case "quit", "exit":
		return true
	default:
		fmt.Println(playHelp)
	}

	switch {
	case err == nil:
	case errors.Is(err, sets.ErrCannotAct):
		fmt.Println("Waiting for a card to be passed to you...")
	case sets.IsMoveError(err):
		fmt.Printf("not now: %v\n", err)
	case sets.IsConnectionError(err):
		fmt.Println("not connected, try again in a moment")
	default:
		a.logger.Error().Err(err).Msg("command failed")
	}
	return false
}

func render(in *room.Interpreter, snap *model.RoomSnapshot) {
	fmt.Printf("\nRoom %s [%s] players %d/%d\n", snap.RoomCode, in.Phase(), len(snap.Players), snap.MaxPlayers)
	me, _ := in.Me()
	for _, p := range snap.Players {
		tag := ""
		if p.IsHost {
			tag = " (host)"
		}
		if p.UserID == me.UserID {
			tag += " <- you"
		}
		fmt.Printf("  %s%s\n", p.DisplayName, tag)
	}
	if len(me.Cards) > 0 {
		hand := make([]string, 0, len(me.Cards))
		for _, c := range me.Cards {
			icon, ok := cardIcons[c]
			if !ok {
				icon = "🃏"
			}
			hand = append(hand, icon+" "+c)
		}
		fmt.Printf("Your hand: %s\n", strings.Join(hand, "  "))
	}
	switch {
	case in.CanStart():
		fmt.Println("Type `start` when everyone is ready.")
	case in.HasSet():
		fmt.Println("DECLARE SET! (type `declare`)")
	case in.Phase() == room.PhasePlaying && !in.CanPass():
		fmt.Println("Waiting for a card to be passed to you...")
	}
}
