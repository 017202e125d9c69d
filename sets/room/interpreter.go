// Package room turns the snapshots pushed on a room topic into what a front-end
// renders: the current room, a transient pass notification, move legality and
// the LOBBY/PLAYING/FINISHED phase.
package room

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets"
	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets/model"
)

// DefaultNotificationTTL is how long a pass notification stays visible.
const DefaultNotificationTTL = 3 * time.Second

// Fetcher loads the room state over HTTP before the first push arrives.
// (*rest.Client).GetRoom and (*rest.Client).GetGame both fit.
type Fetcher func(ctx context.Context, code string) (*model.RoomSnapshot, error)

// Config configures an Interpreter.
type Config struct {
	Session  Session
	Fetch    Fetcher // optional
	UserID   string
	RoomCode string

	NotificationTTL time.Duration
	// DisableAutoDeclare stops the Interpreter from declaring a set on its
	// own; DeclareSet still works.
	DisableAutoDeclare bool

	Clock  clockwork.Clock
	Logger sets.Logger
}

// Interpreter follows one room for one user.
type Interpreter struct {
	session     Session
	fetch       Fetcher
	userID      string
	code        string
	ttl         time.Duration
	autoDeclare bool
	clock       clockwork.Clock
	logger      sets.Logger

	mu          sync.Mutex
	snap        *model.RoomSnapshot
	phase       Phase
	winner      string
	note        *Notification
	noteTimer   clockwork.Timer
	noteSeq     uint64
	passing     bool
	declared    string // HandKey of the last declared set
	sub         Subscription
	subscribing bool
	stopWatch   func()
	closed      bool
	onEvent     func(Event)
}

// NewInterpreter validates cfg and returns an idle Interpreter; call Start to
// begin following the room.
func NewInterpreter(cfg Config) (*Interpreter, error) {
	if cfg.Session == nil {
		return nil, sets.NewError(sets.ErrorInvalidConfig, "nil session")
	}
	if cfg.UserID == "" {
		return nil, sets.NewError(sets.ErrorInvalidConfig, "empty user id")
	}
	code, err := model.NormalizeRoomCode(cfg.RoomCode)
	if err != nil {
		return nil, err
	}
	in := &Interpreter{
		session:     cfg.Session,
		fetch:       cfg.Fetch,
		userID:      cfg.UserID,
		code:        code,
		ttl:         cfg.NotificationTTL,
		autoDeclare: !cfg.DisableAutoDeclare,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}
	if in.ttl <= 0 {
		in.ttl = DefaultNotificationTTL
	}
	if in.clock == nil {
		in.clock = clockwork.NewRealClock()
	}
	if in.logger == nil {
		in.logger = sets.NopLogger()
	}
	return in, nil
}

// OnEvent registers the callback for derived events. It runs outside the
// Interpreter's lock and may call back into it.
func (in *Interpreter) OnEvent(fn func(Event)) {
	in.mu.Lock()
	in.onEvent = fn
	in.mu.Unlock()
}

// RoomCode returns the canonical room code.
func (in *Interpreter) RoomCode() string { return in.code }

// Start subscribes to the room topic (again after every reconnection) and
// seeds the state from the HTTP API when a Fetcher is configured. A fetch
// failure, sets.ErrRoomNotFound included, stops the Interpreter and is
// returned.
func (in *Interpreter) Start(ctx context.Context) error {
	stop := in.session.Watch(in.onConnectionState)
	in.mu.Lock()
	in.stopWatch = stop
	in.mu.Unlock()

	if in.session.IsConnected() {
		in.subscribe(ctx)
	}

	if in.fetch == nil {
		return nil
	}
	snap, err := in.fetch(ctx, in.code)
	if err != nil {
		in.Close()
		return err
	}
	in.seed(*snap)
	return nil
}

// Close releases the subscription, the connection watcher and the
// notification timer. Later pushes are ignored.
func (in *Interpreter) Close() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	sub, stop, timer := in.sub, in.stopWatch, in.noteTimer
	in.sub, in.stopWatch, in.noteTimer = nil, nil, nil
	in.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	if stop != nil {
		stop()
	}
	if timer != nil {
		timer.Stop()
	}
}

func (in *Interpreter) onConnectionState(ev sets.StateEvent) {
	if ev.NewState == sets.StateConnected {
		in.subscribe(context.Background())
		return
	}
	// The session already dropped the subscription with the connection.
	in.mu.Lock()
	sub := in.sub
	in.sub = nil
	in.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

func (in *Interpreter) subscribe(ctx context.Context) {
	in.mu.Lock()
	if in.closed || in.sub != nil || in.subscribing {
		in.mu.Unlock()
		return
	}
	in.subscribing = true
	in.mu.Unlock()

	topic := model.RoomTopic(in.code)
	sub, err := in.session.Subscribe(ctx, topic, func(m sets.Message) {
		in.HandlePush(m.Body)
	})

	in.mu.Lock()
	in.subscribing = false
	if err != nil {
		in.mu.Unlock()
		in.logger.Warn("room subscription failed", map[string]any{"topic": topic, "error": err.Error()})
		return
	}
	if in.closed {
		in.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	in.sub = sub
	in.mu.Unlock()
	in.logger.Debug("following room", map[string]any{"topic": topic})
}

// HandlePush applies one frame from the room topic. Win announcements are
// told apart from snapshots by their "type" field. Malformed frames are
// logged and skipped.
func (in *Interpreter) HandlePush(raw []byte) {
	snap, won, err := model.DecodePush(raw)
	if err != nil {
		in.logger.Warn("ignoring malformed room push", map[string]any{"room": in.code, "error": err.Error()})
		return
	}
	if won != nil {
		in.OnGameWon(*won)
		return
	}
	in.OnSnapshot(*snap)
}

// OnSnapshot applies a pushed snapshot. It replaces the stored one wholesale,
// ends the in-flight pass, derives a notification from LastAction and may
// auto-declare a set.
func (in *Interpreter) OnSnapshot(next model.RoomSnapshot) {
	in.apply(next, true)
}

// seed applies the HTTP answer unless a push got there first.
func (in *Interpreter) seed(snap model.RoomSnapshot) {
	in.apply(snap, false)
}

func (in *Interpreter) apply(next model.RoomSnapshot, pushed bool) {
	var (
		events  []Event
		declare *model.PlayerInfo
	)

	in.mu.Lock()
	if in.closed || (!pushed && in.snap != nil) {
		in.mu.Unlock()
		return
	}
	prev := in.snap
	cur := next
	in.snap = &cur
	in.passing = false
	view := cur.Clone()
	events = append(events, Event{Kind: EventSnapshot, Snapshot: &view, Phase: in.phase})

	if pushed {
		if n, ok := in.diff(prev, &cur); ok {
			in.showLocked(n)
			events = append(events, Event{Kind: EventNotification, Notification: &n, Phase: in.phase})
		}
	}
	if cur.Status == model.StatusPlaying {
		if ev, ok := in.advanceLocked(triggerSnapshotPlaying); ok {
			events = append(events, ev)
		}
	}
	declare = in.autoDeclareLocked()
	in.mu.Unlock()

	in.emit(events...)
	if declare != nil {
		in.sendDeclare(context.Background(), *declare, true)
	}
}

// diff derives the notification carried by next. The same ActionRecord
// applied twice (same pointer) is not a new event.
func (in *Interpreter) diff(prev, next *model.RoomSnapshot) (Notification, bool) {
	a := next.LastAction
	if a == nil || a.Type != model.ActionPass {
		return Notification{}, false
	}
	if prev != nil && prev.LastAction == a {
		return Notification{}, false
	}
	switch {
	case a.ReceiverID != "" && a.ReceiverID == in.userID:
		return Notification{Kind: CardReceived, Peer: a.SenderName, Card: a.CardValue, At: in.clock.Now()}, true
	case a.SenderID != "" && a.SenderID == in.userID:
		return Notification{Kind: CardSent, Peer: a.ReceiverName, Card: a.CardValue, At: in.clock.Now()}, true
	}
	return Notification{}, false
}

// showLocked replaces the visible notification and restarts its timer.
func (in *Interpreter) showLocked(n Notification) {
	in.noteSeq++
	seq := in.noteSeq
	in.note = &n
	if in.noteTimer != nil {
		in.noteTimer.Stop()
	}
	in.noteTimer = in.clock.AfterFunc(in.ttl, func() { in.expire(seq) })
}

func (in *Interpreter) expire(seq uint64) {
	in.mu.Lock()
	if in.closed || seq != in.noteSeq || in.note == nil {
		in.mu.Unlock()
		return
	}
	in.note = nil
	in.noteTimer = nil
	phase := in.phase
	in.mu.Unlock()
	in.emit(Event{Kind: EventNotificationCleared, Phase: phase})
}

func (in *Interpreter) advanceLocked(t trigger) (Event, bool) {
	next := in.phase.advance(t)
	if next == in.phase {
		return Event{}, false
	}
	in.logger.Info("room phase changed", map[string]any{"room": in.code, "from": in.phase.String(), "to": next.String()})
	in.phase = next
	return Event{Kind: EventPhaseChanged, Phase: next, Winner: in.winner}, true
}

// autoDeclareLocked fires once per stable four-of-a-kind hand. A snapshot
// without my seat says nothing about the hand and keeps the last declaration.
func (in *Interpreter) autoDeclareLocked() *model.PlayerInfo {
	me, ok := in.snap.Player(in.userID)
	if !ok {
		return nil
	}
	if !DetectSet(me) {
		in.declared = ""
		return nil
	}
	if !in.autoDeclare || in.phase == PhaseFinished || in.declared == me.HandKey() {
		return nil
	}
	in.declared = me.HandKey()
	return &me
}

// OnGameWon applies a win announcement: the phase becomes FINISHED for good.
func (in *Interpreter) OnGameWon(w model.GameWon) {
	in.mu.Lock()
	if in.closed || in.phase == PhaseFinished {
		in.mu.Unlock()
		return
	}
	in.winner = w.Winner
	in.passing = false
	var events []Event
	if ev, ok := in.advanceLocked(triggerGameWon); ok {
		events = append(events, ev)
	}
	events = append(events, Event{Kind: EventGameWon, Phase: in.phase, Winner: w.Winner})
	in.mu.Unlock()

	in.logger.Info("game won", map[string]any{"room": in.code, "winner": w.Winner})
	in.emit(events...)
}

// PassCard publishes a pass of card. Until the next snapshot arrives further
// passes are refused with sets.ErrPassInFlight.
func (in *Interpreter) PassCard(ctx context.Context, card string) error {
	in.mu.Lock()
	me, ok := in.snap.Player(in.userID)
	switch {
	case !ok:
		in.mu.Unlock()
		return sets.ErrNotInRoom
	case in.phase == PhaseFinished:
		in.mu.Unlock()
		return sets.ErrWrongPhase
	case in.passing:
		in.mu.Unlock()
		return sets.ErrPassInFlight
	case !CanAct(me, in.snap.IsHost(in.userID)):
		in.mu.Unlock()
		return sets.ErrCannotAct
	case !holds(me, card):
		in.mu.Unlock()
		return sets.NewError(sets.ErrorCannotAct, "card "+card+" is not in hand")
	}
	in.passing = true
	in.mu.Unlock()

	err := in.session.Send(ctx, model.PassCardDest(in.code), model.PassCardRequest{
		UserID:    in.userID,
		CardValue: card,
	})
	if err != nil {
		in.mu.Lock()
		in.passing = false
		in.mu.Unlock()
		return err
	}
	return nil
}

// StartGame publishes the start-game move. Only the host may start, in the
// lobby, with at least MinPlayersToStart players.
func (in *Interpreter) StartGame(ctx context.Context) error {
	in.mu.Lock()
	if err := in.startErrLocked(); err != nil {
		in.mu.Unlock()
		return err
	}
	in.mu.Unlock()

	if err := in.session.Send(ctx, model.StartGameDest(in.code), model.UserRequest{UserID: in.userID}); err != nil {
		return err
	}

	in.mu.Lock()
	ev, changed := in.advanceLocked(triggerStartSent)
	in.mu.Unlock()
	if changed {
		in.emit(ev)
	}
	return nil
}

func (in *Interpreter) startErrLocked() error {
	switch {
	case in.phase != PhaseLobby:
		return sets.ErrWrongPhase
	case !in.snap.IsHost(in.userID):
		return sets.ErrNotHost
	case len(in.snap.Players) < model.MinPlayersToStart:
		return sets.ErrNotEnoughPlayers
	}
	return nil
}

// DeclareSet publishes a declaration for the current hand. A hand that was
// already declared, by hand or automatically, is not declared twice.
func (in *Interpreter) DeclareSet(ctx context.Context) error {
	in.mu.Lock()
	me, ok := in.snap.Player(in.userID)
	switch {
	case !ok:
		in.mu.Unlock()
		return sets.ErrNotInRoom
	case in.phase == PhaseFinished:
		in.mu.Unlock()
		return sets.ErrWrongPhase
	case !DetectSet(me):
		in.mu.Unlock()
		return sets.ErrNoSet
	case in.declared == me.HandKey():
		in.mu.Unlock()
		in.logger.Debug("set already declared", map[string]any{"room": in.code})
		return nil
	}
	in.declared = me.HandKey()
	in.mu.Unlock()

	return in.sendDeclare(ctx, me, false)
}

func (in *Interpreter) sendDeclare(ctx context.Context, me model.PlayerInfo, auto bool) error {
	if err := in.session.Send(ctx, model.DeclareSetDest(in.code), me); err != nil {
		in.logger.Warn("declare set failed", map[string]any{"room": in.code, "auto": auto, "error": err.Error()})
		in.mu.Lock()
		if in.declared == me.HandKey() {
			in.declared = ""
		}
		in.mu.Unlock()
		return err
	}
	in.mu.Lock()
	phase := in.phase
	in.mu.Unlock()
	in.emit(Event{Kind: EventSetDeclared, Phase: phase, Auto: auto})
	return nil
}

func (in *Interpreter) emit(events ...Event) {
	in.mu.Lock()
	fn := in.onEvent
	in.mu.Unlock()
	if fn == nil {
		return
	}
	for _, ev := range events {
		fn(ev)
	}
}

// Snapshot returns a copy of the latest snapshot.
func (in *Interpreter) Snapshot() (model.RoomSnapshot, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.snap == nil {
		return model.RoomSnapshot{}, false
	}
	return in.snap.Clone(), true
}

// Me returns the current user's seat.
func (in *Interpreter) Me() (model.PlayerInfo, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.snap.Player(in.userID)
}

// IsHost reports whether the current user hosts the room.
func (in *Interpreter) IsHost() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.snap.IsHost(in.userID)
}

// Notification returns the visible notification, if any.
func (in *Interpreter) Notification() (Notification, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.note == nil {
		return Notification{}, false
	}
	return *in.note, true
}

// Phase returns the current phase.
func (in *Interpreter) Phase() Phase {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.phase
}

// Winner returns the winner's display name once the phase is FINISHED.
func (in *Interpreter) Winner() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.winner
}

// CanPass reports whether PassCard would currently be accepted for some card.
func (in *Interpreter) CanPass() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	me, ok := in.snap.Player(in.userID)
	if !ok || in.passing || in.phase == PhaseFinished {
		return false
	}
	return CanAct(me, in.snap.IsHost(in.userID))
}

// CanStart reports whether the start-game affordance is enabled.
func (in *Interpreter) CanStart() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.startErrLocked() == nil
}

// HasSet reports whether the current hand is a declarable set.
func (in *Interpreter) HasSet() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	me, ok := in.snap.Player(in.userID)
	return ok && in.phase != PhaseFinished && DetectSet(me)
}
