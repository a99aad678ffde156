package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/BradenHooton/otpflow/internal/clock"
	"github.com/BradenHooton/otpflow/internal/countdown"
	"github.com/BradenHooton/otpflow/internal/models"
	"github.com/BradenHooton/otpflow/pkg/logger"
)

// Config wires a Controller to its collaborators
type Config struct {
	Variant      models.FlowVariant
	Verifier     RemoteVerifier
	Clock        clock.Clock
	Rules        Rules
	TickInterval time.Duration
	Logger       *slog.Logger
	Audit        *logger.AuditLogger
}

// Controller drives one verification flow from identifier entry to completion.
// It owns the flow state and the active TokenSession; at most one
// state-changing call is in flight at any time.
type Controller struct {
	variant      models.FlowVariant
	verifier     RemoteVerifier
	clock        clock.Clock
	validator    *Validator
	tickInterval time.Duration
	logger       *slog.Logger
	audit        *logger.AuditLogger

	busy *atomic.Bool

	mu         sync.Mutex
	state      models.FlowState
	session    *models.TokenSession
	generation uint64
	timer      *countdown.Timer
	observers  map[uint64]func(models.Snapshot)
	nextID     uint64
	seq        uint64

	// notifyMu serializes observer delivery; delivered is the newest seq handed out
	notifyMu  sync.Mutex
	delivered uint64
}

// NewController creates a controller in the CollectingIdentifier state
func NewController(cfg Config) (*Controller, error) {
	if !cfg.Variant.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedVariant, cfg.Variant)
	}
	if cfg.Verifier == nil {
		return nil, errors.New("flow: remote verifier is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Controller{
		variant:      cfg.Variant,
		verifier:     cfg.Verifier,
		clock:        cfg.Clock,
		validator:    NewValidator(cfg.Rules),
		tickInterval: cfg.TickInterval,
		logger:       cfg.Logger.With(slog.String("flow", string(cfg.Variant))),
		audit:        cfg.Audit,
		busy:         atomic.NewBool(false),
		state:        models.StateCollectingIdentifier,
		observers:    make(map[uint64]func(models.Snapshot)),
	}, nil
}

// Variant returns the flow variant
func (c *Controller) Variant() models.FlowVariant {
	return c.variant
}

// State returns the current flow state
func (c *Controller) State() models.FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a copy of the active session, or nil
func (c *Controller) Session() *models.TokenSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copySession(c.session)
}

// Snapshot returns the current observable view of the flow
func (c *Controller) Snapshot() models.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// CanResend reports whether the resend gate is open right now
func (c *Controller) CanResend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == models.StateAwaitingCode && models.CanResend(c.session, c.clock.Now())
}

// Subscribe registers fn for every published Snapshot. Observers run outside
// the controller lock but must not call state-changing operations.
func (c *Controller) Subscribe(fn func(models.Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()
		})
	}
}

// Initiate submits the identifier (and, for signup, name and credential) and
// moves the flow to AwaitingCode once the authority issues a session.
func (c *Controller) Initiate(ctx context.Context, req InitiateRequest) error {
	release, err := c.acquire()
	if err != nil {
		return err
	}
	defer release()

	from, _, gen, err := c.require(models.StateCollectingIdentifier)
	if err != nil {
		return err
	}

	req.Identifier = strings.TrimSpace(req.Identifier)
	if err := c.validator.Initiate(c.variant, req); err != nil {
		return err
	}

	c.publish(true)
	issued, err := c.verifier.Initiate(ctx, c.variant, req)
	if err != nil {
		err = classifyRemote("initiate", err)
		c.recordFailure("initiate", req.Identifier, from, err)
		c.publish(false)
		return err
	}

	session, err := models.NewTokenSession(req.Identifier, issued.CorrelationToken, issued.ExpiresAt, c.clock.Now())
	if err != nil {
		err = &models.TransportFailure{Op: "initiate", Err: err}
		c.recordFailure("initiate", req.Identifier, from, err)
		c.publish(false)
		return err
	}

	c.mu.Lock()
	if c.generation != gen || c.state != from {
		c.mu.Unlock()
		return fmt.Errorf("initiate: %w", models.ErrInvalidTransition)
	}
	old := c.installSessionLocked(&session)
	c.state = models.StateAwaitingCode
	snap := c.snapshotLocked()
	snap.Busy = false
	c.mu.Unlock()

	stopTimer(old)
	c.recordTransition("initiate", req.Identifier, from, models.StateAwaitingCode)
	c.deliver(snap)
	return nil
}

// SubmitCode sends code bound to the active session. A rejected code leaves
// the state and session untouched so the caller can retry.
func (c *Controller) SubmitCode(ctx context.Context, code string) error {
	release, err := c.acquire()
	if err != nil {
		return err
	}
	defer release()

	from, session, gen, err := c.require(models.StateAwaitingCode)
	if err != nil {
		return err
	}
	if session == nil {
		return models.ErrNoActiveSession
	}

	code = strings.TrimSpace(code)
	if err := c.validator.Code(code); err != nil {
		return err
	}

	c.publish(true)
	if err := c.verifier.Verify(ctx, c.variant, session.CorrelationToken, session.Identifier, code); err != nil {
		err = classifyRemote("verify", err)
		c.recordFailure("verify", session.Identifier, from, err)
		c.publish(false)
		return err
	}

	to := c.variant.AfterVerification()

	c.mu.Lock()
	if c.generation != gen || c.state != from {
		c.mu.Unlock()
		return fmt.Errorf("verify: %w", models.ErrInvalidTransition)
	}
	var old *countdown.Timer
	if to == models.StateCompleted {
		old = c.installSessionLocked(nil)
	} else {
		// the session stays bound for the credential reset but no longer counts down
		old = c.timer
		c.timer = nil
		c.generation++
	}
	c.state = to
	snap := c.snapshotLocked()
	snap.Busy = false
	c.mu.Unlock()

	stopTimer(old)
	c.recordTransition("verify", session.Identifier, from, to)
	c.deliver(snap)
	return nil
}

// Resend asks the authority for a replacement code. It is refused locally
// while the current session still has time remaining.
func (c *Controller) Resend(ctx context.Context) error {
	release, err := c.acquire()
	if err != nil {
		return err
	}
	defer release()

	from, session, gen, err := c.require(models.StateAwaitingCode)
	if err != nil {
		return err
	}
	if session == nil {
		return models.ErrNoActiveSession
	}
	if !models.CanResend(session, c.clock.Now()) {
		return fmt.Errorf("%w (%s remaining)",
			models.ErrResendCooldown,
			models.FormatRemaining(session.RemainingSeconds(c.clock.Now())))
	}

	c.publish(true)
	issued, err := c.verifier.Resend(ctx, c.variant, session.CorrelationToken, session.Identifier)
	if err != nil {
		err = classifyRemote("resend", err)
		c.recordFailure("resend", session.Identifier, from, err)
		c.publish(false)
		return err
	}

	token := issued.CorrelationToken
	if token == "" {
		token = session.CorrelationToken
	}
	replacement, err := models.NewTokenSession(session.Identifier, token, issued.ExpiresAt, c.clock.Now())
	if err != nil {
		err = &models.TransportFailure{Op: "resend", Err: err}
		c.recordFailure("resend", session.Identifier, from, err)
		c.publish(false)
		return err
	}

	c.mu.Lock()
	if c.generation != gen || c.state != from {
		c.mu.Unlock()
		return fmt.Errorf("resend: %w", models.ErrInvalidTransition)
	}
	old := c.installSessionLocked(&replacement)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	stopTimer(old)
	c.logger.Info("verification code reissued",
		slog.String("identifier", logger.SanitizedEmail(session.Identifier)),
		slog.String("expires_at", replacement.ExpiresAt.Format(time.RFC3339)))
	c.recordTransition("resend", session.Identifier, from, from)
	c.deliver(snap)
	return nil
}

// ResetCredential completes a forgot-password flow with a new credential
func (c *Controller) ResetCredential(ctx context.Context, newCredential, confirmCredential string) error {
	release, err := c.acquire()
	if err != nil {
		return err
	}
	defer release()

	if c.variant != models.FlowForgotPassword {
		return fmt.Errorf("reset credential: %w", models.ErrInvalidTransition)
	}
	from, session, gen, err := c.require(models.StateResettingCredential)
	if err != nil {
		return err
	}
	if session == nil {
		return models.ErrNoActiveSession
	}

	if err := c.validator.Credential(newCredential, confirmCredential); err != nil {
		return err
	}

	c.publish(true)
	if err := c.verifier.ResetCredential(ctx, session.CorrelationToken, session.Identifier, newCredential, confirmCredential); err != nil {
		err = classifyRemote("reset_credential", err)
		c.recordFailure("reset_credential", session.Identifier, from, err)
		c.publish(false)
		return err
	}

	c.mu.Lock()
	if c.generation != gen || c.state != from {
		c.mu.Unlock()
		return fmt.Errorf("reset credential: %w", models.ErrInvalidTransition)
	}
	old := c.installSessionLocked(nil)
	c.state = models.StateCompleted
	snap := c.snapshotLocked()
	snap.Busy = false
	c.mu.Unlock()

	stopTimer(old)
	c.recordTransition("reset_credential", session.Identifier, from, models.StateCompleted)
	c.deliver(snap)
	return nil
}

// Abandon tears the flow down: the countdown is cancelled, the session is
// dropped and every later operation fails. Calling it again is a no-op.
func (c *Controller) Abandon() {
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return
	}
	from := c.state
	identifier := ""
	if c.session != nil {
		identifier = c.session.Identifier
	}
	old := c.installSessionLocked(nil)
	c.state = models.StateAbandoned
	snap := c.snapshotLocked()
	snap.Busy = false
	c.mu.Unlock()

	stopTimer(old)
	c.recordTransition("abandon", identifier, from, models.StateAbandoned)
	c.deliver(snap)
}

// acquire claims the busy flag; a second caller is rejected, not queued
func (c *Controller) acquire() (func(), error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, models.ErrFlowBusy
	}
	return func() { c.busy.Store(false) }, nil
}

// require checks the flow is in want and returns a copy of the session
func (c *Controller) require(want models.FlowState) (models.FlowState, *models.TokenSession, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != want {
		return c.state, nil, 0, fmt.Errorf("%w: flow is %s, want %s", models.ErrInvalidTransition, c.state, want)
	}
	return c.state, copySession(c.session), c.generation, nil
}

// installSessionLocked replaces the active session and its countdown.
// The previous timer is returned so it can be stopped after unlocking.
func (c *Controller) installSessionLocked(session *models.TokenSession) *countdown.Timer {
	old := c.timer
	c.timer = nil
	c.session = session
	c.generation++

	if session != nil {
		c.timer = countdown.Start(*session, c.clock, c.tickInterval, c.generation, c.onTick)
	}
	return old
}

// onTick is the countdown callback; only the active timer's ticks are published
func (c *Controller) onTick(tick countdown.Tick) {
	c.mu.Lock()
	if c.state.Terminal() || c.timer == nil || tick.Generation != c.timer.Generation() {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.deliver(snap)
}

func (c *Controller) snapshotLocked() models.Snapshot {
	c.seq++
	now := c.clock.Now()

	snap := models.Snapshot{
		Variant: c.variant,
		State:   c.state,
		Session: copySession(c.session),
		Busy:    c.busy.Load(),
		Seq:     c.seq,
	}
	if c.session != nil && c.state == models.StateAwaitingCode {
		snap.RemainingSeconds = c.session.RemainingSeconds(now)
		snap.CanResend = snap.RemainingSeconds == 0
	}
	return snap
}

// publish delivers the current snapshot unless the flow has been torn down
func (c *Controller) publish(busy bool) {
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	snap.Busy = busy
	c.mu.Unlock()

	c.deliver(snap)
}

// deliver hands snap to every observer. A snapshot overtaken by a newer one
// is dropped so observers never see the flow move backwards.
func (c *Controller) deliver(snap models.Snapshot) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	if snap.Seq <= c.delivered {
		return
	}
	c.delivered = snap.Seq

	c.mu.Lock()
	observers := make([]func(models.Snapshot), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

func (c *Controller) recordTransition(op, identifier string, from, to models.FlowState) {
	c.logger.Info("flow transition",
		slog.String("op", op),
		slog.String("from", from.String()),
		slog.String("to", to.String()))

	c.audit.LogFlowEvent(logger.FlowEvent{
		Variant:    string(c.variant),
		EventType:  op,
		Identifier: identifier,
		FromState:  from.String(),
		ToState:    to.String(),
		Success:    true,
	})
}

func (c *Controller) recordFailure(op, identifier string, state models.FlowState, err error) {
	var tf *models.TransportFailure
	if errors.As(err, &tf) {
		c.logger.Error("remote call failed",
			slog.String("op", op),
			slog.Any("error", tf.Err))
	} else {
		c.logger.Warn("remote call rejected",
			slog.String("op", op),
			slog.Any("error", err))
	}

	c.audit.LogFlowEvent(logger.FlowEvent{
		Variant:       string(c.variant),
		EventType:     op,
		Identifier:    identifier,
		FromState:     state.String(),
		ToState:       state.String(),
		Success:       false,
		FailureReason: err.Error(),
	})
}

// classifyRemote keeps the authority's verdict and folds anything else into a TransportFailure
func classifyRemote(op string, err error) error {
	var rr *models.RemoteRejection
	if errors.As(err, &rr) {
		return err
	}
	var tf *models.TransportFailure
	if errors.As(err, &tf) {
		return err
	}
	return &models.TransportFailure{Op: op, Err: err}
}

func stopTimer(t *countdown.Timer) {
	if t != nil {
		t.Stop()
	}
}

func copySession(s *models.TokenSession) *models.TokenSession {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
