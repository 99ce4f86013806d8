// Package onboarding sequences phone verification into the
// phone -> verify -> ready flow that unlocks a referral link.
//
// A Controller owns one VerificationSession at a time and at most one
// delivery poll. Operations that need the network block for that call;
// delivery confirmation arrives asynchronously and is published to
// subscribers.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/referral-onboarding/internal/application/delivery"
	"github.com/referral-onboarding/internal/application/otp"
	"github.com/referral-onboarding/internal/application/verify"
	"github.com/referral-onboarding/internal/domain"
	"github.com/referral-onboarding/internal/infrastructure/backend"
	"github.com/referral-onboarding/internal/pkg/id"
)

var (
	ErrClosed    = errors.New("onboarding session closed")
	ErrBusy      = fmt.Errorf("please wait for the current request to finish: %w", domain.ErrValidation)
	ErrWrongStep = fmt.Errorf("operation not allowed in current step: %w", domain.ErrConflict)
)

// Poller is the delivery poll owned by a single controller.
type Poller interface {
	Start(ctx context.Context, messageID string, onUpdate func(delivery.Update))
	Stop()
	Wait()
}

// LinkAPI resends an existing referral link.
type LinkAPI interface {
	ResendLink(ctx context.Context, phone string) (*backend.ResendLinkResponse, error)
}

// Deps are the collaborators shared by every controller. NewPoller is called
// once per controller.
type Deps struct {
	Sender    otp.Sender
	Verifier  verify.Verifier
	Links     LinkAPI
	NewPoller func() Poller
}

type Controller struct {
	id       string
	mode     domain.Mode
	sender   otp.Sender
	verifier verify.Verifier
	links    LinkAPI
	poller   Poller
	log      *slog.Logger

	root       context.Context
	cancelRoot context.CancelFunc

	// startMu orders poller.Start calls; held without mu.
	startMu sync.Mutex

	mu            sync.Mutex
	gen           uint64
	session       context.Context
	cancelSession context.CancelFunc
	closed        bool
	resending     bool
	view          domain.OnboardingView
	subs          map[int]chan struct{}
	nextSub       int
}

func NewController(onboardingID string, mode domain.Mode, d Deps) *Controller {
	root, cancel := context.WithCancel(context.Background())
	c := &Controller{
		id:         onboardingID,
		mode:       mode,
		sender:     d.Sender,
		verifier:   d.Verifier,
		links:      d.Links,
		poller:     d.NewPoller(),
		log:        slog.With("onboarding_id", onboardingID, "mode", mode),
		root:       root,
		cancelRoot: cancel,
		subs:       make(map[int]chan struct{}),
	}
	c.view = domain.OnboardingView{
		Mode:     mode,
		Step:     domain.StepPhone,
		Headline: headline(mode, domain.StepPhone),
		Channel:  domain.ChannelSMS,
	}
	c.beginSessionLocked()
	return c
}

func (c *Controller) ID() string         { return c.id }
func (c *Controller) Mode() domain.Mode { return c.mode }

// View returns a snapshot of the current state.
func (c *Controller) View() domain.OnboardingView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() domain.OnboardingView {
	v := c.view
	if v.Session != nil {
		s := *v.Session
		v.Session = &s
	}
	if v.Error != nil {
		e := *v.Error
		v.Error = &e
	}
	return v
}

// Subscribe returns a channel that receives a value after every state
// change. Notifications coalesce; call View to read the state. The channel
// is closed by Close or by the returned cancel func.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan struct{}, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	n := c.nextSub
	c.nextSub++
	c.subs[n] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[n]; ok {
			delete(c.subs, n)
			close(sub)
		}
	}
}

func (c *Controller) notifyLocked() {
	for _, ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// SubmitPhone sends a code to phone on ch. Malformed input is reported on
// the view without a network call. On acceptance the delivery poll runs in
// the background; the step moves to verify once delivery is confirmed.
func (c *Controller) SubmitPhone(ctx context.Context, phone string, ch domain.Channel) (domain.OnboardingView, error) {
	c.mu.Lock()
	if err := c.guardLocked(domain.StepPhone); err != nil {
		v := c.snapshotLocked()
		c.mu.Unlock()
		return v, err
	}
	phone = strings.TrimSpace(phone)
	if ch == "" {
		ch = c.view.Channel
	}
	c.view.Phone = phone
	c.view.Channel = ch
	if !domain.IsLoosePhone(phone) {
		c.view.Error = &domain.ViewError{Kind: domain.KindValidation, Message: msgInvalidPhone}
		c.notifyLocked()
		v := c.snapshotLocked()
		c.mu.Unlock()
		return v, nil
	}
	c.resending = false
	return c.sendLocked(ctx, phone, ch)
}

// Resend requests a fresh code for the current phone and channel while
// staying on the verify step until the new delivery outcome arrives.
func (c *Controller) Resend(ctx context.Context) (domain.OnboardingView, error) {
	c.mu.Lock()
	if err := c.guardLocked(domain.StepVerify); err != nil {
		v := c.snapshotLocked()
		c.mu.Unlock()
		return v, err
	}
	c.resending = true
	return c.sendLocked(ctx, c.view.Phone, c.view.Channel)
}

// sendLocked is entered with mu held and returns with it released.
func (c *Controller) sendLocked(ctx context.Context, phone string, ch domain.Channel) (domain.OnboardingView, error) {
	g, sctx := c.beginSessionLocked()
	c.view.Busy = true
	c.view.Error = nil
	c.view.Notice = ""
	c.view.Delivery = sendingText(ch)
	c.view.Session = &domain.VerificationSession{
		ID:      id.WithPrefix("vs_"),
		Phone:   phone,
		Channel: ch,
		Status:  domain.StatusSending,
	}
	c.notifyLocked()
	c.mu.Unlock()

	callCtx, stop := callContext(ctx, sctx)
	out := c.sender.Send(callCtx, phone, ch)
	stop()

	c.mu.Lock()
	if c.staleLocked(g) {
		v := c.snapshotLocked()
		c.mu.Unlock()
		return v, nil
	}
	if !out.Accepted {
		c.sendRejectedLocked(out)
		v := c.snapshotLocked()
		c.mu.Unlock()
		return v, nil
	}

	if out.ChannelUsed != "" {
		ch = out.ChannelUsed
	}
	c.view.Session.MessageID = out.MessageID
	c.view.Session.Channel = ch
	c.view.Session.Status = domain.StatusWaitingDelivery
	c.view.Channel = ch
	c.view.Delivery = waitingText(ch, 0, 0)
	c.log.Info("verification code accepted", "session_id", c.view.Session.ID, "message_id", out.MessageID, "channel", ch)
	c.notifyLocked()
	v := c.snapshotLocked()
	c.mu.Unlock()

	c.startPoll(g, sctx, out.MessageID)
	return v, nil
}

func (c *Controller) sendRejectedLocked(out domain.SendOutcome) {
	c.view.Session.Status = domain.StatusSendFailed
	c.view.Busy = false
	c.view.Delivery = ""
	c.view.Error = &domain.ViewError{Kind: out.Kind, Message: out.Reason}
	if out.SuggestedFallback != "" {
		c.view.Channel = out.SuggestedFallback
	}
	c.leaveVerifyLocked()
	if out.Kind == domain.KindContractViolation {
		c.log.Error("send-verification contract violation", "reason", out.Reason)
	} else {
		c.log.Info("verification send rejected", "kind", out.Kind, "fallback", out.SuggestedFallback)
	}
	c.notifyLocked()
}

func (c *Controller) startPoll(g uint64, sctx context.Context, messageID string) {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	stale := c.staleLocked(g)
	c.mu.Unlock()
	if stale {
		return
	}
	c.poller.Start(sctx, messageID, func(u delivery.Update) { c.onDelivery(g, u) })
}

func (c *Controller) onDelivery(g uint64, u delivery.Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(g) || c.view.Session == nil || c.view.Session.MessageID != u.MessageID {
		return
	}
	s := c.view.Session
	s.Status = u.Status

	switch u.Status {
	case domain.StatusWaitingDelivery:
		c.view.Delivery = waitingText(s.Channel, u.Attempt, u.MaxAttempts)
	case domain.StatusDelivered:
		c.view.Busy = false
		c.view.Error = nil
		c.view.Delivery = deliveredText(s.Channel)
		if c.resending {
			c.view.Notice = resentNotice(s.Channel)
		}
		c.resending = false
		c.setStepLocked(domain.StepVerify)
		c.log.Info("verification code delivered", "message_id", u.MessageID, "attempts", u.Attempt)
	case domain.StatusDeliveryFailed, domain.StatusDeliveryTimeout:
		kind := domain.KindChannelDelivery
		if u.Status == domain.StatusDeliveryTimeout {
			kind = domain.KindTimeout
		}
		c.view.Busy = false
		c.view.Delivery = ""
		c.view.Error = &domain.ViewError{Kind: kind, Message: deliveryFailedText(s.Channel)}
		if s.Channel == domain.ChannelWhatsApp {
			c.view.Channel = domain.ChannelSMS
		}
		c.leaveVerifyLocked()
		c.log.Info("verification code not delivered", "message_id", u.MessageID, "status", u.Status, "attempts", u.Attempt)
	}
	c.notifyLocked()
}

// SubmitCode checks code against the backend. On success the flow is ready
// and every trace of earlier delivery trouble is cleared.
func (c *Controller) SubmitCode(ctx context.Context, code string) (domain.OnboardingView, error) {
	c.mu.Lock()
	if err := c.guardLocked(domain.StepVerify); err != nil {
		v := c.snapshotLocked()
		c.mu.Unlock()
		return v, err
	}
	// A session without a message (after VERIFY_FAILED) only accepts Resend or Back.
	if c.view.Session == nil || c.view.Session.MessageID == "" {
		c.view.Error = &domain.ViewError{Kind: domain.KindValidation, Message: msgResendNeeded}
		c.notifyLocked()
		v := c.snapshotLocked()
		c.mu.Unlock()
		return v, nil
	}
	code = strings.TrimSpace(code)
	if !domain.IsOTPCode(code) {
		c.view.Error = &domain.ViewError{Kind: domain.KindValidation, Message: msgInvalidCode}
		c.notifyLocked()
		v := c.snapshotLocked()
		c.mu.Unlock()
		return v, nil
	}
	g, sctx := c.gen, c.session
	phone := c.view.Phone
	c.view.Busy = true
	c.view.Error = nil
	c.view.Session.Status = domain.StatusCodeSubmitted
	c.notifyLocked()
	c.mu.Unlock()

	callCtx, stop := callContext(ctx, sctx)
	out := c.verifier.Verify(callCtx, phone, code)
	stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(g) {
		return c.snapshotLocked(), nil
	}
	c.view.Busy = false
	if out.Verified {
		c.view.Session.Status = domain.StatusVerified
		c.view.ReferralCode = out.ReferralCode
		c.view.ReferralLink = out.ReferralLink
		c.view.Error = nil
		c.view.Delivery = ""
		c.view.Notice = ""
		c.setStepLocked(domain.StepReady)
		c.poller.Stop()
		c.log.Info("phone verified", "session_id", c.view.Session.ID, "referral_code", out.ReferralCode)
		c.notifyLocked()
		return c.snapshotLocked(), nil
	}

	c.view.Error = &domain.ViewError{Kind: out.Kind, Message: out.Reason}
	if out.Kind == domain.KindContractViolation {
		// The session can no longer be trusted; a resend starts a new one.
		c.view.Session.Status = domain.StatusVerifyFailed
		c.view.Session.MessageID = ""
		c.log.Error("verify-code contract violation", "session_id", c.view.Session.ID)
	} else {
		c.view.Session.Status = domain.StatusDelivered
	}
	c.notifyLocked()
	return c.snapshotLocked(), nil
}

// Back returns to the phone step, discarding the current session and any
// delivery poll. Allowed from phone and verify.
func (c *Controller) Back() (domain.OnboardingView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.snapshotLocked(), ErrClosed
	}
	if c.view.Step == domain.StepReady {
		return c.snapshotLocked(), ErrWrongStep
	}
	c.beginSessionLocked()
	c.poller.Stop()
	c.resending = false
	c.view.Session = nil
	c.view.Busy = false
	c.view.Delivery = ""
	c.view.Notice = ""
	c.view.Error = nil
	c.setStepLocked(domain.StepPhone)
	c.notifyLocked()
	return c.snapshotLocked(), nil
}

// SelectChannel changes the channel used by the next send.
func (c *Controller) SelectChannel(ch domain.Channel) (domain.OnboardingView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guardLocked(domain.StepPhone); err != nil {
		return c.snapshotLocked(), err
	}
	c.view.Channel = ch
	c.notifyLocked()
	return c.snapshotLocked(), nil
}

// ResendLink asks the backend to resend an existing referral link. It is
// available on the ready step, and on the phone step for returning users.
// The step never changes.
func (c *Controller) ResendLink(ctx context.Context, phone string) (domain.OnboardingView, error) {
	c.mu.Lock()
	if c.closed {
		v := c.snapshotLocked()
		c.mu.Unlock()
		return v, ErrClosed
	}
	step := c.view.Step
	if !(step == domain.StepReady || (step == domain.StepPhone && c.mode == domain.ModeReturning)) {
		v := c.snapshotLocked()
		c.mu.Unlock()
		return v, ErrWrongStep
	}
	if c.view.Busy {
		v := c.snapshotLocked()
		c.mu.Unlock()
		return v, ErrBusy
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		phone = c.view.Phone
	}
	if step == domain.StepPhone {
		c.view.Phone = phone
	}
	if !domain.IsLoosePhone(phone) {
		c.view.Error = &domain.ViewError{Kind: domain.KindValidation, Message: msgInvalidPhone}
		c.notifyLocked()
		v := c.snapshotLocked()
		c.mu.Unlock()
		return v, nil
	}
	g, sctx := c.gen, c.session
	c.view.Busy = true
	c.view.Error = nil
	c.view.Notice = ""
	c.notifyLocked()
	c.mu.Unlock()

	callCtx, stop := callContext(ctx, sctx)
	resp, err := c.links.ResendLink(callCtx, phone)
	stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(g) {
		return c.snapshotLocked(), nil
	}
	c.view.Busy = false
	switch {
	case errors.Is(err, domain.ErrContractViolation):
		c.log.Error("resend-link contract violation", "err", err)
		c.view.Error = &domain.ViewError{Kind: domain.KindContractViolation, Message: msgInvalidPayload}
	case err != nil:
		c.log.Warn("resend-link failed", "err", err)
		c.view.Error = &domain.ViewError{Kind: domain.KindTransport, Message: msgConnectivity}
	case !resp.Success:
		msg := resp.Error
		if msg == "" {
			msg = msgLinkFailed
		}
		c.view.Error = &domain.ViewError{Kind: domain.KindRejected, Message: msg}
	default:
		c.view.Notice = linkSentNotice(phone)
	}
	c.notifyLocked()
	return c.snapshotLocked(), nil
}

// Close stops the delivery poll and drops any in-flight response. Subscriber
// channels are closed. Safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	if c.cancelSession != nil {
		c.cancelSession()
	}
	c.cancelRoot()
	c.poller.Stop()
	for n, ch := range c.subs {
		delete(c.subs, n)
		close(ch)
	}
	c.mu.Unlock()

	c.poller.Wait()
	c.log.Debug("onboarding closed")
}

func (c *Controller) guardLocked(want domain.Step) error {
	switch {
	case c.closed:
		return ErrClosed
	case c.view.Step != want:
		return ErrWrongStep
	case c.view.Busy:
		return ErrBusy
	}
	return nil
}

func (c *Controller) staleLocked(g uint64) bool {
	return c.closed || c.gen != g
}

// beginSessionLocked invalidates in-flight work for the previous session and
// returns the new generation with its context.
func (c *Controller) beginSessionLocked() (uint64, context.Context) {
	if c.cancelSession != nil {
		c.cancelSession()
	}
	c.gen++
	c.session, c.cancelSession = context.WithCancel(c.root)
	return c.gen, c.session
}

func (c *Controller) setStepLocked(s domain.Step) {
	c.view.Step = s
	c.view.Headline = headline(c.mode, s)
}

// leaveVerifyLocked sends a failed resend back to the phone step.
func (c *Controller) leaveVerifyLocked() {
	c.resending = false
	if c.view.Step == domain.StepVerify {
		c.setStepLocked(domain.StepPhone)
	}
}

// callContext is cancelled when either the caller or the session goes away.
func callContext(caller, session context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(session)
	stop := context.AfterFunc(caller, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
