// onboard drives one phone-verification onboarding from the terminal: it
// sends a code, waits for delivery confirmation and prints the referral link
// once the code is verified. A referral code passed with --ref is kept on
// disk under --state-dir so that a later run can credit the referrer.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/referral-onboarding/internal/application/attribution"
	"github.com/referral-onboarding/internal/application/delivery"
	"github.com/referral-onboarding/internal/application/onboarding"
	"github.com/referral-onboarding/internal/application/otp"
	"github.com/referral-onboarding/internal/application/verify"
	"github.com/referral-onboarding/internal/config"
	"github.com/referral-onboarding/internal/domain"
	"github.com/referral-onboarding/internal/infrastructure/backend"
	"github.com/referral-onboarding/internal/infrastructure/localstore"
	"github.com/referral-onboarding/internal/infrastructure/memory"
	"github.com/referral-onboarding/internal/pkg/id"
)

const slotKey = "terminal"

type options struct {
	backendURL string
	mode       string
	phone      string
	channel    string
	code       string
	stateDir   string
	ref        string
	verbose    bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	cfg := config.Load()

	defaultState := ".onboard"
	if home, err := os.UserHomeDir(); err == nil {
		defaultState = filepath.Join(home, ".onboard")
	}

	var o options
	flagSet := pflag.NewFlagSet("onboard", pflag.ContinueOnError)
	flagSet.StringVar(&o.backendURL, "backend", cfg.BackendBaseURL, "verification backend base URL")
	flagSet.StringVar(&o.mode, "mode", string(domain.ModeNew), "flow variant: new or returning")
	flagSet.StringVar(&o.phone, "phone", "", "phone number (prompted when empty)")
	flagSet.StringVarP(&o.channel, "channel", "c", string(domain.ChannelSMS), "delivery channel: sms or whatsapp")
	flagSet.StringVar(&o.code, "code", "", "verification code (prompted when empty)")
	flagSet.StringVar(&o.stateDir, "state-dir", defaultState, "directory holding the saved referral attribution")
	flagSet.StringVar(&o.ref, "ref", "", "referral code to remember for this signup")
	flagSet.BoolVarP(&o.verbose, "verbose", "v", false, "log backend traffic to stderr")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	mode, err := domain.ParseMode(o.mode)
	if err != nil {
		return err
	}
	ch, err := domain.ParseChannel(o.channel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slots := attribution.Settings{
		Secondary: memory.NewSlotStore(cfg.AttributionFallbackTTL, nil),
		TTL:       cfg.AttributionTTL,
	}
	if fs, err := localstore.NewFileStore(o.stateDir); err == nil {
		slots.Primary = fs
	} else {
		slog.Warn("attribution will not survive this run", "err", err)
	}
	attr := attribution.NewService(slots).For(slotKey)
	if o.ref != "" {
		if !attribution.IsValidFormat(o.ref) {
			return fmt.Errorf("%q is not a valid referral code", o.ref)
		}
		if attr.CaptureManual(ctx, o.ref) == nil {
			return fmt.Errorf("referral code %q could not be saved", o.ref)
		}
	}
	if rec := attr.Read(ctx); rec != nil {
		fmt.Printf("Referred by %s\n", rec.Code)
	}

	api := backend.NewClient(o.backendURL, cfg.BackendTimeout)
	ctrl := onboarding.NewController(id.WithPrefix("ob_"), mode, onboarding.Deps{
		Sender:   otp.NewSender(api),
		Verifier: verify.NewVerifier(api),
		Links:    api,
		NewPoller: func() onboarding.Poller {
			return delivery.NewPoller(api,
				delivery.WithInterval(cfg.PollInterval),
				delivery.WithMaxAttempts(cfg.PollAttempts),
			)
		},
	})
	defer ctrl.Close()

	t := &terminal{ctx: ctx, ctrl: ctrl, in: bufio.NewReader(os.Stdin), out: os.Stdout}
	fmt.Fprintln(t.out, ctrl.View().Headline)
	if _, err := ctrl.SelectChannel(ch); err != nil {
		return err
	}

	v, err := t.phoneStep(o.phone)
	if err != nil {
		return err
	}
	if v.Step != domain.StepReady {
		if v, err = t.verifyStep(o.code); err != nil {
			return err
		}
	}

	fmt.Fprintln(t.out, v.Headline)
	fmt.Fprintf(t.out, "Referral code: %s\nReferral link: %s\n", v.ReferralCode, v.ReferralLink)
	if rec := attr.Read(ctx); rec != nil {
		fmt.Fprintf(t.out, "Signup credited to %s\n", rec.Code)
		attr.Clear(ctx)
	}
	return nil
}

type terminal struct {
	ctx  context.Context
	ctrl *onboarding.Controller
	in   *bufio.Reader
	out  io.Writer
}

func (t *terminal) prompt(label string) (string, error) {
	fmt.Fprint(t.out, label)
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// settle prints delivery progress until the controller is no longer busy.
func (t *terminal) settle(v domain.OnboardingView) (domain.OnboardingView, error) {
	changes, cancel := t.ctrl.Subscribe()
	defer cancel()
	last := ""
	for {
		v = t.ctrl.View()
		if v.Delivery != "" && v.Delivery != last {
			fmt.Fprintln(t.out, v.Delivery)
			last = v.Delivery
		}
		if !v.Busy {
			return v, nil
		}
		select {
		case <-t.ctx.Done():
			return v, t.ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return t.ctrl.View(), onboarding.ErrClosed
			}
		}
	}
}

func (t *terminal) report(v domain.OnboardingView) {
	if v.Notice != "" {
		fmt.Fprintln(t.out, v.Notice)
	}
	if v.Error == nil {
		return
	}
	fmt.Fprintln(t.out, v.Error.Message)
	if errors.Is(v.Error.Err(), domain.ErrTransport) {
		fmt.Fprintln(t.out, "Is the backend running? Check --backend.")
	}
}

// phoneStep returns once the code is delivered.
func (t *terminal) phoneStep(phone string) (domain.OnboardingView, error) {
	for {
		var err error
		if phone == "" {
			if phone, err = t.prompt("Phone number: "); err != nil {
				return domain.OnboardingView{}, err
			}
		}
		v, err := t.ctrl.SubmitPhone(t.ctx, phone, "")
		if err != nil {
			return v, err
		}
		if v, err = t.settle(v); err != nil {
			return v, err
		}
		t.report(v)
		if v.Step == domain.StepVerify {
			return v, nil
		}
		phone = ""
	}
}

// verifyStep accepts a code, "r" to resend or "b" to change the number.
func (t *terminal) verifyStep(code string) (domain.OnboardingView, error) {
	for {
		var err error
		if code == "" {
			if code, err = t.prompt("Code (r to resend, b to go back): "); err != nil {
				return domain.OnboardingView{}, err
			}
		}
		var v domain.OnboardingView
		switch strings.ToLower(code) {
		case "r":
			v, err = t.ctrl.Resend(t.ctx)
		case "b":
			if _, err = t.ctrl.Back(); err == nil {
				v, err = t.phoneStep("")
			}
		default:
			v, err = t.ctrl.SubmitCode(t.ctx, code)
		}
		if err != nil {
			return v, err
		}
		if v, err = t.settle(v); err != nil {
			return v, err
		}
		t.report(v)
		switch v.Step {
		case domain.StepReady:
			return v, nil
		case domain.StepPhone:
			if v, err = t.phoneStep(""); err != nil {
				return v, err
			}
		}
		code = ""
	}
}
