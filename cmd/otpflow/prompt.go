package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/otpflow/internal/flow"
	"github.com/BradenHooton/otpflow/internal/models"
)

var errQuit = errors.New("flow abandoned")

// syncWriter lets countdown notices and prompts share one terminal
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}

// prompter walks one flow controller through its steps on a terminal
type prompter struct {
	ctrl    *flow.Controller
	in      *bufio.Scanner
	out     *syncWriter
	timeout time.Duration
}

func newPrompter(ctrl *flow.Controller, in io.Reader, out io.Writer, timeout time.Duration) *prompter {
	p := &prompter{
		ctrl:    ctrl,
		in:      bufio.NewScanner(in),
		out:     &syncWriter{w: out},
		timeout: timeout,
	}
	ctrl.Subscribe(p.watchExpiry())
	return p
}

// watchExpiry announces once per session when its code runs out
func (p *prompter) watchExpiry() func(models.Snapshot) {
	var announced time.Time
	return func(snap models.Snapshot) {
		if snap.State != models.StateAwaitingCode || snap.Session == nil || !snap.CanResend {
			return
		}
		if snap.Session.ExpiresAt.Equal(announced) {
			return
		}
		announced = snap.Session.ExpiresAt
		p.out.printf("\nOTP expired. Type 'resend' to get a new code.\n")
	}
}

func (p *prompter) ask(label string) (string, error) {
	p.out.printf("%s: ", label)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.in.Text()), nil
}

func (p *prompter) call(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return fn(ctx)
}

func (p *prompter) report(err error) {
	p.out.printf("Error: %s\n", models.UserMessage(err))
}

// run drives the flow to completion; errQuit or io.EOF abandon it
func (p *prompter) run() error {
	err := p.steps()
	if err != nil {
		p.ctrl.Abandon()
	}
	return err
}

func (p *prompter) steps() error {
	if err := p.collectIdentifier(); err != nil {
		return err
	}
	if err := p.awaitCode(); err != nil {
		return err
	}
	if p.ctrl.State() == models.StateResettingCredential {
		if err := p.resetCredential(); err != nil {
			return err
		}
	}

	if p.ctrl.Variant() == models.FlowSignup {
		p.out.printf("Email verified. You can now log in.\n")
	} else {
		p.out.printf("Password reset successfully. You can now log in.\n")
	}
	return nil
}

func (p *prompter) collectIdentifier() error {
	for p.ctrl.State() == models.StateCollectingIdentifier {
		var req flow.InitiateRequest
		var err error

		if p.ctrl.Variant() == models.FlowSignup {
			if req.Name, err = p.ask("Name"); err != nil {
				return err
			}
		}
		if req.Identifier, err = p.ask("Email"); err != nil {
			return err
		}
		if p.ctrl.Variant() == models.FlowSignup {
			if req.Credential, err = p.ask("Password"); err != nil {
				return err
			}
		}

		err = p.call(func(ctx context.Context) error { return p.ctrl.Initiate(ctx, req) })
		if err != nil {
			p.report(err)
			continue
		}
		p.out.printf("A verification code was sent to %s.\n", req.Identifier)
	}
	return nil
}

func (p *prompter) awaitCode() error {
	for p.ctrl.State() == models.StateAwaitingCode {
		snap := p.ctrl.Snapshot()
		if snap.CanResend {
			p.out.printf("OTP expired. Commands: resend, quit\n")
		} else {
			p.out.printf("OTP valid for %s. Commands: quit\n", models.FormatRemaining(snap.RemainingSeconds))
		}

		input, err := p.ask("Code")
		if err != nil {
			return err
		}

		switch strings.ToLower(input) {
		case "quit":
			return errQuit
		case "resend":
			err = p.call(p.ctrl.Resend)
			if err == nil {
				p.out.printf("A new code was sent.\n")
			}
		default:
			err = p.call(func(ctx context.Context) error { return p.ctrl.SubmitCode(ctx, input) })
		}
		if err != nil {
			p.report(err)
		}
	}
	return nil
}

func (p *prompter) resetCredential() error {
	for p.ctrl.State() == models.StateResettingCredential {
		newPassword, err := p.ask("New password")
		if err != nil {
			return err
		}
		if strings.EqualFold(newPassword, "quit") {
			return errQuit
		}
		confirm, err := p.ask("Confirm password")
		if err != nil {
			return err
		}

		err = p.call(func(ctx context.Context) error {
			return p.ctrl.ResetCredential(ctx, newPassword, confirm)
		})
		if err != nil {
			p.report(err)
		}
	}
	return nil
}
