package portal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/denysvitali/comprobantes-backend/pkg/failure"
	"github.com/denysvitali/comprobantes-backend/pkg/models"
	"github.com/denysvitali/comprobantes-backend/pkg/race"
)

type authState int

const (
	stateStart authState = iota
	stateLoginPageLoaded
	stateCaptchaDetected
	stateIdEntered
	stateNextStepClicked
	statePasswordEntered
	stateSubmitClicked
	stateNavigationObserved
	stateErrorTextObserved
	stateVerified
)

var authStateNames = map[authState]string{
	stateStart:              "start",
	stateLoginPageLoaded:    "login page loaded",
	stateCaptchaDetected:    "captcha detected",
	stateIdEntered:          "id entered",
	stateNextStepClicked:    "next step clicked",
	statePasswordEntered:    "password entered",
	stateSubmitClicked:      "submit clicked",
	stateNavigationObserved: "navigation observed",
	stateErrorTextObserved:  "error text observed",
	stateVerified:           "verified",
}

func (s authState) String() string {
	if n, ok := authStateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	outcomeNavigation = "navigation"
	outcomeErrorText  = "error-text"
	outcomeNone       = "none"
)

type authenticator struct {
	*run
	creds models.Credentials

	// set while the submit outcome is awaited
	submitCtx      context.Context
	cancelSubmit   context.CancelFunc
	navigated      func() error
	loginErrorText string
}

// login walks the login form one state at a time until the session is
// verified or a failure is known.
func (r *run) login(ctx context.Context, creds models.Credentials) error {
	a := &authenticator{run: r, creds: creds}
	defer func() {
		if a.cancelSubmit != nil {
			a.cancelSubmit()
		}
	}()

	state := stateStart
	for state != stateVerified {
		next, err := a.step(ctx, state)
		if err != nil {
			r.log.Warnf("login failed in state %q: %v", state, err)
			return err
		}
		r.log.Debugf("login: %s -> %s", state, next)
		state = next
	}
	r.log.Infof("logged in")
	return nil
}

func (a *authenticator) step(ctx context.Context, state authState) (authState, error) {
	p := a.page
	switch state {
	case stateStart:
		if err := p.Navigate(ctx, a.loginURL); err != nil {
			return state, failure.Navigation(state.String(), err)
		}
		if err := p.WaitVisible(ctx, a.sel.LoginId); err != nil {
			return state, failure.Navigation(state.String(), err)
		}
		return stateLoginPageLoaded, nil

	case stateLoginPageLoaded:
		captcha, err := p.Has(ctx, a.sel.Captcha)
		if err != nil {
			return state, failure.Navigation(state.String(), err)
		}
		if captcha {
			return stateCaptchaDetected, nil
		}
		if err := p.Fill(ctx, a.sel.LoginId, a.creds.TaxpayerId); err != nil {
			return state, failure.Navigation(state.String(), err)
		}
		return stateIdEntered, nil

	case stateCaptchaDetected:
		return state, failure.New(failure.CaptchaRequired, state.String(), errors.New("the login page shows a captcha"))

	case stateIdEntered:
		if err := p.Click(ctx, a.sel.LoginNext); err != nil {
			return state, failure.Navigation(state.String(), err)
		}
		return stateNextStepClicked, nil

	case stateNextStepClicked:
		// an unknown id keeps the form on the first step and shows an error
		out := race.First(ctx, a.t.Step, outcomeNone,
			race.Branch[string]{Tag: "password", Wait: func(ctx context.Context) (string, error) {
				return "", p.WaitVisible(ctx, a.sel.LoginPassword)
			}},
			race.Branch[string]{Tag: outcomeErrorText, Wait: a.errorText},
		)
		switch out.Tag {
		case outcomeErrorText:
			if code, ok := failure.ClassifyText(out.Value); ok {
				return state, failure.New(code, state.String(), errors.New("taxpayer id rejected"))
			}
			return state, failure.New(failure.NavigationError, state.String(), errors.New("unexpected message instead of the password field"))
		case outcomeNone:
			if out.TimedOut {
				return state, failure.New(failure.Timeout, state.String(), errors.New("password field did not show up"))
			}
			return state, failure.Navigation(state.String(), errors.Join(out.Errs...))
		}
		if err := p.Fill(ctx, a.sel.LoginPassword, a.creds.Password); err != nil {
			return state, failure.Navigation(state.String(), err)
		}
		return statePasswordEntered, nil

	case statePasswordEntered:
		a.submitCtx, a.cancelSubmit = context.WithTimeout(ctx, a.t.LoginOutcome)
		a.navigated = p.ExpectNavigation(a.submitCtx)
		if err := p.Click(ctx, a.sel.LoginSubmit); err != nil {
			return state, failure.Navigation(state.String(), err)
		}
		return stateSubmitClicked, nil

	case stateSubmitClicked:
		out := race.First(a.submitCtx, a.t.LoginOutcome, outcomeNone,
			race.Branch[string]{
				Tag: outcomeNavigation,
				Wait: func(ctx context.Context) (string, error) {
					return "", a.navigated()
				},
			},
			race.Branch[string]{Tag: outcomeErrorText, Wait: a.errorText},
		)
		switch out.Tag {
		case outcomeErrorText:
			a.loginErrorText = out.Value
			return stateErrorTextObserved, nil
		case outcomeNavigation:
			return stateNavigationObserved, nil
		}
		a.log.Debugf("no login outcome observed (timed out: %v), verifying", out.TimedOut)
		return stateNavigationObserved, nil

	case stateNavigationObserved, stateErrorTextObserved:
		if err := a.verify(ctx); err != nil {
			return state, err
		}
		return stateVerified, nil
	}
	return state, fmt.Errorf("unexpected login state %s", state)
}

// verify re-reads the URL and any inline error once the submit outcome is
// known.
func (a *authenticator) verify(ctx context.Context) error {
	current, err := a.page.URL()
	if err != nil {
		return failure.Navigation("verify", err)
	}
	onLogin := a.isLoginPage(current)

	text := a.loginErrorText
	if text == "" && onLogin {
		text = a.inlineError(ctx)
	}
	if code, ok := failure.ClassifyText(text); ok {
		return failure.New(code, "verify", errors.New("login rejected by the portal"))
	}
	if onLogin {
		return failure.New(failure.InvalidCredentials, "verify", errors.New("still on the login page after submit"))
	}
	return nil
}

// errorText waits for the inline error element and returns its text.
func (a *authenticator) errorText(ctx context.Context) (string, error) {
	if err := a.page.WaitVisible(ctx, a.sel.LoginError); err != nil {
		return "", err
	}
	text, err := a.page.Text(ctx, a.sel.LoginError)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		// an empty message container is not an outcome
		<-ctx.Done()
		return "", ctx.Err()
	}
	return text, nil
}

func (a *authenticator) inlineError(ctx context.Context) string {
	has, err := a.page.Has(ctx, a.sel.LoginError)
	if err != nil || !has {
		return ""
	}
	text, err := a.page.Text(ctx, a.sel.LoginError)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

func (a *authenticator) isLoginPage(current string) bool {
	cu, err := url.Parse(current)
	if err != nil {
		return false
	}
	lu, err := url.Parse(a.loginURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(cu.Host, lu.Host) && strings.TrimSuffix(cu.Path, "/") == strings.TrimSuffix(lu.Path, "/")
}
