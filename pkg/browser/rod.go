package browser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

const (
	DefaultUserAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36"
	DefaultOperationTimeout = 30 * time.Second
	defaultRequestIdle      = 500 * time.Millisecond
	defaultViewportWidth    = 1366
	defaultViewportHeight   = 768
)

var log = logrus.StandardLogger().WithField("package", "browser")

// Launcher opens go-rod backed sessions, one browser process per session.
type Launcher struct {
	bin              string
	headless         bool
	noSandbox        bool
	userAgent        string
	operationTimeout time.Duration
}

var _ Opener = (*Launcher)(nil)

type Option func(*Launcher)

func WithBin(path string) Option {
	return func(l *Launcher) {
		l.bin = path
	}
}

func WithHeadless(headless bool) Option {
	return func(l *Launcher) {
		l.headless = headless
	}
}

func WithNoSandbox() Option {
	return func(l *Launcher) {
		l.noSandbox = true
	}
}

func WithUserAgent(ua string) Option {
	return func(l *Launcher) {
		if ua != "" {
			l.userAgent = ua
		}
	}
}

func WithOperationTimeout(d time.Duration) Option {
	return func(l *Launcher) {
		if d > 0 {
			l.operationTimeout = d
		}
	}
}

func NewLauncher(opts ...Option) *Launcher {
	l := &Launcher{
		headless:         true,
		userAgent:        DefaultUserAgent,
		operationTimeout: DefaultOperationTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open starts a browser process and returns a session holding one page in a
// fresh incognito context. On error everything started so far is torn down.
func (l *Launcher) Open(ctx context.Context) (Session, error) {
	s := &rodSession{timeout: l.operationTimeout}

	lc := launcher.New().
		Headless(l.headless).
		NoSandbox(l.noSandbox).
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-extensions")
	if l.bin != "" {
		lc = lc.Bin(l.bin)
	}
	s.launcher = lc

	controlURL, err := lc.Launch()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("unable to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		s.Close()
		return nil, fmt.Errorf("unable to connect to browser: %w", err)
	}
	s.browser = b

	incognito, err := b.Incognito()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("unable to create browser context: %w", err)
	}
	s.incognito = incognito

	opCtx, cancel := context.WithTimeout(ctx, l.operationTimeout)
	defer cancel()
	page, err := incognito.Context(opCtx).Page(proto.TargetCreateTarget{})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("unable to create page: %w", err)
	}
	page = page.Context(context.Background())
	s.page = page

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: l.userAgent}); err != nil {
		s.Close()
		return nil, fmt.Errorf("unable to set user agent: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             defaultViewportWidth,
		Height:            defaultViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		s.Close()
		return nil, fmt.Errorf("unable to set viewport: %w", err)
	}

	log.Debugf("browser session opened")
	return s, nil
}

type rodSession struct {
	launcher  *launcher.Launcher
	browser   *rod.Browser
	incognito *rod.Browser
	page      *rod.Page
	timeout   time.Duration

	once     sync.Once
	closeErr error
}

func (s *rodSession) Page() Page {
	return &rodPage{page: s.page, browser: s.incognito, timeout: s.timeout}
}

// Close releases page, context, browser and process. It is safe to call
// more than once and on a partially opened session.
func (s *rodSession) Close() error {
	s.once.Do(func() {
		var errs []error
		if s.page != nil {
			if err := s.page.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close page: %w", err))
			}
		}
		if s.incognito != nil {
			if err := s.incognito.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close context: %w", err))
			}
		}
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close browser: %w", err))
			}
		}
		if s.launcher != nil {
			s.launcher.Kill()
			s.launcher.Cleanup()
		}
		s.closeErr = errors.Join(errs...)
		if s.closeErr != nil {
			log.Warnf("browser session closed with errors: %v", s.closeErr)
		} else {
			log.Debugf("browser session closed")
		}
	})
	return s.closeErr
}

type rodPage struct {
	page    *rod.Page
	browser *rod.Browser
	timeout time.Duration
}

var _ Page = (*rodPage)(nil)

func (p *rodPage) op(ctx context.Context) (*rod.Page, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	return p.page.Context(ctx), cancel
}

func (p *rodPage) element(ctx context.Context, selector string) (*rod.Element, context.CancelFunc, error) {
	page, cancel := p.op(ctx)
	el, err := page.Element(selector)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("element %q: %w", selector, err)
	}
	return el, cancel, nil
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page, cancel := p.op(ctx)
	defer cancel()
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return page.WaitLoad()
}

func (p *rodPage) URL() (string, error) {
	page, cancel := p.op(context.Background())
	defer cancel()
	info, err := page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *rodPage) Has(ctx context.Context, selector string) (bool, error) {
	page, cancel := p.op(ctx)
	defer cancel()
	has, _, err := page.Has(selector)
	return has, err
}

func (p *rodPage) WaitVisible(ctx context.Context, selector string) error {
	el, cancel, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	defer cancel()
	return el.WaitVisible()
}

func (p *rodPage) Text(ctx context.Context, selector string) (string, error) {
	el, cancel, err := p.element(ctx, selector)
	if err != nil {
		return "", err
	}
	defer cancel()
	return el.Text()
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	el, cancel, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	defer cancel()
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) ClickNth(ctx context.Context, selector string, n int) error {
	page, cancel := p.op(ctx)
	defer cancel()
	if _, err := page.Element(selector); err != nil {
		return fmt.Errorf("element %q: %w", selector, err)
	}
	els, err := page.Elements(selector)
	if err != nil {
		return err
	}
	if n < 0 || n >= len(els) {
		return fmt.Errorf("element %q: index %d out of range (%d found)", selector, n, len(els))
	}
	return els[n].Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) Fill(ctx context.Context, selector string, value string) error {
	el, cancel, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	defer cancel()
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("focus %q: %w", selector, err)
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("select text of %q: %w", selector, err)
	}
	return el.Input(value)
}

func (p *rodPage) SelectOption(ctx context.Context, selector string, label string) error {
	el, cancel, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	defer cancel()
	return el.Select([]string{label}, true, rod.SelectorTypeText)
}

func (p *rodPage) ScrollIntoView(ctx context.Context, selector string) error {
	el, cancel, err := p.element(ctx, selector)
	if err != nil {
		return err
	}
	defer cancel()
	return el.ScrollIntoView()
}

func (p *rodPage) WaitSettled(ctx context.Context) error {
	page, cancel := p.op(ctx)
	defer cancel()
	wait := page.WaitRequestIdle(defaultRequestIdle, nil, nil, nil)
	wait()
	return page.GetContext().Err()
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	page, cancel := p.op(ctx)
	defer cancel()
	return page.HTML()
}

func (p *rodPage) ExpectNavigation(ctx context.Context) func() error {
	page := p.page.Context(ctx)
	wait := page.WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
	return func() error {
		wait()
		return ctx.Err()
	}
}

func (p *rodPage) ExpectNewTab(ctx context.Context) func() (Page, error) {
	wait := p.page.Context(ctx).WaitOpen()
	return func() (Page, error) {
		newPage, err := wait()
		if err != nil {
			return nil, err
		}
		if err := newPage.Context(ctx).WaitLoad(); err != nil {
			return nil, fmt.Errorf("wait for new tab to load: %w", err)
		}
		return &rodPage{page: newPage, browser: p.browser, timeout: p.timeout}, nil
	}
}

func (p *rodPage) ExpectDownload(ctx context.Context, dir string) func() (string, error) {
	wait := p.browser.Context(ctx).WaitDownload(dir)
	return func() (string, error) {
		info := wait()
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if info == nil || info.GUID == "" {
			return "", ErrNoDownload
		}
		return filepath.Join(dir, info.GUID), nil
	}
}
