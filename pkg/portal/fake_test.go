package portal_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/denysvitali/comprobantes-backend/pkg/browser"
)

// fakePage is a scripted browser.Page. Elements are plain selector strings
// that are either visible or not; clicking one runs its handler, which
// changes what is visible the way the portal would.
type fakePage struct {
	mu        sync.Mutex
	url       string
	visible   map[string]bool
	texts     map[string]string
	html      string
	handlers  map[string]func(p *fakePage)
	navigate  map[string]func(p *fakePage)
	downloads map[string]string

	clicks   []string
	fills    map[string]string
	selected map[string]string

	navWaiter chan struct{}
	tabWaiter chan browser.Page
	dlWaiter  chan string
	dlDir     string
	served    int
}

var _ browser.Page = (*fakePage)(nil)

func newFakePage() *fakePage {
	return &fakePage{
		visible:   map[string]bool{},
		texts:     map[string]string{},
		handlers:  map[string]func(p *fakePage){},
		navigate:  map[string]func(p *fakePage){},
		downloads: map[string]string{},
		fills:     map[string]string{},
		selected:  map[string]string{},
	}
}

func (p *fakePage) on(selector string, h func(p *fakePage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[selector] = h
}

func (p *fakePage) onNavigate(url string, h func(p *fakePage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigate[url] = h
}

func (p *fakePage) show(selectors ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		p.visible[s] = true
	}
}

func (p *fakePage) hide(selectors ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		delete(p.visible, s)
	}
}

func (p *fakePage) setText(selector string, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts[selector] = text
}

func (p *fakePage) setHTML(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = html
}

// serveDownload makes a click on selector download content.
func (p *fakePage) serveDownload(selector string, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible[selector] = true
	p.downloads[selector] = content
}

// navigateTo moves the page to url and signals a pending navigation wait.
func (p *fakePage) navigateTo(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	if p.navWaiter != nil {
		close(p.navWaiter)
		p.navWaiter = nil
	}
}

func (p *fakePage) openTab(tab browser.Page) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tabWaiter != nil {
		p.tabWaiter <- tab
		p.tabWaiter = nil
	}
}

func (p *fakePage) clicked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

func (p *fakePage) isVisible(selector string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible[selector]
}

func notFound(selector string) error {
	return fmt.Errorf("element %q not found", selector)
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	p.url = url
	h := p.navigate[url]
	p.mu.Unlock()
	if h != nil {
		h(p)
	}
	return nil
}

func (p *fakePage) URL() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) Has(ctx context.Context, selector string) (bool, error) {
	return p.isVisible(selector), nil
}

func (p *fakePage) WaitVisible(ctx context.Context, selector string) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		if p.isVisible(selector) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *fakePage) Text(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible[selector] {
		return "", notFound(selector)
	}
	return p.texts[selector], nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	return p.click(selector, selector)
}

func (p *fakePage) ClickNth(ctx context.Context, selector string, n int) error {
	return p.click(selector, fmt.Sprintf("%s#%d", selector, n))
}

func (p *fakePage) click(selector string, record string) error {
	p.mu.Lock()
	if !p.visible[selector] {
		p.mu.Unlock()
		return notFound(selector)
	}
	p.clicks = append(p.clicks, record)
	h := p.handlers[selector]
	content, download := p.downloads[selector]
	dir, waiter := p.dlDir, p.dlWaiter
	if download {
		p.dlWaiter = nil
		p.served++
	}
	served := p.served
	p.mu.Unlock()

	if h != nil {
		h(p)
	}
	if download && waiter != nil {
		path := filepath.Join(dir, fmt.Sprintf("download-%d", served))
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			return err
		}
		waiter <- path
	}
	return nil
}

func (p *fakePage) Fill(ctx context.Context, selector string, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible[selector] {
		return notFound(selector)
	}
	p.fills[selector] = value
	return nil
}

func (p *fakePage) SelectOption(ctx context.Context, selector string, label string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible[selector] {
		return notFound(selector)
	}
	p.selected[selector] = label
	return nil
}

func (p *fakePage) ScrollIntoView(ctx context.Context, selector string) error {
	if !p.isVisible(selector) {
		return notFound(selector)
	}
	return nil
}

func (p *fakePage) WaitSettled(ctx context.Context) error {
	return ctx.Err()
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *fakePage) ExpectNavigation(ctx context.Context) func() error {
	ch := make(chan struct{})
	p.mu.Lock()
	p.navWaiter = ch
	p.mu.Unlock()
	return func() error {
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *fakePage) ExpectNewTab(ctx context.Context) func() (browser.Page, error) {
	ch := make(chan browser.Page, 1)
	p.mu.Lock()
	p.tabWaiter = ch
	p.mu.Unlock()
	return func() (browser.Page, error) {
		select {
		case tab := <-ch:
			return tab, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *fakePage) ExpectDownload(ctx context.Context, dir string) func() (string, error) {
	ch := make(chan string, 1)
	p.mu.Lock()
	p.dlWaiter = ch
	p.dlDir = dir
	p.mu.Unlock()
	return func() (string, error) {
		select {
		case path := <-ch:
			return path, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

type fakeOpener struct {
	page   *fakePage
	err    error
	opened atomic.Int32
	closed atomic.Int32
}

func (o *fakeOpener) Open(ctx context.Context) (browser.Session, error) {
	if o.err != nil {
		return nil, o.err
	}
	o.opened.Add(1)
	return &fakeSession{o: o}, nil
}

type fakeSession struct {
	o *fakeOpener
}

func (s *fakeSession) Page() browser.Page {
	return s.o.page
}

func (s *fakeSession) Close() error {
	s.o.closed.Add(1)
	return nil
}
