// Package drivertest provides a scripted in-memory Driver implementation so
// the navigator, extractor, and pipeline can be tested without a browser.
package drivertest

import (
	"context"
	"sync"

	"github.com/itchlabs/itch/api/schemas"
)

// Element is a scripted fake element. StaleTimes makes the next N operations
// fail with a stale-element error before the element behaves normally,
// simulating a page re-render between lookup and use.
type Element struct {
	mu         sync.Mutex
	TextValue  string
	Attrs      map[string]string
	StaleTimes int
	ClickErr   error

	Clicks int
	Typed  []string

	selector string
}

var _ schemas.Element = (*Element)(nil)

func (e *Element) stale() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.StaleTimes > 0 {
		e.StaleTimes--
		return true
	}
	return false
}

func (e *Element) Text(ctx context.Context) (string, error) {
	if e.stale() {
		return "", &schemas.StaleElementError{Selector: e.selector}
	}
	return e.TextValue, nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if e.stale() {
		return "", false, &schemas.StaleElementError{Selector: e.selector}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.Attrs[name]
	return v, ok, nil
}

func (e *Element) Click(ctx context.Context) error {
	if e.stale() {
		return &schemas.StaleElementError{Selector: e.selector}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ClickErr != nil {
		return e.ClickErr
	}
	e.Clicks++
	return nil
}

func (e *Element) SendKeys(ctx context.Context, text string) error {
	if e.stale() {
		return &schemas.StaleElementError{Selector: e.selector}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Typed = append(e.Typed, text)
	return nil
}

// Driver is a scripted fake page. Pages maps a URL to the selector set the
// page exposes after navigation; the zero value behaves like an empty page
// that loads instantly.
type Driver struct {
	mu sync.Mutex

	// Elements maps selector to the elements a lookup returns.
	Elements map[string][]*Element
	// AppearAfter delays a selector's elements until the Nth lookup,
	// simulating content that renders late.
	AppearAfter map[string]int
	// NeverReady makes WaitVisible block until the context expires.
	NeverReady bool
	// NavigateErr fails every navigation with a hard driver error.
	NavigateErr error

	// Recorded activity.
	NavigatedURLs []string
	Lookups       map[string]int
	Evaluated     []string
}

var _ schemas.Driver = (*Driver)(nil)

// Add registers elements for a selector and returns the driver for chaining.
func (d *Driver) Add(selector string, els ...*Element) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Elements == nil {
		d.Elements = make(map[string][]*Element)
	}
	for _, el := range els {
		el.selector = selector
	}
	d.Elements[selector] = append(d.Elements[selector], els...)
	return d
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.NavigateErr != nil {
		return d.NavigateErr
	}
	d.NavigatedURLs = append(d.NavigatedURLs, url)
	return nil
}

func (d *Driver) WaitVisible(ctx context.Context, selector string) error {
	d.mu.Lock()
	neverReady := d.NeverReady
	d.mu.Unlock()
	if neverReady {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (d *Driver) FindElements(ctx context.Context, selector string) ([]schemas.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Lookups == nil {
		d.Lookups = make(map[string]int)
	}
	d.Lookups[selector]++

	if after, ok := d.AppearAfter[selector]; ok && d.Lookups[selector] < after {
		return nil, nil
	}

	els := d.Elements[selector]
	out := make([]schemas.Element, 0, len(els))
	for _, el := range els {
		out = append(out, el)
	}
	return out, nil
}

func (d *Driver) Evaluate(ctx context.Context, expr string, out any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Evaluated = append(d.Evaluated, expr)
	return nil
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.NavigatedURLs) == 0 {
		return "about:blank", nil
	}
	return d.NavigatedURLs[len(d.NavigatedURLs)-1], nil
}
