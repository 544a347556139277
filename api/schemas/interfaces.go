package schemas

import "context"

// Health is the observed state of a browser session. Transitions only move
// toward Dead; a Dead session is replaced, never reused.
type Health int

const (
	Healthy Health = iota
	Degraded
	Dead
)

func (h Health) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// Element is a handle to one located DOM element. Operations may fail with
// *StaleElementError if the page re-rendered since the lookup.
type Element interface {
	// Text returns the element's trimmed text content.
	Text(ctx context.Context) (string, error)
	// Attribute returns the named attribute and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	// Click dispatches a click on the element.
	Click(ctx context.Context) error
	// SendKeys types text into the element.
	SendKeys(ctx context.Context, text string) error
}

// Driver is the minimal command surface the pipeline requires from a live
// browser page. The production implementation speaks CDP via chromedp; tests
// substitute a scripted fake.
type Driver interface {
	// Navigate issues a page load and returns once the navigation committed.
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until an element matching the selector is visible,
	// or the context expires.
	WaitVisible(ctx context.Context, selector string) error
	// FindElements resolves the selector against current page state. A zero
	// match is not an error; the caller decides how to treat it.
	FindElements(ctx context.Context, selector string) ([]Element, error)
	// Evaluate runs a JavaScript expression in the page, unmarshalling the
	// result into out when out is non-nil.
	Evaluate(ctx context.Context, expr string, out any) error
	// CurrentURL reports the page's current location.
	CurrentURL(ctx context.Context) (string, error)
}

// Sink receives terminal task events. Emit must not block indefinitely; a
// sink is expected to buffer or fail fast.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
	Close() error
}
