package browser

import (
	"context"
	"errors"
	"strings"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/itchlabs/itch/api/schemas"
)

// chromeDriver implements schemas.Driver on top of a live chromedp context.
// Every operation combines the session context with the caller's context so
// it honors both the session lifetime and the operation deadline.
type chromeDriver struct {
	ctx context.Context
}

var _ schemas.Driver = (*chromeDriver)(nil)

func (d *chromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(d.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (d *chromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *chromeDriver) WaitVisible(ctx context.Context, selector string) error {
	query, xpath := splitLocator(selector)
	by := chromedp.ByQuery
	if xpath {
		by = chromedp.BySearch
	}
	return d.run(ctx, chromedp.WaitVisible(query, by))
}

func (d *chromeDriver) FindElements(ctx context.Context, selector string) ([]schemas.Element, error) {
	query, xpath := splitLocator(selector)
	by := chromedp.ByQueryAll
	if xpath {
		by = chromedp.BySearch
	}

	var nodes []*cdp.Node
	// AtLeast(0) makes the query return immediately instead of blocking
	// until a match appears; zero matches is a valid answer here.
	err := d.run(ctx, chromedp.Nodes(query, &nodes, by, chromedp.AtLeast(0)))
	if err != nil {
		return nil, err
	}

	elements := make([]schemas.Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &chromeElement{drv: d, selector: selector, id: n.NodeID})
	}
	return elements, nil
}

func (d *chromeDriver) Evaluate(ctx context.Context, expr string, out any) error {
	return d.run(ctx, chromedp.Evaluate(expr, out))
}

func (d *chromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// splitLocator separates the locator strategy from the query. Locators are
// CSS selectors by default; an "xpath:" prefix selects XPath resolution.
func splitLocator(selector string) (query string, xpath bool) {
	if rest, ok := strings.CutPrefix(selector, "xpath:"); ok {
		return rest, true
	}
	return selector, false
}

// chromeElement addresses one located node by its CDP node ID. Node IDs are
// invalidated when the page re-renders; such failures surface as
// *schemas.StaleElementError so callers can re-resolve the locator.
type chromeElement struct {
	drv      *chromeDriver
	selector string
	id       cdp.NodeID
}

var _ schemas.Element = (*chromeElement)(nil)

func (e *chromeElement) nodeID() []cdp.NodeID {
	return []cdp.NodeID{e.id}
}

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.drv.run(ctx, chromedp.Text(e.nodeID(), &text, chromedp.ByNodeID)); err != nil {
		return "", e.mapErr(err)
	}
	return strings.TrimSpace(text), nil
}

func (e *chromeElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	var value string
	var ok bool
	if err := e.drv.run(ctx, chromedp.AttributeValue(e.nodeID(), name, &value, &ok, chromedp.ByNodeID)); err != nil {
		return "", false, e.mapErr(err)
	}
	return value, ok, nil
}

func (e *chromeElement) Click(ctx context.Context) error {
	return e.mapErr(e.drv.run(ctx, chromedp.Click(e.nodeID(), chromedp.ByNodeID)))
}

func (e *chromeElement) SendKeys(ctx context.Context, text string) error {
	return e.mapErr(e.drv.run(ctx, chromedp.SendKeys(e.nodeID(), text, chromedp.ByNodeID)))
}

// mapErr converts CDP node-resolution failures into the stale-element error
// the navigator knows how to recover from.
func (e *chromeElement) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if isStaleNodeErr(err) {
		return &schemas.StaleElementError{Selector: e.selector}
	}
	return err
}

func isStaleNodeErr(err error) bool {
	var cdpErr *cdproto.Error
	if errors.As(err, &cdpErr) {
		msg := strings.ToLower(cdpErr.Message)
		return strings.Contains(msg, "node") && strings.Contains(msg, "found")
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not find node") ||
		strings.Contains(msg, "no node with given id")
}
