// Package navigate issues page-load and in-page interaction commands against
// a live browser session. All waits are polling-based and bounded; a hung
// render times out instead of stalling the pipeline.
package navigate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/itchlabs/itch/api/schemas"
	"github.com/itchlabs/itch/internal/browser"
	"github.com/itchlabs/itch/internal/config"
	"github.com/itchlabs/itch/internal/retry"
)

// Navigator encapsulates timing and retry policy for driving a session.
// It mutates live page state and never produces output data itself.
type Navigator struct {
	cfg     config.NavigatorConfig
	logger  *zap.Logger
	lookup  retry.Policy
	limiter *rate.Limiter
}

// New builds a navigator from configuration. When cfg.PagesPerSecond is
// positive, page loads are rate limited to stay polite toward the target.
func New(cfg config.NavigatorConfig, logger *zap.Logger) *Navigator {
	limit := rate.Inf
	if cfg.PagesPerSecond > 0 {
		limit = rate.Limit(cfg.PagesPerSecond)
	}
	attempts := cfg.LookupAttempts
	if attempts < 1 {
		attempts = 3
	}
	baseDelay := cfg.LookupBaseDelay
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	return &Navigator{
		cfg:    cfg,
		logger: logger.Named("navigator"),
		lookup: retry.Policy{
			MaxAttempts: attempts,
			BaseDelay:   baseDelay,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Load navigates the session to the URL and waits for the ready condition
// (an element matching readySelector) within the configured load timeout.
// It returns *schemas.NavigationTimeout when the condition is not met in
// time and *schemas.NavigationError on a hard driver failure.
func (n *Navigator) Load(ctx context.Context, s *browser.Session, url, readySelector string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	if readySelector == "" {
		readySelector = n.cfg.ReadySelector
	}
	if readySelector == "" {
		readySelector = "body"
	}

	n.logger.Debug("Loading page.",
		zap.String("session_id", s.ID()),
		zap.String("url", url),
		zap.String("ready", readySelector))

	loadCtx, cancel := context.WithTimeout(ctx, n.cfg.LoadTimeout)
	defer cancel()

	drv := s.Driver()
	if err := drv.Navigate(loadCtx, url); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if loadCtx.Err() == context.DeadlineExceeded {
			s.Observe(schemas.Degraded)
			return &schemas.NavigationTimeout{URL: url, Timeout: n.cfg.LoadTimeout}
		}
		// A failed navigation usually means the target detached or the
		// browser process died; the session cannot be trusted anymore.
		s.Observe(schemas.Dead)
		return &schemas.NavigationError{URL: url, Err: err}
	}

	if err := drv.WaitVisible(loadCtx, readySelector); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if loadCtx.Err() == context.DeadlineExceeded {
			s.Observe(schemas.Degraded)
			return &schemas.NavigationTimeout{URL: url, Timeout: n.cfg.LoadTimeout}
		}
		s.Observe(schemas.Dead)
		return &schemas.NavigationError{URL: url, Err: err}
	}

	s.Touch()
	return nil
}

// Act executes one interaction step within the action timeout. Locator
// lookups are retried with short exponential backoff to absorb rendering
// races; a stale element reference is re-resolved once before the error
// surfaces.
func (n *Navigator) Act(ctx context.Context, s *browser.Session, action schemas.Action) error {
	actCtx, cancel := context.WithTimeout(ctx, n.cfg.ActionTimeout)
	defer cancel()

	n.logger.Debug("Executing action.",
		zap.String("session_id", s.ID()),
		zap.String("type", string(action.Type)),
		zap.String("selector", action.Selector))

	var err error
	switch action.Type {
	case schemas.ActionClick:
		err = n.withElement(actCtx, s, action.Selector, func(el schemas.Element) error {
			return el.Click(actCtx)
		})
	case schemas.ActionTypeText:
		err = n.withElement(actCtx, s, action.Selector, func(el schemas.Element) error {
			return el.SendKeys(actCtx, action.Value)
		})
	case schemas.ActionScroll:
		err = n.scroll(actCtx, s, action.Count)
	case schemas.ActionWait:
		err = sleepCtx(actCtx, time.Duration(action.WaitMs)*time.Millisecond)
	default:
		return &schemas.SchemaConfigError{Detail: fmt.Sprintf("unknown action type %q", action.Type)}
	}

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	s.Touch()
	return nil
}

// withElement resolves the selector and applies fn to the first match. The
// lookup is retried with the configured backoff while the page is still
// rendering; a stale reference during fn triggers exactly one re-resolution.
func (n *Navigator) withElement(ctx context.Context, s *browser.Session, selector string, fn func(schemas.Element) error) error {
	el, err := n.resolveFirst(ctx, s, selector)
	if err != nil {
		return err
	}

	if err := fn(el); err != nil {
		var stale *schemas.StaleElementError
		if !errors.As(err, &stale) {
			return err
		}
		n.logger.Debug("Element went stale; re-resolving once.", zap.String("selector", selector))
		el, rerr := n.resolveFirst(ctx, s, selector)
		if rerr != nil {
			return &schemas.StaleElementError{Selector: selector}
		}
		return fn(el)
	}
	return nil
}

// resolveFirst finds the first element matching the selector, retrying the
// lookup with short exponential backoff while the DOM is still updating.
func (n *Navigator) resolveFirst(ctx context.Context, s *browser.Session, selector string) (schemas.Element, error) {
	var el schemas.Element
	err := n.lookup.Do(ctx, func(err error) bool {
		var notFound *schemas.ElementNotFound
		return errors.As(err, &notFound)
	}, func() error {
		els, err := s.Driver().FindElements(ctx, selector)
		if err != nil {
			return err
		}
		if len(els) == 0 {
			return &schemas.ElementNotFound{Selector: selector, Attempts: n.lookup.MaxAttempts}
		}
		el = els[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return el, nil
}

// scroll moves the viewport. count viewport-heights when count > 0,
// otherwise to the bottom of the document.
func (n *Navigator) scroll(ctx context.Context, s *browser.Session, count int) error {
	drv := s.Driver()
	if count <= 0 {
		return drv.Evaluate(ctx, `window.scrollTo(0, document.body.scrollHeight)`, nil)
	}
	for i := 0; i < count; i++ {
		if err := drv.Evaluate(ctx, `window.scrollBy(0, window.innerHeight)`, nil); err != nil {
			return err
		}
		if err := sleepCtx(ctx, 100*time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
