package navigate

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/itchlabs/itch/api/schemas"
	"github.com/itchlabs/itch/internal/browser"
)

// CollectHrefs gathers the href attributes of every element matching the
// selector on the current page. When nextSelector is set, it pages through
// listings by clicking the control between collection rounds, up to maxPages
// rounds. Running out of pagination controls ends collection normally.
func (n *Navigator) CollectHrefs(ctx context.Context, s *browser.Session, selector, nextSelector string, maxPages, limit int) ([]string, error) {
	if maxPages < 1 {
		maxPages = 1
	}

	var hrefs []string
	seen := make(map[string]bool)

	for page := 0; page < maxPages; page++ {
		els, err := s.Driver().FindElements(ctx, selector)
		if err != nil {
			return hrefs, err
		}

		wentStale := false
		for _, el := range els {
			href, ok, err := el.Attribute(ctx, "href")
			if err != nil {
				var stale *schemas.StaleElementError
				if errors.As(err, &stale) {
					wentStale = true
					break
				}
				return hrefs, err
			}
			if !ok || href == "" || seen[href] {
				continue
			}
			seen[href] = true
			hrefs = append(hrefs, href)
			if limit > 0 && len(hrefs) >= limit {
				return hrefs, nil
			}
		}
		if wentStale {
			// The list re-rendered mid-walk. Re-collect the same page on the
			// next round; the round counter keeps the loop bounded.
			continue
		}

		if nextSelector == "" || page == maxPages-1 {
			break
		}

		err = n.Act(ctx, s, schemas.Action{Type: schemas.ActionClick, Selector: nextSelector})
		if err != nil {
			var notFound *schemas.ElementNotFound
			if errors.As(err, &notFound) {
				// No next control: last page reached.
				n.logger.Debug("Pagination control not found; harvest complete.",
					zap.String("selector", nextSelector), zap.Int("pages", page+1))
				break
			}
			return hrefs, err
		}
	}

	return hrefs, nil
}
