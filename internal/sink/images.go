package sink

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/itchlabs/itch/api/schemas"
)

// Images decorates a sink with an image-fetch step: after a succeeded event
// is delivered, every URL the record marked for download is fetched into the
// images directory. A failed download is logged and skipped; it never fails
// the event, since the record itself was already extracted.
type Images struct {
	next   schemas.Sink
	dir    string
	client *http.Client
	logger *zap.Logger
}

var _ schemas.Sink = (*Images)(nil)

// NewImages wraps next, saving downloaded files under dir.
func NewImages(next schemas.Sink, dir string, logger *zap.Logger) (*Images, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating image directory: %w", err)
	}
	return &Images{
		next:   next,
		dir:    dir,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.Named("images"),
	}, nil
}

func (s *Images) Emit(ctx context.Context, ev schemas.Event) error {
	err := s.next.Emit(ctx, ev)
	if ev.Outcome != schemas.OutcomeSucceeded || ev.Record == nil {
		return err
	}

	for i, u := range ev.Record.Downloads {
		name := filename(ev.Record.TaskID, i, u)
		if derr := s.download(ctx, u, name); derr != nil {
			s.logger.Warn("Image download failed.",
				zap.String("task_id", ev.Record.TaskID),
				zap.String("url", u),
				zap.Error(derr))
			continue
		}
		s.logger.Debug("Image saved.", zap.String("file", name))
	}
	return err
}

func (s *Images) Close() error { return s.next.Close() }

func (s *Images) download(ctx context.Context, rawURL, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// filename derives a stable on-disk name from the URL's basename, prefixed
// with the task ID so two records' cover.png do not overwrite each other.
func filename(taskID string, idx int, rawURL string) string {
	base := ""
	if u, err := url.Parse(rawURL); err == nil {
		base = path.Base(u.Path)
	}
	if base == "" || base == "." || base == "/" {
		base = fmt.Sprintf("image-%d", idx+1)
	}
	return fmt.Sprintf("%s-%s", taskID, base)
}
