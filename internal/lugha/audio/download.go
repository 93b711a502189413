package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/bdobrica/Lugha/common/version"
	"github.com/bdobrica/Lugha/internal/lugha/failure"
)

// download streams loc into f, retrying transient failures. f is rewound
// and truncated before every attempt.
func (p *Pipeline) download(ctx context.Context, loc *Location, f *os.File) (int64, error) {
	if loc.Size > p.cfg.MaxBytes {
		return 0, failure.Terminal("audio.download",
			fmt.Errorf("declared size %d exceeds %d bytes", loc.Size, p.cfg.MaxBytes), GuidanceTooLong)
	}

	var n int64
	_, err := p.cfg.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		n, err = p.fetch(ctx, loc, f)
		return err
	})
	return n, err
}

func (p *Pipeline) fetch(ctx context.Context, loc *Location, f *os.File) (int64, error) {
	const op = "audio.download"

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, failure.Terminal(op, err, GuidanceUnavailable)
	}
	if err := f.Truncate(0); err != nil {
		return 0, failure.Terminal(op, err, GuidanceUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.URL, nil)
	if err != nil {
		return 0, failure.Terminal(op, err, GuidanceUnavailable)
	}
	for k, vs := range loc.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := p.deps.HTTP.Do(req)
	if err != nil {
		return 0, failure.Transient(op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return 0, failure.Transient(op, fmt.Errorf("HTTP %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return 0, failure.Terminal(op, fmt.Errorf("HTTP %d", resp.StatusCode), GuidanceUnavailable)
	}
	if resp.ContentLength > p.cfg.MaxBytes {
		return 0, failure.Terminal(op,
			fmt.Errorf("content length %d exceeds %d bytes", resp.ContentLength, p.cfg.MaxBytes), GuidanceTooLong)
	}

	n, err := io.Copy(f, io.LimitReader(resp.Body, p.cfg.MaxBytes+1))
	if err != nil {
		return n, failure.Transient(op, fmt.Errorf("read body: %w", err))
	}
	if n > p.cfg.MaxBytes {
		return n, failure.Terminal(op, fmt.Errorf("body exceeds %d bytes", p.cfg.MaxBytes), GuidanceTooLong)
	}
	if n == 0 {
		return 0, failure.Terminal(op, fmt.Errorf("empty body"), GuidanceUnreadable)
	}
	return n, nil
}
