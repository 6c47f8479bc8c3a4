package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrContentTooLarge means an attachment exceeded the configured byte
// ceiling.
var ErrContentTooLarge = errors.New("content too large")

// DefaultMaxAttachmentBytes bounds attachment downloads.
const DefaultMaxAttachmentBytes int64 = 10 << 20

// FetchAttachment downloads url, refusing bodies larger than maxBytes.
// The declared Content-Length is checked before the body is read, and
// the read itself is capped in case the header lies.
func FetchAttachment(ctx context.Context, client *http.Client, url string, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAttachmentBytes
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build attachment request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch attachment: unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes declared, limit %d", ErrContentTooLarge, resp.ContentLength, maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: body exceeds limit %d", ErrContentTooLarge, maxBytes)
	}
	return data, nil
}
