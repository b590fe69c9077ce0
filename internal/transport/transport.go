// Package transport opens byte streams for candidate URLs over HTTP(S) or S3.
package transport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/minelauncher/mcfetch/internal/utils"
)

// Stream is an open response body. ContentLength counts the bytes remaining
// in the body, or -1 when unknown. Partial is set when the source honoured
// a non-zero offset.
type Stream struct {
	Body          io.ReadCloser
	ContentLength int64
	Partial       bool
}

type Opener interface {
	Open(ctx context.Context, rawURL string, offset int64) (*Stream, error)
}

// Mux routes URLs to the HTTP client or, for s3:// URLs, to a lazily built
// S3 client.
type Mux struct {
	HTTP *HTTPClient

	s3Config   S3Config
	s3Once     sync.Once
	s3         Opener
	s3Err      error
	getTimeout time.Duration
}

func NewMux(httpCfg HTTPClientConfig, s3Cfg S3Config) *Mux {
	return &Mux{
		HTTP:       NewHTTPClient(httpCfg),
		s3Config:   s3Cfg,
		getTimeout: httpCfg.Timeout,
	}
}

func (m *Mux) Open(ctx context.Context, rawURL string, offset int64) (*Stream, error) {
	if strings.HasPrefix(rawURL, "s3://") {
		opener, err := m.s3Opener(ctx)
		if err != nil {
			return nil, &utils.TransferError{URL: rawURL, Err: err}
		}
		return opener.Open(ctx, rawURL, offset)
	}
	return m.HTTP.Open(ctx, rawURL, offset)
}

func (m *Mux) s3Opener(ctx context.Context) (Opener, error) {
	m.s3Once.Do(func() {
		if m.s3 != nil {
			return
		}
		m.s3, m.s3Err = NewS3Client(ctx, m.s3Config)
	})
	return m.s3, m.s3Err
}

// SetS3Opener replaces the S3 backend, used by tests and custom stores.
func (m *Mux) SetS3Opener(o Opener) {
	m.s3 = o
}

// Get reads a whole (metadata) document, bounded by the configured timeout.
func (m *Mux) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if m.getTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.getTimeout)
		defer cancel()
	}
	stream, err := m.Open(ctx, rawURL, 0)
	if err != nil {
		return nil, err
	}
	defer stream.Body.Close()
	data, err := io.ReadAll(stream.Body)
	if err != nil {
		return nil, &utils.TransferError{URL: rawURL, Err: fmt.Errorf("reading body: %w", err)}
	}
	return data, nil
}

func (m *Mux) Close() {
	m.HTTP.Close()
}
