package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/minelauncher/mcfetch/internal/utils"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const socketBufferSize = 1024 * 1024

// highThreadConns is the pool size above which sockets get larger buffers.
const highThreadConns = 32

type HTTPClientConfig struct {
	Timeout       time.Duration // connect, TLS handshake and response header
	KATimeout     time.Duration
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string
	UserAgent     string
	Headers       map[string]string
	MaxConns      int

	// AuthToken is sent as a bearer token, only to AuthHosts.
	AuthToken string
	AuthHosts []string
}

type HTTPClient struct {
	client     *http.Client
	authClient *http.Client
	transport  *http.Transport
	config     HTTPClientConfig
}

func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 90 * time.Second
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 2 * utils.DefaultWorkers
	}
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	dialer := &net.Dialer{
		Timeout:   cfg.Timeout,
		KeepAlive: 30 * time.Second,
	}
	if cfg.MaxConns > highThreadConns {
		dialer.Control = func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				setSocketOptions(fd)
			})
		}
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.Timeout,
		ResponseHeaderTimeout: cfg.Timeout,
		IdleConnTimeout:       cfg.KATimeout,
		MaxIdleConns:          cfg.MaxConns,
		MaxIdleConnsPerHost:   cfg.MaxConns,
		MaxConnsPerHost:       cfg.MaxConns,
		DisableCompression:    true,
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			log.Error().Str("op", "transport/http-client").Err(err).Msg("invalid proxy url, proceeding without proxy")
		} else {
			if cfg.ProxyUsername != "" {
				if cfg.ProxyPassword != "" {
					proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
				} else {
					proxyURL.User = url.User(cfg.ProxyUsername)
				}
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	c := &HTTPClient{
		// No overall client timeout: bodies of large files are bounded by the
		// fetcher's read watchdog instead.
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}
	if cfg.AuthToken != "" && len(cfg.AuthHosts) > 0 {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AuthToken, TokenType: "Bearer"})
		c.authClient = &http.Client{Transport: &oauth2.Transport{Source: src, Base: transport}}
	}
	return c
}

func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	} else {
		req.Header.Set("User-Agent", utils.ToolUserAgent)
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	if c.authClient != nil && c.isAuthHost(req.URL.Host) {
		return c.authClient.Do(req)
	}
	return c.client.Do(req)
}

func (c *HTTPClient) isAuthHost(host string) bool {
	for _, h := range c.config.AuthHosts {
		if strings.EqualFold(h, host) {
			return true
		}
	}
	return false
}

// Open issues a GET, ranged when offset > 0.
func (c *HTTPClient) Open(ctx context.Context, rawURL string, offset int64) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &utils.TransferError{URL: rawURL, Err: fmt.Errorf("creating request: %w", err)}
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	req.Header.Set("Connection", "keep-alive")
	resp, err := c.Do(req)
	if err != nil {
		return nil, &utils.TransferError{URL: rawURL, Err: err}
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return &Stream{Body: resp.Body, ContentLength: resp.ContentLength}, nil
	case http.StatusPartialContent:
		if offset > 0 {
			if start, ok := contentRangeStart(resp.Header.Get("Content-Range")); !ok || start != offset {
				drain(resp.Body)
				return nil, &utils.TransferError{URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected content range %q", resp.Header.Get("Content-Range"))}
			}
		}
		return &Stream{Body: resp.Body, ContentLength: resp.ContentLength, Partial: offset > 0}, nil
	case http.StatusRequestedRangeNotSatisfiable:
		drain(resp.Body)
		return nil, &utils.TransferError{URL: rawURL, StatusCode: resp.StatusCode, Err: utils.ErrRangeNotSatisfiable}
	default:
		drain(resp.Body)
		return nil, &utils.TransferError{URL: rawURL, StatusCode: resp.StatusCode}
	}
}

// Close releases pooled connections.
func (c *HTTPClient) Close() {
	c.transport.CloseIdleConnections()
}

// contentRangeStart parses the first byte position of "bytes N-M/T".
func contentRangeStart(header string) (int64, bool) {
	rest, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, false
	}
	start, _, ok := strings.Cut(rest, "-")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(start), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64*1024))
	_ = body.Close()
}
