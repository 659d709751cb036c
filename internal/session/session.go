package session

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/italolelis/gumroad_downloader/internal/config"
	"github.com/italolelis/gumroad_downloader/internal/telemetry"
	"github.com/italolelis/gumroad_downloader/internal/transfer"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	AppSessionCookie = "_gumroad_app_session"
	GUIDCookie       = "_gumroad_guid"

	maxRedirects = 10
)

type ctxKey string

const noRedirectKey ctxKey = "no_redirect"

// Options configures every session of a pool.
type Options struct {
	Size       int
	AppSession string
	GUID       string
	UserAgent  string

	ConnectTimeout time.Duration
	// RequestTimeout bounds a whole page fetch and the wait for response headers of a download.
	RequestTimeout   time.Duration
	CloudflareBypass bool

	Telemetry *telemetry.Telemetry
}

// Session is an authenticated HTTP client. It is owned by one worker between Acquire and Release.
type Session struct {
	id             int
	client         *resty.Client
	requestTimeout time.Duration
	tel            *telemetry.Telemetry
}

// Stream is an open download response. The caller must close Body.
type Stream struct {
	Body io.ReadCloser
	// ContentLength is the announced size in bytes, 0 when the server did not send one.
	ContentLength int64
}

func newSession(id int, opts Options) *Session {
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}

	var rt http.RoundTripper = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.RequestTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   2,
	}

	if opts.CloudflareBypass {
		rt = cloudflarebp.AddCloudFlareByPass(rt)
	}

	client := resty.New().
		SetTransport(otelhttp.NewTransport(rt)).
		SetHeader("User-Agent", opts.UserAgent).
		SetCookies([]*http.Cookie{
			{Name: AppSessionCookie, Value: opts.AppSession},
			{Name: GUIDCookie, Value: opts.GUID},
		}).
		SetRedirectPolicy(redirectPolicy())

	return &Session{
		id:             id,
		client:         client,
		requestTimeout: opts.RequestTimeout,
		tel:            opts.Telemetry,
	}
}

// ID identifies the handle in logs.
func (s *Session) ID() int {
	return s.id
}

// FetchPage GETs url without following redirects and returns the body of a 2xx response.
// Storefront pages redirect to the login form when the session cookies are stale.
func (s *Session) FetchPage(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	err := s.tel.InstrumentClientOperation(ctx, "fetch_page", func(ctx context.Context) error {
		if s.requestTimeout > 0 {
			var cancel context.CancelFunc

			ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
			defer cancel()
		}

		res, err := s.client.R().
			SetContext(context.WithValue(ctx, noRedirectKey, true)).
			Get(url)
		if err != nil {
			return &transfer.NetworkError{Operation: "fetch_page", APIMessage: err.Error(), Err: err}
		}

		if err := checkStatus("fetch_page", res.RawResponse); err != nil {
			return err
		}

		body = res.Body()

		return nil
	})

	return body, err
}

// Stream issues a streaming GET for url, following redirects to the file host.
// Cancel ctx to abort the transfer.
func (s *Session) Stream(ctx context.Context, url string) (*Stream, error) {
	var stream *Stream

	err := s.tel.InstrumentClientOperation(ctx, "stream_file", func(ctx context.Context) error {
		res, err := s.client.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			Get(url)
		if err != nil {
			return &transfer.NetworkError{Operation: "stream_file", APIMessage: err.Error(), Err: err}
		}

		raw := res.RawResponse
		if err := checkStatus("stream_file", raw); err != nil {
			_ = raw.Body.Close()

			return err
		}

		stream = &Stream{Body: raw.Body, ContentLength: max(raw.ContentLength, 0)}

		return nil
	})

	return stream, err
}

func redirectPolicy() resty.RedirectPolicy {
	return resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		if noRedirect, _ := req.Context().Value(noRedirectKey).(bool); noRedirect {
			return http.ErrUseLastResponse
		}

		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}

		return nil
	})
}

func checkStatus(operation string, res *http.Response) error {
	code := res.StatusCode

	switch {
	case code >= http.StatusOK && code < http.StatusMultipleChoices:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &transfer.AuthenticationError{Operation: operation, StatusCode: code}
	case code >= http.StatusMultipleChoices && code < http.StatusBadRequest &&
		strings.Contains(res.Header.Get("Location"), "/login"):
		return &transfer.AuthenticationError{Operation: operation, StatusCode: code}
	default:
		return &transfer.NetworkError{Operation: operation, StatusCode: code, APIMessage: http.StatusText(code)}
	}
}

// OptionsFromConfig sizes the pool by the worker concurrency limit.
func OptionsFromConfig(cfg *config.Config, tel *telemetry.Telemetry) Options {
	return Options{
		Size:             cfg.Threads,
		AppSession:       cfg.AppSession,
		GUID:             cfg.GUID,
		UserAgent:        cfg.UserAgent,
		ConnectTimeout:   cfg.ConnectTimeout,
		RequestTimeout:   cfg.RequestTimeout,
		CloudflareBypass: cfg.CloudflareBypass,
		Telemetry:        tel,
	}
}
