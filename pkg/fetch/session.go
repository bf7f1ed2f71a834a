package fetch

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

// SessionOptions configures the HTTP side of one supplier session
type SessionOptions struct {
	BaseURL           string
	LoginBaseURL      string // Optional second origin used by the authn steps
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 disables the limiter
	Burst             int
}

// Session is the HTTP state owned by one sync: a resty client with a private
// cookie jar, a request limiter and request instrumentation.
type Session struct {
	Client  *resty.Client
	Jar     http.CookieJar
	BaseURL *url.URL
}

// NewSession derives a session client from base. The base transport is
// cloned so the session's TLS and cookie state stay private.
func NewSession(base *http.Client, opts SessionOptions, log *logrus.Entry) (*Session, error) {
	baseURL, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse base url: %v", utils.ErrRequestCreation, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	var transport http.RoundTripper = http.DefaultTransport
	if base != nil && base.Transport != nil {
		transport = base.Transport
	}
	if t, ok := transport.(*http.Transport); ok {
		transport = t.Clone()
	}

	hc := &http.Client{Jar: jar, Transport: cloudflarebp.AddCloudFlareByPass(transport)}
	if base != nil {
		hc.Timeout = base.Timeout
	}

	client := resty.NewWithClient(hc)
	client.SetBaseURL(opts.BaseURL)
	client.SetCookieJar(jar)

	if opts.UserAgent != "" {
		client.SetHeader("user-agent", opts.UserAgent)
	}

	hosts := []string{baseURL.Hostname()}
	if opts.LoginBaseURL != "" {
		if loginURL, err := url.Parse(opts.LoginBaseURL); err == nil && loginURL.Hostname() != "" {
			hosts = append(hosts, loginURL.Hostname())
		}
	}
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10), resty.DomainCheckRedirectPolicy(hosts...))
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	InstrumentResty(client, log)

	return &Session{Client: client, Jar: jar, BaseURL: baseURL}, nil
}

// R starts a request on the session client
func (s *Session) R() *resty.Request {
	return s.Client.R()
}

// Cookies returns the jar's cookies for every given origin, deduplicated by name.
// Later origins do not replace a name already seen.
func (s *Session) Cookies(origins ...*url.URL) []*http.Cookie {
	seen := make(map[string]bool)
	var out []*http.Cookie
	for _, u := range append([]*url.URL{s.BaseURL}, origins...) {
		if u == nil {
			continue
		}
		for _, c := range s.Jar.Cookies(u) {
			if seen[c.Name] {
				continue
			}
			seen[c.Name] = true
			out = append(out, c)
		}
	}
	return out
}
