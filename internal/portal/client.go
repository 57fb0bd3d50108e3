// Package portal talks to the course-attendance portal the way its mobile
// WeChat web view does: QR login, check-in listing and sign-in submission.
package portal

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/domain"
)

// UserAgent impersonates the WeChat in-app browser on Android.
const UserAgent = "Mozilla/5.0 (Linux; Android 12; PAL-AL00 Build/HUAWEIPAL-AL00; wv) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/116.0.0.0 Mobile Safari/537.36 XWEB/1160065 MMWEBSDK/20231202 MMWEBID/1136 MicroMessenger/8.0.47.2560(0x28002F35) WeChat/arm64 Weixin NetType/4G Language/zh_CN ABI/arm64"

// maxBody caps how much of any portal response is read.
const maxBody = 4 << 20

// Endpoints are the portal URLs. Defaults match the production portal.
type Endpoints struct {
	BaseURL      string // opportunity listing and submission
	LoginURL     string // QR login page and status endpoint
	LoginLinkURL string // deep link encoded into the QR image
	LoginHost    string // marks the script block carrying the login URL
	UIDLoginURL  string // completion URL receiving the status redirect query
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		BaseURL:      "http://k8n.cn",
		LoginURL:     "https://login.b8n.cn/qr/weixin/student/2",
		LoginLinkURL: "http://login.b8n.cn/weixin/login/student/2",
		LoginHost:    "login.b8n.cn",
		UIDLoginURL:  "https://bj.k8n.cn/student/uidlogin",
	}
}

type options struct {
	transport http.RoundTripper
	timeout   time.Duration
	log       *zap.Logger
	random    func() float64
}

type Option func(*options)

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRandom replaces the uniform [0,1) source used for location jitter.
func WithRandom(f func() float64) Option {
	return func(o *options) { o.random = f }
}

func buildOptions(opts []Option) options {
	o := options{
		transport: http.DefaultTransport,
		timeout:   30 * time.Second,
		log:       zap.NewNop(),
		random:    rand.Float64,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// userAgentTransport stamps every request with the mobile identity.
type userAgentTransport struct {
	base http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == UserAgent {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", UserAgent)
	return t.base.RoundTrip(r)
}

// NewHTTPClient returns a client that always presents the mobile identity.
// jar may be nil for stateless use.
func NewHTTPClient(rt http.RoundTripper, timeout time.Duration, jar http.CookieJar) *http.Client {
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &http.Client{
		Transport: userAgentTransport{base: rt},
		Timeout:   timeout,
		Jar:       jar,
	}
}

// Client performs authenticated check-in calls for already logged-in sessions.
type Client struct {
	ep     Endpoints
	http   *http.Client
	log    *zap.Logger
	random func() float64
}

func NewClient(ep Endpoints, opts ...Option) *Client {
	o := buildOptions(opts)
	return &Client{
		ep:     ep,
		http:   NewHTTPClient(o.transport, o.timeout, nil),
		log:    o.log,
		random: o.random,
	}
}

// Endpoints returns the URLs the client talks to.
func (c *Client) Endpoints() Endpoints { return c.ep }

// Headers builds the request headers for a task's session. The stored cookie
// may carry a leading "username=" artifact from how it was captured; it is
// removed before use.
func (c *Client) Headers(s domain.Session) http.Header {
	h := make(http.Header)
	h.Set("User-Agent", UserAgent)
	h.Set("Referer", fmt.Sprintf("%s/student/course/%s", c.ep.BaseURL, s.ClassID))
	if cookie := strings.ReplaceAll(s.Cookie, "username=", ""); cookie != "" {
		h.Set("Cookie", cookie)
	}
	return h
}

// do sends req and returns the body of a 2xx response.
func do(client *http.Client, req *http.Request) ([]byte, error) {
	status, body, err := send(client, req)
	if err != nil {
		return nil, err
	}
	if !ok2xx(status) {
		return nil, fmt.Errorf("%w: %s %s: status %d", domain.ErrRemoteRejection, req.Method, req.URL.Path, status)
	}
	return body, nil
}

// send returns the status and body of any response the portal produced.
func send(client *http.Client, req *http.Request) (int, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %v", domain.ErrNetwork, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read %s: %v", domain.ErrNetwork, req.URL.Path, err)
	}
	return resp.StatusCode, body, nil
}

func ok2xx(status int) bool { return status >= 200 && status <= 299 }

func newRequest(ctx context.Context, method, url string, body io.Reader, h http.Header) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range h {
		req.Header[k] = append([]string(nil), v...)
	}
	return req, nil
}
