package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/domain"
)

// LoginState is the position of a Login in its handshake.
type LoginState int

const (
	StateIdle LoginState = iota
	StateAwaitingScan
	StateCompleted
	StateExpired
	StateFailed
)

func (s LoginState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingScan:
		return "awaiting_scan"
	case StateCompleted:
		return "completed"
	case StateExpired:
		return "expired"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ErrLoginExpired is returned by Poll when nobody scanned the code in time.
var ErrLoginExpired = errors.New("login expired")

// loginParams are the query parameters the login page hides in its script.
var loginParams = []string{"sess", "tm", "sign"}

var (
	scriptURLPattern  = regexp.MustCompile(`https?://[^\s"']+`)
	loginParamPattern = regexp.MustCompile(`[?&](sess|tm|sign)=([^&]+)`)
	coursePathPattern = regexp.MustCompile(`/student/course/(\d+)`)
)

const (
	checkLoginQuery   = "op=checklogin"
	maxCompletionHops = 10
	qrImageSize       = 256
)

// Code is a freshly issued login QR code.
type Code struct {
	PNG      []byte // scannable image of Link
	Link     string // deep link opened by the scanning phone
	CheckURL string // pass to CheckStatus
}

// Login drives one QR login handshake. The handshake is tied to the login
// page's cookies, so keep the same Login between Code and CheckStatus.
type Login struct {
	ep   Endpoints
	http *http.Client
	log  *zap.Logger

	mu    sync.Mutex
	state LoginState
}

func NewLogin(ep Endpoints, opts ...Option) (*Login, error) {
	o := buildOptions(opts)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &Login{
		ep:    ep,
		http:  NewHTTPClient(o.transport, o.timeout, jar),
		log:   o.log,
		state: StateIdle,
	}, nil
}

// State reports where the handshake is.
func (l *Login) State() LoginState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Login) setState(s LoginState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Code fetches the login page, extracts its hidden parameters and renders
// the deep link as a QR image. A failure leaves the state unchanged so the
// caller may retry.
func (l *Login) Code(ctx context.Context) (Code, error) {
	req, err := newRequest(ctx, http.MethodGet, l.ep.LoginURL, nil, nil)
	if err != nil {
		return Code{}, err
	}
	body, err := do(l.http, req)
	if err != nil {
		return Code{}, fmt.Errorf("fetch login page: %w", err)
	}

	params, err := ExtractLoginParams(bytes.NewReader(body), l.ep.LoginHost)
	if err != nil {
		return Code{}, err
	}

	link := l.ep.LoginLinkURL + "?" + encodeLoginParams(params)
	png, err := qrcode.Encode(link, qrcode.Medium, qrImageSize)
	if err != nil {
		return Code{}, fmt.Errorf("render qr code: %w", err)
	}

	l.setState(StateAwaitingScan)
	l.log.Debug("login code issued", zap.String("link", link))
	return Code{PNG: png, Link: link, CheckURL: l.ep.LoginURL}, nil
}

// ExtractLoginParams finds the first script block mentioning host, takes
// the first absolute URL inside it and returns its sess, tm and sign values.
func ExtractLoginParams(r io.Reader, host string) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: login page: %v", domain.ErrParse, err)
	}

	var script string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if strings.Contains(text, host) && scriptURLPattern.MatchString(text) {
			script = text
			return false
		}
		return true
	})
	if script == "" {
		return nil, fmt.Errorf("%w: no login script mentioning %s", domain.ErrExtraction, host)
	}

	raw := scriptURLPattern.FindString(script)
	params := make(map[string]string, len(loginParams))
	for _, m := range loginParamPattern.FindAllStringSubmatch(raw, -1) {
		params[m[1]] = m[2]
	}
	for _, k := range loginParams {
		if _, ok := params[k]; !ok {
			return nil, fmt.Errorf("%w: login url %q lacks %s", domain.ErrExtraction, raw, k)
		}
	}
	return params, nil
}

// encodeLoginParams joins the values verbatim; they are already URL-encoded
// as they appeared in the page.
func encodeLoginParams(params map[string]string) string {
	parts := make([]string, 0, len(loginParams))
	for _, k := range loginParams {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, "&")
}

// statusResponse is the body of the checklogin endpoint.
type statusResponse struct {
	Status *int    `json:"status"`
	URL    *string `json:"url"`
}

// CheckStatus polls the login status once. It returns a nil session while
// the code is still waiting to be scanned. Expiry is up to the caller; see
// Poll.
func (l *Login) CheckStatus(ctx context.Context, checkURL string) (*domain.Session, error) {
	req, err := newRequest(ctx, http.MethodGet, withQuery(checkURL, checkLoginQuery), nil, nil)
	if err != nil {
		return nil, err
	}
	body, err := do(l.http, req)
	if err != nil {
		return nil, fmt.Errorf("check login: %w", err)
	}

	var st statusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("%w: login status: %v", domain.ErrParse, err)
	}
	if st.Status == nil || *st.Status != 1 || st.URL == nil {
		return nil, nil
	}

	sess, err := l.complete(ctx, CompletionURL(l.ep.UIDLoginURL, *st.URL))
	if err != nil {
		l.setState(StateFailed)
		return nil, err
	}
	l.setState(StateCompleted)
	return sess, nil
}

// Poll checks the status every interval until the login completes, fails,
// or timeout elapses.
func (l *Login) Poll(ctx context.Context, checkURL string, interval, timeout time.Duration) (domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sess, err := l.CheckStatus(ctx, checkURL)
		if err != nil && ctx.Err() == nil {
			if !errors.Is(err, domain.ErrNetwork) {
				return domain.Session{}, err
			}
			l.log.Warn("login status check failed, retrying", zap.Error(err))
		}
		if sess != nil {
			return *sess, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				l.setState(StateExpired)
				return domain.Session{}, ErrLoginExpired
			}
			return domain.Session{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// CompletionURL moves the query of the status redirect onto the uid-login
// endpoint.
func CompletionURL(uidLoginURL, redirect string) string {
	query := ""
	if _, after, ok := strings.Cut(redirect, "?"); ok {
		query = after
	}
	return uidLoginURL + "?" + query
}

// complete follows the completion URL hop by hop and collects the session
// cookies from each response's Set-Cookie headers.
func (l *Login) complete(ctx context.Context, target string) (*domain.Session, error) {
	client := *l.http
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	var (
		names   []string
		values  = make(map[string]string)
		classID string
	)
	next := target
	for hop := 0; hop < maxCompletionHops && next != ""; hop++ {
		req, err := newRequest(ctx, http.MethodGet, next, nil, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: complete login: %v", domain.ErrNetwork, err)
		}
		for _, ck := range resp.Cookies() {
			if _, ok := values[ck.Name]; !ok {
				names = append(names, ck.Name)
			}
			values[ck.Name] = ck.Value
		}

		next = ""
		if loc, err := resp.Location(); err == nil {
			next = loc.String()
			if classID == "" {
				classID = courseID(loc.Path)
			}
		} else {
			if classID == "" {
				classID = courseID(req.URL.Path)
			}
			if classID == "" {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
				classID = courseID(string(body))
			}
		}
		resp.Body.Close()
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("%w: login completed without a session cookie", domain.ErrExtraction)
	}
	pairs := make([]string, 0, len(names))
	for _, n := range names {
		pairs = append(pairs, n+"="+values[n])
	}
	sess := &domain.Session{Cookie: strings.Join(pairs, "; "), ClassID: classID}
	l.log.Info("login completed", zap.Int("cookies", len(pairs)), zap.String("class_id", classID))
	return sess, nil
}

func courseID(s string) string {
	if m := coursePathPattern.FindStringSubmatch(s); len(m) == 2 {
		return m[1]
	}
	return ""
}

func withQuery(rawURL, query string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return rawURL + "?" + query
	}
	return rawURL + "&" + query
}
