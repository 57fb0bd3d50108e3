package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/domain"
)

// DefaultWeComURL is the WeCom application API root.
const DefaultWeComURL = "https://qyapi.weixin.qq.com/cgi-bin"

// WeCom sends text messages through a WeCom (Enterprise WeChat) application.
// A fresh access token is requested for every message.
type WeCom struct {
	cfg        domain.NotifierConfig
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

type Option func(*WeCom)

func WithHTTPClient(c *http.Client) Option {
	return func(w *WeCom) {
		w.httpClient = c
	}
}

func WithBaseURL(u string) Option {
	return func(w *WeCom) {
		w.baseURL = u
	}
}

// WithClock sets the time source for the message timestamp.
func WithClock(now func() time.Time) Option {
	return func(w *WeCom) {
		w.now = now
	}
}

func NewWeCom(cfg domain.NotifierConfig, opts ...Option) *WeCom {
	w := &WeCom{
		cfg:        cfg,
		baseURL:    DefaultWeComURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enabled reports whether messages will actually be sent.
func (w *WeCom) Enabled() bool {
	return w.cfg.Enable
}

type tokenResponse struct {
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
	AccessToken string `json:"access_token"`
}

type textBody struct {
	Content string `json:"content"`
}

type messageRequest struct {
	ToUser  string   `json:"touser"`
	MsgType string   `json:"msgtype"`
	AgentID string   `json:"agentid"`
	Text    textBody `json:"text"`
	Safe    int      `json:"safe"`
}

type sendResponse struct {
	ErrCode *int   `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Notify sends title and content as one text message. It is a no-op when
// the notifier is disabled.
func (w *WeCom) Notify(ctx context.Context, title, content string) error {
	if !w.cfg.Enable {
		return nil
	}

	token, err := w.token(ctx)
	if err != nil {
		return err
	}

	toUser := w.cfg.ToUser
	if toUser == "" {
		toUser = domain.DefaultToUser
	}
	payload := messageRequest{
		ToUser:  toUser,
		MsgType: "text",
		AgentID: w.cfg.AgentID,
		Text:    textBody{Content: FormatMessage(title, content, w.now())},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	endpoint := w.baseURL + "/message/send?access_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := w.roundTrip(req)
	if err != nil {
		return err
	}
	var resp sendResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("%w: wecom send response %s", domain.ErrParse, raw)
	}
	if resp.ErrCode == nil || *resp.ErrCode != 0 {
		return fmt.Errorf("%w: wecom error: %s", domain.ErrRemoteRejection, raw)
	}
	return nil
}

func (w *WeCom) token(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("corpid", w.cfg.CorpID)
	q.Set("corpsecret", w.cfg.Secret)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/gettoken?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	raw, err := w.roundTrip(req)
	if err != nil {
		return "", err
	}
	var resp tokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("%w: wecom token response %s", domain.ErrParse, raw)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("%w: failed to get access token: %s", domain.ErrAuth, raw)
	}
	return resp.AccessToken, nil
}

func (w *WeCom) roundTrip(req *http.Request) ([]byte, error) {
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: wecom %s: %v", domain.ErrNetwork, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read wecom response: %v", domain.ErrNetwork, err)
	}
	return raw, nil
}
