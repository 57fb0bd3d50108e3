package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/domain"
)

// countingTransport counts requests and forwards them to base.
type countingTransport struct {
	base  http.RoundTripper
	calls atomic.Int32
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls.Add(1)
	return t.base.RoundTrip(req)
}

func enabledConfig() domain.NotifierConfig {
	return domain.NotifierConfig{Enable: true, CorpID: "corp", Secret: "s3cret", AgentID: "1000002", ToUser: "alice|bob"}
}

func TestWeComDisabledMakesNoCalls(t *testing.T) {
	transport := &countingTransport{base: http.DefaultTransport}
	w := NewWeCom(domain.NotifierConfig{Enable: false, CorpID: "corp"},
		WithHTTPClient(&http.Client{Transport: transport}),
		WithBaseURL("http://127.0.0.1:1"))

	if err := w.Notify(context.Background(), "title", "content"); err != nil {
		t.Fatalf("disabled notify: %v", err)
	}
	if n := transport.calls.Load(); n != 0 {
		t.Fatalf("calls = %d, want 0", n)
	}
}

func TestWeComSend(t *testing.T) {
	var received messageRequest
	var gotCorp, gotSecret, gotToken string

	mux := http.NewServeMux()
	mux.HandleFunc("/gettoken", func(w http.ResponseWriter, r *http.Request) {
		gotCorp = r.URL.Query().Get("corpid")
		gotSecret = r.URL.Query().Get("corpsecret")
		w.Write([]byte(`{"errcode":0,"errmsg":"ok","access_token":"TOKEN","expires_in":7200}`))
	})
	mux.HandleFunc("/message/send", func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("access_token")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	at := time.Date(2025, time.March, 3, 8, 5, 9, 0, time.Local)
	w := NewWeCom(enabledConfig(), WithBaseURL(server.URL), WithClock(func() time.Time { return at }))

	if err := w.Notify(context.Background(), "Physics Check-in Result", "Task [Physics] Result: 签到成功"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if gotCorp != "corp" || gotSecret != "s3cret" {
		t.Errorf("token query = %q/%q", gotCorp, gotSecret)
	}
	if gotToken != "TOKEN" {
		t.Errorf("access token = %q", gotToken)
	}
	if received.ToUser != "alice|bob" || received.MsgType != "text" || received.AgentID != "1000002" {
		t.Errorf("payload = %+v", received)
	}
	want := "【AutoCheckin】\nPhysics Check-in Result\n----------------\nTask [Physics] Result: 签到成功\nTime: 2025-03-03 08:05:09"
	if received.Text.Content != want {
		t.Errorf("content = %q, want %q", received.Text.Content, want)
	}
}

func TestWeComTokenMissing(t *testing.T) {
	var sends atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/gettoken", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errcode":40013,"errmsg":"invalid corpid"}`))
	})
	mux.HandleFunc("/message/send", func(w http.ResponseWriter, r *http.Request) {
		sends.Add(1)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	w := NewWeCom(enabledConfig(), WithBaseURL(server.URL))
	err := w.Notify(context.Background(), "t", "c")
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("want ErrAuth, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid corpid") {
		t.Errorf("error should embed the raw response: %v", err)
	}
	if sends.Load() != 0 {
		t.Errorf("message sent without a token")
	}
}

func TestWeComSendRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gettoken", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errcode":0,"access_token":"TOKEN"}`))
	})
	mux.HandleFunc("/message/send", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errcode":81013,"errmsg":"user & party & tag all invalid"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	w := NewWeCom(enabledConfig(), WithBaseURL(server.URL))
	err := w.Notify(context.Background(), "t", "c")
	if !errors.Is(err, domain.ErrRemoteRejection) {
		t.Fatalf("want ErrRemoteRejection, got %v", err)
	}
	if !strings.Contains(err.Error(), "81013") {
		t.Errorf("error should embed the raw response: %v", err)
	}
}

func TestWeComDefaultRecipient(t *testing.T) {
	var received messageRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/gettoken", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"TOKEN"}`))
	})
	mux.HandleFunc("/message/send", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.Write([]byte(`{"errcode":0}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := enabledConfig()
	cfg.ToUser = ""
	if err := NewWeCom(cfg, WithBaseURL(server.URL)).Notify(context.Background(), "t", "c"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if received.ToUser != "@all" {
		t.Fatalf("touser = %q, want @all", received.ToUser)
	}
}
