package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/domain"
)

const listingPage = `<html><body>
<div class="card"><div class="card-body">
  <div id="punchcard_101">Lecture check-in</div>
</div></div>
<div class="card"><div class="card-body">
  <form id="punch_pwd_frm_202"><input name="pwd"></form>
</div></div>
<div class="card"><div class="card-body">
  <button onclick="punch_gps(303)">GPS</button>
</div></div>
<div class="card"><div class="card-body">
  <div id="punchcard_404">已签到</div>
  <button onclick="punch_gps(404)">GPS</button>
</div></div>
</body></html>`

func TestExtractOpportunities_AllPatternsAndSignedSkipped(t *testing.T) {
	ids, err := ExtractOpportunities(strings.NewReader(listingPage))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := []string{"101", "202", "303"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
}

func TestExtractOpportunities_Deduplicates(t *testing.T) {
	page := `<div class="card-body"><span id="punchcard_42"></span><a onclick="punch_gps(42)">go</a></div>`
	ids, err := ExtractOpportunities(strings.NewReader(page))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"42"}) {
		t.Fatalf("ids = %v, want [42]", ids)
	}
}

func TestExtractOpportunities_OutsideCardsIgnored(t *testing.T) {
	page := `<div class="header"><span id="punchcard_7"></span></div>`
	ids, err := ExtractOpportunities(strings.NewReader(page))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("want no ids, got %v", ids)
	}
}

func TestOpportunities_RequestShape(t *testing.T) {
	var gotPath, gotCookie, gotReferer, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCookie = r.Header.Get("Cookie")
		gotReferer = r.Header.Get("Referer")
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(listingPage))
	}))
	defer server.Close()

	ep := DefaultEndpoints()
	ep.BaseURL = server.URL
	c := NewClient(ep)

	h := c.Headers(domain.Session{Cookie: "username=remember_student=abc", ClassID: "555"})
	ids, err := c.Opportunities(context.Background(), h, "555")
	if err != nil {
		t.Fatalf("opportunities: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("want 3 ids, got %v", ids)
	}
	if gotPath != "/student/course/555/punchs" {
		t.Errorf("path = %q", gotPath)
	}
	if gotCookie != "remember_student=abc" {
		t.Errorf("cookie = %q, want username prefix stripped", gotCookie)
	}
	if gotReferer != server.URL+"/student/course/555" {
		t.Errorf("referer = %q", gotReferer)
	}
	if gotUA != UserAgent {
		t.Errorf("user agent = %q", gotUA)
	}
}

func TestOpportunities_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ep := DefaultEndpoints()
	ep.BaseURL = server.URL
	c := NewClient(ep)

	if _, err := c.Opportunities(context.Background(), http.Header{}, "1"); err == nil {
		t.Fatal("expected error for 502")
	}
}
