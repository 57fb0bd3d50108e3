package portal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/domain"
)

// signedMarker appears in a card once the student has already checked in.
const signedMarker = "已签"

// The portal renders the same check-in as a plain card, a password form or a
// GPS button depending on its type.
var opportunityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`punchcard_(\d+)`),
	regexp.MustCompile(`punch_pwd_frm_(\d+)`),
	regexp.MustCompile(`punch_gps\((\d+)\)`),
}

// Opportunities lists the ids of check-ins currently open for a course.
// An empty result means nothing is open.
func (c *Client) Opportunities(ctx context.Context, h http.Header, classID string) ([]string, error) {
	url := fmt.Sprintf("%s/student/course/%s/punchs", c.ep.BaseURL, classID)
	req, err := newRequest(ctx, http.MethodGet, url, nil, h)
	if err != nil {
		return nil, err
	}
	body, err := do(c.http, req)
	if err != nil {
		return nil, fmt.Errorf("list check-ins: %w", err)
	}

	ids, err := ExtractOpportunities(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.log.Debug("check-ins listed", zap.String("class_id", classID), zap.Strings("ids", ids))
	return ids, nil
}

// ExtractOpportunities returns the sorted, de-duplicated ids of open
// check-ins in a course listing page. Cards marked as already signed are
// skipped entirely.
func ExtractOpportunities(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: check-in listing: %v", domain.ErrParse, err)
	}

	seen := make(map[string]struct{})
	doc.Find("div.card-body").Each(func(_ int, card *goquery.Selection) {
		markup, err := goquery.OuterHtml(card)
		if err != nil || strings.Contains(markup, signedMarker) {
			return
		}
		for _, re := range opportunityPatterns {
			for _, m := range re.FindAllStringSubmatch(markup, -1) {
				seen[m[1]] = struct{}{}
			}
		}
	})

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
