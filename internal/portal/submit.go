package portal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/K2LinTeams/AutoCheckin-Next/internal/domain"
)

// SuccessMessage is reported for every accepted check-in.
const SuccessMessage = "签到成功"

// failurePrefix is how many characters of a rejection page are kept.
const failurePrefix = 50

var successMarkers = []string{"成功", "Success"}

// fixedAccuracy is the GPS accuracy the portal's own form submits.
const fixedAccuracy = "10.0"

// SignIn submits one check-in at the given coordinates. It returns
// SuccessMessage when the portal accepts, or a *domain.RejectionError
// carrying the start of the portal's answer.
func (c *Client) SignIn(ctx context.Context, h http.Header, classID, opportunityID string, at Coord) (string, error) {
	form := url.Values{}
	form.Set("id", opportunityID)
	form.Set("lat", at.Lat)
	form.Set("lng", at.Lng)
	form.Set("acc", fixedAccuracy)
	// The portal's form contract requires these even when empty.
	form.Set("res", "")
	form.Set("gps_addr", "")
	form.Set("pwd", "")

	endpoint := fmt.Sprintf("%s/student/punchs/course/%s/%s", c.ep.BaseURL, classID, opportunityID)
	req, err := newRequest(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()), h)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	// The portal explains refusals in the page even on error statuses.
	status, body, err := send(c.http, req)
	if err != nil {
		return "", fmt.Errorf("submit check-in %s: %w", opportunityID, err)
	}
	msg, err := ClassifySubmission(bytes.NewReader(body))
	var rej *domain.RejectionError
	if errors.As(err, &rej) && rej.Text == "" && !ok2xx(status) {
		rej.Text = fmt.Sprintf("status %d", status)
	}
	return msg, err
}

// ClassifySubmission reads a submission response page and decides whether
// the check-in was accepted.
func ClassifySubmission(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("%w: submission response: %v", domain.ErrParse, err)
	}
	text := doc.Text()
	for _, m := range successMarkers {
		if strings.Contains(text, m) {
			return SuccessMessage, nil
		}
	}
	return "", &domain.RejectionError{Text: truncate(strings.TrimSpace(text), failurePrefix)}
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
