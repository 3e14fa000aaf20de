package site

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"olcsync/internal/flight"
	"olcsync/internal/services"
)

var (
	flightIDPattern = regexp.MustCompile(`flightId=(-?\d+)`)
	pageDatePattern = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
		regexp.MustCompile(`\d{2}\.\d{2}\.\d{4}`),
		regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`),
	}
)

// ErrNoDownloadLink marks detail pages without a track-log link.
var ErrNoDownloadLink = errors.New("no download link on detail page")

const dateScanBytes = 5000

func errorsIsNotFound(err error) bool {
	return errors.Is(err, services.ErrNotFound) || errors.Is(err, ErrNoDownloadLink)
}

// resolveRow fetches the detail page and builds the final descriptor.
func (a *Adapter) resolveRow(ctx context.Context, year string, r row) (flight.Descriptor, error) {
	var pageURL *url.URL
	body, err := a.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.InfoURL, nil)
		if err != nil {
			return nil, err
		}
		body, final, err := a.fetch(ctx, req)
		if err != nil {
			return nil, err
		}
		pageURL = final
		return body, nil
	})
	if err != nil {
		return flight.Descriptor{}, fmt.Errorf("detail page: %w", err)
	}

	link, err := extractDownloadLink(body, pageURL)
	if err != nil {
		return flight.Descriptor{}, err
	}

	date := r.Date
	if date == "" || strings.EqualFold(date, "unknown") {
		date = scanPageDate(body)
	}
	return flight.Descriptor{
		ID:             r.ID,
		LegacyFlightID: link.flightID,
		Year:           year,
		Date:           date,
		Pilot:          r.Pilot,
		Airport:        r.Airport,
		Score:          r.Score,
		Distance:       r.Distance,
		Speed:          r.Speed,
		Aircraft:       r.Aircraft,
		DownloadURL:    link.url,
		RefererURL:     pageURL.String(),
	}, nil
}

type downloadLink struct {
	url      string
	flightID string
}

// extractDownloadLink returns the first track-log link, skipping KML exports.
func extractDownloadLink(body []byte, pageURL *url.URL) (downloadLink, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return downloadLink{}, fmt.Errorf("parse detail page: %w", err)
	}
	var found downloadLink
	doc.Find(`a[href*="download.html?flightId="]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := a.AttrOr("href", "")
		if strings.Contains(href, "kmlfile") {
			return true
		}
		match := flightIDPattern.FindStringSubmatch(href)
		if match == nil {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		found = downloadLink{url: pageURL.ResolveReference(ref).String(), flightID: match[1]}
		return false
	})
	if found.url == "" {
		return downloadLink{}, ErrNoDownloadLink
	}
	return found, nil
}

func scanPageDate(body []byte) string {
	if len(body) > dateScanBytes {
		body = body[:dateScanBytes]
	}
	for _, pattern := range pageDatePattern {
		if match := pattern.Find(body); match != nil {
			return flight.NormalizeDate(string(match))
		}
	}
	return ""
}
