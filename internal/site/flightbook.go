package site

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"olcsync/internal/flight"
	"olcsync/internal/logging"
	"olcsync/internal/services"
)

var pilotIDPattern = regexp.MustCompile(`[?&;]pi=(\d+)`)

// ResolveScope fills in the pilot id for flightbook scopes by reading the
// logged-in index page. Airport scopes are returned unchanged.
func (a *Adapter) ResolveScope(ctx context.Context, scope flight.Scope) (flight.Scope, error) {
	if !scope.IsPilot() || scope.PilotID != "" {
		return scope, nil
	}
	id, err := a.PilotID(ctx)
	if err != nil {
		return scope, err
	}
	scope.PilotID = id
	return scope, nil
}

// PilotID discovers the authenticated pilot's numeric id.
func (a *Adapter) PilotID(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.resolve(indexPath, nil).String(), nil)
	if err != nil {
		return "", err
	}
	body, _, err := a.fetch(ctx, req)
	if err != nil {
		return "", services.Wrap(services.ErrScraping, "site", "pilot id", "fetch index page", err)
	}
	match := pilotIDPattern.FindSubmatch(body)
	if match == nil {
		return "", services.Wrap(services.ErrScraping, "site", "pilot id", "no pilot id on index page; is the session logged in?", nil)
	}
	id := string(match[1])
	a.logger.Info("pilot id discovered", logging.String("pilot_id", id))
	return id, nil
}

func (a *Adapter) listFlightbook(ctx context.Context, scope flight.Scope, year string) ([]row, error) {
	if scope.PilotID == "" {
		return nil, fmt.Errorf("flightbook scope without pilot id")
	}
	page := a.resolve(flightbookPath, url.Values{
		"rt": {"olc"},
		"st": {"olcp"},
		"pi": {scope.PilotID},
		"sp": {year},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page.String(), nil)
	if err != nil {
		return nil, err
	}
	body, finalURL, err := a.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse flightbook: %w", err)
	}

	var rows []row
	doc.Find("tr[data-rid]").Each(func(_ int, tr *goquery.Selection) {
		id := strings.TrimSpace(tr.AttrOr("data-rid", ""))
		r := row{
			ID:       id,
			Date:     flight.NormalizeDate(firstField(cellText(tr, "date"))),
			Pilot:    flightbookPilot(tr),
			Airport:  strings.TrimSpace(tr.Find(`td[data-cn="takeoff"] a`).First().Text()),
			Score:    flight.ParseNumber(firstField(cellText(tr, "points"))),
			Distance: flight.ParseNumber(firstField(cellText(tr, "distance"))),
			Speed:    flight.ParseNumber(firstField(cellText(tr, "speed"))),
			Aircraft: cellText(tr, "plane"),
			InfoURL:  a.detailURL(id),
		}
		if href, ok := tr.Find(`td[data-cn="info"] a[href*="flightinfo.html"]`).First().Attr("href"); ok {
			if ref, err := url.Parse(strings.SplitN(href, "#", 2)[0]); err == nil {
				r.InfoURL = finalURL.ResolveReference(ref).String()
			}
		}
		rows = append(rows, r)
	})
	return rows, nil
}

func cellText(tr *goquery.Selection, name string) string {
	return strings.TrimSpace(tr.Find(`td[data-cn="` + name + `"]`).First().Text())
}

func firstField(s string) string {
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

func flightbookPilot(tr *goquery.Selection) string {
	link := tr.Find(`td[data-cn="name"] a[href*="flightbook.html"]`).First()
	if title := strings.TrimSpace(link.AttrOr("title", "")); title != "" {
		return title
	}
	if text := strings.TrimSpace(link.Text()); text != "" {
		return text
	}
	return flight.UnknownPilot
}
