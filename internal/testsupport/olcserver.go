package testsupport

import (
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

// FakeResponse scripts one download attempt against the fake site.
type FakeResponse int

const (
	// RespIGC serves a valid track log.
	RespIGC FakeResponse = iota
	// RespInvalid serves a non-IGC binary body.
	RespInvalid
	// RespExpired serves an HTML page without the limit phrase.
	RespExpired
	// RespRateLimit serves the daily download limit page.
	RespRateLimit
	// RespServerError answers 503.
	RespServerError
	// RespNotFound answers 404.
	RespNotFound
)

// FakeFlight is one flight known to the fake site.
type FakeFlight struct {
	ID        string
	LegacyID  string
	Year      string
	Date      string
	FirstName string
	SurName   string
	Airport   string
	Points    *float64
	Distance  *float64
	Speed     *float64
	Plane     string
	// Flightbook marks flights visible on the pilot's own flightbook.
	Flightbook bool
	// NoDownloadLink renders a detail page without a track-log link.
	NoDownloadLink bool
	// DetailError answers the detail page with a 500.
	DetailError bool
	// Responses are consumed one per download attempt; the last repeats.
	Responses []FakeResponse
}

// FakeOLC is an httptest server imitating the contest site endpoints.
type FakeOLC struct {
	URL      string
	Username string
	Password string
	PilotID  string

	server *httptest.Server

	mu           sync.Mutex
	flights      []FakeFlight
	failYears    map[string]bool
	session      string
	logins       int
	listHits     int
	detailHits   map[string]int
	downloadHits map[string]int
	referers     []string
}

// NewFakeOLC starts a fake site and registers cleanup.
func NewFakeOLC(t testing.TB) *FakeOLC {
	t.Helper()
	f := &FakeOLC{
		Username:     "pilot",
		Password:     "secret",
		PilotID:      "4711",
		failYears:    map[string]bool{},
		detailHits:   map[string]int{},
		downloadHits: map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/olc-3.0/secure/login.html", f.handleLogin)
	mux.HandleFunc("/olc-3.0/gliding/index.html", f.handleIndex)
	mux.HandleFunc("/olc-3.0/gliding/flightsOfAirfield.html", f.handleAirfield)
	mux.HandleFunc("/olc-3.0/gliding/flightbook.html", f.handleFlightbook)
	mux.HandleFunc("/olc-3.0/gliding/flightinfo.html", f.handleFlightInfo)
	mux.HandleFunc("/olc-3.0/gliding/download.html", f.handleDownload)
	f.server = httptest.NewServer(mux)
	f.URL = f.server.URL
	t.Cleanup(f.server.Close)
	return f
}

// AddFlights registers flights with the fake site.
func (f *FakeOLC) AddFlights(flights ...FakeFlight) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flights = append(f.flights, flights...)
}

// FailYear makes the airfield listing answer 500 for year.
func (f *FakeOLC) FailYear(year string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failYears[year] = true
}

// ExpireSession invalidates the current session cookie.
func (f *FakeOLC) ExpireSession() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = ""
}

// Logins returns the number of successful logins.
func (f *FakeOLC) Logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

// ListHits returns the number of airfield listing requests.
func (f *FakeOLC) ListHits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listHits
}

// DetailHits returns the detail-page requests for a dataset id.
func (f *FakeOLC) DetailHits(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailHits[id]
}

// TotalDetailHits returns all detail-page requests.
func (f *FakeOLC) TotalDetailHits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.detailHits {
		total += n
	}
	return total
}

// DownloadHits returns download requests for a legacy flight id.
func (f *FakeOLC) DownloadHits(legacyID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloadHits[legacyID]
}

// Referers returns the Referer headers seen on downloads.
func (f *FakeOLC) Referers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.referers...)
}

// DetailURL returns the detail page of a dataset id.
func (f *FakeOLC) DetailURL(id string) string {
	return f.URL + "/olc-3.0/gliding/flightinfo.html?dsId=" + id
}

func (f *FakeOLC) loggedIn(r *http.Request) bool {
	cookie, err := r.Cookie("OLCSESSION")
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session != "" && cookie.Value == f.session
}

func (f *FakeOLC) handleLogin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.Method == http.MethodGet {
		fmt.Fprint(w, `<html><body><form method="post" action="/olc-3.0/secure/login.html">`+
			`<input type="hidden" name="_csrf" value="tok123">`+
			`<input type="text" name="_ident_"><input type="password" name="_name__">`+
			`<input type="image" name="ok_par"></form></body></html>`)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("_csrf") != "tok123" || r.PostForm.Get("ok_par.x") != "1" ||
		r.PostForm.Get("_ident_") != f.Username || r.PostForm.Get("_name__") != f.Password {
		fmt.Fprint(w, `<html><body><p>Login failed</p></body></html>`)
		return
	}
	f.mu.Lock()
	f.logins++
	f.session = "s" + strconv.Itoa(f.logins)
	token := f.session
	f.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: "OLCSESSION", Value: token, Path: "/"})
	fmt.Fprint(w, `<html><body><a href="/olc-3.0/secure/logout.html">Logout</a></body></html>`)
}

func (f *FakeOLC) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if !f.loggedIn(r) {
		fmt.Fprint(w, `<html><body><a href="/olc-3.0/secure/login.html">Login</a></body></html>`)
		return
	}
	fmt.Fprintf(w, `<html><body><a href="flightbook.html?rt=olc&st=olcp&pi=%s">My flights</a></body></html>`, f.PilotID)
}

type listingRequest struct {
	Q      string `json:"q"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

func (f *FakeOLC) handleAirfield(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	airport := r.URL.Query().Get("aa")
	year := r.URL.Query().Get("sp")

	f.mu.Lock()
	f.listHits++
	failing := f.failYears[year]
	var matches []FakeFlight
	for _, fl := range f.flights {
		if fl.Year == year && strings.EqualFold(fl.Airport, airport) {
			matches = append(matches, fl)
		}
	}
	f.mu.Unlock()

	if failing {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var req listingRequest
	body, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(body, &req); err != nil || req.Q != "ds" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	limit := req.Limit
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	start := min(req.Offset, len(matches))
	end := min(start+limit, len(matches))

	rows := make([]map[string]any, 0, end-start)
	for _, fl := range matches[start:end] {
		row := map[string]any{
			"date":  fl.Date,
			"plane": fl.Plane,
			"pilot": map[string]any{"firstName": fl.FirstName, "surName": fl.SurName},
		}
		if n, err := strconv.ParseInt(fl.ID, 10, 64); err == nil {
			row["id"] = n
		} else {
			row["id"] = fl.ID
		}
		if fl.Points != nil {
			row["points"] = *fl.Points
		}
		if fl.Distance != nil {
			row["distance"] = *fl.Distance
		}
		if fl.Speed != nil {
			row["speed"] = *fl.Speed
		}
		rows = append(rows, row)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"result": rows, "count": len(matches)})
}

func (f *FakeOLC) handleFlightbook(w http.ResponseWriter, r *http.Request) {
	year := r.URL.Query().Get("sp")
	if r.URL.Query().Get("pi") != f.PilotID {
		http.Error(w, "unknown pilot", http.StatusNotFound)
		return
	}
	f.mu.Lock()
	f.listHits++
	var matches []FakeFlight
	for _, fl := range f.flights {
		if fl.Year == year && fl.Flightbook {
			matches = append(matches, fl)
		}
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var b strings.Builder
	b.WriteString("<html><body><table><tbody>")
	for _, fl := range matches {
		fmt.Fprintf(&b, `<tr data-rid="%s">`, html.EscapeString(fl.ID))
		fmt.Fprintf(&b, `<td data-cn="date">%s <span class="visible-xs">x</span></td>`, html.EscapeString(fl.Date))
		fmt.Fprintf(&b, `<td data-cn="points">%s</td>`, formatOptional(fl.Points))
		fmt.Fprintf(&b, `<td data-cn="name"><a href="flightbook.html?pi=%s" title="%s">%s</a></td>`,
			f.PilotID, html.EscapeString(fl.FirstName+" "+fl.SurName), html.EscapeString(fl.SurName))
		fmt.Fprintf(&b, `<td data-cn="takeoff"><a href="#">%s</a></td>`, html.EscapeString(fl.Airport))
		fmt.Fprintf(&b, `<td data-cn="distance">%s</td>`, formatOptional(fl.Distance))
		fmt.Fprintf(&b, `<td data-cn="speed">%s</td>`, formatOptional(fl.Speed))
		fmt.Fprintf(&b, `<td data-cn="plane">%s</td>`, html.EscapeString(fl.Plane))
		fmt.Fprintf(&b, `<td data-cn="info"><a href="flightinfo.html?dsId=%s#map">Info</a></td>`, html.EscapeString(fl.ID))
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table></body></html>")
	fmt.Fprint(w, b.String())
}

func formatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func (f *FakeOLC) lookup(match func(FakeFlight) bool) (FakeFlight, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fl := range f.flights {
		if match(fl) {
			return fl, true
		}
	}
	return FakeFlight{}, false
}

func (f *FakeOLC) handleFlightInfo(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("dsId")
	f.mu.Lock()
	f.detailHits[id]++
	f.mu.Unlock()

	fl, ok := f.lookup(func(fl FakeFlight) bool { return fl.ID == id })
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if fl.DetailError {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<h1>Flight of %s</h1>", html.EscapeString(fl.Date))
	if !fl.NoDownloadLink {
		fmt.Fprintf(&b, `<a href="download.html?flightId=%s&amp;kmlfile=true">KML</a>`, fl.LegacyID)
		fmt.Fprintf(&b, `<a href="download.html?flightId=%s">IGC</a>`, fl.LegacyID)
	}
	b.WriteString("</body></html>")
	fmt.Fprint(w, b.String())
}

func (f *FakeOLC) handleDownload(w http.ResponseWriter, r *http.Request) {
	legacy := r.URL.Query().Get("flightId")
	f.mu.Lock()
	attempt := f.downloadHits[legacy]
	f.downloadHits[legacy]++
	f.referers = append(f.referers, r.Header.Get("Referer"))
	f.mu.Unlock()

	fl, ok := f.lookup(func(fl FakeFlight) bool { return fl.LegacyID == legacy })
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	resp := RespIGC
	if len(fl.Responses) > 0 {
		resp = fl.Responses[min(attempt, len(fl.Responses)-1)]
	}
	if resp == RespIGC && (!f.loggedIn(r) || r.Header.Get("Referer") == "") {
		resp = RespExpired
	}

	switch resp {
	case RespIGC:
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(IGCContent(fl.Date, fl.FirstName+" "+fl.SurName))
	case RespInvalid:
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("garbage payload\n"))
	case RespExpired:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(HTMLErrorPage))
	case RespRateLimit:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<!DOCTYPE html><html><body>You have reached the Download Limitation for today!</body></html>"))
	case RespServerError:
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	case RespNotFound:
		http.Error(w, "gone", http.StatusNotFound)
	}
}
