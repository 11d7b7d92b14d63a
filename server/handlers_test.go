package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"orrery.space/shared/celestial"
)

func testConfig() Config {
	return Config{
		Timezone:             "UTC",
		ConjunctionThreshold: celestial.DefaultConjunctionThreshold,
		TrigramOffset:        celestial.DefaultTrigramOffset,
		ZodiacReferenceYear:  celestial.DefaultZodiacReferenceYear,
		Server: ServerConfig{
			Domain:         celestial.DefaultDomain,
			StreamInterval: minStreamInterval,
			RateLimit:      60000,
			ChatRateLimit:  60000,
		},
		Chat: ChatConfig{
			BaseURL:      "https://api.deepseek.com",
			Model:        "deepseek-chat",
			HistoryLimit: 50,
			Timeout:      5 * time.Second,
		},
	}
}

// newTestServer returns a server frozen at the Unix epoch with chat disabled.
func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	calc, err := cfg.NewCalculator()
	if err != nil {
		t.Fatalf("NewCalculator() error = %v", err)
	}
	s := NewServer(cfg, calc, nil, NewMetricsCollector(nil))
	s.now = func() time.Time { return time.UnixMilli(0).UTC() }
	t.Cleanup(s.cancel)
	return s
}

// enableChat attaches a chat service backed by a temporary database.
func enableChat(t *testing.T, s *Server, settings ChatSettings) *ChatService {
	t.Helper()
	ctx := t.Context()
	chatLog, err := NewSQLiteChatLog(ctx, filepath.Join(t.TempDir(), "chat.db"), s.cfg.Chat.HistoryLimit)
	if err != nil {
		t.Fatalf("NewSQLiteChatLog() error = %v", err)
	}
	t.Cleanup(func() { chatLog.Close() })

	chat, err := NewChatService(ctx, chatLog, NewChatClient(5*time.Second), NewSecurityValidator(nil), s.metrics, settings)
	if err != nil {
		t.Fatalf("NewChatService() error = %v", err)
	}
	s.chat = chat
	return chat
}

func doRequest(t *testing.T, s *Server, method, target, host, body string) *httptest.ResponseRecorder {
	t.Helper()
	return doRequestWithToken(t, s, method, target, host, body, "")
}

// doRequestWithToken sends token as a bearer credential when non-empty.
func doRequestWithToken(t *testing.T, s *Server, method, target, host, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if host != "" {
		req.Host = host
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := doRequest(t, s, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("GET /healthz = %d %q, want 200 ok", rec.Code, rec.Body.String())
	}
}

func TestPositionsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())

	tests := []struct {
		name   string
		target string
		ms     float64
	}{
		{name: "default is now", target: "/api/positions", ms: 0},
		{name: "explicit t", target: "/api/positions?t=86400000", ms: 86400000},
		{name: "date", target: "/api/positions?date=2000-01-01", ms: celestial.Timestamp(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))},
		{name: "t wins over date", target: "/api/positions?t=5&date=2000-01-01", ms: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodGet, tt.target, "", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			var got []celestial.PlanetState
			decodeBody(t, rec, &got)

			want := s.calc.Positions(tt.ms)
			if len(got) != len(want) {
				t.Fatalf("got %d planets, want %d", len(got), len(want))
			}
			for i := range want {
				if got[i].Name != want[i].Name || got[i].CurrentPosition != want[i].CurrentPosition {
					t.Errorf("planet %d = %+v, want %+v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestTimeParameterErrors(t *testing.T) {
	s := newTestServer(t, testConfig())

	for _, target := range []string{
		"/api/positions?t=soon",
		"/api/angles?t=NaN",
		"/api/events?date=01/02/2003",
		"/api/snapshot?date=2024-13-01",
		"/api/snapshot?t=1e300",
		"/api/zodiac?t=-1e20",
		"/api/zodiac?year=MMXXIV",
	} {
		rec := doRequest(t, s, http.MethodGet, target, "", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("GET %s = %d, want 400", target, rec.Code)
		}
	}
}

func TestAnglesAndEventsEndpoints(t *testing.T) {
	s := newTestServer(t, testConfig())

	var angles []celestial.AngleRecord
	decodeBody(t, doRequest(t, s, http.MethodGet, "/api/angles?t=0", "", ""), &angles)
	// 8 planets besides the sun
	if len(angles) != 28 {
		t.Errorf("got %d angles, want 28", len(angles))
	}

	// every planet starts on the +x axis, so every pair is in conjunction
	var events []celestial.ConjunctionEvent
	decodeBody(t, doRequest(t, s, http.MethodGet, "/api/events?t=0", "", ""), &events)
	if len(events) != 28 {
		t.Fatalf("got %d events at the epoch, want 28", len(events))
	}
	if events[0].Type != celestial.EventConjunction {
		t.Errorf("event type = %q, want %q", events[0].Type, celestial.EventConjunction)
	}
}

func TestZodiacEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())

	tests := []struct {
		target string
		want   string
	}{
		{target: "/api/zodiac?year=1984", want: "甲子年"},
		{target: "/api/zodiac?year=1900", want: "庚子年"},
		{target: "/api/zodiac?date=2024-06-01", want: "甲辰年"},
		{target: "/api/zodiac", want: "庚戌年"}, // 1970
	}
	for _, tt := range tests {
		var got celestial.ZodiacLabel
		decodeBody(t, doRequest(t, s, http.MethodGet, tt.target, "", ""), &got)
		if got.Year != tt.want {
			t.Errorf("GET %s = %q, want %q", tt.target, got.Year, tt.want)
		}
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := doRequest(t, s, http.MethodGet, "/api/snapshot?t=0", "", "")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}

	var got celestial.Snapshot
	decodeBody(t, rec, &got)
	want := s.calc.Snapshot(0)
	if got.Timestamp != 0 || got.Zodiac != want.Zodiac || len(got.Trigrams) != len(want.Trigrams) {
		t.Errorf("snapshot = %+v, want %+v", got, want)
	}
}

func TestPlanetsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig())
	var got []celestial.PlanetRecord
	decodeBody(t, doRequest(t, s, http.MethodGet, "/api/planets", "", ""), &got)
	if !reflect.DeepEqual(got, celestial.DefaultPlanets) {
		t.Errorf("GET /api/planets = %+v", got)
	}
}

func TestHostRouting(t *testing.T) {
	s := newTestServer(t, testConfig())

	tests := []struct {
		name   string
		host   string
		target string
		code   int
		planet string
	}{
		{name: "planet subdomain", host: "mars.orrery.space", target: "/", code: http.StatusOK, planet: "mars"},
		{name: "planet with port", host: "Jupiter.orrery.space:8080", target: "/?t=1000", code: http.StatusOK, planet: "jupiter"},
		{name: "unknown body", host: "vulcan.orrery.space", target: "/", code: http.StatusNotFound},
		{name: "apex index", host: "orrery.space", target: "/", code: http.StatusOK},
		{name: "www index", host: "www.orrery.space", target: "/", code: http.StatusOK},
		{name: "apex unknown path", host: "orrery.space", target: "/nope", code: http.StatusNotFound},
		{name: "bad time on planet", host: "mars.orrery.space", target: "/?t=x", code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodGet, tt.target, tt.host, "")
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.code, rec.Body.String())
			}
			if tt.planet == "" {
				return
			}
			var got celestial.PlanetState
			decodeBody(t, rec, &got)
			if got.Name != tt.planet {
				t.Errorf("served %q, want %q", got.Name, tt.planet)
			}
		})
	}
}

func TestIndexListsPlanets(t *testing.T) {
	s := newTestServer(t, testConfig())
	var idx siteIndex
	decodeBody(t, doRequest(t, s, http.MethodGet, "/", "orrery.space", ""), &idx)
	if !reflect.DeepEqual(idx.Planets, s.calc.Table().Subdomains()) {
		t.Errorf("index planets = %v", idx.Planets)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := doRequest(t, s, http.MethodPost, "/api/positions", "", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/positions = %d, want 405", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimit = 1 // burst of one
	s := newTestServer(t, cfg)
	handler := s.routes()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/zodiac?year=2000", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 429 429]", codes)
	}

	// health checks are not limited
	if rec := doRequest(t, s, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Errorf("GET /healthz after limit = %d", rec.Code)
	}
}

func TestChatDisabled(t *testing.T) {
	s := newTestServer(t, testConfig())
	for _, r := range []struct{ method, target string }{
		{http.MethodPost, "/api/chat"},
		{http.MethodGet, "/api/chat/history"},
		{http.MethodGet, "/api/chat/settings"},
	} {
		rec := doRequest(t, s, r.method, r.target, "", `{"message":"hi"}`)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s = %d, want 503", r.method, r.target, rec.Code)
		}
	}
}

func TestResolveTime(t *testing.T) {
	now := time.Date(2020, 5, 5, 0, 0, 0, 0, time.UTC)
	shanghai := time.FixedZone("CST", 8*60*60)

	tests := []struct {
		name    string
		t, date string
		loc     *time.Location
		want    float64
		wantErr bool
	}{
		{name: "now", loc: time.UTC, want: celestial.Timestamp(now)},
		{name: "negative t", t: "-1000", loc: time.UTC, want: -1000},
		{name: "fractional t", t: "1.5", loc: time.UTC, want: 1.5},
		{name: "date in zone", date: "1970-01-01", loc: shanghai, want: -8 * 60 * 60 * 1000},
		{name: "infinite t", t: "Inf", loc: time.UTC, wantErr: true},
		{name: "t past year 9999", t: "1e300", loc: time.UTC, wantErr: true},
		{name: "t before year 0", t: "-62167219200001", loc: time.UTC, wantErr: true},
		{name: "last representable t", t: "253402300799999", loc: time.UTC, want: celestial.MaxTimestamp},
		{name: "bad date", date: "yesterday", loc: time.UTC, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveTime(tt.t, tt.date, tt.loc, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveTime() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("resolveTime() = %v, want %v", got, tt.want)
			}
		})
	}
}
