package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"orrery.space/shared/celestial"
)

const dateLayout = "2006-01-02"

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.instrument("healthz", s.handleHealth))

	api := func(route string, h http.HandlerFunc) http.HandlerFunc {
		return s.instrument(route, s.limit("api", s.apiLimiter, h))
	}
	mux.HandleFunc("GET /api/planets", api("planets", s.handlePlanets))
	mux.HandleFunc("GET /api/positions", api("positions", s.handlePositions))
	mux.HandleFunc("GET /api/angles", api("angles", s.handleAngles))
	mux.HandleFunc("GET /api/events", api("events", s.handleEvents))
	mux.HandleFunc("GET /api/zodiac", api("zodiac", s.handleZodiac))
	mux.HandleFunc("GET /api/trigrams", api("trigrams", s.handleTrigrams))
	mux.HandleFunc("GET /api/snapshot", api("snapshot", s.handleSnapshot))

	chat := func(route string, h http.HandlerFunc) http.HandlerFunc {
		return s.instrument(route, s.limit("chat", s.chatLimiter, h))
	}
	mux.HandleFunc("POST /api/chat", chat("chat", s.handleChat))
	mux.HandleFunc("GET /api/chat/history", api("chat_history", s.handleChatHistory))
	mux.HandleFunc("DELETE /api/chat/history", chat("chat_history", s.requireAdmin(s.handleChatClear)))
	mux.HandleFunc("GET /api/chat/settings", api("chat_settings", s.handleChatSettings))
	mux.HandleFunc("PUT /api/chat/settings", chat("chat_settings", s.requireAdmin(s.handleChatSettingsUpdate)))

	// Websocket upgrades need the raw ResponseWriter, so no instrumentation.
	mux.HandleFunc("GET /ws", s.limit("api", s.apiLimiter, s.handleWebSocket))

	mux.HandleFunc("GET /", s.instrument("host", s.handleHost))
	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying Flusher.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		s.metrics.RecordRequest(route, rec.status, time.Since(start))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// resolveTime picks an instant: t (ms since the epoch) wins over date
// (YYYY-MM-DD in loc); neither means now.
func resolveTime(t, date string, loc *time.Location, now time.Time) (float64, error) {
	if t != "" {
		ms, err := strconv.ParseFloat(t, 64)
		if err != nil || math.IsNaN(ms) || math.IsInf(ms, 0) {
			return 0, fmt.Errorf("invalid t %q: want milliseconds since the Unix epoch", t)
		}
		if celestial.CheckTimestamp(ms) != nil {
			return 0, fmt.Errorf("t %q is outside years 0 to 9999", t)
		}
		return ms, nil
	}
	if date != "" {
		d, err := time.ParseInLocation(dateLayout, date, loc)
		if err != nil {
			return 0, fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
		}
		return celestial.Timestamp(d), nil
	}
	return celestial.Timestamp(now), nil
}

func (s *Server) requestTime(r *http.Request) (float64, error) {
	q := r.URL.Query()
	return resolveTime(q.Get("t"), q.Get("date"), s.calc.Options().Location, s.now())
}

// withTime resolves the request time or answers 400.
func (s *Server) withTime(w http.ResponseWriter, r *http.Request) (float64, bool) {
	ms, err := s.requestTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return ms, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (s *Server) handlePlanets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.calc.Table().Records())
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	ms, ok := s.withTime(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.calc.Positions(ms))
}

func (s *Server) handleAngles(w http.ResponseWriter, r *http.Request) {
	ms, ok := s.withTime(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.calc.PhaseAngles(s.calc.Positions(ms)))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ms, ok := s.withTime(w, r)
	if !ok {
		return
	}
	events := s.calc.CelestialEvents(s.calc.Positions(ms))
	s.recordConjunctions(events)
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleZodiac(w http.ResponseWriter, r *http.Request) {
	if v := r.URL.Query().Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid year %q", v))
			return
		}
		writeJSON(w, http.StatusOK, s.calc.ZodiacForYear(year))
		return
	}
	ms, ok := s.withTime(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.calc.ChineseZodiac(ms))
}

func (s *Server) handleTrigrams(w http.ResponseWriter, r *http.Request) {
	ms, ok := s.withTime(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.calc.TrigramPositions(s.calc.Positions(ms)))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ms, ok := s.withTime(w, r)
	if !ok {
		return
	}
	snap := s.calc.Snapshot(ms)
	s.recordConjunctions(snap.Events)
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) recordConjunctions(events []celestial.ConjunctionEvent) {
	for _, e := range events {
		s.metrics.RecordConjunction(e.Planets[0], e.Planets[1])
	}
}

type siteIndex struct {
	Name      string   `json:"name"`
	Domain    string   `json:"domain"`
	Planets   []string `json:"planets"`
	Endpoints []string `json:"endpoints"`
}

// handleHost serves <planet>.<domain> with that planet's state and the apex
// with a short index.
func (s *Server) handleHost(w http.ResponseWriter, r *http.Request) {
	domain := strings.ToLower(s.cfg.Server.Domain)
	table := s.calc.Table()

	if planet := table.PlanetForHost(r.Host, domain); planet != "" {
		ms, ok := s.withTime(w, r)
		if !ok {
			return
		}
		state, _ := s.calc.PositionOf(planet, ms)
		writeJSON(w, http.StatusOK, state)
		return
	}

	host := strings.ToLower(r.Host)
	if i := strings.Index(host, ":"); i != -1 {
		host = host[:i]
	}
	host = strings.TrimSuffix(host, ".")
	if strings.HasSuffix(host, "."+domain) && host != "www."+domain {
		log.Printf("Unknown celestial body requested: %s", host)
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown celestial body: %s", strings.TrimSuffix(host, "."+domain)))
		return
	}

	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, siteIndex{
		Name:    "orrery",
		Domain:  domain,
		Planets: table.Subdomains(),
		Endpoints: []string{
			"/api/planets", "/api/positions", "/api/angles", "/api/events",
			"/api/zodiac", "/api/trigrams", "/api/snapshot", "/api/chat", "/ws",
		},
	})
}

// chatRequest is the body of POST /api/chat.
type chatRequest struct {
	Message string `json:"message"`
}

type settingsView struct {
	BaseURL   string `json:"baseUrl"`
	Model     string `json:"model"`
	HasAPIKey bool   `json:"hasApiKey"`
}

// requireAdmin lets a request through only with the configured chat admin
// token as a bearer credential. Without a configured token the route is
// closed.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		want := s.cfg.Chat.AdminToken
		if want == "" {
			writeError(w, http.StatusForbidden, "chat administration is disabled")
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			log.Printf("Rejected chat administration from %s", s.clientIP(r))
			w.Header().Set("WWW-Authenticate", `Bearer realm="orrery"`)
			writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		next(w, r)
	}
}

func (s *Server) chatEnabled(w http.ResponseWriter) bool {
	if s.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is disabled")
		return false
	}
	return true
}

// handleChat relays the reply as server-sent events: a "delta" event per
// fragment then a "done" event with the stored message. Errors raised before
// the first fragment are plain JSON responses.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.chatEnabled(w) {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sse := &sseWriter{w: w, rc: http.NewResponseController(w)}
	reply, err := s.chat.Send(r.Context(), req.Message, func(delta string) error {
		return sse.event("delta", map[string]string{"text": delta})
	})

	if err != nil && !sse.started {
		switch {
		case errors.Is(err, ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrNoAPIKey):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			log.Printf("Chat relay error: %v", err)
			writeError(w, http.StatusBadGateway, reply.Text)
		}
		return
	}
	if err != nil {
		log.Printf("Chat relay error after streaming started: %v", err)
		sse.event("error", reply)
		return
	}
	sse.event("done", reply)
}

type sseWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func (e *sseWriter) event(name string, v any) error {
	if !e.started {
		h := e.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		e.w.WriteHeader(http.StatusOK)
		e.started = true
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return e.rc.Flush()
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if !s.chatEnabled(w) {
		return
	}
	msgs, err := s.chat.History(r.Context())
	if err != nil {
		log.Printf("Error reading chat history: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleChatClear(w http.ResponseWriter, r *http.Request) {
	if !s.chatEnabled(w) {
		return
	}
	msgs, err := s.chat.ClearHistory(r.Context())
	if err != nil {
		log.Printf("Error clearing chat history: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleChatSettings(w http.ResponseWriter, r *http.Request) {
	if !s.chatEnabled(w) {
		return
	}
	cur := s.chat.Settings()
	writeJSON(w, http.StatusOK, settingsView{BaseURL: cur.BaseURL, Model: cur.Model, HasAPIKey: cur.APIKey != ""})
}

func (s *Server) handleChatSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	if !s.chatEnabled(w) {
		return
	}
	var next ChatSettings
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16*1024)).Decode(&next); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.chat.UpdateSettings(r.Context(), next); err != nil {
		if errors.Is(err, ErrInvalidSetting) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("Error saving chat settings: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	cur := s.chat.Settings()
	writeJSON(w, http.StatusOK, settingsView{BaseURL: cur.BaseURL, Model: cur.Model, HasAPIKey: true})
}
