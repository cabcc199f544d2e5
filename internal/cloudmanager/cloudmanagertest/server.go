// Package cloudmanagertest provides an in-memory CloudManager for tests.
package cloudmanagertest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Chain is one blockchain held by the fake server.
type Chain struct {
	ID                  string
	Name                string
	OwnerID             string
	ControllerName      string
	ControllerRole      string
	CreatedAt           string
	DLOID               any // string or object, marshalled as given
	GenesisDLOID        string
	Length              int
	PendingTransactions int
}

// Server is a fake CloudManager. Its state is changed through the setters,
// which are safe to call while requests are in flight.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	version    *string // nil omits the field from /api/health
	chains     []Chain
	mapListing bool
	status     map[string]int
	failDetail map[string]bool

	requests map[string]int
	created  []map[string]any
	lastUA   string
	lastCT   string
}

// New starts a fake server reporting version.
func New(version string) *Server {
	s := &Server{
		status:     make(map[string]int),
		failDetail: make(map[string]bool),
		requests:   make(map[string]int),
	}
	s.SetVersion(&version)
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// SetVersion changes the reported version; nil omits it.
func (s *Server) SetVersion(v *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
}

// AddChain registers a blockchain.
func (s *Server) AddChain(c Chain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chains = append(s.chains, c)
}

// UseMapListing switches the listing to the "blockchains" object form.
func (s *Server) UseMapListing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mapListing = true
}

// FailPath makes every request to path answer with code.
func (s *Server) FailPath(path string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[path] = code
}

// ClearFailure undoes FailPath for path.
func (s *Server) ClearFailure(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.status, path)
}

// FailDetail makes the detail fetch for id answer 500.
func (s *Server) FailDetail(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDetail[id] = true
}

// Requests returns how many requests hit "METHOD /path".
func (s *Server) Requests(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[key]
}

// Created returns the decoded bodies of every create request.
func (s *Server) Created() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.created...)
}

// LastHeaders returns the User-Agent and Content-Type of the last request.
func (s *Server) LastHeaders() (userAgent, contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUA, s.lastCT
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests[r.Method+" "+r.URL.Path]++
	s.lastUA = r.Header.Get("User-Agent")
	s.lastCT = r.Header.Get("Content-Type")
	code, failing := s.status[r.URL.Path]
	s.mu.Unlock()

	if failing {
		http.Error(w, fmt.Sprintf(`{"error":"forced %d"}`, code), code)
		return
	}

	switch {
	case r.URL.Path == "/api/health" && r.Method == http.MethodGet:
		s.health(w)
	case r.URL.Path == "/api/version" && r.Method == http.MethodGet:
		s.mu.Lock()
		v := s.version
		s.mu.Unlock()
		if v == nil {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"version": *v, "build_date": "2025-01-01", "author": "cloudmanager"})
	case r.URL.Path == "/api/blockchains" && r.Method == http.MethodGet:
		s.list(w)
	case r.URL.Path == "/api/blockchains" && r.Method == http.MethodPost:
		s.create(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/blockchains/") && r.Method == http.MethodGet:
		s.detail(w, r, strings.TrimPrefix(r.URL.Path, "/api/blockchains/"))
	case r.URL.Path == "/api/generate_controller_name" && r.Method == http.MethodPost:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		first, _ := body["first_name"].(string)
		last, _ := body["last_name"].(string)
		writeJSON(w, http.StatusOK, map[string]any{"controller_name": strings.ToUpper(first+last) + "-CTRL"})
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) health(w http.ResponseWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body := map[string]any{
		"status":              "healthy",
		"service":             "CloudManager",
		"managed_blockchains": len(s.chains),
	}
	if s.version != nil {
		body["version"] = *s.version
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) list(w http.ResponseWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mapListing {
		m := make(map[string]any, len(s.chains))
		for _, c := range s.chains {
			meta := metadata(c)
			delete(meta, "blockchain_id")
			m[c.ID] = meta
		}
		writeJSON(w, http.StatusOK, map[string]any{"blockchains": m})
		return
	}
	items := make([]any, 0, len(s.chains))
	for _, c := range s.chains {
		items = append(items, metadata(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(items), "items": items})
}

func (s *Server) detail(w http.ResponseWriter, r *http.Request, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDetail[id] {
		http.Error(w, `{"error":"detail unavailable"}`, http.StatusInternalServerError)
		return
	}
	for _, c := range s.chains {
		if c.ID != id {
			continue
		}
		body := metadata(c)
		body["chain_info"] = map[string]any{"length": c.Length, "pending_transactions": c.PendingTransactions}
		writeJSON(w, http.StatusOK, body)
		return
	}
	http.NotFound(w, r)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"bad json"}`, http.StatusBadRequest)
		return
	}
	if uid, _ := body["user_uuid"].(string); uid == "" {
		http.Error(w, `{"error":"user_uuid required"}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.created = append(s.created, body)
	id := fmt.Sprintf("bc-%03d", len(s.created))
	s.mu.Unlock()

	first, _ := body["first_name"].(string)
	writeJSON(w, http.StatusCreated, map[string]any{
		"blockchain_id":   id,
		"controller_name": strings.ToUpper(first) + "-CTRL",
		"dloid_params":    body["dloid_params"],
	})
}

func metadata(c Chain) map[string]any {
	m := map[string]any{
		"blockchain_id":   c.ID,
		"name":            c.Name,
		"user_uuid":       c.OwnerID,
		"controller_name": c.ControllerName,
		"controller_role": c.ControllerRole,
		"created_at":      c.CreatedAt,
	}
	if c.DLOID != nil {
		m["dloid_params"] = c.DLOID
	}
	if c.GenesisDLOID != "" {
		m["genesis_dloid"] = c.GenesisDLOID
	}
	return m
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
