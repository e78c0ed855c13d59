// Package httpapi implements the optional HTTP wrapper around train and
// score (spec.md §5/§6's HTTP surface), grounded on the teacher's
// cmd/server/management.go (ServeMux + JSON handlers) and
// system_monitor.go (GetMemoryInfo/GetSystemInfo), trimmed to calret's
// single-Store, single-mutex shape: no connection manager, no dynamic
// connection-limit endpoints, no per-tenant anything.
package httpapi

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"runtime"
	"sync"
	"time"

	"calret/internal/authcred"
	"calret/internal/classifier"
	"calret/internal/featurevec"
	"calret/internal/qrels"
	"calret/internal/scorer"
	"calret/internal/store"
)

// Server wraps one *store.Store behind the single mutual-exclusion
// gate spec.md §4.9's "Shared-resource policy" requires of any
// front-end exposing train+score over one Store.
type Server struct {
	mu    sync.Mutex
	store *store.Store
	gate  *authcred.Gate // nil disables auth entirely

	startedAt time.Time
	mux       *http.ServeMux
}

// New builds a Server around an already-open Store. gate may be nil to
// run with no authentication (spec.md §5 leaves this to the operator).
func New(s *store.Store, gate *authcred.Gate) *Server {
	srv := &Server{store: s, gate: gate, startedAt: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", srv.healthHandler)
	mux.HandleFunc("/stats", srv.statsHandler)
	mux.HandleFunc("/train", srv.authed(srv.trainHandler))
	mux.HandleFunc("/score", srv.authed(srv.scoreHandler))
	srv.mux = mux
	return srv
}

// Handler returns the http.Handler serving every endpoint.
func (s *Server) Handler() http.Handler { return s.mux }

// authed wraps h with the gate's Basic-Auth check. If the Server has no
// gate, h runs unguarded.
func (s *Server) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.gate == nil {
			h(w, r)
			return
		}
		username, password, ok := r.BasicAuth()
		if !ok || s.gate.Authenticate(username, password) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="calret"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"status": "failed", "error": err.Error()})
}

// healthHandler reports liveness, the way the teacher's healthHandler
// does, trimmed to one service name.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "calret"})
}

// statsHandler reports process memory and goroutine counts the way the
// teacher's GetMemoryInfo/GetSystemInfo do, trimmed to the fields a
// single-process retrieval daemon needs (no CPU-time sampling, since
// calret never runs long enough between requests for that to mean
// anything the way a connection-serving daemon's does).
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s.mu.Lock()
	numDocs := 0
	if s.store != nil {
		numDocs = s.store.NumDocs()
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"memory": map[string]any{
			"alloc_mb": float64(mem.Alloc) / 1024 / 1024,
			"sys_mb":   float64(mem.Sys) / 1024 / 1024,
			"num_gc":   mem.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
		"num_cpu":    runtime.NumCPU(),
		"num_docs":   numDocs,
		"uptime_s":   time.Since(s.startedAt).Seconds(),
		"timestamp":  time.Now(),
	})
}

// trainHandler implements GET /train?model_file=&qrels_file=&rel_level=&sample_neg=
// (spec.md §5's HTTP surface), exclusively holding the Store mutex for
// the duration of one train call.
func (s *Server) trainHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	modelFile := q.Get("model_file")
	qrelsFile := q.Get("qrels_file")
	if modelFile == "" || qrelsFile == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("model_file and qrels_file are required"))
		return
	}
	relLevel := 1
	if v := q.Get("rel_level"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &relLevel); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid rel_level: %w", err))
			return
		}
	}
	sampleNeg := 0
	if v := q.Get("sample_neg"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &sampleNeg); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid sample_neg: %w", err))
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	judgments, err := qrels.Parse(qrelsFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	posIDs, negIDs := qrels.Split(judgments, relLevel)

	c, err := classifier.Load(modelFile)
	if err != nil {
		c = classifier.New(0.01, 1000)
	}

	pos, err := resolveVectors(s.store, posIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	neg, err := resolveVectors(s.store, negIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if sampleNeg > 0 {
		used := qrels.ExcludeSet(judgments)
		extra, err := sampleNegatives(s.store, used, sampleNeg)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		neg = append(neg, extra...)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	if err := c.Train(pos, neg, rng); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := c.Save(modelFile); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	precision, recall := c.Evaluate(pos, neg)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"precision": precision,
		"recall":    recall,
	})
}

// scoreHandler implements GET /score?model_file=&num_results=&exclude_file=
// (spec.md §5's HTTP surface), returning the full-scan ranking as JSON.
func (s *Server) scoreHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	modelFile := q.Get("model_file")
	if modelFile == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("model_file is required"))
		return
	}
	numResults := 100
	if v := q.Get("num_results"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &numResults); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid num_results: %w", err))
			return
		}
	}

	var exclude map[string]struct{}
	if excludeFile := q.Get("exclude_file"); excludeFile != "" {
		judgments, err := qrels.Parse(excludeFile)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		exclude = qrels.ExcludeSet(judgments)
	}

	c, err := classifier.Load(modelFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	results, err := scorer.FullScan(s.store, c, scorer.Options{NumResults: numResults, Exclude: exclude})
	s.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	type result struct {
		DocID string  `json:"docid"`
		Score float64 `json:"score"`
	}
	out := make([]result, len(results))
	for i, r := range results {
		out[i] = result{DocID: r.ExtID, Score: r.Score}
	}
	writeJSON(w, http.StatusOK, out)
}

func resolveVectors(s *store.Store, extids []string) ([]*featurevec.Vector, error) {
	out := make([]*featurevec.Vector, 0, len(extids))
	for _, extid := range extids {
		intid, err := s.GetDocIntID(extid)
		if err != nil {
			return nil, err
		}
		v, err := s.FeatureVector(intid)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// sampleNegatives draws n docids uniformly at random from the full
// docid space, excluding any docid already in used, the way
// train_qrels's `-n num_sampled_negatives` augments the negative set
// (SPEC_FULL.md supplemented feature 1).
func sampleNegatives(s *store.Store, used map[string]struct{}, n int) ([]*featurevec.Vector, error) {
	total := s.DocIDs.Len()
	out := make([]*featurevec.Vector, 0, n)
	maxAttempts := n * 20
	if maxAttempts < total {
		maxAttempts = total
	}
	for attempt := 0; attempt < maxAttempts && len(out) < n; attempt++ {
		intid := uint32(rand.Intn(total) + 1)
		extid, err := s.GetDocID(intid)
		if err != nil {
			return nil, err
		}
		if _, skip := used[extid]; skip {
			continue
		}
		v, err := s.FeatureVector(intid)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
