package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// mockService simulates an eventually-consistent backend: services take a
// while to start, requests fail now and then, and the item list is rebuilt
// under readers' feet.
type mockService struct {
	mu       sync.Mutex
	readyAt  map[string]time.Time
	version  int
	items    []string
	started  time.Time
	flakyPct int
}

func newMockService() *mockService {
	return &mockService{
		readyAt:  make(map[string]time.Time),
		started:  time.Now(),
		flakyPct: 15,
	}
}

// Handler serves:
//
//	/health?svc=..&env=..  "starting" for 1-3s per service, then "ok"
//	/items                 the current list and its version; grows every 400ms
//	/items/{i}?version=v   one item, or 410 Gone once the list was rebuilt
func (m *mockService) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if m.flaky() {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		key := r.URL.Query().Get("svc") + "-" + r.URL.Query().Get("env")

		m.mu.Lock()
		readyAt, ok := m.readyAt[key]
		if !ok {
			readyAt = time.Now().Add(time.Duration(1000+rand.Intn(2000)) * time.Millisecond)
			m.readyAt[key] = readyAt
		}
		m.mu.Unlock()

		status := "starting"
		if time.Now().After(readyAt) {
			status = "ok"
		}
		writeJSON(w, map[string]string{"status": status})
	})

	mux.HandleFunc("GET /items", func(w http.ResponseWriter, r *http.Request) {
		version, items := m.snapshot()
		writeJSON(w, map[string]any{"version": version, "items": items})
	})

	mux.HandleFunc("GET /items/{i}", func(w http.ResponseWriter, r *http.Request) {
		i, err := strconv.Atoi(r.PathValue("i"))
		if err != nil {
			http.Error(w, "bad index", http.StatusBadRequest)
			return
		}
		want, _ := strconv.Atoi(r.URL.Query().Get("version"))

		version, items := m.snapshot()
		switch {
		case want != version:
			http.Error(w, "list was rebuilt", http.StatusGone)
		case i < 0 || i >= len(items):
			http.Error(w, "no such item", http.StatusNotFound)
		default:
			writeJSON(w, map[string]string{"item": items[i]})
		}
	})

	return mux
}

// snapshot rebuilds the list when it is due and returns it.
func (m *mockService) snapshot() (int, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	due := int(time.Since(m.started) / (400 * time.Millisecond))
	if due > m.version {
		m.version = due
		m.items = m.items[:0:0]
		for i := 0; i < min(due, 5); i++ {
			m.items = append(m.items, fmt.Sprintf("item-%d", i))
		}
		slog.Debug("item list rebuilt", "version", m.version, "items", len(m.items))
	}
	return m.version, append([]string(nil), m.items...)
}

func (m *mockService) flaky() bool {
	return rand.Intn(100) < m.flakyPct
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
