// Package webui hosts a browser dashboard for a discovery session: a
// snapshot endpoint, a live SSE event stream and export/import of results.
package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"upnpscan/internal/discovery"
)

// App hosts the web-based interface around a discovery manager.
type App struct {
	manager *discovery.Manager

	mu      sync.Mutex
	clients map[chan event]struct{}
}

// New constructs an App around manager.
func New(manager *discovery.Manager) *App {
	return &App{
		manager: manager,
		clients: make(map[chan event]struct{}),
	}
}

// Handler returns the HTTP handler serving the dashboard and its API.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", a.handleIndex)
	mux.HandleFunc("/start", a.handleStart)
	mux.HandleFunc("/stop", a.handleStop)
	mux.HandleFunc("/search", a.handleSearch)
	mux.HandleFunc("/export", a.handleExport)
	mux.HandleFunc("/import", a.handleImport)
	mux.HandleFunc("/snapshot", a.handleSnapshot)
	mux.HandleFunc("/events", a.handleEvents)
	return mux
}

// Run starts the HTTP server hosting the dashboard and blocks until it
// stops.
func (a *App) Run() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	addr := ln.Addr().String()
	fmt.Printf("upnpscan dashboard available at http://%s\n", addr)
	a.launchBrowser(addr)

	server := &http.Server{Handler: a.Handler()}
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, indexHTML)
}

func (a *App) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Source           string `json:"source"`
		Target           string `json:"target"`
		SearchTarget     string `json:"search_target"`
		SearchIntervalMs int    `json:"search_interval_ms"`
		EnableEnrichment bool   `json:"enable_enrichment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	cfg := discovery.Config{
		Source:           strings.TrimSpace(req.Source),
		Target:           strings.TrimSpace(req.Target),
		SearchTarget:     strings.TrimSpace(req.SearchTarget),
		SearchInterval:   time.Duration(req.SearchIntervalMs) * time.Millisecond,
		EnableEnrichment: req.EnableEnrichment,
	}
	if _, err := a.manager.Start(context.Background(), cfg, a.onUpdate, a.onStatus); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.broadcastSnapshot()
	w.WriteHeader(http.StatusAccepted)
}

func (a *App) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := a.manager.Stop(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.broadcastSnapshot()
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := a.manager.Search(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data, err := a.manager.Export()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=devices.json")
	w.Write(data)
}

func (a *App) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "unable to read upload", http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "unable to read upload", http.StatusBadRequest)
		return
	}
	if _, err := a.manager.Import(data); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.broadcastSnapshot()
	w.WriteHeader(http.StatusCreated)
}

func (a *App) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a.snapshotEvent())
}

func (a *App) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ch := make(chan event, 8)
	a.addClient(ch)
	defer a.removeClient(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeEvent(w, a.snapshotEvent())
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeEvent(w, ev)
			flusher.Flush()
		}
	}
}

func (a *App) onUpdate(update discovery.Update) {
	a.broadcast(event{
		Type:     "device",
		Event:    update.Event,
		Device:   &update.Device,
		Progress: update.Progress,
	})
}

func (a *App) onStatus(progress discovery.Progress) {
	a.broadcast(event{Type: "status", Progress: progress})
}

func (a *App) broadcastSnapshot() {
	a.broadcast(a.snapshotEvent())
}

func (a *App) snapshotEvent() event {
	snapshot := a.manager.GetSnapshot()
	return event{
		Type:     "snapshot",
		Progress: snapshot.Progress,
		Devices:  snapshot.Devices,
	}
}

func (a *App) addClient(ch chan event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clients[ch] = struct{}{}
}

func (a *App) removeClient(ch chan event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.clients, ch)
	close(ch)
}

func (a *App) broadcast(ev event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for ch := range a.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}

func writeEvent(w http.ResponseWriter, ev event) {
	data, _ := json.Marshal(ev)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func (a *App) launchBrowser(addr string) {
	url := "http://" + addr
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if cmd != nil {
		cmd.Start()
	}
}

type event struct {
	Type     string                 `json:"type"`
	Event    string                 `json:"event,omitempty"`
	Device   *discovery.DeviceInfo  `json:"device,omitempty"`
	Devices  []discovery.DeviceInfo `json:"devices,omitempty"`
	Progress discovery.Progress     `json:"progress"`
}
