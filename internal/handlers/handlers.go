package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"mediagrab/internal/models"
	"mediagrab/internal/session"
	"mediagrab/templates"
)

const maxBodyBytes = 64 * 1024

// Session is the orchestrator surface the bridge drives.
type Session interface {
	OnInput(text string)
	ForceScan(url string) error
	SwitchCategory(category models.Category) error
	Download(formatID string) error
	Cancel() error
	SetDestination(path string)
	ChooseDestination(ctx context.Context, chooser session.PathChooser) (string, error)
	Snapshot() session.Snapshot
}

type App struct {
	logger *slog.Logger

	router  *chi.Mux
	session Session
	chooser session.PathChooser

	mu      sync.RWMutex
	subs    map[*websocket.Conn]struct{}
	writeMu sync.Mutex

	upgrader websocket.Upgrader
}

type wsMessage struct {
	Type     string            `json:"type"`
	Event    *session.Event    `json:"event,omitempty"`
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
}

func NewApp(logger *slog.Logger, sess Session, chooser session.PathChooser) *App {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{
		logger:  logger,
		router:  chi.NewRouter(),
		session: sess,
		chooser: chooser,
		subs:    make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	app.registerRoutes()
	return app
}

func (a *App) Router() http.Handler {
	return a.router
}

func (a *App) registerRoutes() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.RealIP)
	a.router.Use(middleware.Recoverer)
	a.router.Use(a.corsMiddleware)

	a.router.Get("/", a.index)
	a.router.Get("/healthz", a.health)
	a.router.Get("/ws", a.eventsWS)

	a.router.Route("/api", func(r chi.Router) {
		r.Get("/state", a.state)
		r.Post("/input", a.input)
		r.Post("/scan", a.scan)
		r.Post("/tab", a.tab)
		r.Post("/download", a.download)
		r.Post("/cancel", a.cancel)
		r.Post("/path", a.setPath)
		r.Post("/path/choose", a.choosePath)
	})
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "timestamp": time.Now().Format(time.RFC3339)})
}

func (a *App) index(w http.ResponseWriter, r *http.Request) {
	a.render(w, r, templates.IndexPage(a.session.Snapshot()))
}

func (a *App) state(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, http.StatusOK, a.session.Snapshot())
}

func (a *App) input(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if !a.decode(w, r, &body) {
		return
	}
	a.session.OnInput(body.Text)
	a.respondJSON(w, http.StatusAccepted, a.session.Snapshot())
}

func (a *App) scan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if !a.decode(w, r, &body) {
		return
	}
	if err := a.session.ForceScan(body.URL); err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, http.StatusAccepted, a.session.Snapshot())
}

func (a *App) tab(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Category string `json:"category"`
	}
	if !a.decode(w, r, &body) {
		return
	}
	category, err := models.ParseCategory(body.Category)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.session.SwitchCategory(category); err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, a.session.Snapshot())
}

func (a *App) download(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FormatID string `json:"format_id"`
	}
	if !a.decode(w, r, &body) {
		return
	}
	if body.FormatID == "" {
		http.Error(w, "format_id is required", http.StatusBadRequest)
		return
	}
	if err := a.session.Download(body.FormatID); err != nil {
		a.respondError(w, err)
		return
	}
	a.logger.Info("download started", "format_id", body.FormatID, "request_id", middleware.GetReqID(r.Context()))
	a.respondJSON(w, http.StatusAccepted, a.session.Snapshot())
}

func (a *App) cancel(w http.ResponseWriter, r *http.Request) {
	if err := a.session.Cancel(); err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, a.session.Snapshot())
}

func (a *App) setPath(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if !a.decode(w, r, &body) {
		return
	}
	a.session.SetDestination(body.Path)
	a.respondJSON(w, http.StatusOK, map[string]string{"path": a.session.Snapshot().Destination})
}

func (a *App) choosePath(w http.ResponseWriter, r *http.Request) {
	if a.chooser == nil {
		http.Error(w, "path chooser not configured", http.StatusNotImplemented)
		return
	}
	path, err := a.session.ChooseDestination(r.Context(), a.chooser)
	if err != nil {
		a.logger.Warn("path chooser failed", "error", err)
		http.Error(w, "path chooser failed", http.StatusBadGateway)
		return
	}
	a.respondJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (a *App) eventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	a.mu.Lock()
	a.subs[conn] = struct{}{}
	a.mu.Unlock()

	snap := a.session.Snapshot()
	a.writeMu.Lock()
	_ = conn.WriteJSON(wsMessage{Type: "snapshot", Snapshot: &snap})
	a.writeMu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	a.mu.Lock()
	delete(a.subs, conn)
	a.mu.Unlock()
	_ = conn.Close()
}

// Broadcast pushes a session event to every connected presentation client.
func (a *App) Broadcast(ev session.Event) {
	a.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(a.subs))
	for c := range a.subs {
		conns = append(conns, c)
	}
	a.mu.RUnlock()

	msg := wsMessage{Type: "event", Event: &ev}
	for _, c := range conns {
		a.writeMu.Lock()
		err := c.WriteJSON(msg)
		a.writeMu.Unlock()
		if err != nil {
			a.mu.Lock()
			delete(a.subs, c)
			a.mu.Unlock()
			_ = c.Close()
		}
	}
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

func (a *App) respondError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrInvalidURL):
		code = http.StatusBadRequest
	case errors.Is(err, session.ErrNoMedia), errors.Is(err, session.ErrNoActiveJob):
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		a.logger.Error("request failed", "error", err)
	}
	a.respondJSON(w, code, map[string]string{"error": err.Error()})
}

func (a *App) render(w http.ResponseWriter, r *http.Request, component templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := component.Render(r.Context(), w); err != nil {
		a.logger.Error("failed to render template", "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
	}
}

func (a *App) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Error("failed to encode json", "error", err)
	}
}

func (a *App) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
