package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/NewsPager/internal/app"
	"github.com/NewsPager/internal/domain"
	"github.com/gorilla/mux"
)

type createSessionRequest struct {
	Query string `json:"query"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	Query     string    `json:"query,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type queryRequest struct {
	Text   string `json:"text"`
	Submit bool   `json:"submit,omitempty"`
}

type widgetRequest struct {
	State string `json:"state"`
}

type loadStateDTO struct {
	Status          string `json:"status"`
	Error           string `json:"error,omitempty"`
	EndOfPagination bool   `json:"end_of_pagination"`
}

type screenDTO struct {
	SearchText string `json:"search_text"`
	Widget     string `json:"widget"`
	Refreshing bool   `json:"refreshing"`
}

type stateResponse struct {
	SessionID  string                  `json:"session_id"`
	Query      string                  `json:"query"`
	Phase      string                  `json:"phase"`
	Generation uint64                  `json:"generation"`
	LoadStates map[string]loadStateDTO `json:"load_states"`
	Screen     screenDTO               `json:"screen"`
	ItemCount  int                     `json:"item_count"`
	Articles   []domain.Article        `json:"articles"`
}

type itemResponse struct {
	Index   int            `json:"index"`
	Article domain.Article `json:"article"`
}

type retryResponse struct {
	Retried bool `json:"retried"`
}

type healthResponse struct {
	Status       string            `json:"status"`
	Connected    bool              `json:"connected"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Connected: h.connected()}
	status := http.StatusOK
	for name, err := range h.health(ctx) {
		if resp.Dependencies == nil {
			resp.Dependencies = make(map[string]string)
		}
		if err != nil {
			resp.Dependencies[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Dependencies[name] = "ok"
	}
	writeJSON(w, status, resp)
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s, err := h.sessions.Create(req.Query)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		ID:        s.ID,
		Query:     s.Search().Active,
		CreatedAt: s.CreatedAt,
	})
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(mux.Vars(r)["id"]); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) typeQuery(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req queryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var err error
	if req.Submit {
		err = s.Submit(req.Text)
	} else {
		err = s.Type(req.Text)
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Refresh(); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	retried, err := s.Retry()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, retryResponse{Retried: retried})
}

func (h *Handler) setWidget(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req widgetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var widget app.SearchWidget
	switch req.State {
	case "opened":
		widget = app.WidgetOpened
	case "closed":
		widget = app.WidgetClosed
	default:
		writeError(w, http.StatusBadRequest, errors.New(`state must be "opened" or "closed"`))
		return
	}
	writeJSON(w, http.StatusOK, toScreenDTO(s.SetWidget(widget)))
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toStateResponse(s, s.Snapshot()))
}

// events streams every snapshot of the session as server-sent events until
// the client goes away or the session is closed.
func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		slog.Warn("Event stream not supported", "session", s.ID, "error", err)
		return
	}

	for snap := range s.Subscribe(r.Context()) {
		data, err := json.Marshal(toStateResponse(s, snap))
		if err != nil {
			slog.Error("Failed to encode snapshot", "session", s.ID, "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (h *Handler) item(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	article, found := s.Get(index)
	if !found {
		writeError(w, http.StatusNotFound, errors.New("no item at index "+strconv.Itoa(index)))
		return
	}
	writeJSON(w, http.StatusOK, itemResponse{Index: index, Article: article})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*app.Session, bool) {
	s, err := h.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrClosed):
		writeError(w, http.StatusGone, err)
	default:
		slog.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

// decodeBody accepts an empty body as the zero value.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func toLoadStateDTO(s domain.LoadState) loadStateDTO {
	dto := loadStateDTO{Status: s.Status.String(), EndOfPagination: s.EndOfPagination}
	if s.Err != nil {
		dto.Error = s.Err.Error()
	}
	return dto
}

func toStateResponse(s *app.Session, snap app.Snapshot) stateResponse {
	return stateResponse{
		SessionID:  s.ID,
		Query:      snap.Query,
		Phase:      s.Search().Phase.String(),
		Generation: snap.Generation,
		LoadStates: map[string]loadStateDTO{
			domain.LoadRefresh.String(): toLoadStateDTO(snap.LoadStates.Refresh),
			domain.LoadPrepend.String(): toLoadStateDTO(snap.LoadStates.Prepend),
			domain.LoadAppend.String():  toLoadStateDTO(snap.LoadStates.Append),
		},
		Screen:    toScreenDTO(s.Screen()),
		ItemCount: snap.ItemCount,
		Articles:  snap.Items(),
	}
}

func toScreenDTO(s app.ScreenState) screenDTO {
	return screenDTO{SearchText: s.SearchText, Widget: s.Widget.String(), Refreshing: s.Refreshing}
}
