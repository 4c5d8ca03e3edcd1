// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pmuetschard/gapid/internal/actions"
	"github.com/pmuetschard/gapid/internal/frontend"
	"github.com/pmuetschard/gapid/internal/state"
	"github.com/pmuetschard/gapid/internal/timeline"
)

const (
	maxActionBody = 4 << 20
	settleTimeout = 30 * time.Second
)

// Dispatcher applies actions to the viewer state.
type Dispatcher interface {
	Submit(ctx context.Context, acts ...actions.Action) error
	Settle(ctx context.Context) error
	Snapshot() *state.State
}

// EngineStatus reports the progress of engine queries.
type EngineStatus interface {
	Counts() (done, scheduled int64)
	Status() string
}

// ViewerHandler exposes the viewer core: actions go in, published data
// comes out of the presentation store.
type ViewerHandler struct {
	session Dispatcher
	store   *frontend.Store
	engine  EngineStatus
}

// NewViewerHandler creates a viewer handler. engine may be nil.
func NewViewerHandler(session Dispatcher, store *frontend.Store, engine EngineStatus) *ViewerHandler {
	return &ViewerHandler{session: session, store: store, engine: engine}
}

// Dispatch decodes one action or an array of actions and applies them in
// order. With settle=true it also waits for the engine work they started.
func (h *ViewerHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxActionBody))
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, err.Error())
		return
	}
	envs, err := decodeEnvelopes(body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, err.Error())
		return
	}

	acts := make([]actions.Action, len(envs))
	for i, env := range envs {
		a, err := actions.Decode(env)
		if err != nil {
			WriteErrorWithDetails(w, http.StatusBadRequest, ErrBadRequest, err.Error(),
				map[string]interface{}{"index": i, "type": env.Type})
			return
		}
		acts[i] = a
	}

	if err := h.session.Submit(r.Context(), acts...); err != nil {
		WriteError(w, http.StatusConflict, ErrActionFailed, err.Error())
		return
	}
	if settle, _ := strconv.ParseBool(r.URL.Query().Get("settle")); settle {
		ctx, cancel := context.WithTimeout(r.Context(), settleTimeout)
		defer cancel()
		if err := h.session.Settle(ctx); err != nil {
			WriteError(w, http.StatusServiceUnavailable, ErrUnavailable, err.Error())
			return
		}
	}
	WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

func decodeEnvelopes(body []byte) ([]actions.Envelope, error) {
	var many []actions.Envelope
	if err := json.Unmarshal(body, &many); err == nil {
		return many, nil
	}
	var one actions.Envelope
	if err := json.Unmarshal(body, &one); err != nil {
		return nil, err
	}
	if one.Type == "" {
		return nil, errors.New("action type is required")
	}
	return []actions.Envelope{one}, nil
}

// State returns the state as of the last settled dispatch loop.
func (h *ViewerHandler) State(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

// TrackData returns the latest data published for a track.
func (h *ViewerHandler) TrackData(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	data, ok := h.store.TrackData(id)
	if !ok {
		WriteError(w, http.StatusNotFound, ErrNotFound, "no data for track "+id)
		return
	}
	WriteJSON(w, http.StatusOK, frontend.TrackData{ID: id, Data: data})
}

// dataCheck answers whether a track must request data for a visible window.
type dataCheck struct {
	NeedsData  bool    `json:"needs_data"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Resolution float64 `json:"resolution"`
}

// NeedsData checks the cached data of a track against the visible window
// given by start, end (seconds) and px (width in pixels) and returns the
// window to request when it falls short.
func (h *ViewerHandler) NeedsData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err1 := strconv.ParseFloat(q.Get("start"), 64)
	end, err2 := strconv.ParseFloat(q.Get("end"), 64)
	px, err3 := strconv.ParseFloat(q.Get("px"), 64)
	if err := errors.Join(err1, err2, err3); err != nil || px <= 0 || end <= start {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "start, end and px must describe a visible window")
		return
	}

	visible := timeline.TimeSpan{Start: start, End: end}
	secPerPx := visible.Duration() / px
	out := dataCheck{NeedsData: h.store.NeedsData(mux.Vars(r)["id"], visible, secPerPx)}
	if out.NeedsData {
		out.Start, out.End, out.Resolution = frontend.RequestWindow(visible, secPerPx)
	}
	WriteJSON(w, http.StatusOK, out)
}

// Overview returns the overview load per CPU or per process.
func (h *ViewerHandler) Overview(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.store.Overview())
}

// Threads returns the thread table.
func (h *ViewerHandler) Threads(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.store.Threads())
}

// QueryResult returns the result of an ad-hoc query.
func (h *ViewerHandler) QueryResult(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	res, ok := h.store.QueryResult(id)
	if !ok {
		WriteError(w, http.StatusNotFound, ErrNotFound, "no result for query "+id)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

type engineStatus struct {
	Done      int64  `json:"done"`
	Scheduled int64  `json:"scheduled"`
	Status    string `json:"status"`
}

// Engine returns the query progress of the engine.
func (h *ViewerHandler) Engine(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		WriteError(w, http.StatusNotFound, ErrNotFound, "no engine")
		return
	}
	done, scheduled := h.engine.Counts()
	WriteJSON(w, http.StatusOK, engineStatus{Done: done, Scheduled: scheduled, Status: h.engine.Status()})
}
