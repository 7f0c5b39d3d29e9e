package http

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/VizForge/internal/domain/task"
)

// Runner executes one visualization task to completion. Satisfied by
// service.Coordinator.
type Runner interface {
	Run(ctx context.Context, tk task.Task) task.Result
}

// ResultLoader retrieves a previously persisted result record.
// Satisfied by fsstore.Store.
type ResultLoader interface {
	Load(ctx context.Context, taskID string) (task.Result, error)
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	Runner  Runner
	Results ResultLoader // optional
}

// visualizeResponse is the synchronous API shape: the terminal result
// record plus the final script and chart spec inlined for convenience.
type visualizeResponse struct {
	task.Result
	SQL   string          `json:"sql,omitempty"`
	Code  string          `json:"code,omitempty"`
	Chart json.RawMessage `json:"chart,omitempty"`
}

// Visualize runs one task synchronously and returns its full result.
func (h *Handlers) Visualize(w http.ResponseWriter, r *http.Request) {
	tk, ok := readJSON[task.Task](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if strings.TrimSpace(tk.Request) == "" {
		writeError(w, http.StatusBadRequest, "request is required")
		return
	}
	if len(tk.Request) > maxRequestLength {
		writeError(w, http.StatusBadRequest, "request too long")
		return
	}

	res := h.Runner.Run(r.Context(), tk)

	resp := visualizeResponse{Result: res}
	if n := len(res.CodeHistory); n > 0 {
		resp.Code = res.CodeHistory[n-1].Source
	}
	for _, sr := range res.SQLHistory {
		if sr.Success {
			resp.SQL = sr.Query
		}
	}
	if res.FinalChartPath != "" {
		if spec, err := os.ReadFile(res.FinalChartPath); err == nil {
			resp.Chart = spec
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetResult returns the persisted result record for a task id.
func (h *Handlers) GetResult(w http.ResponseWriter, r *http.Request) {
	if h.Results == nil {
		writeError(w, http.StatusNotFound, "result storage not configured")
		return
	}
	id := chi.URLParam(r, "id")
	res, err := h.Results.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "result not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
