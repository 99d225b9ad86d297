package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/gridedit/internal/apperr"
	"github.com/starford/gridedit/internal/grid"
	"github.com/starford/gridedit/internal/gridservice"
	"github.com/starford/gridedit/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	svc   *gridservice.Service
	paths pathGuard
}

// NewHandler creates a new Handler. Request paths must start with prefix.
func NewHandler(svc *gridservice.Service, prefix string) *Handler {
	return &Handler{svc: svc, paths: newPathGuard(prefix)}
}

var endpoints = []string{
	"POST /api/insert-cell - Insert a cell after the given weight and renumber the row",
	"POST /api/delete-cell - Delete a cell and close the gap",
	"POST /api/insert-row - Insert a row below the given row",
	"POST /api/delete-row - Delete a row and renumber the tab",
	"POST /api/save-cell - Save cell content to markdown files",
	"POST /api/normalize - Renumber a sibling group from its weights",
	"GET /api/tabs/{path} - Rows and cells of a tab",
	"GET /api/search?q= - Full-text search across cells",
	"GET /api/events - Server-sent grid events",
}

// Status handles GET /.
//
//	@Summary		Server status and endpoint list
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Router			/ [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Status: "running", Message: "Grid Editor API Server", Endpoints: endpoints}
	if st, err := h.svc.Status(r.Context()); err == nil {
		resp.Index = st
	} else {
		slog.Warn("status counts failed", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, resp)
}

// InsertCell handles POST /api/insert-cell.
//
//	@Summary		Insert a cell after the given weight
//	@Tags			grid
//	@Accept			json
//	@Produce		json
//	@Param			body	body		InsertCellRequest	true	"Anchor cell and weight"
//	@Success		200		{object}	OperationResponse
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Router			/insert-cell [post]
func (h *Handler) InsertCell(w http.ResponseWriter, r *http.Request) {
	var req InsertCellRequest
	if !h.decode(w, r, &req) {
		return
	}
	cellPath, ok := h.inside(w, req.CellPath)
	if !ok {
		return
	}
	res, err := h.svc.InsertCell(r.Context(), cellPath, *req.Weight)
	h.respond(w, "insert-cell", req.CellPath, res, err)
}

// DeleteCell handles POST /api/delete-cell.
//
//	@Summary		Delete a cell and close the gap
//	@Tags			grid
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DeleteCellRequest	true	"Cell and its weight"
//	@Success		200		{object}	OperationResponse
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Router			/delete-cell [post]
func (h *Handler) DeleteCell(w http.ResponseWriter, r *http.Request) {
	var req DeleteCellRequest
	if !h.decode(w, r, &req) {
		return
	}
	cellPath, ok := h.inside(w, req.CellPath)
	if !ok {
		return
	}
	res, err := h.svc.DeleteCell(r.Context(), cellPath, *req.Weight)
	h.respond(w, "delete-cell", req.CellPath, res, err)
}

// InsertRow handles POST /api/insert-row.
//
//	@Summary		Insert a row below the given row
//	@Tags			grid
//	@Accept			json
//	@Produce		json
//	@Param			body	body		InsertRowRequest	true	"Anchor row and weight"
//	@Success		200		{object}	OperationResponse
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/insert-row [post]
func (h *Handler) InsertRow(w http.ResponseWriter, r *http.Request) {
	var req InsertRowRequest
	if !h.decode(w, r, &req) {
		return
	}
	rowPath, ok := h.inside(w, req.RowPath)
	if !ok {
		return
	}
	res, err := h.svc.InsertRow(r.Context(), rowPath, req.Weight)
	h.respond(w, "insert-row", req.RowPath, res, err)
}

// DeleteRow handles POST /api/delete-row.
//
//	@Summary		Delete a row and renumber the tab
//	@Tags			grid
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DeleteRowRequest	true	"Row to delete"
//	@Success		200		{object}	OperationResponse
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/delete-row [post]
func (h *Handler) DeleteRow(w http.ResponseWriter, r *http.Request) {
	var req DeleteRowRequest
	if !h.decode(w, r, &req) {
		return
	}
	rowPath, ok := h.inside(w, req.RowPath)
	if !ok {
		return
	}
	res, err := h.svc.DeleteRow(r.Context(), rowPath)
	h.respond(w, "delete-row", req.RowPath, res, err)
}

// SaveCell handles POST /api/save-cell.
//
//	@Summary		Replace the body of a cell
//	@Tags			grid
//	@Accept			json
//	@Produce		json
//	@Param			If-Match	header	string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body	SaveCellRequest		true	"Cell file and new content"
//	@Success		200		{object}	OperationResponse
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Router			/save-cell [post]
func (h *Handler) SaveCell(w http.ResponseWriter, r *http.Request) {
	var req SaveCellRequest
	if !h.decode(w, r, &req) {
		return
	}
	filePath, ok := h.inside(w, req.FilePath)
	if !ok {
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	res, err := h.svc.SaveCell(r.Context(), filePath, req.Content, ifMatch)
	if err == nil {
		w.Header().Set("ETag", `"`+res.Checksum+`"`)
	}
	h.respond(w, "save-cell", req.FilePath, res, err)
}

// Normalize handles POST /api/normalize.
//
//	@Summary		Renumber a sibling group from its stored weights
//	@Tags			grid
//	@Accept			json
//	@Produce		json
//	@Param			body	body		NormalizeRequest	true	"Group directory and kind"
//	@Success		200		{object}	OperationResponse
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Router			/normalize [post]
func (h *Handler) Normalize(w http.ResponseWriter, r *http.Request) {
	var req NormalizeRequest
	if !h.decode(w, r, &req) {
		return
	}
	dir, ok := h.inside(w, req.Path)
	if !ok {
		return
	}
	res, err := h.svc.Normalize(r.Context(), dir, models.Kind(req.Kind))
	h.respond(w, "normalize", req.Path, res, err)
}

// Tab handles GET /api/tabs/*.
//
//	@Summary		Rows and cells of a tab in weight order
//	@Tags			grid
//	@Produce		json
//	@Param			path	path		string	true	"Tab path under the content prefix"
//	@Success		200		{object}	models.Tab
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/tabs/{path} [get]
func (h *Handler) Tab(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	tabPath, ok := h.inside(w, h.paths.outside(raw))
	if !ok {
		return
	}
	tab, err := h.svc.Tab(r.Context(), tabPath)
	if err != nil {
		h.fail(w, "tab", raw, err)
		return
	}
	writeJSON(w, http.StatusOK, h.externalTab(tab))
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across cells
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	for i := range results {
		results[i].Path = h.paths.outside(results[i].Path)
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// decode parses and validates a request body, writing 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req interface{ Validate() error }) bool {
	if err := decodeJSON(w, r, req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

// inside checks p against the content prefix, writing 403 on failure.
func (h *Handler) inside(w http.ResponseWriter, p string) (string, bool) {
	rel, err := h.paths.inside(p)
	if err != nil {
		writeJSON(w, http.StatusForbidden, errorBody("invalid path"))
		return "", false
	}
	return rel, true
}

func (h *Handler) respond(w http.ResponseWriter, op, target string, res *models.Result, err error) {
	if err != nil {
		h.fail(w, op, target, err)
		return
	}
	resp := OperationResponse{
		Success:  true,
		DirName:  res.DirName,
		Path:     h.paths.outside(res.Path),
		Position: res.Position,
		Checksum: res.Checksum,
		Shifted:  h.externalShifts(res.Shifted),
	}
	if op == "save-cell" {
		resp.Message = "File saved successfully"
	}
	writeJSON(w, http.StatusOK, resp)
}

// fail maps an operation error onto a status code.
func (h *Handler) fail(w http.ResponseWriter, op, target string, err error) {
	var pe *grid.PartialError
	switch {
	case errors.As(err, &pe):
		writeJSON(w, http.StatusInternalServerError, errResponse{
			Error: "partial failure: " + pe.Err.Error(),
			Partial: &partialState{
				Op:        pe.Op,
				Dir:       h.paths.outside(pe.Dir),
				Committed: h.externalShifts(pe.Committed),
				Pending:   h.externalPending(pe.Pending),
			},
		})
	case errors.Is(err, apperr.ErrInvalidPath):
		writeJSON(w, http.StatusForbidden, errorBody("invalid path"))
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrMalformed):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("invalid markdown file format"))
	default:
		slog.Error(op+" failed", slog.String("path", target), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func (h *Handler) externalShifts(shifts []models.Shift) []models.Shift {
	out := make([]models.Shift, len(shifts))
	for i, s := range shifts {
		out[i] = models.Shift{From: h.paths.outside(s.From), To: h.paths.outside(s.To)}
	}
	return out
}

func (h *Handler) externalPending(pending []grid.PendingMove) []grid.PendingMove {
	out := make([]grid.PendingMove, len(pending))
	for i, p := range pending {
		out[i] = grid.PendingMove{
			From:   h.paths.outside(p.From),
			Staged: h.paths.outside(p.Staged),
			To:     h.paths.outside(p.To),
		}
	}
	return out
}

func (h *Handler) externalTab(tab *models.Tab) *models.Tab {
	tab.Path = h.paths.outside(tab.Path)
	for i := range tab.Rows {
		row := &tab.Rows[i]
		row.Path = h.paths.outside(row.Path)
		for j := range row.Cells {
			row.Cells[j].Path = h.paths.outside(row.Cells[j].Path)
		}
	}
	return tab
}
