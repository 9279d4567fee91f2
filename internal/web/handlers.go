package web

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/JonMunkholm/csvedit/internal/csvio"
	"github.com/JonMunkholm/csvedit/internal/editor"
	"github.com/JonMunkholm/csvedit/internal/logging"
	"github.com/JonMunkholm/csvedit/internal/session"
	"github.com/JonMunkholm/csvedit/internal/web/templates"
)

// multipartOverhead is allowed on top of the file cap for boundaries and
// part headers.
const multipartOverhead = 64 * 1024

// TableResponse is the JSON form of a session's table.
type TableResponse struct {
	Filename string     `json:"filename"`
	Source   string     `json:"source"`
	Loaded   bool       `json:"loaded"`
	Headers  []string   `json:"headers"`
	Rows     [][]string `json:"rows"`
}

// StatusResponse reports server load.
type StatusResponse struct {
	Intake   editor.IntakeStatus `json:"intake"`
	Sessions int                 `json:"sessions"`
}

type cellRequest struct {
	Row   *int   `json:"row"`
	Col   *int   `json:"col"`
	Value string `json:"value"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleIndex renders the full editor page for the caller's session.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	view := s.service.Current(sessionFrom(r.Context()))
	s.render(w, r, http.StatusOK, templates.Page(templates.PageParams{Editor: editorParams(view)}))
}

// handleLoad reads the first file of a multipart upload into the session.
// Extra files in the same request are ignored.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	maxSize := s.service.MaxFileSize()
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			err = fmt.Errorf("load: %w (limit %d bytes)", editor.ErrFileTooLarge, maxSize)
		} else {
			err = fmt.Errorf("load: %w: %v", editor.ErrNoFile, err)
		}
		respondError(w, r, err, statusFor(err))
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			logging.FromContext(r.Context()).Warn("remove multipart temp files", "error", err)
		}
	}()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		respondError(w, r, editor.ErrNoFile, http.StatusBadRequest)
		return
	}
	if len(files) > 1 {
		logging.FromContext(r.Context()).Debug("ignoring extra files", "count", len(files)-1)
	}

	header := files[0]
	file, err := header.Open()
	if err != nil {
		respondError(w, r, fmt.Errorf("load %s: open: %w", header.Filename, err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	view, err := s.service.LoadFile(r.Context(), sess, header.Filename, file)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	s.respondView(w, r, view)
}

// handleSetCell writes one cell. It accepts a form post or a JSON body.
func (s *Server) handleSetCell(w http.ResponseWriter, r *http.Request) {
	req, err := parseCellRequest(w, r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	view, err := s.service.SetCell(r.Context(), sessionFrom(r.Context()), *req.Row, *req.Col, req.Value)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	// The browser already shows the typed value.
	if isHTMX(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.respondView(w, r, view)
}

func (s *Server) handleAddRow(w http.ResponseWriter, r *http.Request) {
	view := s.service.AddRow(r.Context(), sessionFrom(r.Context()))
	s.respondView(w, r, view)
}

func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	row, err := strconv.Atoi(chi.URLParam(r, "row"))
	if err != nil {
		respondError(w, r, fmt.Errorf("delete row: %w: %v", editor.ErrInvalidPosition, err), http.StatusBadRequest)
		return
	}

	view, err := s.service.DeleteRow(r.Context(), sessionFrom(r.Context()), row)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	s.respondView(w, r, view)
}

// handleExport streams the edited table as a CSV attachment.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	file, err := s.service.Export(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Filename}))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Content)))
	if _, err := w.Write(file.Content); err != nil {
		logging.FromContext(r.Context()).Warn("write export", "error", err)
	}
}

func (s *Server) handleTableJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tableResponse(s.service.Current(sessionFrom(r.Context()))))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Intake:   s.service.IntakeStatus(),
		Sessions: s.service.Sessions().Len(),
	})
}

// respondView answers a successful mutation: the editor partial for the
// script, JSON for API clients, and a redirect back to the page otherwise.
func (s *Server) respondView(w http.ResponseWriter, r *http.Request, view session.View) {
	switch {
	case isHTMX(r):
		s.render(w, r, http.StatusOK, templates.Editor(editorParams(view)))
	case wantsJSON(r):
		writeJSON(w, http.StatusOK, tableResponse(view))
	default:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render", "path", r.URL.Path, "error", err)
	}
}

func parseCellRequest(w http.ResponseWriter, r *http.Request) (cellRequest, error) {
	var req cellRequest

	if wantsJSONBody(r) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, fmt.Errorf("set cell: %w: %v", editor.ErrInvalidPosition, err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return req, fmt.Errorf("set cell: %w: %v", editor.ErrInvalidPosition, err)
		}
		row, rowErr := strconv.Atoi(r.PostForm.Get("row"))
		col, colErr := strconv.Atoi(r.PostForm.Get("col"))
		if err := errors.Join(rowErr, colErr); err != nil {
			return req, fmt.Errorf("set cell: %w: %v", editor.ErrInvalidPosition, err)
		}
		req.Row, req.Col = &row, &col
		req.Value = r.PostForm.Get("value")
	}

	if req.Row == nil || req.Col == nil {
		return req, fmt.Errorf("set cell: %w: row and col are required", editor.ErrInvalidPosition)
	}
	return req, nil
}

func wantsJSONBody(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func editorParams(view session.View) templates.EditorParams {
	return templates.EditorParams{
		Loaded:         view.Loaded,
		Source:         displaySource(view.Source),
		ExportFilename: csvio.ExportFilename(view.Source),
		Table:          view.Table,
	}
}

func tableResponse(view session.View) TableResponse {
	return TableResponse{
		Filename: csvio.ExportFilename(view.Source),
		Source:   view.Source,
		Loaded:   view.Loaded,
		Headers:  view.Table.Headers,
		Rows:     view.Table.Rows,
	}
}

func displaySource(source string) string {
	if source == "" {
		return csvio.DefaultSourceName
	}
	return source
}
