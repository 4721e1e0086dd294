package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/ingest"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/media"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/memory"
)

// Room for the non-file multipart fields and part headers.
const formOverhead = 1 << 20

const (
	kindNotFound   = "not_found"
	kindBadRequest = "bad_request"
	kindInternal   = "internal"
)

// errorResponse is the consistent error format.
type errorResponse struct {
	Status  string `json:"status"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (g *Gateway) writeError(w http.ResponseWriter, code int, kind, msg string) {
	g.writeJSON(w, code, errorResponse{Status: "error", Kind: kind, Message: msg})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

func (g *Gateway) requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	g.writeError(w, http.StatusMethodNotAllowed, kindBadRequest, "method not allowed")
	return false
}

// handleHealth implements GET /health
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !g.requireMethod(w, r, http.MethodGet) {
		return
	}
	uptime := time.Since(g.startedAt).Round(time.Second).String()
	if uptime == "0s" {
		uptime = "<1s"
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version,
		"uptime":  uptime,
	})
}

// handleUpload implements POST /api/upload (multipart: file, title, person,
// date, media_type).
func (g *Gateway) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !g.requireMethod(w, r, http.MethodPost) {
		return
	}

	limit := g.deps.MaxUploadSize + formOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			g.writeError(w, http.StatusRequestEntityTooLarge, ingest.KindValidation,
				fmt.Sprintf("upload exceeds maximum of %d bytes", g.deps.MaxUploadSize))
			return
		}
		g.writeError(w, http.StatusBadRequest, ingest.KindValidation, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		g.writeError(w, http.StatusBadRequest, ingest.KindValidation, "no file provided (use 'file' field)")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		g.writeError(w, http.StatusBadRequest, ingest.KindValidation, fmt.Sprintf("failed to read file: %v", err))
		return
	}

	res, err := g.deps.Ingester.Ingest(r.Context(), ingest.Request{
		Data:      data,
		Filename:  header.Filename,
		MimeType:  header.Header.Get("Content-Type"),
		MediaType: media.MediaType(strings.ToLower(strings.TrimSpace(r.FormValue("media_type")))),
		Title:     r.FormValue("title"),
		Person:    r.FormValue("person"),
		DateHint:  r.FormValue("date"),
	})
	if err != nil {
		kind := ingest.KindOf(err)
		code := http.StatusInternalServerError
		switch kind {
		case ingest.KindValidation:
			code = http.StatusBadRequest
		case "":
			kind = kindInternal
		}
		g.writeError(w, code, kind, err.Error())
		return
	}

	g.writeJSON(w, http.StatusCreated, map[string]any{
		"status":   "ok",
		"memory":   res.Record,
		"warnings": res.Degraded,
	})
}

// handleSearch implements GET /api/search?q=
func (g *Gateway) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !g.requireMethod(w, r, http.MethodGet) {
		return
	}
	results, err := g.deps.Searcher.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		g.logger.Error("search failed", "error", err)
		g.writeError(w, http.StatusInternalServerError, kindInternal, "search failed")
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"results": results,
	})
}

// handleMemoryByID implements GET /api/memory/{id}
func (g *Gateway) handleMemoryByID(w http.ResponseWriter, r *http.Request) {
	if !g.requireMethod(w, r, http.MethodGet) {
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/api/memory/")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		g.writeError(w, http.StatusBadRequest, kindBadRequest, "invalid memory id")
		return
	}

	rec, err := g.deps.Searcher.Get(r.Context(), id)
	if errors.Is(err, memory.ErrNotFound) {
		g.writeError(w, http.StatusNotFound, kindNotFound, "memory not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to load memory", "id", id, "error", err)
		g.writeError(w, http.StatusInternalServerError, kindInternal, "failed to load memory")
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"memory": rec,
	})
}

// handleListMemories implements GET /api/memories?limit=&offset=
func (g *Gateway) handleListMemories(w http.ResponseWriter, r *http.Request) {
	if !g.requireMethod(w, r, http.MethodGet) {
		return
	}
	limit, err := intParam(r, "limit", memory.DefaultListLimit)
	if err != nil {
		g.writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		g.writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}

	records, err := g.deps.Records.List(r.Context(), limit, offset)
	if err != nil {
		g.logger.Error("failed to list memories", "error", err)
		g.writeError(w, http.StatusInternalServerError, kindInternal, "failed to list memories")
		return
	}
	if records == nil {
		records = []*memory.Record{}
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"memories": records,
		"count":    len(records),
	})
}

// handleStats implements GET /api/stats
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if !g.requireMethod(w, r, http.MethodGet) {
		return
	}
	stats, err := g.deps.Records.Stats(r.Context())
	if err != nil {
		g.logger.Error("failed to compute stats", "error", err)
		g.writeError(w, http.StatusInternalServerError, kindInternal, "failed to compute stats")
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"stats":  stats,
	})
}

// handleMedia implements GET {media base URL}/{name}
func (g *Gateway) handleMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		g.requireMethod(w, r, http.MethodGet)
		return
	}
	rc, meta, err := g.deps.Blobs.Open(r.Context(), r.URL.Path)
	if errors.Is(err, media.ErrNotFound) {
		g.writeError(w, http.StatusNotFound, kindNotFound, "media not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to open media", "path", r.URL.Path, "error", err)
		g.writeError(w, http.StatusInternalServerError, kindInternal, "failed to open media")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", meta.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename=%q`, meta.Filename))
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, meta.Filename, meta.CreatedAt, rs)
		return
	}
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	if _, err := io.Copy(w, rc); err != nil {
		g.logger.Warn("failed to write media response", "error", err)
	}
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}
