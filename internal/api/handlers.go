package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	cperrors "github.com/clearpath-ai/clearpath-rag/internal/errors"
)

type queryRequest struct {
	Query  string `json:"query"`
	Stream bool   `json:"stream"`
}

type errorResponse struct {
	Error      string `json:"error"`
	RequestID  string `json:"request_id,omitempty"`
	StatusCode int    `json:"status_code"`
}

type ingestResponse struct {
	Filename         string  `json:"filename"`
	ChunksAdded      int     `json:"chunks_added"`
	TotalPages       int     `json:"total_pages"`
	ProcessingTimeMS float64 `json:"processing_time_ms"`
}

// handleQuery serves POST /api/query, as plain JSON or as an SSE stream
// when the request asks for one.
func (s *Server) handleQuery(c *gin.Context) {
	requestID := uuid.NewString()
	c.Header("X-Request-Id", requestID)

	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error: "Invalid request body.", RequestID: requestID, StatusCode: http.StatusBadRequest,
		})
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error: "Query cannot be empty or whitespace only.", RequestID: requestID, StatusCode: http.StatusBadRequest,
		})
		return
	}

	if req.Stream {
		s.streamQuery(c, req.Query, requestID)
		return
	}

	result, err := s.engine.Query(c.Request.Context(), req.Query, requestID)
	if err != nil {
		status, msg := statusForError(err)
		c.JSON(status, errorResponse{Error: msg, RequestID: requestID, StatusCode: status})
		return
	}
	c.JSON(http.StatusOK, result)
}

// streamQuery relays pipeline events as SSE.
func (s *Server) streamQuery(c *gin.Context, query, requestID string) {
	events, err := s.engine.QueryStream(c.Request.Context(), query, requestID)
	if err != nil {
		status, msg := statusForError(err)
		c.JSON(status, errorResponse{Error: msg, RequestID: requestID, StatusCode: status})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		switch ev.Event {
		case "token":
			writeSSE(w, "token", gin.H{"token": ev.Token})
		case "done":
			writeSSE(w, "done", gin.H{
				"request_id": ev.Result.RequestID,
				"sources":    ev.Result.Sources,
				"debug":      ev.Result.Debug,
			})
		case "error":
			writeSSE(w, "error", gin.H{
				"error":       ev.Err.Error(),
				"request_id":  requestID,
				"status_code": ev.StatusCode,
			})
		}
		return true
	})
}

func writeSSE(w io.Writer, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}

var (
	safeFilenameRE = regexp.MustCompile(`^[\w\-]+\.pdf$`)
	unsafeCharRE   = regexp.MustCompile(`[^\w\-.]`)
)

// sanitizeFilename reduces an uploaded filename to alphanumerics,
// hyphens and underscores, keeping the .pdf extension.
func sanitizeFilename(filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("empty filename")
	}
	base := filepath.Base(filename)
	base = strings.ReplaceAll(base, " ", "_")
	base = unsafeCharRE.ReplaceAllString(base, "")
	if !strings.HasSuffix(strings.ToLower(base), ".pdf") {
		return "", fmt.Errorf("file %q does not have a .pdf extension after sanitization", filename)
	}
	base = base[:len(base)-4] + ".pdf"
	if !safeFilenameRE.MatchString(base) {
		return "", fmt.Errorf("filename %q contains disallowed characters", base)
	}
	return base, nil
}

// handleIngest serves POST /api/ingest: multipart PDF upload, validated
// then run through the ingestion pipeline.
func (s *Server) handleIngest(c *gin.Context) {
	start := time.Now()

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "No file provided.", StatusCode: http.StatusBadRequest})
		return
	}

	safeName, err := sanitizeFilename(fileHeader.Filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), StatusCode: http.StatusBadRequest})
		return
	}

	if ct := fileHeader.Header.Get("Content-Type"); ct != "" &&
		ct != "application/pdf" && ct != "application/octet-stream" {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:      fmt.Sprintf("Unsupported content type %q, expected application/pdf.", ct),
			StatusCode: http.StatusBadRequest,
		})
		return
	}

	if fileHeader.Size > s.cfg.Limits.MaxFileSizeBytes {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error:      fmt.Sprintf("File size %.1f MB exceeds maximum allowed 50 MB.", float64(fileHeader.Size)/(1024*1024)),
			StatusCode: http.StatusBadRequest,
		})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Could not read uploaded file.", StatusCode: http.StatusInternalServerError})
		return
	}
	defer func() { _ = f.Close() }()

	content, err := io.ReadAll(io.LimitReader(f, s.cfg.Limits.MaxFileSizeBytes+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Could not read uploaded file.", StatusCode: http.StatusInternalServerError})
		return
	}
	if len(content) == 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Uploaded file is empty.", StatusCode: http.StatusBadRequest})
		return
	}
	if int64(len(content)) > s.cfg.Limits.MaxFileSizeBytes {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "File exceeds maximum allowed 50 MB.", StatusCode: http.StatusBadRequest})
		return
	}
	if !bytes.HasPrefix(content, []byte("%PDF")) {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error: "File does not appear to be a valid PDF (missing PDF header).", StatusCode: http.StatusBadRequest,
		})
		return
	}

	if err := os.MkdirAll(s.cfg.Paths.PDFDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Could not save uploaded file.", StatusCode: http.StatusInternalServerError})
		return
	}
	path := filepath.Join(s.cfg.Paths.PDFDir, safeName)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Could not save uploaded file.", StatusCode: http.StatusInternalServerError})
		return
	}

	metas, err := s.ingestor.IngestPDF(c.Request.Context(), path)
	if err != nil {
		slog.Error("ingestion failed", "file", safeName, "error", err)
		if cperrors.GetCategory(err) == cperrors.CategoryValidation {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), StatusCode: http.StatusBadRequest})
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Processing error.", StatusCode: http.StatusInternalServerError})
		return
	}

	totalPages := 0
	for _, m := range metas {
		if m.Page > totalPages {
			totalPages = m.Page
		}
	}

	c.JSON(http.StatusOK, ingestResponse{
		Filename:         safeName,
		ChunksAdded:      len(metas),
		TotalPages:       totalPages,
		ProcessingTimeMS: float64(time.Since(start).Microseconds()) / 1000.0,
	})
}

// handleHealth serves GET /api/health. Always 200; degradation is
// signaled only through the status field.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.CheckHealth(c.Request.Context()))
}

// handleDebug serves GET /api/debug?n=: the last n query log entries,
// newest first.
func (s *Server) handleDebug(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("n", "10"))
	if err != nil || n < 1 || n > 100 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "n must be between 1 and 100.", StatusCode: http.StatusBadRequest})
		return
	}

	entries, err := s.log.Recent(n)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Could not read logs.", StatusCode: http.StatusInternalServerError})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries, "count": len(entries)})
}

// handleLogs serves GET /api/logs?offset=&limit=: a paginated window in
// file order.
func (s *Server) handleLogs(c *gin.Context) {
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "offset must be >= 0.", StatusCode: http.StatusBadRequest})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be between 1 and 500.", StatusCode: http.StatusBadRequest})
		return
	}

	page, err := s.log.ReadPage(offset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Could not read logs.", StatusCode: http.StatusInternalServerError})
		return
	}
	c.JSON(http.StatusOK, page)
}

// statusForError maps engine error kinds to HTTP responses.
func statusForError(err error) (int, string) {
	switch cperrors.GetCategory(err) {
	case cperrors.CategoryValidation:
		return http.StatusBadRequest, err.Error()
	case cperrors.CategoryUpstream:
		return http.StatusServiceUnavailable, "The AI service is temporarily unavailable. Please try again in a few moments."
	default:
		return http.StatusInternalServerError, "An internal server error occurred."
	}
}
