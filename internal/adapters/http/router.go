package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/bbcollect/ap-docflow/internal/config"
	"github.com/bbcollect/ap-docflow/internal/core/domain"
	"github.com/bbcollect/ap-docflow/internal/core/ports"
	"github.com/bbcollect/ap-docflow/internal/observability/metrics"
)

// BlobGateway is what the router needs to serve signed blob links: proof
// that the link is still valid, then the bytes behind it.
type BlobGateway interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Verify(key string, expires int64, signature string) error
}

type Router struct {
	ingest  ports.DocumentIngestor
	reader  ports.DocumentReader
	review  ports.ReviewWorkflow
	binder  ports.BinderWorkflow
	blobs   BlobGateway
	metrics *metrics.APIMetrics
	logger  *slog.Logger
	cfg     config.Config
}

func NewRouter(
	ingest ports.DocumentIngestor,
	reader ports.DocumentReader,
	review ports.ReviewWorkflow,
	binder ports.BinderWorkflow,
	blobs BlobGateway,
	apiMetrics *metrics.APIMetrics,
	logger *slog.Logger,
	cfg config.Config,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		ingest:  ingest,
		reader:  reader,
		review:  review,
		binder:  binder,
		blobs:   blobs,
		metrics: apiMetrics,
		logger:  logger,
		cfg:     cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)
	mux.HandleFunc("/v1/blobs/", rt.serveBlob)
	mux.HandleFunc("/v1/review/sessions", rt.startReviewSession)
	mux.HandleFunc("/v1/review/sessions/", rt.reviewSessionCall)
	mux.HandleFunc("/v1/binder/sessions", rt.startBinderSession)
	mux.HandleFunc("/v1/binder/sessions/", rt.binderSessionCall)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIMaxInFlightWait)
	handler = rateLimitMiddleware(handler, float64(rt.cfg.APIRateLimitRPS), rt.cfg.APIRateLimitBurst)
	handler = accessLogMiddleware(rt.logger, handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	rec, err := rt.ingest.Ingest(r.Context(), fileHeader.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, rec)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	rec, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// serveBlob streams document bytes behind a signed, expiring link. The
// signature covers both the key and the expiry, so neither can be swapped.
func (rt *Router) serveBlob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/v1/blobs/")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "blob key is required"})
		return
	}

	expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expires parameter is required"})
		return
	}
	signature := r.URL.Query().Get("signature")

	if err := rt.blobs.Verify(key, expires, signature); err != nil {
		writeError(w, err)
		return
	}

	blob, err := rt.blobs.Open(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	defer blob.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", key))
	if _, err := io.Copy(w, blob); err != nil {
		rt.logger.Warn("blob_stream_interrupted", "key", key, "error", err)
	}
}

func (rt *Router) startReviewSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	sessionID, size, err := rt.review.StartSession(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordReviewSessionStart("api", size)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sessionID,
		"queue_size": size,
	})
}

func (rt *Router) reviewSessionCall(w http.ResponseWriter, r *http.Request) {
	sessionID, action := splitSessionPath(r.URL.Path, "/v1/review/sessions/")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session id is required"})
		return
	}

	switch {
	case action == "" && r.Method == http.MethodDelete:
		if err := rt.review.EndSession(sessionID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case action == "current" && r.Method == http.MethodGet:
		item, pending, index, size, err := rt.review.Current(sessionID)
		if err != nil {
			writeQueueError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"item":             item,
			"pending_decision": pending,
			"index":            index,
			"size":             size,
		})

	case action == "advance" && r.Method == http.MethodPost:
		var req struct {
			Direction string `json:"direction"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		dir, err := domain.ParseDirection(req.Direction)
		if err != nil {
			writeError(w, err)
			return
		}
		item, err := rt.review.Advance(sessionID, dir)
		if err != nil {
			writeQueueError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})

	case action == "selection" && r.Method == http.MethodPost:
		var req struct {
			Decision string `json:"decision"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		decision, err := domain.ParseClassification(req.Decision)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := rt.review.SetPendingDecision(sessionID, decision); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case action == "classify" && r.Method == http.MethodPost:
		rt.classifyDocument(w, r, sessionID)

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) classifyDocument(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req struct {
		DocumentID string `json:"document_id"`
		Decision   string `json:"decision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document_id is required"})
		return
	}

	decision, err := domain.ParseClassification(req.Decision)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := rt.review.Classify(r.Context(), sessionID, req.DocumentID, decision); err != nil {
		if rt.metrics != nil {
			switch {
			case domain.IsKind(err, domain.ErrStaleTarget):
				rt.metrics.RecordClassifyConflict("api", "stale_target")
			case domain.IsKind(err, domain.ErrConcurrentModification):
				rt.metrics.RecordClassifyConflict("api", "concurrent_modification")
			}
		}
		writeError(w, err)
		return
	}

	stage, _ := domain.ResolveStage(decision)
	if rt.metrics != nil {
		rt.metrics.RecordClassification("api", string(decision), string(stage))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": req.DocumentID,
		"decision":    decision,
		"stage":       stage,
	})
}

func (rt *Router) startBinderSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	sessionID, bundleCount, failedJoins, err := rt.binder.StartSession(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordBinderBuild("api", bundleCount, failedJoins)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id":   sessionID,
		"bundle_count": bundleCount,
		"failed_joins": failedJoins,
	})
}

func (rt *Router) binderSessionCall(w http.ResponseWriter, r *http.Request) {
	sessionID, action := splitSessionPath(r.URL.Path, "/v1/binder/sessions/")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session id is required"})
		return
	}

	switch {
	case action == "" && r.Method == http.MethodDelete:
		if err := rt.binder.EndSession(sessionID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case action == "current" && r.Method == http.MethodGet:
		bundle, index, size, err := rt.binder.Current(sessionID)
		if err != nil {
			writeQueueError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"bundle": bundle,
			"index":  index,
			"size":   size,
		})

	case action == "advance" && r.Method == http.MethodPost:
		var req struct {
			Direction string `json:"direction"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		dir, err := domain.ParseDirection(req.Direction)
		if err != nil {
			writeError(w, err)
			return
		}
		bundle, err := rt.binder.Advance(sessionID, dir)
		if err != nil {
			writeQueueError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bundle": bundle})

	case action == "documents" && r.Method == http.MethodGet:
		docType := r.URL.Query().Get("type")
		if docType == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "type parameter is required"})
			return
		}
		rec, url, found, err := rt.binder.SelectByType(r.Context(), sessionID, domain.Classification(docType))
		if err != nil {
			writeQueueError(w, err)
			return
		}
		if !found {
			writeJSON(w, http.StatusOK, map[string]any{"found": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"found":    true,
			"record":   rec,
			"blob_url": url,
		})

	case action == "export" && r.Method == http.MethodGet:
		rt.exportBinder(w, sessionID)

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

// exportBinder renders the workbook into memory first so that a failure
// still produces a clean JSON error instead of a truncated download.
func (rt *Router) exportBinder(w http.ResponseWriter, sessionID string) {
	var buf bytes.Buffer
	if err := rt.binder.Export(sessionID, &buf); err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordExport("api")
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

// splitSessionPath extracts "{id}" and the optional trailing "{action}"
// from a session-scoped path.
func splitSessionPath(path, prefix string) (sessionID, action string) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", ""
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// writeQueueError renders an exhausted queue as a regular payload. An
// empty queue is a state the client is expected to reach, not a failure.
func writeQueueError(w http.ResponseWriter, err error) {
	if domain.IsKind(err, domain.ErrEmptyQueue) {
		writeJSON(w, http.StatusOK, map[string]any{"empty": true})
		return
	}
	writeError(w, err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
