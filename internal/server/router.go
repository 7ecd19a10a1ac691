package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/MarcoPoloResearchLab/notenest/internal/documents"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	documentsBasePath        = "/api/jsonBlob"
	documentIDParam          = "id"
	defaultHeartbeatInterval = 25 * time.Second
	maxDocumentBytes         = 64 << 20
	headerDocumentRevision   = "X-Document-Revision"
	contentTypeJSON          = "application/json; charset=utf-8"
)

var (
	errMissingDocumentService = errors.New("document service dependency required")
	errMissingRealtime        = errors.New("realtime dispatcher dependency required")
)

// DocumentService stores whole JSON documents.
type DocumentService interface {
	Create(ctx context.Context, body documents.DocumentBody) (documents.Document, error)
	Get(ctx context.Context, documentID documents.DocumentID) (documents.Document, error)
	Replace(ctx context.Context, documentID documents.DocumentID, body documents.DocumentBody) (documents.Document, bool, error)
	Delete(ctx context.Context, documentID documents.DocumentID) error
}

type Dependencies struct {
	Documents         DocumentService
	Realtime          *RealtimeDispatcher
	Logger            *zap.Logger
	HeartbeatInterval time.Duration
	Clock             func() time.Time
}

// NewHTTPHandler exposes the document store over the JSON-blob HTTP contract used by the
// notes sync client.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Documents == nil {
		return nil, errMissingDocumentService
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		documents: deps.Documents,
		realtime:  deps.Realtime,
		logger:    logger,
		heartbeat: heartbeat,
		clock:     clock,
	}

	group := router.Group(documentsBasePath)
	group.POST("", handler.handleCreateDocument)
	group.GET("/:"+documentIDParam, handler.handleGetDocument)
	group.PUT("/:"+documentIDParam, handler.handleReplaceDocument)
	group.DELETE("/:"+documentIDParam, handler.handleDeleteDocument)
	group.GET("/:"+documentIDParam+"/stream", handler.handleDocumentStream)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Accept", "Cache-Control", "Content-Type"},
		ExposeHeaders: []string{"Location", headerDocumentRevision},
		MaxAge:        12 * time.Hour,
	})
}

type httpHandler struct {
	documents DocumentService
	realtime  *RealtimeDispatcher
	logger    *zap.Logger
	heartbeat time.Duration
	clock     func() time.Time
}

type documentChangePayload struct {
	DocumentID string `json:"documentId"`
	Revision   int64  `json:"revision"`
	Deleted    bool   `json:"deleted"`
	Timestamp  string `json:"timestamp"`
	Source     string `json:"source"`
}

func (h *httpHandler) handleCreateDocument(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	document, err := h.documents.Create(c.Request.Context(), body)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.Header("Location", documentsBasePath+"/"+document.DocumentID)
	h.writeDocument(c, http.StatusCreated, document)
}

func (h *httpHandler) handleGetDocument(c *gin.Context) {
	documentID, ok := h.documentID(c)
	if !ok {
		return
	}
	document, err := h.documents.Get(c.Request.Context(), documentID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	h.writeDocument(c, http.StatusOK, document)
}

func (h *httpHandler) handleReplaceDocument(c *gin.Context) {
	documentID, ok := h.documentID(c)
	if !ok {
		return
	}
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	document, created, err := h.documents.Replace(c.Request.Context(), documentID, body)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.publishChange(document.DocumentID, document.Revision, false)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.writeDocument(c, status, document)
}

func (h *httpHandler) handleDeleteDocument(c *gin.Context) {
	documentID, ok := h.documentID(c)
	if !ok {
		return
	}
	if err := h.documents.Delete(c.Request.Context(), documentID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.publishChange(documentID.String(), 0, true)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDocumentStream(c *gin.Context) {
	documentID, ok := h.documentID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, documentID.String())
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, documentChangePayload{
				DocumentID: message.DocumentID,
				Revision:   message.Revision,
				Deleted:    message.Deleted,
				Timestamp:  message.Timestamp.UTC().Format(time.RFC3339Nano),
				Source:     realtimeSourceBackend,
			})
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"timestamp": tick.UTC().Format(time.RFC3339Nano)})
			return true
		}
	})
}

func (h *httpHandler) publishChange(documentID string, revision int64, deleted bool) {
	h.realtime.Publish(RealtimeMessage{
		DocumentID: documentID,
		EventType:  RealtimeEventDocumentChanged,
		Revision:   revision,
		Deleted:    deleted,
		Timestamp:  h.clock().UTC(),
	})
}

func (h *httpHandler) documentID(c *gin.Context) (documents.DocumentID, bool) {
	documentID, err := documents.NewDocumentID(c.Param(documentIDParam))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return "", false
	}
	return documentID, true
}

func (h *httpHandler) readBody(c *gin.Context) (documents.DocumentBody, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxDocumentBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "document_too_large"})
			return "", false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return "", false
	}
	body, err := documents.NewDocumentBody(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return "", false
	}
	return body, true
}

func (h *httpHandler) writeDocument(c *gin.Context, status int, document documents.Document) {
	c.Header(headerDocumentRevision, strconv.FormatInt(document.Revision, 10))
	c.Data(status, contentTypeJSON, []byte(document.BodyJSON))
}

func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "document_store_failed"
	switch {
	case errors.Is(err, documents.ErrDocumentNotFound):
		status = http.StatusNotFound
		message = "not_found"
	case errors.Is(err, documents.ErrInvalidDocumentID), errors.Is(err, documents.ErrInvalidDocumentBody):
		status = http.StatusBadRequest
		message = "invalid_request"
	default:
		h.logger.Error("document request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	payload := gin.H{"error": message}
	var serviceErr *documents.ServiceError
	if errors.As(err, &serviceErr) {
		payload["code"] = serviceErr.Code()
	}
	c.JSON(status, payload)
}
