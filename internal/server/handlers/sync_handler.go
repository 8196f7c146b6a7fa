package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmsync/internal/domain/models"
	"github.com/mamadbah2/farmsync/internal/repository"
)

const (
	defaultChangesLimit = 100
	maxChangesLimit     = 1000
)

// SyncHandler serves the replication surface under /sync/<collection>.
type SyncHandler struct {
	store  repository.Store
	logger *zap.Logger
}

// NewSyncHandler constructs the replication handler over store.
func NewSyncHandler(store repository.Store, logger *zap.Logger) *SyncHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncHandler{store: store, logger: logger}
}

func (h *SyncHandler) collection(c *gin.Context) (models.Collection, bool) {
	coll, err := models.LookupCollection(c.Param("collection"))
	if err != nil || !coll.Local {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown collection: " + c.Param("collection")})
		return models.Collection{}, false
	}
	return coll, true
}

// Changes returns the change feed after ?since=, at most ?limit= entries.
func (h *SyncHandler) Changes(c *gin.Context) {
	coll, ok := h.collection(c)
	if !ok {
		return
	}

	since, err := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil || since < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultChangesLimit)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	limit = min(limit, maxChangesLimit)

	resp, err := h.store.Changes(c.Request.Context(), coll.Name, since, limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// BulkDocs applies pushed documents under last-write-wins and reports the
// outcome of each one.
func (h *SyncHandler) BulkDocs(c *gin.Context) {
	coll, ok := h.collection(c)
	if !ok {
		return
	}

	var req models.BulkDocsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid bulk docs payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	ctx := c.Request.Context()
	resp := models.BulkDocsResponse{Results: make([]models.BulkResult, 0, len(req.Docs))}
	applied := 0
	for _, doc := range req.Docs {
		result := models.BulkResult{ID: doc.ID, Rev: doc.Rev}

		id, err := models.ParseID(doc.ID)
		if err == nil && doc.Rev == "" {
			err = models.ErrInvalidDocument
		}
		if err == nil && !doc.Deleted {
			_, doc.Body, err = coll.Canonical(doc.Body, id)
		}
		if err == nil {
			result.Applied, err = h.store.Apply(ctx, coll.Name, doc)
		}
		if err != nil {
			h.logger.Warn("bulk doc rejected",
				zap.String("collection", coll.Name), zap.String("id", doc.ID), zap.Error(err))
			result.Error = err.Error()
		}
		if result.Applied {
			applied++
		}
		resp.Results = append(resp.Results, result)
	}

	h.logger.Debug("bulk docs applied",
		zap.String("collection", coll.Name),
		zap.Int("received", len(req.Docs)),
		zap.Int("applied", applied))
	c.JSON(http.StatusOK, resp)
}
