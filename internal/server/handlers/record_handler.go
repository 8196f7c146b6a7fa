package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmsync/internal/domain/models"
	"github.com/mamadbah2/farmsync/internal/repository"
)

// RecordHandler serves CRUD under /api/<resource>.
type RecordHandler struct {
	store  repository.Store
	logger *zap.Logger
}

// NewRecordHandler constructs the REST handler over store.
func NewRecordHandler(store repository.Store, logger *zap.Logger) *RecordHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordHandler{store: store, logger: logger}
}

func (h *RecordHandler) collection(c *gin.Context) (models.Collection, bool) {
	coll, err := models.LookupResource(c.Param("resource"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return models.Collection{}, false
	}
	return coll, true
}

func (h *RecordHandler) key(c *gin.Context) (int64, bool) {
	id, err := models.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, false
	}
	return id, true
}

// List returns every record of a resource.
func (h *RecordHandler) List(c *gin.Context) {
	coll, ok := h.collection(c)
	if !ok {
		return
	}

	docs, err := h.store.List(c.Request.Context(), coll.Name)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	writeRaw(c, http.StatusOK, joinBodies(docs))
}

// Get returns one record.
func (h *RecordHandler) Get(c *gin.Context) {
	coll, ok := h.collection(c)
	if !ok {
		return
	}
	id, ok := h.key(c)
	if !ok {
		return
	}

	doc, err := h.store.Get(c.Request.Context(), coll.Name, models.FormatID(id))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	writeRaw(c, http.StatusOK, doc.Body)
}

// Create stores a new record, assigning an id when the body has none.
func (h *RecordHandler) Create(c *gin.Context) {
	coll, ok := h.collection(c)
	if !ok {
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	id, canonical, err := coll.Canonical(body, 0)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	doc, err := h.store.Create(c.Request.Context(), coll.Name, models.FormatID(id), canonical)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	writeRaw(c, http.StatusCreated, doc.Body)
}

// Update replaces a record. The id in the path wins over the body.
func (h *RecordHandler) Update(c *gin.Context) {
	coll, ok := h.collection(c)
	if !ok {
		return
	}
	id, ok := h.key(c)
	if !ok {
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	_, canonical, err := coll.Canonical(body, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	doc, err := h.store.Update(c.Request.Context(), coll.Name, models.FormatID(id), canonical)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	writeRaw(c, http.StatusOK, doc.Body)
}

// Delete removes a record and answers {"id":<id>,"deleted":true}.
func (h *RecordHandler) Delete(c *gin.Context) {
	coll, ok := h.collection(c)
	if !ok {
		return
	}
	id, ok := h.key(c)
	if !ok {
		return
	}

	doc, err := h.store.Delete(c.Request.Context(), coll.Name, models.FormatID(id))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	writeRaw(c, http.StatusOK, doc.Body)
}

// Toggle flips the active flag of an employee.
func (h *RecordHandler) Toggle(c *gin.Context) {
	coll, ok := h.collection(c)
	if !ok {
		return
	}
	if coll.Name != models.CollectionEmployees {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("%s records cannot be toggled", coll.Resource)})
		return
	}
	id, ok := h.key(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	key := models.FormatID(id)
	doc, err := h.store.Get(ctx, coll.Name, key)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	entity, err := coll.Decode(doc.Body)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	employee := entity.(*models.Employee)
	employee.Active = !employee.Active

	body, err := json.Marshal(employee)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	updated, err := h.store.Update(ctx, coll.Name, key, body)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.logger.Info("employee toggled", zap.Int64("id", id), zap.Bool("active", employee.Active))
	writeRaw(c, http.StatusOK, updated.Body)
}
