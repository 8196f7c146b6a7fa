package models

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Document is the replication envelope stored by both the local and the
// remote store. Body holds the canonical entity JSON.
type Document struct {
	ID        string          `json:"id"`
	Rev       string          `json:"rev"`
	Seq       int64           `json:"seq"`
	Deleted   bool            `json:"deleted"`
	UpdatedAt time.Time       `json:"updated_at"`
	Body      json.RawMessage `json:"body,omitempty"`
}

// Supersedes reports whether d wins over other under last-write-wins:
// the later UpdatedAt wins, ties go to the larger revision.
func (d Document) Supersedes(other Document) bool {
	if !d.UpdatedAt.Equal(other.UpdatedAt) {
		return d.UpdatedAt.After(other.UpdatedAt)
	}
	return d.Rev > other.Rev
}

// DeletedBody is the payload returned for a delete, online or offline.
func DeletedBody(id string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"id":%s,"deleted":true}`, id))
}

// NextRev returns the revision following prev ("" for a new document).
func NextRev(prev string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	return fmt.Sprintf("%d-%s", RevGeneration(prev)+1, suffix)
}

// RevGeneration extracts the generation counter from a revision.
func RevGeneration(rev string) int {
	head, _, ok := strings.Cut(rev, "-")
	if !ok {
		return 0
	}
	gen, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return gen
}

var (
	idMu   sync.Mutex
	lastID int64
)

// NewID allocates a record identifier. Ids are millisecond timestamps with a
// random three digit suffix so records created offline on different devices
// do not collide; within a process they are strictly increasing.
func NewID() int64 {
	idMu.Lock()
	defer idMu.Unlock()

	id := time.Now().UnixMilli()*1000 + rand.Int63n(1000)
	if id <= lastID {
		id = lastID + 1
	}
	lastID = id
	return id
}

// ChangesResponse is the payload of GET /sync/<collection>/changes.
type ChangesResponse struct {
	Results []Document `json:"results"`
	LastSeq int64      `json:"last_seq"`
	HasMore bool       `json:"has_more"`
}

// BulkDocsRequest is the payload of POST /sync/<collection>/bulk_docs.
type BulkDocsRequest struct {
	Docs []Document `json:"docs"`
}

// BulkResult reports what happened to one pushed document.
type BulkResult struct {
	ID      string `json:"id"`
	Rev     string `json:"rev"`
	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`
}

// BulkDocsResponse is the reply to a bulk_docs push.
type BulkDocsResponse struct {
	Results []BulkResult `json:"results"`
}
