package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"github.com/mamadbah2/farmsync/internal/domain/models"
)

// ErrUnsupportedOperation is returned for a method and URL pair the local
// store cannot serve, such as PUT or DELETE without an id.
var ErrUnsupportedOperation = errors.New("unsupported operation")

var resourcePattern = regexp.MustCompile(`^/api/([a-z_-]+)(?:/([0-9]+))?/?$`)

// Operation is a local store action.
type Operation int

const (
	OpList Operation = iota + 1
	OpGet
	OpCreate
	OpUpdate
	OpDelete
)

func (o Operation) String() string {
	switch o {
	case OpList:
		return "list"
	case OpGet:
		return "get"
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

type opKey struct {
	method string
	withID bool
}

var operations = map[opKey]Operation{
	{http.MethodGet, false}:   OpList,
	{http.MethodGet, true}:    OpGet,
	{http.MethodPost, false}:  OpCreate,
	{http.MethodPut, true}:    OpUpdate,
	{http.MethodDelete, true}: OpDelete,
}

// Target is a URL resolved against the route table.
type Target struct {
	Resource   string
	Collection string
	ID         string
	Op         Operation
}

// RouteTable maps REST resources to local collections. Only resources in the
// allow-list are served offline.
type RouteTable struct {
	pattern *regexp.Regexp
	allowed map[string]string
}

// NewRouteTable builds a table over the given collections.
func NewRouteTable(collections []models.Collection) *RouteTable {
	allowed := make(map[string]string, len(collections))
	for _, c := range collections {
		allowed[c.Resource] = c.Name
	}
	return &RouteTable{pattern: resourcePattern, allowed: allowed}
}

// DefaultRouteTable covers every locally mirrored collection.
func DefaultRouteTable() *RouteTable {
	return NewRouteTable(models.LocalCollections())
}

// Match parses rawURL and the method into a target without consulting the
// allow-list. ok is false when the URL is not a resource URL at all.
func (t *RouteTable) Match(method, rawURL string) (Target, bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Target{}, false, fmt.Errorf("parse url %q: %w", rawURL, err)
	}

	m := t.pattern.FindStringSubmatch(u.Path)
	if m == nil {
		return Target{}, false, nil
	}

	target := Target{Resource: m[1]}
	if m[2] != "" {
		// Leading zeros resolve to the same record the server would return.
		id, err := models.ParseID(m[2])
		if err != nil {
			return Target{}, true, err
		}
		target.ID = models.FormatID(id)
	}
	op, ok := operations[opKey{method: method, withID: target.ID != ""}]
	if !ok {
		return target, true, fmt.Errorf("%w: %s %s", ErrUnsupportedOperation, method, u.Path)
	}
	target.Op = op
	return target, true, nil
}

// Resolve matches rawURL and requires its resource to be allow-listed.
func (t *RouteTable) Resolve(method, rawURL string) (Target, error) {
	target, ok, err := t.Match(method, rawURL)
	if err != nil {
		return Target{}, err
	}
	if !ok {
		return Target{}, fmt.Errorf("%w: %s", models.ErrUnknownCollection, rawURL)
	}

	name, allowed := t.allowed[target.Resource]
	if !allowed {
		return Target{}, fmt.Errorf("%w: %s", models.ErrUnknownCollection, target.Resource)
	}
	target.Collection = name
	return target, nil
}
