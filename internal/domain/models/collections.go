package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Collection names. They double as the local namespace names and the
// MongoDB collection names.
const (
	CollectionUsers            = "users"
	CollectionEmployees        = "employees"
	CollectionMachines         = "machines"
	CollectionMaintenance      = "maintenance"
	CollectionMachineFinances  = "machine_finances"
	CollectionAnimals          = "animals"
	CollectionAnimalVeterinary = "animal_veterinary"
	CollectionAnimalFinances   = "animal_finances"
	CollectionPastures         = "pastures"
	CollectionPastureFinances  = "pasture_finances"
	CollectionInvestments      = "investments"
	CollectionServices         = "services"
	CollectionTaxes            = "taxes"
	CollectionRepairs          = "repairs"
	CollectionSalaries         = "salaries"
	CollectionCapital          = "capital"
)

// Collection describes one entity collection: its storage name, the REST
// resource segment under /api, and whether clients mirror it locally.
type Collection struct {
	Name     string
	Resource string
	Local    bool
	New      func() Entity
}

var catalog = []Collection{
	{Name: CollectionUsers, Resource: "users", Local: true, New: func() Entity { return &User{} }},
	{Name: CollectionMachines, Resource: "machines", Local: true, New: func() Entity { return &Machine{} }},
	{Name: CollectionMaintenance, Resource: "maintenance", Local: true, New: func() Entity { return &Maintenance{} }},
	{Name: CollectionMachineFinances, Resource: "machine-finances", Local: true, New: func() Entity { return &MachineFinance{} }},
	{Name: CollectionAnimals, Resource: "animals", Local: true, New: func() Entity { return &Animal{} }},
	{Name: CollectionAnimalVeterinary, Resource: "animal-veterinary", Local: true, New: func() Entity { return &AnimalVeterinary{} }},
	{Name: CollectionAnimalFinances, Resource: "animal-finances", Local: true, New: func() Entity { return &AnimalFinance{} }},
	{Name: CollectionPastures, Resource: "pastures", Local: true, New: func() Entity { return &Pasture{} }},
	{Name: CollectionPastureFinances, Resource: "pasture-finances", Local: true, New: func() Entity { return &PastureFinance{} }},
	{Name: CollectionInvestments, Resource: "investments", Local: true, New: func() Entity { return &Investment{} }},
	{Name: CollectionServices, Resource: "services", Local: true, New: func() Entity { return &Service{} }},
	{Name: CollectionTaxes, Resource: "taxes", Local: true, New: func() Entity { return &Tax{} }},
	{Name: CollectionRepairs, Resource: "repairs", Local: true, New: func() Entity { return &Repair{} }},
	{Name: CollectionSalaries, Resource: "salaries", Local: true, New: func() Entity { return &Salary{} }},
	{Name: CollectionCapital, Resource: "capital", Local: true, New: func() Entity { return &Capital{} }},
	{Name: CollectionEmployees, Resource: "employees", Local: false, New: func() Entity { return &Employee{} }},
}

// Collections returns every known collection.
func Collections() []Collection {
	out := make([]Collection, len(catalog))
	copy(out, catalog)
	return out
}

// CollectionNames returns every storage name in catalog order.
func CollectionNames() []string {
	names := make([]string, 0, len(catalog))
	for _, c := range catalog {
		names = append(names, c.Name)
	}
	return names
}

// LocalCollections returns the collections mirrored into the client store.
func LocalCollections() []Collection {
	out := make([]Collection, 0, len(catalog))
	for _, c := range catalog {
		if c.Local {
			out = append(out, c)
		}
	}
	return out
}

// LocalCollectionNames returns the local namespace names in catalog order.
func LocalCollectionNames() []string {
	local := LocalCollections()
	names := make([]string, 0, len(local))
	for _, c := range local {
		names = append(names, c.Name)
	}
	return names
}

// LookupCollection finds a collection by storage name.
func LookupCollection(name string) (Collection, error) {
	for _, c := range catalog {
		if c.Name == name {
			return c, nil
		}
	}
	return Collection{}, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
}

// LookupResource finds a collection by its REST resource segment.
func LookupResource(resource string) (Collection, error) {
	for _, c := range catalog {
		if c.Resource == resource {
			return c, nil
		}
	}
	return Collection{}, fmt.Errorf("%w: %s", ErrUnknownCollection, resource)
}

// Decode parses body into the collection's entity type.
func (c Collection) Decode(body []byte) (Entity, error) {
	entity := c.New()
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(entity); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, c.Name, err)
	}
	return entity, nil
}

// Canonical decodes body, forces the given id (a zero id keeps the body's id,
// or allocates a new one when the body has none) and re-encodes it. Every
// write goes through here so both stores persist the same normalized shape.
func (c Collection) Canonical(body []byte, id int64) (int64, json.RawMessage, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}

	entity, err := c.Decode(body)
	if err != nil {
		return 0, nil, err
	}

	switch {
	case id > 0:
		entity.SetID(id)
	case id < 0 || entity.GetID() < 0:
		// A negative key never matches a resource URL, so the record could
		// not be fetched, updated or deleted afterwards.
		return 0, nil, fmt.Errorf("%w: %s: negative id", ErrInvalidDocument, c.Name)
	case entity.GetID() == 0:
		entity.SetID(NewID())
	}

	out, err := json.Marshal(entity)
	if err != nil {
		return 0, nil, fmt.Errorf("encode %s: %w", c.Name, err)
	}
	return entity.GetID(), out, nil
}

// FormatID renders a numeric id as a document key.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseID parses a document key back into its numeric id.
func ParseID(key string) (int64, error) {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", ErrInvalidDocument, key)
	}
	return id, nil
}
