package sync

import (
	"context"
	"fmt"
)

// EntityDescriptor describes one syncable entity. Immutable after catalog
// construction.
type EntityDescriptor struct {
	ServerTable    string
	ClientTable    string
	Pullable       bool
	Pushable       bool
	AlwaysFullSync bool

	// Columns is the known server-side column set. Pushed records are
	// reduced to it before they reach an adapter.
	Columns []string
}

// Adapter is the contract every pushable entity implements: an idempotent
// upsert keyed by row id with last-write-wins semantics, and an idempotent
// soft delete.
type Adapter interface {
	Upsert(ctx context.Context, rec Record) error
	Delete(ctx context.Context, id string) error
}

// Catalog is the registry of syncable entities and their adapters. It is
// built once at the composition root and passed by reference into the delta
// computer and the push ingester.
type Catalog struct {
	entities []EntityDescriptor
	byServer map[string]EntityDescriptor
	adapters map[string]Adapter
	columns  map[string]map[string]struct{}
}

// NewCatalog validates the descriptor set and builds the lookup maps.
func NewCatalog(entities []EntityDescriptor) (*Catalog, error) {
	c := &Catalog{
		entities: make([]EntityDescriptor, 0, len(entities)),
		byServer: make(map[string]EntityDescriptor, len(entities)),
		adapters: make(map[string]Adapter, len(entities)),
		columns:  make(map[string]map[string]struct{}, len(entities)),
	}
	for _, e := range entities {
		if e.ServerTable == "" || e.ClientTable == "" {
			return nil, fmt.Errorf("entity descriptor missing table name: %+v", e)
		}
		if _, dup := c.byServer[e.ServerTable]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntity, e.ServerTable)
		}
		cols := make(map[string]struct{}, len(e.Columns))
		for _, col := range e.Columns {
			cols[col] = struct{}{}
		}
		c.entities = append(c.entities, e)
		c.byServer[e.ServerTable] = e
		c.columns[e.ServerTable] = cols
	}
	return c, nil
}

// Register binds an adapter to a pushable entity.
func (c *Catalog) Register(serverTable string, a Adapter) error {
	desc, ok := c.byServer[serverTable]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, serverTable)
	}
	if !desc.Pushable {
		return fmt.Errorf("%w: %s", ErrEntityNotPushed, serverTable)
	}
	c.adapters[serverTable] = a
	return nil
}

// Descriptor looks up an entity by its server-side table name.
func (c *Catalog) Descriptor(serverTable string) (EntityDescriptor, bool) {
	desc, ok := c.byServer[serverTable]
	return desc, ok
}

// Adapter returns the adapter bound to serverTable.
func (c *Catalog) Adapter(serverTable string) (Adapter, bool) {
	a, ok := c.adapters[serverTable]
	return a, ok
}

// Pullable returns the descriptors eligible for pull, in registration order.
func (c *Catalog) Pullable() []EntityDescriptor {
	var out []EntityDescriptor
	for _, e := range c.entities {
		if e.Pullable {
			out = append(out, e)
		}
	}
	return out
}

// HasColumn reports whether col belongs to the entity's known column set.
func (c *Catalog) HasColumn(serverTable, col string) bool {
	cols, ok := c.columns[serverTable]
	if !ok {
		return false
	}
	_, ok = cols[col]
	return ok
}

// ClinicEntities is the production descriptor set. Reference entities
// (clinics, form schemas) are flagged AlwaysFullSync so the retention window
// never truncates their history; the audit log is push-only and is never
// delivered back to clients.
func ClinicEntities() []EntityDescriptor {
	return []EntityDescriptor{
		{
			ServerTable: "patients",
			ClientTable: "patients",
			Pullable:    true,
			Pushable:    true,
			Columns: []string{
				"id", "given_name", "surname", "date_of_birth", "sex",
				"camp", "phone", "government_id", "external_patient_id",
				"additional_data", "image_timestamp",
				"created_at", "updated_at", "last_modified",
			},
		},
		{
			ServerTable: "visits",
			ClientTable: "visits",
			Pullable:    true,
			Pushable:    true,
			Columns: []string{
				"id", "patient_id", "clinic_id", "provider_id",
				"check_in_timestamp", "metadata",
				"created_at", "updated_at", "last_modified",
			},
		},
		{
			ServerTable: "prescriptions",
			ClientTable: "prescriptions",
			Pullable:    true,
			Pushable:    true,
			Columns: []string{
				"id", "patient_id", "visit_id", "provider_id",
				"medication", "dosage", "frequency", "status",
				"filled_at", "expiration_date", "metadata",
				"created_at", "updated_at", "last_modified",
			},
		},
		{
			ServerTable:    "clinics",
			ClientTable:    "clinics",
			Pullable:       true,
			AlwaysFullSync: true,
			Columns: []string{
				"id", "name", "address",
				"created_at", "updated_at", "last_modified",
			},
		},
		{
			ServerTable:    "event_forms",
			ClientTable:    "event_forms",
			Pullable:       true,
			AlwaysFullSync: true,
			Columns: []string{
				"id", "name", "description", "language", "form_fields",
				"is_editable", "is_snapshot_form",
				"created_at", "updated_at", "last_modified",
			},
		},
		{
			// One-directional: devices append their local audit trail,
			// nothing is ever pulled back down.
			ServerTable: "audit_logs",
			ClientTable: "audit_logs",
			Pushable:    true,
			Columns: []string{
				"id", "transaction_id", "action_type", "table_name", "row_id",
				"changes", "metadata", "created_at",
			},
		},
	}
}
