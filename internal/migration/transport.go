package migration

import (
	"github.com/rflorenc/psa-automation-workbench/internal/models"
	"github.com/rflorenc/psa-automation-workbench/internal/platform"
)

// Transport is the slice of the PSA client the engine consumes. The real
// implementation is *platform.Client; tests substitute a scripted fake.
type Transport interface {
	Get(entity string, id int) (models.Entity, error)
	Query(entity string, filters []platform.Filter) ([]models.Entity, error)
	Count(entity string, filters []platform.Filter) (int, error)
	Create(entity string, payload models.Entity) (int, error)
	Update(entity string, id int, fields models.Entity) error
	Delete(entity string, id int) error
	DeepLink(kind string, id int) string
}

// FieldResolver supplies per-entity field metadata: which fields the API
// accepts on writes, which required fields need defaults, and picklist
// value sets. The real implementation is *platform.FieldCache.
type FieldResolver interface {
	WritableFieldNames(entity string) (map[string]bool, error)
	ApplyRequiredFieldDefaults(entity string, payload models.Entity, warn func(string))
	PicklistValues(entity, field string) ([]platform.PicklistValue, error)
}

// Observer receives run and copy-unit outcomes for metrics. All methods
// must be cheap; a nil Observer is valid.
type Observer interface {
	RunFinished(workflow, status string, phases map[string]int64)
	UnitFinished(workflow, class, status string)
}

// Deps bundles the external collaborators a workflow invocation needs.
type Deps struct {
	Transport Transport
	Fields    FieldResolver
	Log       func(string)
	Observer  Observer
}

var (
	_ Transport     = (*platform.Client)(nil)
	_ FieldResolver = (*platform.FieldCache)(nil)
)
