package platform

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/rflorenc/psa-automation-workbench/internal/models"
)

// PicklistValue is one entry of a picklist field's value set.
type PicklistValue struct {
	Value     string `json:"value"`
	Label     string `json:"label"`
	IsActive  bool   `json:"isActive"`
	IsDefault bool   `json:"isDefaultValue"`
}

// FieldInfo is the API's description of one entity field.
type FieldInfo struct {
	Name                string          `json:"name"`
	DataType            string          `json:"dataType"`
	IsReadOnly          bool            `json:"isReadOnly"`
	IsRequired          bool            `json:"isRequired"`
	IsPickList          bool            `json:"isPickList"`
	PicklistValues      []PicklistValue `json:"picklistValues"`
	ReferenceEntityType string          `json:"referenceEntityType"`
}

// EntityFields fetches the field metadata for an entity kind.
func (c *Client) EntityFields(entity string) ([]FieldInfo, error) {
	env, err := c.request(http.MethodGet, c.url(entity+"/entityInformation/fields"), nil)
	if err != nil {
		return nil, err
	}
	return env.Fields, nil
}

// Entity-kind-specific defaults injected for required fields the caller did
// not supply. Values follow the host platform's "General" picklist entries.
var requiredFieldDefaults = map[string]models.Entity{
	"CompanyNotes":           {"actionType": 6},
	"ConfigurationItemNotes": {"noteType": 1},
	"TicketNotes":            {"noteType": 1, "publish": 1},
}

// FieldCache caches per-entity field metadata for one connection. It backs
// the writable-field resolver, the required-field-default applier, and the
// picklist lookups the migration engine consumes.
type FieldCache struct {
	client *Client
	mu     sync.RWMutex
	fields map[string][]FieldInfo
}

// NewFieldCache creates an empty cache backed by the given client.
func NewFieldCache(client *Client) *FieldCache {
	return &FieldCache{client: client, fields: make(map[string][]FieldInfo)}
}

// Fields returns the (cached) field metadata for an entity kind.
func (fc *FieldCache) Fields(entity string) ([]FieldInfo, error) {
	fc.mu.RLock()
	cached, ok := fc.fields[entity]
	fc.mu.RUnlock()
	if ok {
		return cached, nil
	}

	fetched, err := fc.client.EntityFields(entity)
	if err != nil {
		return nil, fmt.Errorf("field info for %s: %w", entity, err)
	}

	fc.mu.Lock()
	fc.fields[entity] = fetched
	fc.mu.Unlock()
	return fetched, nil
}

// WritableFieldNames returns the set of fields the API accepts on
// create/update for an entity kind. Read-only and server-computed fields are
// excluded so they are never echoed back.
func (fc *FieldCache) WritableFieldNames(entity string) (map[string]bool, error) {
	fields, err := fc.Fields(entity)
	if err != nil {
		return nil, err
	}
	writable := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !f.IsReadOnly {
			writable[f.Name] = true
		}
	}
	return writable, nil
}

// ApplyRequiredFieldDefaults fills entity-kind-specific mandatory fields
// missing from the payload, appending a warning for each injected default.
func (fc *FieldCache) ApplyRequiredFieldDefaults(entity string, payload models.Entity, warn func(string)) {
	defaults, ok := requiredFieldDefaults[entity]
	if !ok {
		return
	}
	for field, value := range defaults {
		if _, present := payload[field]; present {
			continue
		}
		payload[field] = value
		if warn != nil {
			warn(fmt.Sprintf("%s: required field %q was not supplied, defaulted to %v", entity, field, value))
		}
	}
}

// PicklistValues returns the active picklist entries for a field, or an
// error when the field is not a picklist on that entity.
func (fc *FieldCache) PicklistValues(entity, field string) ([]PicklistValue, error) {
	fields, err := fc.Fields(entity)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if f.Name != field {
			continue
		}
		if !f.IsPickList {
			return nil, fmt.Errorf("%s.%s is not a picklist field", entity, field)
		}
		var active []PicklistValue
		for _, pv := range f.PicklistValues {
			if pv.IsActive {
				active = append(active, pv)
			}
		}
		return active, nil
	}
	return nil, fmt.Errorf("%s has no field %q", entity, field)
}

// Warm pre-fetches field metadata for the given entity kinds. Best-effort:
// failures are reported through logf and do not abort startup.
func (fc *FieldCache) Warm(entities []string, logf func(string)) {
	for _, e := range entities {
		if _, err := fc.Fields(e); err != nil {
			if logf != nil {
				logf(fmt.Sprintf("  FIELD DISCOVERY: %s: %v", e, err))
			}
		}
	}
}
