package models

// Entity represents a generic PSA API record (company, contact, ticket, etc.).
type Entity map[string]interface{}

// EntityType describes a browsable entity kind on the PSA platform.
type EntityType struct {
	Name        string `json:"name"`  // "Contacts", "Tickets", etc.
	Label       string `json:"label"` // Human-readable: "Configuration Items"
	ParentField string `json:"-"`     // FK field naming the owning parent scope, "" for top-level kinds
	DeepLink    string `json:"-"`     // Host UI URL template with a {id} placeholder, "" when none known
}
