package platform

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rflorenc/psa-automation-workbench/internal/models"
)

const ticketFieldsJSON = `{"fields":[
	{"name":"id","dataType":"long","isReadOnly":true},
	{"name":"title","dataType":"string","isRequired":true},
	{"name":"assignedResourceID","dataType":"long","referenceEntityType":"Resources"},
	{"name":"lastActivityDate","dataType":"dateTime","isReadOnly":true},
	{"name":"status","dataType":"integer","isPickList":true,"picklistValues":[
		{"value":"1","label":"New","isActive":true},
		{"value":"5","label":"Complete","isActive":true},
		{"value":"9","label":"Waiting Vendor","isActive":false}
	]}
]}`

func newTestFieldCache(t *testing.T) (*FieldCache, *int) {
	t.Helper()
	requests := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1.0/Tickets/entityInformation/fields" {
			t.Errorf("path = %q", r.URL.Path)
		}
		requests++
		w.Write([]byte(ticketFieldsJSON))
	}))
	t.Cleanup(ts.Close)
	return NewFieldCache(newTestClient(ts)), &requests
}

func TestFieldCache_WritableFieldNames(t *testing.T) {
	fc, _ := newTestFieldCache(t)

	writable, err := fc.WritableFieldNames("Tickets")
	if err != nil {
		t.Fatalf("WritableFieldNames returned error: %v", err)
	}
	for _, name := range []string{"title", "assignedResourceID", "status"} {
		if !writable[name] {
			t.Errorf("writable[%q] = false, want true", name)
		}
	}
	for _, name := range []string{"id", "lastActivityDate"} {
		if writable[name] {
			t.Errorf("writable[%q] = true, want read-only fields excluded", name)
		}
	}
}

func TestFieldCache_FetchesOncePerEntity(t *testing.T) {
	fc, requests := newTestFieldCache(t)

	for i := 0; i < 3; i++ {
		if _, err := fc.Fields("Tickets"); err != nil {
			t.Fatalf("Fields returned error: %v", err)
		}
	}
	if *requests != 1 {
		t.Errorf("server saw %d requests, want 1", *requests)
	}
}

func TestFieldCache_PicklistValues(t *testing.T) {
	fc, _ := newTestFieldCache(t)

	values, err := fc.PicklistValues("Tickets", "status")
	if err != nil {
		t.Fatalf("PicklistValues returned error: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("len(values) = %d, want 2 active entries", len(values))
	}
	if values[0].Label != "New" || values[1].Label != "Complete" {
		t.Errorf("values = %v, want inactive entries dropped", values)
	}
}

func TestFieldCache_PicklistValues_Errors(t *testing.T) {
	fc, _ := newTestFieldCache(t)

	if _, err := fc.PicklistValues("Tickets", "title"); err == nil || !strings.Contains(err.Error(), "not a picklist") {
		t.Errorf("non-picklist field error = %v", err)
	}
	if _, err := fc.PicklistValues("Tickets", "nope"); err == nil || !strings.Contains(err.Error(), `no field "nope"`) {
		t.Errorf("missing field error = %v", err)
	}
}

func TestApplyRequiredFieldDefaults(t *testing.T) {
	fc := NewFieldCache(nil)

	var warnings []string
	payload := models.Entity{"title": "audit"}
	fc.ApplyRequiredFieldDefaults("TicketNotes", payload, func(msg string) { warnings = append(warnings, msg) })
	if payload["noteType"] != 1 || payload["publish"] != 1 {
		t.Errorf("payload = %v, want noteType and publish defaulted", payload)
	}
	if len(warnings) != 2 {
		t.Errorf("warnings = %v, want one per injected default", warnings)
	}

	// Supplied values win over defaults.
	payload = models.Entity{"noteType": 3, "publish": 2}
	fc.ApplyRequiredFieldDefaults("TicketNotes", payload, func(msg string) { t.Errorf("unexpected warning %q", msg) })
	if payload["noteType"] != 3 || payload["publish"] != 2 {
		t.Errorf("payload = %v, want supplied values kept", payload)
	}

	// Kinds without a default table are untouched.
	payload = models.Entity{"x": 1}
	fc.ApplyRequiredFieldDefaults("Contacts", payload, nil)
	if len(payload) != 1 {
		t.Errorf("payload = %v, want unchanged", payload)
	}
}
