package migration

import (
	"strings"
	"testing"
	"time"

	"github.com/rflorenc/psa-automation-workbench/internal/models"
)

func TestIsMaskedValue(t *testing.T) {
	tests := []struct {
		value interface{}
		want  bool
	}{
		{"*****", true},
		{"*", true},
		{"", false},
		{"secret", false},
		{"**x**", false},
		{42, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := isMaskedValue(tt.value); got != tt.want {
			t.Errorf("isMaskedValue(%v) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestTruncateTo(t *testing.T) {
	if got := truncateTo("hello", 10); got != "hello" {
		t.Errorf("truncateTo short = %q", got)
	}
	if got := truncateTo(strings.Repeat("a", 300), maxNoteTitleLen); len(got) != maxNoteTitleLen {
		t.Errorf("len = %d, want %d", len(got), maxNoteTitleLen)
	}
}

func TestRenderTemplate(t *testing.T) {
	out := renderTemplate("moved {sourceId} -> {destinationId} on {date}; {unknown} stays", map[string]string{
		"sourceId":      "1001",
		"destinationId": "5000",
		"date":          "2026-01-02",
	})
	want := "moved 1001 -> 5000 on 2026-01-02; {unknown} stays"
	if out != want {
		t.Errorf("renderTemplate = %q, want %q", out, want)
	}
}

func TestContentHeader(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	got := contentHeader("ConfigurationItemNotes", 88, "Companies 7", at)
	want := "[Migrated from ConfigurationItemNotes #88 (Companies 7) at 2026-03-04T05:06:07Z]\n\n"
	if got != want {
		t.Errorf("contentHeader = %q, want %q", got, want)
	}
}

func TestFindKeyFold(t *testing.T) {
	obj := map[string]interface{}{"ContactId": 1, "title": "x"}
	tests := []struct {
		field   string
		wantKey string
		wantOK  bool
	}{
		{"ContactId", "ContactId", true},
		{"contactID", "ContactId", true},
		{"TITLE", "title", true},
		{"companyID", "", false},
	}
	for _, tt := range tests {
		key, ok := findKeyFold(obj, tt.field)
		if key != tt.wantKey || ok != tt.wantOK {
			t.Errorf("findKeyFold(%q) = (%q, %v), want (%q, %v)", tt.field, key, ok, tt.wantKey, tt.wantOK)
		}
	}
}

func TestFieldAccessors(t *testing.T) {
	e := models.Entity{
		"id":       float64(42), // JSON numbers decode as float64
		"count":    7,
		"name":     "box",
		"isActive": float64(1),
		"flag":     true,
	}
	if got := entityID(e); got != 42 {
		t.Errorf("entityID = %d, want 42", got)
	}
	if got := intField(e, "count"); got != 7 {
		t.Errorf("intField = %d, want 7", got)
	}
	if got := stringField(e, "name"); got != "box" {
		t.Errorf("stringField = %q, want box", got)
	}
	if got := stringField(e, "missing"); got != "" {
		t.Errorf("stringField(missing) = %q, want empty", got)
	}
	if !boolField(e, "isActive") || !boolField(e, "flag") {
		t.Error("boolField must accept both bool and 0/1 encodings")
	}
	if boolField(e, "missing") {
		t.Error("boolField(missing) = true, want false")
	}
}
