package migration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rflorenc/psa-automation-workbench/internal/models"
	"github.com/rflorenc/psa-automation-workbench/internal/platform"
)

func reassignFixture() (*fakeTransport, *fakeFields) {
	f := newFakeTransport()
	f.seed("Resources", models.Entity{"id": 10, "firstName": "Sam", "isActive": true})
	f.seed("Resources", models.Entity{"id": 20, "firstName": "Kim", "isActive": true})
	f.seed("Resources", models.Entity{"id": 30, "firstName": "Lee", "isActive": true})
	f.seed("Tickets", models.Entity{
		"id": 101, "assignedResourceID": 10, "status": "1", "companyID": 7,
		"title": "replace switch", "dueDateTime": "2026-01-10T00:00:00Z",
	})
	f.seed("Tickets", models.Entity{
		"id": 102, "assignedResourceID": 10, "status": "5", "companyID": 7,
		"title": "decommission", "dueDateTime": "2026-01-03T00:00:00Z",
	})
	f.seed("Tickets", models.Entity{"id": 103, "assignedResourceID": 30, "status": "1", "companyID": 8, "title": "other owner"})

	ff := newFakeFields()
	ff.picklists["Tickets.status"] = []platform.PicklistValue{
		{Value: "1", Label: "New", IsActive: true},
		{Value: "5", Label: "Complete", IsActive: true},
		{Value: "8", Label: "Closed", IsActive: true},
		{Value: "9", Label: "Waiting Customer", IsActive: false},
	}
	return f, ff
}

func TestReassignWorkload_PatchesOpenTicketsOnly(t *testing.T) {
	f, ff := reassignFixture()
	report, err := ReassignWorkload(context.Background(), testDeps(f, ff), WorkloadReassignRequest{
		SourceResourceID:      10,
		DestinationResourceID: 20,
		Classes:               []string{"tickets"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ClassCounters{Planned: 1, Copied: 1}, report.Counters["tickets"])
	assert.Equal(t, 20, toInt(f.records["Tickets"][101]["assignedResourceID"]))
	assert.Equal(t, 10, toInt(f.records["Tickets"][102]["assignedResourceID"]), "complete ticket stays")
	assert.Equal(t, 30, toInt(f.records["Tickets"][103]["assignedResourceID"]), "other owner untouched")

	notes := f.created("TicketNotes")
	require.Len(t, notes, 1, "audit note per reassigned ticket")
	assert.Equal(t, 101, toInt(notes[0]["ticketID"]))
	assert.Equal(t, 1, toInt(notes[0]["noteType"]))
	assert.Equal(t, 1, toInt(notes[0]["publish"]))

	assert.True(t, boolField(f.records["Resources"][10], "isActive"), "source stays active by default")
}

func TestReassignWorkload_StatusInference(t *testing.T) {
	f, ff := reassignFixture()
	report, err := ReassignWorkload(context.Background(), testDeps(f, ff), WorkloadReassignRequest{
		SourceResourceID:      10,
		DestinationResourceID: 20,
		Classes:               []string{"tickets"},
		Options:               Options{DryRun: true},
	})
	require.NoError(t, err)
	require.NotNil(t, report.Plan)
	// Complete and Closed read as terminal; Waiting Customer is inactive.
	assert.Equal(t, "1", report.Plan.ResolvedFields["tickets.status"])
}

func TestReassignWorkload_ExplicitStatusLabels(t *testing.T) {
	f, ff := reassignFixture()
	report, err := ReassignWorkload(context.Background(), testDeps(f, ff), WorkloadReassignRequest{
		SourceResourceID:      10,
		DestinationResourceID: 20,
		Classes:               []string{"tickets"},
		AllowedStatusLabels:   []string{"Complete"},
		Options:               Options{DryRun: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Counters["tickets"].Planned)
	require.Len(t, report.Plan.SubResources, 1)
	assert.Equal(t, 102, report.Plan.SubResources[0].SourceID)
}

func TestReassignWorkload_ScopeFilters(t *testing.T) {
	t.Run("due cutoff", func(t *testing.T) {
		f, ff := reassignFixture()
		report, err := ReassignWorkload(context.Background(), testDeps(f, ff), WorkloadReassignRequest{
			SourceResourceID:      10,
			DestinationResourceID: 20,
			Classes:               []string{"tickets"},
			DueCutoff:             "2026-01-01T00:00:00Z",
			Options:               Options{DryRun: true},
		})
		require.NoError(t, err)
		assert.Equal(t, 0, report.Counters["tickets"].Planned, "ticket due after the cutoff is out of scope")
	})

	t.Run("account allowlist", func(t *testing.T) {
		f, ff := reassignFixture()
		report, err := ReassignWorkload(context.Background(), testDeps(f, ff), WorkloadReassignRequest{
			SourceResourceID:      10,
			DestinationResourceID: 20,
			Classes:               []string{"tickets"},
			AccountAllowlist:      []int{8},
			Options:               Options{DryRun: true},
		})
		require.NoError(t, err)
		assert.Equal(t, 0, report.Counters["tickets"].Planned)
	})
}

func TestReassignWorkload_SecondaryAssignments(t *testing.T) {
	f, ff := reassignFixture()
	f.seed("TicketSecondaryResources", models.Entity{"id": 201, "ticketID": 101, "resourceID": 10})
	f.seed("TicketSecondaryResources", models.Entity{"id": 202, "ticketID": 103, "resourceID": 10})

	report, err := ReassignWorkload(context.Background(), testDeps(f, ff), WorkloadReassignRequest{
		SourceResourceID:      10,
		DestinationResourceID: 20,
		Classes:               []string{"tickets", "secondaryAssignments"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ClassCounters{Planned: 2, Copied: 2}, report.Counters["secondaryAssignments"])

	// Ticket 101 was just reassigned to 20: its secondary row is deleted
	// without recreation so the primary is not doubled as secondary.
	// Ticket 103 belongs to someone else: delete then recreate for 20.
	recreated := f.created("TicketSecondaryResources")
	require.Len(t, recreated, 1)
	assert.Equal(t, 103, toInt(recreated[0]["ticketID"]))
	assert.Equal(t, 20, toInt(recreated[0]["resourceID"]))
	_, still201 := f.records["TicketSecondaryResources"][201]
	_, still202 := f.records["TicketSecondaryResources"][202]
	assert.False(t, still201 || still202, "old secondary rows must be gone")
}

func TestReassignWorkload_CeilingAbortsBeforeWrites(t *testing.T) {
	f, ff := reassignFixture()
	f.seed("TicketSecondaryResources", models.Entity{"id": 201, "ticketID": 101, "resourceID": 10})

	_, err := ReassignWorkload(context.Background(), testDeps(f, ff), WorkloadReassignRequest{
		SourceResourceID:      10,
		DestinationResourceID: 20,
		Classes:               []string{"tickets", "secondaryAssignments"},
		MaxItems:              1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "above the ceiling")
	assert.Empty(t, f.writes)
}

func TestReassignWorkload_Preflight(t *testing.T) {
	f, ff := reassignFixture()

	_, err := ReassignWorkload(context.Background(), testDeps(f, ff), WorkloadReassignRequest{
		SourceResourceID:      10,
		DestinationResourceID: 10,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to reassign")

	f.records["Resources"][20]["isActive"] = false
	_, err = ReassignWorkload(context.Background(), testDeps(f, ff), WorkloadReassignRequest{
		SourceResourceID:      10,
		DestinationResourceID: 20,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inactive")

	_, err = ReassignWorkload(context.Background(), testDeps(f, ff), WorkloadReassignRequest{
		SourceResourceID:      10,
		DestinationResourceID: 30,
		Classes:               []string{"widgets"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown work item class")
}

func TestReassignWorkload_DeactivateSource(t *testing.T) {
	f, ff := reassignFixture()
	_, err := ReassignWorkload(context.Background(), testDeps(f, ff), WorkloadReassignRequest{
		SourceResourceID:      10,
		DestinationResourceID: 20,
		Classes:               []string{"tickets"},
		DeactivateSource:      true,
	})
	require.NoError(t, err)
	assert.False(t, boolField(f.records["Resources"][10], "isActive"))
}
