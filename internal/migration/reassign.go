package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rflorenc/psa-automation-workbench/internal/models"
	"github.com/rflorenc/psa-automation-workbench/internal/platform"
)

const defaultReassignCeiling = 500

// WorkloadReassignRequest moves a staff member's open work items to
// another staff member. Classes selects which item classes to move; empty
// means all of them.
type WorkloadReassignRequest struct {
	SourceResourceID      int      `json:"sourceResourceId"`
	DestinationResourceID int      `json:"destinationResourceId"`
	Classes               []string `json:"classes,omitempty"`
	AccountAllowlist      []int    `json:"accountAllowlist,omitempty"`
	DueCutoff             string   `json:"dueCutoff,omitempty"` // RFC 3339; items due on or before are in scope
	AllowedStatusValues   []string `json:"allowedStatusValues,omitempty"`
	AllowedStatusLabels   []string `json:"allowedStatusLabels,omitempty"`
	MaxItems              int      `json:"maxItems,omitempty"`
	DeactivateSource      bool     `json:"deactivateSource"`
	AuditTemplate         string   `json:"auditTemplate,omitempty"`
	Options
}

// reassignClass describes how one class of work items is discovered and
// patched onto the new owner.
type reassignClass struct {
	name           string
	entity         string
	ownerField     string
	summaryField   string
	statusFiltered bool
	cutoffField    string
	accountScoped  bool
}

var reassignClasses = []reassignClass{
	{"tickets", "Tickets", "assignedResourceID", "title", true, "dueDateTime", true},
	{"tasks", "Tasks", "assignedResourceID", "title", true, "endDateTime", false},
	{"projects", "Projects", "projectLeadResourceID", "projectName", true, "", true},
	{"appointments", "Appointments", "resourceID", "title", false, "", false},
	{"companies", "Companies", "ownerResourceID", "companyName", false, "", false},
}

const secondaryClassName = "secondaryAssignments"

type workloadReassign struct {
	req WorkloadReassignRequest

	enabled    map[string]bool
	cutoff     time.Time
	discovered map[string][]models.Entity
	secondary  []models.Entity
	statuses   map[string][]string

	reassignedTickets []int
}

// ReassignWorkload runs the bulk ownership-transfer saga.
func ReassignWorkload(ctx context.Context, deps Deps, req WorkloadReassignRequest) (*models.Report, error) {
	if req.SourceResourceID <= 0 || req.DestinationResourceID <= 0 {
		return nil, fmt.Errorf("sourceResourceId and destinationResourceId are required")
	}
	if req.MaxItems <= 0 {
		req.MaxItems = defaultReassignCeiling
	}
	m := &workloadReassign{
		req:        req,
		discovered: make(map[string][]models.Entity),
		statuses:   make(map[string][]string),
	}
	wf := &workflow{
		name:             "workload-reassign",
		entityKind:       "Resources",
		preflight:        m.preflight,
		plan:             m.plan,
		classes:          m.classes,
		audit:            m.audit,
		compensateSource: m.compensateSource,
	}
	return execute(ctx, deps, wf, req.Options)
}

func (m *workloadReassign) preflight(c *Context) error {
	known := map[string]bool{secondaryClassName: true}
	for _, rc := range reassignClasses {
		known[rc.name] = true
	}
	m.enabled = make(map[string]bool)
	if len(m.req.Classes) == 0 {
		for name := range known {
			m.enabled[name] = true
		}
	} else {
		for _, name := range m.req.Classes {
			if !known[name] {
				return fmt.Errorf("unknown work item class %q", name)
			}
			m.enabled[name] = true
		}
	}

	if m.req.DueCutoff != "" {
		cutoff, err := time.Parse(time.RFC3339, m.req.DueCutoff)
		if err != nil {
			return fmt.Errorf("dueCutoff %q is not RFC 3339: %w", m.req.DueCutoff, err)
		}
		m.cutoff = cutoff
	}

	source, err := c.t.Get("Resources", m.req.SourceResourceID)
	if err != nil {
		return fmt.Errorf("Resources %d: %w", m.req.SourceResourceID, err)
	}
	if source == nil {
		return fmt.Errorf("source Resources %d: not found", m.req.SourceResourceID)
	}
	dest, err := c.t.Get("Resources", m.req.DestinationResourceID)
	if err != nil {
		return fmt.Errorf("Resources %d: %w", m.req.DestinationResourceID, err)
	}
	if dest == nil {
		return fmt.Errorf("destination Resources %d: not found", m.req.DestinationResourceID)
	}
	if m.req.SourceResourceID == m.req.DestinationResourceID {
		return fmt.Errorf("source and destination are both Resources %d: nothing to reassign", m.req.SourceResourceID)
	}
	if !boolField(dest, "isActive") {
		return fmt.Errorf("destination Resources %d is inactive", m.req.DestinationResourceID)
	}
	return nil
}

func (m *workloadReassign) plan(c *Context) (*models.Plan, error) {
	plan := &models.Plan{EntityKind: "Resources", ResolvedFields: map[string]string{}}
	total := 0

	for _, rc := range reassignClasses {
		if !m.enabled[rc.name] {
			continue
		}
		rows, err := m.discover(c, rc, plan)
		if err != nil {
			return nil, err
		}
		m.discovered[rc.name] = rows
		c.run.counter(rc.name).Planned = len(rows)
		total += len(rows)
		for _, row := range rows {
			plan.SubResources = append(plan.SubResources, models.PlanItem{
				Class:    rc.name,
				SourceID: entityID(row),
				Summary:  truncateTo(stringField(row, rc.summaryField), 80),
			})
		}
	}

	if m.enabled[secondaryClassName] {
		rows, err := c.t.Query("TicketSecondaryResources", []platform.Filter{
			{Op: "eq", Field: "resourceID", Value: m.req.SourceResourceID},
		})
		if err != nil {
			return nil, fmt.Errorf("listing secondary assignments of Resources %d: %w", m.req.SourceResourceID, err)
		}
		m.secondary = rows
		c.run.counter(secondaryClassName).Planned = len(rows)
		total += len(rows)
		for _, row := range rows {
			plan.SubResources = append(plan.SubResources, models.PlanItem{
				Class:    secondaryClassName,
				SourceID: entityID(row),
				Summary:  fmt.Sprintf("secondary on Tickets %d", intField(row, "ticketID")),
			})
		}
	}

	// Blast-radius guard: a set this large is more likely a bad filter
	// than a real request, and it would burn API quota either way.
	if total > m.req.MaxItems {
		return nil, fmt.Errorf("discovered %d work items for Resources %d, above the ceiling of %d: narrow the request",
			total, m.req.SourceResourceID, m.req.MaxItems)
	}
	c.run.Logf("discovered %d work items across %d classes", total, len(m.discovered))
	return plan, nil
}

// discover queries one class's open items owned by the source resource.
func (m *workloadReassign) discover(c *Context, rc reassignClass, plan *models.Plan) ([]models.Entity, error) {
	filters := []platform.Filter{
		{Op: "eq", Field: rc.ownerField, Value: m.req.SourceResourceID},
	}
	if rc.statusFiltered {
		vals, err := m.openStatusValues(c, rc.entity)
		if err != nil {
			return nil, err
		}
		filters = append(filters, platform.Filter{Op: "in", Field: "status", Value: vals})
		plan.ResolvedFields[rc.name+".status"] = strings.Join(vals, ",")
	}
	switch rc.name {
	case "companies":
		filters = append(filters, platform.Filter{Op: "eq", Field: "isActive", Value: true})
	case "appointments":
		// Past appointments are history, not workload.
		filters = append(filters, platform.Filter{Op: "gte", Field: "startDateTime", Value: time.Now().UTC().Format(time.RFC3339)})
	}
	if rc.accountScoped && len(m.req.AccountAllowlist) > 0 {
		filters = append(filters, platform.Filter{Op: "in", Field: "companyID", Value: m.req.AccountAllowlist})
	}
	if rc.cutoffField != "" && !m.cutoff.IsZero() {
		filters = append(filters, platform.Filter{Op: "lte", Field: rc.cutoffField, Value: m.cutoff.Format(time.RFC3339)})
	}
	rows, err := c.t.Query(rc.entity, filters)
	if err != nil {
		return nil, fmt.Errorf("discovering %s of Resources %d: %w", rc.name, m.req.SourceResourceID, err)
	}
	return rows, nil
}

// openStatusValues resolves which status values count as "open" for an
// entity kind. Explicit values win, then explicit labels matched against
// the picklist; with neither, open is inferred as every active status
// whose label does not read as a terminal state.
func (m *workloadReassign) openStatusValues(c *Context, entity string) ([]string, error) {
	if vals, ok := m.statuses[entity]; ok {
		return vals, nil
	}
	if len(m.req.AllowedStatusValues) > 0 {
		m.statuses[entity] = m.req.AllowedStatusValues
		return m.req.AllowedStatusValues, nil
	}
	picks, err := c.fields.PicklistValues(entity, "status")
	if err != nil {
		return nil, fmt.Errorf("status picklist for %s: %w", entity, err)
	}
	var out []string
	if len(m.req.AllowedStatusLabels) > 0 {
		want := make(map[string]bool, len(m.req.AllowedStatusLabels))
		for _, label := range m.req.AllowedStatusLabels {
			want[strings.ToLower(label)] = true
		}
		for _, p := range picks {
			if want[strings.ToLower(p.Label)] {
				out = append(out, p.Value)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("none of the requested status labels exist on %s", entity)
		}
	} else {
		for _, p := range picks {
			if !p.IsActive || isClosedStatusLabel(p.Label) {
				continue
			}
			out = append(out, p.Value)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("could not infer any open status for %s", entity)
		}
	}
	m.statuses[entity] = out
	return out, nil
}

var closedStatusWords = []string{"closed", "complete", "done", "inactive"}

func isClosedStatusLabel(label string) bool {
	lower := strings.ToLower(label)
	for _, word := range closedStatusWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func (m *workloadReassign) classes(c *Context) ([]copyClass, error) {
	var classes []copyClass
	for _, rc := range reassignClasses {
		rc := rc
		rows := m.discovered[rc.name]
		if len(rows) == 0 {
			continue
		}
		items := make([]copyItem, 0, len(rows))
		for _, row := range rows {
			id := entityID(row)
			items = append(items, copyItem{sourceID: id, copy: func(c *Context) (int, error) {
				if err := c.updateEntity(rc.entity, id, models.Entity{rc.ownerField: m.req.DestinationResourceID}); err != nil {
					return 0, err
				}
				if rc.name == "tickets" {
					m.reassignedTickets = append(m.reassignedTickets, id)
				}
				return 0, nil
			}})
		}
		classes = append(classes, copyClass{name: rc.name, items: items})
	}

	if len(m.secondary) > 0 {
		items := make([]copyItem, 0, len(m.secondary))
		for _, row := range m.secondary {
			row := row
			items = append(items, copyItem{sourceID: entityID(row), copy: func(c *Context) (int, error) {
				return m.moveSecondary(c, row)
			}})
		}
		classes = append(classes, copyClass{name: secondaryClassName, items: items})
	}
	return classes, nil
}

// moveSecondary replaces a secondary-assignment join row by delete and
// recreate; the API has no reassign verb for them. When the destination
// already owns the ticket as primary, the row is only deleted so the new
// owner is not listed against their own ticket.
func (m *workloadReassign) moveSecondary(c *Context, row models.Entity) (int, error) {
	rowID := entityID(row)
	ticketID := intField(row, "ticketID")
	ticket, err := c.t.Get("Tickets", ticketID)
	if err != nil {
		return 0, fmt.Errorf("Tickets %d: %w", ticketID, err)
	}
	if ticket == nil {
		return 0, fmt.Errorf("Tickets %d referenced by secondary assignment %d: not found", ticketID, rowID)
	}

	if err := c.deleteEntity("TicketSecondaryResources", rowID); err != nil {
		return 0, err
	}
	if intField(ticket, "assignedResourceID") == m.req.DestinationResourceID {
		c.run.Logf("  Tickets %d: destination is already primary; secondary assignment %d removed without replacement",
			ticketID, rowID)
		return 0, nil
	}
	return c.createEntity("TicketSecondaryResources", models.Entity{
		"ticketID":   ticketID,
		"resourceID": m.req.DestinationResourceID,
	})
}

// audit appends a reassignment note to each moved ticket. Best effort per
// ticket; failures are combined so the trail's gaps are all reported.
func (m *workloadReassign) audit(c *Context) error {
	if len(m.reassignedTickets) == 0 {
		return nil
	}
	values := c.auditValues("Resources", m.req.SourceResourceID, m.req.DestinationResourceID)
	body := renderTemplate(auditTemplate(m.req.AuditTemplate), values)
	var errs []error
	for _, ticketID := range m.reassignedTickets {
		if err := c.writeAuditNote("TicketNotes", "ticketID", ticketID, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *workloadReassign) compensateSource(c *Context) error {
	if !m.req.DeactivateSource {
		return nil
	}
	if err := c.updateEntity("Resources", m.req.SourceResourceID, models.Entity{"isActive": false}); err != nil {
		return fmt.Errorf("deactivating source Resources %d: %w", m.req.SourceResourceID, err)
	}
	c.run.Logf("source Resources %d deactivated", m.req.SourceResourceID)
	return nil
}
