package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/rflorenc/psa-automation-workbench/internal/models"
	"github.com/rflorenc/psa-automation-workbench/internal/platform"
)

// ConfigurationItemMoveRequest moves a configuration item to another
// company, copying its notes and attachments when asked to.
type ConfigurationItemMoveRequest struct {
	ConfigurationItemID   int    `json:"configurationItemId"`
	DestinationCompanyID  int    `json:"destinationCompanyId"`
	DestinationLocationID int    `json:"destinationLocationId,omitempty"`
	DestinationContactID  int    `json:"destinationContactId,omitempty"`
	CopyNotes             bool   `json:"copyNotes"`
	CopyAttachments       bool   `json:"copyAttachments"`
	LeaveSourceActive     bool   `json:"leaveSourceActive"`
	AuditTemplate         string `json:"auditTemplate,omitempty"`
	Options
}

type configItemMove struct {
	req ConfigurationItemMoveRequest

	source          models.Entity
	sourceCompanyID int
	payload         models.Entity
	notes           []models.Entity
	attachments     []models.Entity
}

// MoveConfigurationItem runs the configuration item migration saga.
func MoveConfigurationItem(ctx context.Context, deps Deps, req ConfigurationItemMoveRequest) (*models.Report, error) {
	if req.ConfigurationItemID <= 0 || req.DestinationCompanyID <= 0 {
		return nil, fmt.Errorf("configurationItemId and destinationCompanyId are required")
	}
	m := &configItemMove{req: req}
	wf := &workflow{
		name:                  "configuration-item-move",
		entityKind:            "ConfigurationItems",
		preflight:             m.preflight,
		plan:                  m.plan,
		create:                m.create,
		classes:               m.classes,
		audit:                 m.audit,
		compensateSource:      m.compensateSource,
		compensateDestination: m.compensateDestination,
	}
	return execute(ctx, deps, wf, req.Options)
}

func (m *configItemMove) preflight(c *Context) error {
	source, err := c.t.Get("ConfigurationItems", m.req.ConfigurationItemID)
	if err != nil {
		return fmt.Errorf("ConfigurationItems %d: %w", m.req.ConfigurationItemID, err)
	}
	if source == nil {
		return fmt.Errorf("ConfigurationItems %d: not found", m.req.ConfigurationItemID)
	}
	m.source = source
	m.sourceCompanyID = intField(source, "companyID")

	dest, err := c.t.Get("Companies", m.req.DestinationCompanyID)
	if err != nil {
		return fmt.Errorf("Companies %d: %w", m.req.DestinationCompanyID, err)
	}
	if dest == nil {
		return fmt.Errorf("destination Companies %d: not found", m.req.DestinationCompanyID)
	}
	if m.sourceCompanyID == m.req.DestinationCompanyID {
		return fmt.Errorf("ConfigurationItems %d already belongs to Companies %d: nothing to move",
			m.req.ConfigurationItemID, m.req.DestinationCompanyID)
	}
	if !boolField(dest, "isActive") {
		return fmt.Errorf("destination Companies %d is inactive", m.req.DestinationCompanyID)
	}

	if m.req.DestinationLocationID != 0 {
		loc, err := c.t.Get("CompanyLocations", m.req.DestinationLocationID)
		if err != nil {
			return fmt.Errorf("CompanyLocations %d: %w", m.req.DestinationLocationID, err)
		}
		if loc == nil {
			return fmt.Errorf("destination CompanyLocations %d: not found", m.req.DestinationLocationID)
		}
		if got := intField(loc, "companyID"); got != m.req.DestinationCompanyID {
			return fmt.Errorf("CompanyLocations %d belongs to Companies %d, not destination Companies %d",
				m.req.DestinationLocationID, got, m.req.DestinationCompanyID)
		}
	}
	if m.req.DestinationContactID != 0 {
		contact, err := c.t.Get("Contacts", m.req.DestinationContactID)
		if err != nil {
			return fmt.Errorf("Contacts %d: %w", m.req.DestinationContactID, err)
		}
		if contact == nil {
			return fmt.Errorf("destination Contacts %d: not found", m.req.DestinationContactID)
		}
		if got := intField(contact, "companyID"); got != m.req.DestinationCompanyID {
			return fmt.Errorf("Contacts %d belongs to Companies %d, not destination Companies %d",
				m.req.DestinationContactID, got, m.req.DestinationCompanyID)
		}
		if !boolField(contact, "isActive") {
			return fmt.Errorf("destination Contacts %d is inactive", m.req.DestinationContactID)
		}
	}

	if err := m.checkDuplicate(c); err != nil {
		return err
	}

	for _, class := range []struct{ entity, label, parent string }{
		{"ConfigurationItemNotes", "notes", "configurationItemID"},
		{"ConfigurationItemAttachments", "attachments", "parentID"},
	} {
		n, err := c.t.Count(class.entity, []platform.Filter{
			{Op: "eq", Field: class.parent, Value: m.req.ConfigurationItemID},
		})
		if err != nil {
			return fmt.Errorf("counting %s of ConfigurationItems %d: %w", class.label, m.req.ConfigurationItemID, err)
		}
		c.run.Logf("in scope: %d %s", n, class.label)
	}

	left, err := c.t.Count("Tickets", []platform.Filter{
		{Op: "eq", Field: "configurationItemID", Value: m.req.ConfigurationItemID},
	})
	if err != nil {
		return fmt.Errorf("counting tickets of ConfigurationItems %d: %w", m.req.ConfigurationItemID, err)
	}
	if left > 0 {
		c.run.Warnf("left behind: %d tickets reference ConfigurationItems %d and are not moved", left, m.req.ConfigurationItemID)
	}
	return nil
}

// checkDuplicate matches by serial number, the item's natural key.
func (m *configItemMove) checkDuplicate(c *Context) error {
	serial := stringField(m.source, "serialNumber")
	if serial == "" {
		return nil
	}
	existing, err := c.t.Query("ConfigurationItems", []platform.Filter{
		{Op: "eq", Field: "companyID", Value: m.req.DestinationCompanyID},
		{Op: "eq", Field: "serialNumber", Value: serial},
	})
	if err != nil {
		return fmt.Errorf("duplicate check at Companies %d: %w", m.req.DestinationCompanyID, err)
	}
	if len(existing) == 0 {
		return nil
	}
	existingID := entityID(existing[0])
	if c.opts.Duplicates == DuplicateAbort {
		return fmt.Errorf("ConfigurationItems %d at Companies %d already has serial number %s: duplicate policy is %q",
			existingID, m.req.DestinationCompanyID, serial, DuplicateAbort)
	}
	c.run.mapID("configurationItems", m.req.ConfigurationItemID, existingID)
	c.run.skip("configurationItems", m.req.ConfigurationItemID,
		fmt.Sprintf("ConfigurationItems %d at Companies %d already has serial number %s",
			existingID, m.req.DestinationCompanyID, serial))
	c.noop = true
	return nil
}

func (m *configItemMove) plan(c *Context) (*models.Plan, error) {
	payload, err := c.buildCopyPayload("ConfigurationItems", m.source, map[string]bool{"id": true})
	if err != nil {
		return nil, err
	}
	payload["companyID"] = m.req.DestinationCompanyID
	plan := &models.Plan{EntityKind: "ConfigurationItems", CreatePayload: payload, ResolvedFields: map[string]string{}}

	if err := m.resolveLocation(c, payload, plan); err != nil {
		return nil, err
	}
	if m.req.DestinationContactID != 0 {
		payload["contactID"] = m.req.DestinationContactID
	} else if intField(m.source, "contactID") != 0 {
		// Contacts are company-scoped; the source's contact cannot follow
		// the item across companies.
		delete(payload, "contactID")
		c.run.Warnf("source contact reference dropped: contacts are scoped to their company")
	}
	m.payload = payload

	if !c.noop {
		c.run.counter("configurationItems").Planned = 1
	}
	if c.noop {
		return plan, nil
	}

	if m.req.CopyNotes {
		rows, err := c.t.Query("ConfigurationItemNotes", []platform.Filter{
			{Op: "eq", Field: "configurationItemID", Value: m.req.ConfigurationItemID},
		})
		if err != nil {
			return nil, fmt.Errorf("listing notes of ConfigurationItems %d: %w", m.req.ConfigurationItemID, err)
		}
		m.notes = rows
		c.run.counter("notes").Planned = len(rows)
		for _, row := range rows {
			plan.SubResources = append(plan.SubResources, models.PlanItem{
				Class:    "notes",
				SourceID: entityID(row),
				Summary:  truncateTo(stringField(row, "title"), 80),
			})
		}
	}
	if m.req.CopyAttachments {
		rows, err := c.t.Query("ConfigurationItemAttachments", []platform.Filter{
			{Op: "eq", Field: "parentID", Value: m.req.ConfigurationItemID},
		})
		if err != nil {
			return nil, fmt.Errorf("listing attachments of ConfigurationItems %d: %w", m.req.ConfigurationItemID, err)
		}
		m.attachments = rows
		c.run.counter("attachments").Planned = len(rows)
		for _, row := range rows {
			plan.SubResources = append(plan.SubResources, models.PlanItem{
				Class:    "attachments",
				SourceID: entityID(row),
				Summary:  fmt.Sprintf("%s (%d bytes)", stringField(row, "title"), attachmentSize(row)),
			})
		}
	}
	return plan, nil
}

// resolveLocation maps the source's location onto the destination company.
// An explicit destination location wins; otherwise the source location's
// display name is matched against the destination's locations. Zero
// matches drop the field with a warning; multiple matches take the first.
func (m *configItemMove) resolveLocation(c *Context, payload models.Entity, plan *models.Plan) error {
	if m.req.DestinationLocationID != 0 {
		payload["companyLocationID"] = m.req.DestinationLocationID
		plan.ResolvedFields["companyLocationID"] = fmt.Sprintf("%d (explicit)", m.req.DestinationLocationID)
		return nil
	}
	sourceLocID := intField(m.source, "companyLocationID")
	if sourceLocID == 0 {
		delete(payload, "companyLocationID")
		return nil
	}
	sourceLoc, err := c.t.Get("CompanyLocations", sourceLocID)
	if err != nil {
		return fmt.Errorf("CompanyLocations %d: %w", sourceLocID, err)
	}
	name := stringField(sourceLoc, "name")
	if name == "" {
		delete(payload, "companyLocationID")
		c.run.Warnf("source location %d has no name to match by; location not set at destination", sourceLocID)
		return nil
	}
	matches, err := c.t.Query("CompanyLocations", []platform.Filter{
		{Op: "eq", Field: "companyID", Value: m.req.DestinationCompanyID},
		{Op: "eq", Field: "name", Value: name},
	})
	if err != nil {
		return fmt.Errorf("matching location %q at Companies %d: %w", name, m.req.DestinationCompanyID, err)
	}
	switch {
	case len(matches) == 0:
		delete(payload, "companyLocationID")
		c.run.Warnf("no location named %q at Companies %d; location not set at destination", name, m.req.DestinationCompanyID)
	default:
		if len(matches) > 1 {
			c.run.Warnf("%d locations named %q at Companies %d; first match wins", len(matches), name, m.req.DestinationCompanyID)
		}
		id := entityID(matches[0])
		payload["companyLocationID"] = id
		plan.ResolvedFields["companyLocationID"] = fmt.Sprintf("%d (matched by name %q)", id, name)
	}
	return nil
}

func (m *configItemMove) create(c *Context) error {
	destID, err := c.createEntity("ConfigurationItems", m.payload)
	if err != nil {
		return fmt.Errorf("ConfigurationItems %d: %w", m.req.ConfigurationItemID, err)
	}
	c.destID = destID
	c.run.mapID("configurationItems", m.req.ConfigurationItemID, destID)
	c.run.counter("configurationItems").Copied++
	c.run.Logf("created ConfigurationItems %d at Companies %d", destID, m.req.DestinationCompanyID)

	created, err := c.t.Get("ConfigurationItems", destID)
	if err != nil {
		return fmt.Errorf("verifying ConfigurationItems %d: %w", destID, err)
	}
	if got := intField(created, "companyID"); got != m.req.DestinationCompanyID {
		return fmt.Errorf("ConfigurationItems %d was created under Companies %d instead of %d",
			destID, got, m.req.DestinationCompanyID)
	}
	return nil
}

func (m *configItemMove) classes(c *Context) ([]copyClass, error) {
	var classes []copyClass
	if m.req.CopyNotes {
		items := make([]copyItem, 0, len(m.notes))
		for _, note := range m.notes {
			note := note
			items = append(items, copyItem{sourceID: entityID(note), copy: func(c *Context) (int, error) {
				return m.copyNote(c, note)
			}})
		}
		classes = append(classes, copyClass{name: "notes", items: items})
	}
	if m.req.CopyAttachments {
		items := make([]copyItem, 0, len(m.attachments))
		for _, att := range m.attachments {
			att := att
			items = append(items, copyItem{sourceID: entityID(att), copy: func(c *Context) (int, error) {
				return m.copyAttachment(c, att)
			}})
		}
		classes = append(classes, copyClass{name: "attachments", items: items})
	}
	return classes, nil
}

func (m *configItemMove) copyNote(c *Context, note models.Entity) (int, error) {
	payload, err := c.buildCopyPayload("ConfigurationItemNotes", note,
		map[string]bool{"id": true, "configurationItemID": true})
	if err != nil {
		return 0, err
	}
	payload["configurationItemID"] = c.destID
	header := contentHeader("ConfigurationItemNotes", entityID(note),
		fmt.Sprintf("Companies %d", m.sourceCompanyID), time.Now().UTC())
	payload["description"] = truncateTo(header+stringField(note, "description"), maxNoteBodyLen)
	if title := stringField(note, "title"); title != "" {
		payload["title"] = truncateTo(title, maxNoteTitleLen)
	}
	c.fields.ApplyRequiredFieldDefaults("ConfigurationItemNotes", payload, func(msg string) { c.run.Warnf("%s", msg) })
	return c.createEntity("ConfigurationItemNotes", payload)
}

func (m *configItemMove) copyAttachment(c *Context, att models.Entity) (int, error) {
	size := attachmentSize(att)
	if size > c.opts.Throttle.MaxSingleItemBytes {
		if c.opts.Oversize == OversizeFail {
			return 0, fatalf("attachment %d is %d bytes, above the single-item limit of %d",
				entityID(att), size, c.opts.Throttle.MaxSingleItemBytes)
		}
		c.run.skip("attachments", entityID(att),
			fmt.Sprintf("%d bytes exceeds the single-item limit of %d", size, c.opts.Throttle.MaxSingleItemBytes))
		return 0, errUnitSkipped
	}
	if err := c.throttle.wait(c.ctx, size); err != nil {
		return 0, err
	}
	payload, err := c.buildCopyPayload("ConfigurationItemAttachments", att,
		map[string]bool{"id": true, "parentID": true})
	if err != nil {
		return 0, err
	}
	payload["parentID"] = c.destID
	return c.createEntity("ConfigurationItemAttachments", payload)
}

// attachmentSize reports the upload size: the declared fileSize when the
// API supplies one, else the length of the inline base64 data.
func attachmentSize(att models.Entity) int64 {
	if n := intField(att, "fileSize"); n > 0 {
		return int64(n)
	}
	return int64(len(stringField(att, "data")))
}

func (m *configItemMove) audit(c *Context) error {
	values := c.auditValues("ConfigurationItems", m.req.ConfigurationItemID, c.destID)
	return c.writeAuditPair("ConfigurationItemNotes", "configurationItemID",
		m.req.ConfigurationItemID, c.destID,
		auditTemplate(m.req.AuditTemplate), values)
}

func (m *configItemMove) compensateSource(c *Context) error {
	if m.req.LeaveSourceActive {
		c.run.Logf("source ConfigurationItems %d left active by request", m.req.ConfigurationItemID)
		return nil
	}
	if err := c.updateEntity("ConfigurationItems", m.req.ConfigurationItemID, models.Entity{"isActive": false}); err != nil {
		return fmt.Errorf("deactivating source ConfigurationItems %d: %w", m.req.ConfigurationItemID, err)
	}
	c.run.Logf("source ConfigurationItems %d deactivated", m.req.ConfigurationItemID)
	return nil
}

func (m *configItemMove) compensateDestination(c *Context) error {
	return c.compensateCreatedDestination("ConfigurationItems", "ConfigurationItemNotes", "configurationItemID", c.destID)
}
