package migration

import (
	"context"
	"fmt"

	"github.com/rflorenc/psa-automation-workbench/internal/models"
	"github.com/rflorenc/psa-automation-workbench/internal/platform"
)

// ContactMoveRequest moves one contact to another company, optionally
// carrying its contact-group memberships along.
type ContactMoveRequest struct {
	ContactID            int    `json:"contactId"`
	DestinationCompanyID int    `json:"destinationCompanyId"`
	CopyGroupMemberships bool   `json:"copyGroupMemberships"`
	LeaveSourceActive    bool   `json:"leaveSourceActive"`
	AuditTemplate        string `json:"auditTemplate,omitempty"`
	Options
}

// contactMove holds the per-run state the workflow callbacks share.
type contactMove struct {
	req ContactMoveRequest

	source          models.Entity
	sourceCompanyID int
	payload         models.Entity
	memberships     []models.Entity
}

// MoveContact runs the contact migration saga.
func MoveContact(ctx context.Context, deps Deps, req ContactMoveRequest) (*models.Report, error) {
	if req.ContactID <= 0 || req.DestinationCompanyID <= 0 {
		return nil, fmt.Errorf("contactId and destinationCompanyId are required")
	}
	m := &contactMove{req: req}
	wf := &workflow{
		name:                  "contact-move",
		entityKind:            "Contacts",
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

func (m *contactMove) preflight(c *Context) error {
	source, err := c.t.Get("Contacts", m.req.ContactID)
	if err != nil {
		return fmt.Errorf("Contacts %d: %w", m.req.ContactID, err)
	}
	if source == nil {
		return fmt.Errorf("Contacts %d: not found", m.req.ContactID)
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
		return fmt.Errorf("Contacts %d already belongs to Companies %d: nothing to move", m.req.ContactID, m.req.DestinationCompanyID)
	}
	if !boolField(dest, "isActive") {
		return fmt.Errorf("destination Companies %d is inactive", m.req.DestinationCompanyID)
	}

	if err := m.checkDuplicate(c); err != nil {
		return err
	}

	if m.req.CopyGroupMemberships {
		n, err := c.t.Count("ContactGroupContacts", []platform.Filter{
			{Op: "eq", Field: "contactID", Value: m.req.ContactID},
		})
		if err != nil {
			return fmt.Errorf("counting group memberships of Contacts %d: %w", m.req.ContactID, err)
		}
		c.run.Logf("in scope: %d contact group memberships", n)
	}

	// Tickets keep referencing the source contact; they are not rewritten
	// by this workflow, so the caller must be told what stays behind.
	left, err := c.t.Count("Tickets", []platform.Filter{
		{Op: "eq", Field: "contactID", Value: m.req.ContactID},
	})
	if err != nil {
		return fmt.Errorf("counting tickets of Contacts %d: %w", m.req.ContactID, err)
	}
	if left > 0 {
		c.run.Warnf("left behind: %d tickets reference Contacts %d and are not moved", left, m.req.ContactID)
	}
	return nil
}

// checkDuplicate looks for a contact with the same email already living at
// the destination company and applies the duplicate policy.
func (m *contactMove) checkDuplicate(c *Context) error {
	email := stringField(m.source, "emailAddress")
	if email == "" {
		return nil
	}
	existing, err := c.t.Query("Contacts", []platform.Filter{
		{Op: "eq", Field: "companyID", Value: m.req.DestinationCompanyID},
		{Op: "eq", Field: "emailAddress", Value: email},
	})
	if err != nil {
		return fmt.Errorf("duplicate check at Companies %d: %w", m.req.DestinationCompanyID, err)
	}
	if len(existing) == 0 {
		return nil
	}
	existingID := entityID(existing[0])
	if c.opts.Duplicates == DuplicateAbort {
		return fmt.Errorf("Contacts %d at Companies %d already has email %s: duplicate policy is %q",
			existingID, m.req.DestinationCompanyID, email, DuplicateAbort)
	}
	c.run.mapID("contacts", m.req.ContactID, existingID)
	c.run.skip("contacts", m.req.ContactID,
		fmt.Sprintf("Contacts %d at Companies %d already has email %s", existingID, m.req.DestinationCompanyID, email))
	c.noop = true
	return nil
}

func (m *contactMove) plan(c *Context) (*models.Plan, error) {
	payload, err := c.buildCopyPayload("Contacts", m.source, map[string]bool{"id": true})
	if err != nil {
		return nil, err
	}
	payload["companyID"] = m.req.DestinationCompanyID
	m.payload = payload

	plan := &models.Plan{EntityKind: "Contacts", CreatePayload: payload}
	if !c.noop {
		c.run.counter("contacts").Planned = 1
	}

	if m.req.CopyGroupMemberships && !c.noop {
		rows, err := c.t.Query("ContactGroupContacts", []platform.Filter{
			{Op: "eq", Field: "contactID", Value: m.req.ContactID},
		})
		if err != nil {
			return nil, fmt.Errorf("listing group memberships of Contacts %d: %w", m.req.ContactID, err)
		}
		m.memberships = rows
		c.run.counter("groupMemberships").Planned = len(rows)
		for _, row := range rows {
			plan.SubResources = append(plan.SubResources, models.PlanItem{
				Class:    "groupMemberships",
				SourceID: entityID(row),
				Summary:  fmt.Sprintf("membership in contact group %d", intField(row, "contactGroupID")),
			})
		}
	}
	return plan, nil
}

func (m *contactMove) create(c *Context) error {
	destID, err := c.createEntity("Contacts", m.payload)
	if err != nil {
		return fmt.Errorf("Contacts %d: %w", m.req.ContactID, err)
	}
	c.destID = destID
	c.run.mapID("contacts", m.req.ContactID, destID)
	c.run.counter("contacts").Copied++
	c.run.Logf("created Contacts %d at Companies %d", destID, m.req.DestinationCompanyID)

	// The API has been seen to silently drop a scope field; read the new
	// record back and verify it actually landed at the destination.
	created, err := c.t.Get("Contacts", destID)
	if err != nil {
		return fmt.Errorf("verifying Contacts %d: %w", destID, err)
	}
	if got := intField(created, "companyID"); got != m.req.DestinationCompanyID {
		return fmt.Errorf("Contacts %d was created under Companies %d instead of %d", destID, got, m.req.DestinationCompanyID)
	}
	return nil
}

func (m *contactMove) classes(c *Context) ([]copyClass, error) {
	if !m.req.CopyGroupMemberships {
		return nil, nil
	}
	items := make([]copyItem, 0, len(m.memberships))
	for _, row := range m.memberships {
		row := row
		items = append(items, copyItem{
			sourceID: entityID(row),
			copy: func(c *Context) (int, error) {
				return c.createEntity("ContactGroupContacts", models.Entity{
					"contactGroupID": intField(row, "contactGroupID"),
					"contactID":      c.destID,
				})
			},
		})
	}
	return []copyClass{{name: "groupMemberships", items: items}}, nil
}

func (m *contactMove) audit(c *Context) error {
	values := c.auditValues("Contacts", m.req.ContactID, c.destID)
	return c.writeAuditPair("CompanyNotes", "companyID",
		m.sourceCompanyID, m.req.DestinationCompanyID,
		auditTemplate(m.req.AuditTemplate), values)
}

func (m *contactMove) compensateSource(c *Context) error {
	if m.req.LeaveSourceActive {
		c.run.Logf("source Contacts %d left active by request", m.req.ContactID)
		return nil
	}
	if err := c.updateEntity("Contacts", m.req.ContactID, models.Entity{"isActive": false}); err != nil {
		return fmt.Errorf("deactivating source Contacts %d: %w", m.req.ContactID, err)
	}
	c.run.Logf("source Contacts %d deactivated", m.req.ContactID)
	return nil
}

func (m *contactMove) compensateDestination(c *Context) error {
	return c.compensateCreatedDestination("Contacts", "CompanyNotes", "companyID", m.req.DestinationCompanyID)
}
