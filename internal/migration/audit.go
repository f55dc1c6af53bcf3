package migration

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rflorenc/psa-automation-workbench/internal/models"
)

const auditNoteTitle = "Migration audit"

// defaultAuditTemplate is used when a request supplies no template of its
// own. Placeholders are substituted from auditValues.
const defaultAuditTemplate = "Record moved by automated migration on {date}.\n" +
	"Source: #{sourceId} {sourceUrl}\n" +
	"Destination: #{destinationId} {destinationUrl}\n" +
	"Run: {runId}"

func auditTemplate(requested string) string {
	if requested != "" {
		return requested
	}
	return defaultAuditTemplate
}

// auditValues builds the placeholder set for audit note templates. Deep
// links that cannot be derived come through as empty strings with a
// warning; a missing link never fails the audit step.
func (c *Context) auditValues(kind string, sourceID, destID int) map[string]string {
	return map[string]string{
		"sourceId":       strconv.Itoa(sourceID),
		"destinationId":  strconv.Itoa(destID),
		"sourceUrl":      c.deepLinkOrWarn(kind, sourceID),
		"destinationUrl": c.deepLinkOrWarn(kind, destID),
		"date":           time.Now().UTC().Format("2006-01-02"),
		"runId":          c.run.ID,
	}
}

func (c *Context) deepLinkOrWarn(kind string, id int) string {
	if id == 0 {
		return ""
	}
	link := c.t.DeepLink(kind, id)
	if link == "" {
		c.run.Warnf("no deep link available for %s %d; the audit note will carry an empty link", kind, id)
	}
	return link
}

// writeAuditNote creates one audit note against the named parent, filling
// required picklist fields from metadata defaults.
func (c *Context) writeAuditNote(noteEntity, parentField string, parentID int, body string) error {
	payload := models.Entity{
		parentField:   parentID,
		"title":       truncateTo(auditNoteTitle, maxNoteTitleLen),
		"description": truncateTo(body, maxNoteBodyLen),
	}
	c.fields.ApplyRequiredFieldDefaults(noteEntity, payload, func(msg string) { c.run.Warnf("%s", msg) })
	if _, err := c.createEntity(noteEntity, payload); err != nil {
		return fmt.Errorf("audit note on %s %d: %w", parentField, parentID, err)
	}
	return nil
}

// writeAuditPair writes the rendered audit note on both sides of a move.
// One side failing does not stop the other; failures are combined so the
// caller sees every incomplete half of the trail.
func (c *Context) writeAuditPair(noteEntity, parentField string, sourceParentID, destParentID int, tpl string, values map[string]string) error {
	body := renderTemplate(tpl, values)
	var errs []error
	if err := c.writeAuditNote(noteEntity, parentField, sourceParentID, body); err != nil {
		errs = append(errs, err)
	}
	if destParentID != 0 && destParentID != sourceParentID {
		if err := c.writeAuditNote(noteEntity, parentField, destParentID, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
