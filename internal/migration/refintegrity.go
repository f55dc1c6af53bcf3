package migration

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rflorenc/psa-automation-workbench/internal/models"
)

// The destination API rejects writes whose reference fields point at an
// inactive record, naming the offending field in human-readable error text
// and, sometimes, the offending numeric ID. This file is the narrow adapter
// that parses that text and maps it onto a small fixed set of entity kinds;
// the saga logic never looks at the raw text itself.

// maxFieldStrips bounds the strip-and-retry fallback so a pathological
// payload cannot loop forever.
const maxFieldStrips = 3

// refFieldPattern matches a reference-style field name ("...ID" by the
// API's suffix convention), optionally followed by the offending record ID.
var refFieldPattern = regexp.MustCompile(`(?i)\b([a-z][a-z0-9_]*id)\b(?:[^0-9]{0,60}?(\d+))?`)

// inactiveRef is a parsed "references inactive record" rejection.
type inactiveRef struct {
	Field string // field name as it appeared in the error text
	ID    int    // offending record ID, 0 when not present in the text
}

// parseInactiveRef extracts the offending field (and ID, when present) from
// an error message. ok is false when the message is not an inactive-reference
// rejection at all.
func parseInactiveRef(msg string) (ref inactiveRef, ok bool) {
	lower := strings.ToLower(msg)
	if !strings.Contains(lower, "inactive") {
		return inactiveRef{}, false
	}
	m := refFieldPattern.FindStringSubmatch(msg)
	if m == nil {
		return inactiveRef{}, false
	}
	ref.Field = m[1]
	if m[2] != "" {
		ref.ID, _ = strconv.Atoi(m[2])
	}
	return ref, true
}

// Suffix convention mapping reference fields to the entity kinds this
// helper knows how to reactivate. Anything else is re-thrown unchanged:
// the helper never guesses at an unknown reference kind.
var refKindBySuffix = []struct {
	suffix string
	entity string
}{
	{"contactid", "Contacts"},
	{"resourceid", "Resources"},
}

// classifyRefEntity maps a reference field name onto an entity kind.
func classifyRefEntity(field string) (string, bool) {
	lower := strings.ToLower(field)
	for _, rk := range refKindBySuffix {
		if strings.HasSuffix(lower, rk.suffix) {
			return rk.entity, true
		}
	}
	return "", false
}

// writeWithRefRetry runs a write and resolves inactive-reference rejections:
// with a parsed ID it temporarily reactivates the record, retries the write
// exactly once, and restores the inactive state in a guaranteed-cleanup
// step; without an ID it strips the named field from the payload, records a
// warning, and retries. Unclassifiable errors propagate unchanged.
func (c *Context) writeWithRefRetry(desc string, payload models.Entity, do func() error) error {
	err := c.retry.do(c.ctx, desc, c.run.warnRetry(), do)
	if err == nil {
		return nil
	}

	strips := 0
	for {
		ref, ok := parseInactiveRef(err.Error())
		if !ok {
			return err
		}
		refEntity, known := classifyRefEntity(ref.Field)
		if !known {
			return err
		}

		if ref.ID != 0 {
			return c.retryWithReactivation(desc, refEntity, ref, do, err)
		}

		// No ID in the text: strip the offending field and try again.
		if strips >= maxFieldStrips {
			return err
		}
		key, present := findKeyFold(payload, ref.Field)
		if !present {
			return err
		}
		delete(payload, key)
		strips++
		c.run.Warnf("%s: field %q referenced an inactive %s record that could not be identified; field dropped and write retried",
			desc, key, strings.TrimSuffix(refEntity, "s"))
		err = c.retry.do(c.ctx, desc, c.run.warnRetry(), do)
		if err == nil {
			return nil
		}
	}
}

// retryWithReactivation flips the named record active, retries the write
// once, and restores the original inactive state even when the retried
// write fails. origErr is returned whenever the reactivation path cannot
// improve on it.
func (c *Context) retryWithReactivation(desc, refEntity string, ref inactiveRef, do func() error, origErr error) error {
	record, gerr := c.t.Get(refEntity, ref.ID)
	if gerr != nil || record == nil {
		return origErr
	}
	if boolField(record, "isActive") {
		// Already active: the rejection was about something else.
		return origErr
	}

	if uerr := c.t.Update(refEntity, ref.ID, models.Entity{"isActive": true}); uerr != nil {
		c.run.Warnf("%s: could not reactivate %s %d to satisfy reference %q: %v",
			desc, refEntity, ref.ID, ref.Field, uerr)
		return origErr
	}
	c.run.recordMutation("update", refEntity, ref.ID)
	c.run.Logf("  %s: temporarily reactivated %s %d for field %q", desc, refEntity, ref.ID, ref.Field)

	defer func() {
		if rerr := c.t.Update(refEntity, ref.ID, models.Entity{"isActive": false}); rerr != nil {
			c.run.Warnf("%s: failed to restore %s %d to inactive; deactivate it manually: %v",
				desc, refEntity, ref.ID, rerr)
			return
		}
		c.run.recordMutation("update", refEntity, ref.ID)
	}()

	return do()
}
