package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/rflorenc/psa-automation-workbench/internal/models"
)

// Context carries one run's collaborators and mutable state through the
// workflow callbacks. One Context per invocation; never shared.
type Context struct {
	ctx      context.Context
	t        Transport
	fields   FieldResolver
	run      *Run
	opts     *Options
	retry    *retryer
	throttle *throttleWindow
	observer Observer

	// destID is the destination record created by the run, 0 until the
	// create phase succeeds. A nonzero value arms compensation.
	destID int

	// noop marks a duplicate-skip run: an equivalent destination record
	// already exists, so every write phase becomes a no-op.
	noop bool
}

// fatalCopyError aborts the whole run from inside a copy unit instead of
// being counted as one failed unit.
type fatalCopyError struct {
	err error
}

func (e *fatalCopyError) Error() string { return e.err.Error() }
func (e *fatalCopyError) Unwrap() error { return e.err }

func fatalf(format string, args ...interface{}) error {
	return &fatalCopyError{err: fmt.Errorf(format, args...)}
}

// errUnitSkipped signals that a copy unit chose to skip itself after
// recording the reason via run.skip.
var errUnitSkipped = errors.New("unit skipped")

// copyItem is one unit of the copy phase. copy returns the destination ID
// it created, or 0 for units that do not create a record.
type copyItem struct {
	sourceID int
	copy     func(*Context) (int, error)
}

// copyClass groups the units of one sub-resource class.
type copyClass struct {
	name  string
	items []copyItem
}

// workflow describes one migration recipe as a set of phase callbacks.
// The engine sequences the phases, times them, and owns all failure
// handling; the callbacks own entity semantics. preflight and plan must
// not write. create assigns c.destID on success. classes returns the copy
// units discovered against the plan. Nil callbacks skip their phase.
type workflow struct {
	name       string
	entityKind string

	preflight             func(*Context) error
	plan                  func(*Context) (*models.Plan, error)
	create                func(*Context) error
	classes               func(*Context) ([]copyClass, error)
	audit                 func(*Context) error
	compensateSource      func(*Context) error
	compensateDestination func(*Context) error
}

// execute drives a workflow through preflight, plan, create, copy, audit
// and source compensation. Progression is strictly forward; any failure
// after the create phase triggers destination compensation per the
// partial-failure strategy and then surfaces the original error, with
// compensation problems layered on top as warnings.
func execute(ctx context.Context, deps Deps, wf *workflow, opts Options) (*models.Report, error) {
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	run := newRun(wf.name, NewRunID(opts.IdempotencyKey), opts.DryRun, deps.Log)
	c := &Context{
		ctx:      ctx,
		t:        deps.Transport,
		fields:   deps.Fields,
		run:      run,
		opts:     &opts,
		retry:    newRetryer(opts.Retry),
		throttle: newThrottleWindow(opts.Throttle),
		observer: deps.Observer,
	}

	finish := func(runErr error) (*models.Report, error) {
		rep := run.Report(runErr)
		if deps.Observer != nil {
			status := "completed"
			if runErr != nil {
				status = "failed"
			}
			deps.Observer.RunFinished(wf.name, status, rep.LatencyPerPhase)
		}
		return rep, runErr
	}

	run.Logf("=== %s run %s starting (dryRun=%v) ===", wf.name, run.ID, opts.DryRun)

	stop := run.phase("preflight")
	err := wf.preflight(c)
	stop()
	if err != nil {
		return finish(fmt.Errorf("preflight: %w", err))
	}

	stop = run.phase("plan")
	plan, err := wf.plan(c)
	stop()
	if err != nil {
		return finish(fmt.Errorf("plan: %w", err))
	}
	run.plan = plan

	if opts.DryRun {
		run.Logf("=== dry run %s complete: no writes were issued ===", run.ID)
		return finish(nil)
	}
	if c.noop {
		run.Logf("=== run %s complete: equivalent destination record already exists ===", run.ID)
		return finish(nil)
	}

	if wf.create != nil {
		stop = run.phase("create")
		err = wf.create(c)
		stop()
		if err != nil {
			return c.failRun("create", err, wf, finish)
		}
	}

	if wf.classes != nil {
		stop = run.phase("copy")
		err = c.copyAll(wf)
		stop()
		if err != nil {
			if ctx.Err() != nil {
				// Cancellation is not a saga failure: stop where we are,
				// leave both sides as they stand, report what happened.
				return finish(fmt.Errorf("copy: %w", err))
			}
			return c.failRun("copy", err, wf, finish)
		}
	}

	auditOK := true
	if wf.audit != nil {
		stop = run.phase("audit")
		aerr := wf.audit(c)
		stop()
		if aerr != nil {
			auditOK = false
			run.Warnf("audit trail incomplete: %v", aerr)
		}
	}

	if wf.compensateSource != nil {
		stop = run.phase("compensate")
		if !auditOK {
			// Without a complete audit trail the move is not traceable,
			// so the source record is left untouched.
			run.Warnf("source %s left as-is because the audit trail is incomplete", wf.entityKind)
		} else if serr := wf.compensateSource(c); serr != nil {
			run.Warnf("source compensation failed, resolve manually: %v", serr)
		}
		stop()
	}

	run.Logf("=== run %s complete ===", run.ID)
	return finish(nil)
}

// copyAll walks every class and unit, counting outcomes. Individual unit
// failures are independent: they are counted and warned, and the walk
// continues. Fatal unit errors and context cancellation abort the walk.
func (c *Context) copyAll(wf *workflow) error {
	classes, err := wf.classes(c)
	if err != nil {
		return err
	}
	for _, class := range classes {
		cnt := c.run.counter(class.name)
		for _, item := range class.items {
			if cerr := c.ctx.Err(); cerr != nil {
				return cerr
			}
			destID, cerr := item.copy(c)
			switch {
			case cerr == nil:
				cnt.Copied++
				if destID != 0 {
					c.run.mapID(class.name, item.sourceID, destID)
				}
				c.observeUnit(wf.name, class.name, "copied")
			case errors.Is(cerr, errUnitSkipped):
				// run.skip already counted and explained it.
				c.observeUnit(wf.name, class.name, "skipped")
			default:
				var fatal *fatalCopyError
				if errors.As(cerr, &fatal) || c.ctx.Err() != nil {
					return cerr
				}
				cnt.Failed++
				c.run.Warnf("%s %d: copy failed: %v", class.name, item.sourceID, cerr)
				c.observeUnit(wf.name, class.name, "failed")
			}
		}
	}
	return nil
}

func (c *Context) observeUnit(workflow, class, status string) {
	if c.observer != nil {
		c.observer.UnitFinished(workflow, class, status)
	}
}

// failRun applies the partial-failure strategy to an already-created
// destination record, then surfaces the original error. Compensation
// problems become warnings; they never replace the original error.
func (c *Context) failRun(phase string, cause error, wf *workflow, finish func(error) (*models.Report, error)) (*models.Report, error) {
	if c.destID != 0 && wf.compensateDestination != nil {
		stop := c.run.phase("compensate")
		c.run.Logf("run failed with destination %s %d already created; applying %s",
			wf.entityKind, c.destID, c.opts.PartialFailure)
		if cerr := wf.compensateDestination(c); cerr != nil {
			c.run.Warnf("destination compensation for %s %d failed: %v", wf.entityKind, c.destID, cerr)
		}
		stop()
	}
	return finish(fmt.Errorf("%s: %w", phase, cause))
}

// compensateCreatedDestination applies the partial-failure strategy to the
// record at c.destID: deactivate it, or leave it active with a warning.
// Either way a "partial migration" note naming the run is attached so the
// half-created record is traceable.
func (c *Context) compensateCreatedDestination(kind, noteEntity, parentField string, noteParentID int) error {
	var errs []error
	switch c.opts.PartialFailure {
	case PartialDeactivateDestination:
		if err := c.updateEntity(kind, c.destID, models.Entity{"isActive": false}); err != nil {
			errs = append(errs, fmt.Errorf("deactivating %s %d: %w", kind, c.destID, err))
		} else {
			c.run.Logf("destination %s %d deactivated after failed run", kind, c.destID)
		}
	case PartialLeaveActiveWithNote:
		c.run.Warnf("destination %s %d left active after failed run %s; review it before use", kind, c.destID, c.run.ID)
	}
	body := fmt.Sprintf("Partial migration: run %s failed after %s %d was created. Review this record before use.",
		c.run.ID, kind, c.destID)
	if err := c.writeAuditNote(noteEntity, parentField, noteParentID, body); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// createEntity issues a create through the retry and reference-integrity
// layers and records the mutation.
func (c *Context) createEntity(entity string, payload models.Entity) (int, error) {
	var id int
	desc := "create " + entity
	err := c.writeWithRefRetry(desc, payload, func() error {
		newID, cerr := c.t.Create(entity, payload)
		if cerr != nil {
			return cerr
		}
		id = newID
		return nil
	})
	if err != nil {
		return 0, err
	}
	c.run.recordMutation("create", entity, id)
	return id, nil
}

// updateEntity issues an update through the retry and reference-integrity
// layers and records the mutation.
func (c *Context) updateEntity(entity string, id int, fields models.Entity) error {
	desc := fmt.Sprintf("update %s %d", entity, id)
	err := c.writeWithRefRetry(desc, fields, func() error {
		return c.t.Update(entity, id, fields)
	})
	if err != nil {
		return err
	}
	c.run.recordMutation("update", entity, id)
	return nil
}

// deleteEntity issues a delete through the retry layer and records the
// mutation. Reference-integrity rejections do not apply to deletes.
func (c *Context) deleteEntity(entity string, id int) error {
	desc := fmt.Sprintf("delete %s %d", entity, id)
	err := c.retry.do(c.ctx, desc, c.run.warnRetry(), func() error {
		return c.t.Delete(entity, id)
	})
	if err != nil {
		return err
	}
	c.run.recordMutation("delete", entity, id)
	return nil
}

// buildCopyPayload projects a source record onto the destination entity's
// writable fields, applying the masked-field policy and dropping excluded
// and nil fields.
func (c *Context) buildCopyPayload(entity string, source models.Entity, exclude map[string]bool) (models.Entity, error) {
	writable, err := c.fields.WritableFieldNames(entity)
	if err != nil {
		return nil, fmt.Errorf("%s field metadata: %w", entity, err)
	}
	payload := models.Entity{}
	for k, v := range source {
		if !writable[k] || exclude[k] || v == nil {
			continue
		}
		if isMaskedValue(v) {
			if c.opts.MaskedFields == MaskedFail {
				return nil, fmt.Errorf("%s field %q is masked by the API and the masked-field policy is %q", entity, k, MaskedFail)
			}
			c.run.Warnf("%s field %q is masked by the API and was omitted from the copy", entity, k)
			continue
		}
		payload[k] = v
	}
	return payload, nil
}
