// Package lifecycle applies status, priority, tag and delete mutations to
// stored submissions. Expected negative outcomes (missing id, bad enum) are
// reported in a Result; only storage failures are returned as errors.
package lifecycle

import (
	"context"
	"errors"

	"github.com/hyperengineering/contactbox/internal/store"
	"github.com/hyperengineering/contactbox/internal/types"
	"github.com/hyperengineering/contactbox/internal/validation"
)

// DefaultMaxBulkIDs bounds the number of ids in one bulk request.
const DefaultMaxBulkIDs = 500

// Outcome classifies a mutation.
type Outcome string

const (
	Updated      Outcome = "updated"
	NotFound     Outcome = "not_found"
	InvalidValue Outcome = "invalid_value"
)

// Result describes what a mutation did.
type Result struct {
	Outcome Outcome
	// Errors lists the offending fields when Outcome is InvalidValue.
	Errors []validation.ValidationError
	// Submission is the row after a single-row update.
	Submission *types.Submission
	// Affected counts rows touched by a bulk action.
	Affected int64
}

// OK reports whether the mutation was applied.
func (r Result) OK() bool { return r.Outcome == Updated }

// Store is the write surface the mutator drives.
type Store interface {
	GetSubmission(ctx context.Context, id int64) (*types.Submission, error)
	UpdateStatus(ctx context.Context, id int64, status types.Status) error
	UpdatePriority(ctx context.Context, id int64, priority types.Priority) error
	UpdateTags(ctx context.Context, id int64, tags []string) error
	DeleteSubmission(ctx context.Context, id int64) error
	BulkUpdateStatus(ctx context.Context, ids []int64, status types.Status) (int64, error)
	BulkDelete(ctx context.Context, ids []int64) (int64, error)
}

// Mutator wraps store mutations with enum validation and existence checks.
type Mutator struct {
	store   Store
	maxTags int
	tagMax  int
	maxBulk int
}

// Option configures a Mutator.
type Option func(*Mutator)

// WithTagLimits caps the number of tags and the length of each tag.
func WithTagLimits(maxTags, tagMax int) Option {
	return func(m *Mutator) {
		if maxTags > 0 {
			m.maxTags = maxTags
		}
		if tagMax > 0 {
			m.tagMax = tagMax
		}
	}
}

// WithMaxBulkIDs caps the number of ids a bulk request may name.
func WithMaxBulkIDs(n int) Option {
	return func(m *Mutator) {
		if n > 0 {
			m.maxBulk = n
		}
	}
}

// NewMutator creates a Mutator over s.
func NewMutator(s Store, opts ...Option) *Mutator {
	limits := validation.DefaultLimits()
	m := &Mutator{
		store:   s,
		maxTags: limits.TagsMax,
		tagMax:  limits.TagMax,
		maxBulk: DefaultMaxBulkIDs,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// UpdateStatus sets the status of one submission.
func (m *Mutator) UpdateStatus(ctx context.Context, id int64, status string) (Result, error) {
	if err := validation.ValidateEnum("status", status, types.StatusStrings()); err != nil {
		return invalid(*err), nil
	}
	return m.single(ctx, id, m.store.UpdateStatus(ctx, id, types.Status(status)))
}

// UpdatePriority sets the priority of one submission.
func (m *Mutator) UpdatePriority(ctx context.Context, id int64, priority string) (Result, error) {
	if err := validation.ValidateEnum("priority", priority, types.PriorityStrings()); err != nil {
		return invalid(*err), nil
	}
	return m.single(ctx, id, m.store.UpdatePriority(ctx, id, types.Priority(priority)))
}

// UpdateTags replaces the tag set of one submission after normalizing it.
func (m *Mutator) UpdateTags(ctx context.Context, id int64, tags []string) (Result, error) {
	tags = validation.NormalizeTags(tags, m.maxTags, m.tagMax)
	return m.single(ctx, id, m.store.UpdateTags(ctx, id, tags))
}

// Apply validates a PATCH body and applies each present field in turn.
// Fields are written one statement at a time; a concurrent delete between
// them yields NotFound.
func (m *Mutator) Apply(ctx context.Context, id int64, patch types.SubmissionPatch) (Result, error) {
	if errs := validation.ValidatePatch(patch); len(errs) > 0 {
		return Result{Outcome: InvalidValue, Errors: errs}, nil
	}

	if _, err := m.store.GetSubmission(ctx, id); err != nil {
		return classify(err)
	}

	if patch.Status != nil {
		if err := m.store.UpdateStatus(ctx, id, types.Status(*patch.Status)); err != nil {
			return classify(err)
		}
	}
	if patch.Priority != nil {
		if err := m.store.UpdatePriority(ctx, id, types.Priority(*patch.Priority)); err != nil {
			return classify(err)
		}
	}
	if patch.Tags != nil {
		tags := validation.NormalizeTags(*patch.Tags, m.maxTags, m.tagMax)
		if err := m.store.UpdateTags(ctx, id, tags); err != nil {
			return classify(err)
		}
	}

	return m.single(ctx, id, nil)
}

// Delete permanently removes one submission.
func (m *Mutator) Delete(ctx context.Context, id int64) (Result, error) {
	if err := m.store.DeleteSubmission(ctx, id); err != nil {
		return classify(err)
	}
	return Result{Outcome: Updated, Affected: 1}, nil
}

// Bulk applies a delete or status change to every listed id in one
// transaction. Missing ids are excluded from Affected, not reported.
func (m *Mutator) Bulk(ctx context.Context, req types.BulkRequest) (Result, error) {
	if errs := validation.ValidateBulkRequest(req, m.maxBulk); len(errs) > 0 {
		return Result{Outcome: InvalidValue, Errors: errs}, nil
	}

	var affected int64
	var err error
	if req.Action == types.BulkActionDelete {
		affected, err = m.store.BulkDelete(ctx, req.IDs)
	} else {
		affected, err = m.store.BulkUpdateStatus(ctx, req.IDs, types.Status(req.Action))
	}
	if err != nil {
		return classify(err)
	}
	return Result{Outcome: Updated, Affected: affected}, nil
}

// single finishes a one-row mutation by re-reading the row.
func (m *Mutator) single(ctx context.Context, id int64, err error) (Result, error) {
	if err != nil {
		return classify(err)
	}
	sub, err := m.store.GetSubmission(ctx, id)
	if err != nil {
		return classify(err)
	}
	return Result{Outcome: Updated, Submission: sub, Affected: 1}, nil
}

func invalid(errs ...validation.ValidationError) Result {
	return Result{Outcome: InvalidValue, Errors: errs}
}

// classify maps expected store errors to outcomes and passes anything else through.
func classify(err error) (Result, error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return Result{Outcome: NotFound}, nil
	case errors.Is(err, store.ErrInvalidStatus):
		return invalid(validation.ValidationError{
			Field: "status", Reason: validation.ReasonInvalidValue, Message: "invalid status",
		}), nil
	case errors.Is(err, store.ErrInvalidPriority):
		return invalid(validation.ValidationError{
			Field: "priority", Reason: validation.ReasonInvalidValue, Message: "invalid priority",
		}), nil
	default:
		return Result{}, err
	}
}
