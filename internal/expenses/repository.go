// Package expenses implements the expense repository on top of a document
// store. Every mutation is followed by a full re-fetch so callers always hold
// the store's current view.
package expenses

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"spendbook/internal/core"
	"spendbook/internal/docstore"
	applog "spendbook/internal/log"
)

// Collection is the store collection holding expenses.
const Collection = "expenses"

// EventPublisher is notified after successful mutations.
type EventPublisher interface {
	PublishExpenseCreated(ctx context.Context, id string, e core.Expense) error
	PublishExpenseDeleted(ctx context.Context, id string) error
}

type Repository struct {
	store     docstore.Store
	publisher EventPublisher
	logger    *applog.Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithPublisher sends change events to p.
func WithPublisher(p EventPublisher) Option {
	return func(r *Repository) {
		r.publisher = p
	}
}

// WithLogger replaces the default logger.
func WithLogger(l *applog.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRepository(store docstore.Store, opts ...Option) *Repository {
	r := &Repository{
		store:  store,
		logger: applog.Default().WithComponent(applog.ComponentExpense),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List returns every expense, most recent first. A store failure is logged
// and reported as an empty list.
func (r *Repository) List(ctx context.Context) []core.Expense {
	items, err := r.load(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to read expenses",
			applog.FieldOperation, applog.OpList,
			applog.FieldError, err)
		return []core.Expense{}
	}
	r.logger.DebugContext(ctx, "Expenses loaded", "count", len(items))
	return items
}

// Create stores e under a store-assigned id and returns the refreshed list.
// e.ID is ignored. On failure the list is empty and the error wraps
// docstore.ErrStoreUnavailable.
func (r *Repository) Create(ctx context.Context, e core.Expense) ([]core.Expense, error) {
	id, err := r.store.Create(ctx, Collection, toFields(e))
	if err != nil {
		err = wrapStoreError("create expense", err)
		r.logger.ErrorContext(ctx, "Failed to create expense",
			applog.FieldOperation, applog.OpCreate,
			applog.FieldAmount, e.Amount,
			applog.FieldCategory, e.Category,
			applog.FieldError, err)
		return []core.Expense{}, err
	}

	r.logger.InfoContext(ctx, "Expense created",
		applog.FieldOperation, applog.OpCreate,
		applog.FieldExpenseID, id,
		applog.FieldAmount, e.Amount,
		applog.FieldCategory, e.Category)

	if r.publisher != nil {
		e.ID = id
		if err := r.publisher.PublishExpenseCreated(ctx, id, e); err != nil {
			r.logger.WarnContext(ctx, "Failed to publish expense event",
				applog.FieldOperation, applog.OpPublish,
				applog.FieldExpenseID, id,
				applog.FieldError, err)
		}
	}

	return r.List(ctx), nil
}

// Delete removes the expense with the given id and returns the refreshed
// list. Deleting an unknown id is not an error.
func (r *Repository) Delete(ctx context.Context, id string) ([]core.Expense, error) {
	if err := r.store.Delete(ctx, Collection, id); err != nil {
		err = wrapStoreError("delete expense", err)
		r.logger.ErrorContext(ctx, "Failed to delete expense",
			applog.FieldOperation, applog.OpDelete,
			applog.FieldExpenseID, id,
			applog.FieldError, err)
		return []core.Expense{}, err
	}

	r.logger.InfoContext(ctx, "Expense deleted",
		applog.FieldOperation, applog.OpDelete,
		applog.FieldExpenseID, id)

	if r.publisher != nil {
		if err := r.publisher.PublishExpenseDeleted(ctx, id); err != nil {
			r.logger.WarnContext(ctx, "Failed to publish expense event",
				applog.FieldOperation, applog.OpPublish,
				applog.FieldExpenseID, id,
				applog.FieldError, err)
		}
	}

	return r.List(ctx), nil
}

func (r *Repository) load(ctx context.Context) ([]core.Expense, error) {
	docs, err := r.store.List(ctx, Collection)
	if err != nil {
		return nil, wrapStoreError("list expenses", err)
	}
	items := make([]core.Expense, 0, len(docs))
	for _, d := range docs {
		items = append(items, fromDocument(d))
	}
	SortByRecent(items)
	return items, nil
}

// SortByRecent orders items by FullDate, most recent first. Undated items go
// last and ties keep their current order.
func SortByRecent(items []core.Expense) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].FullDate, items[j].FullDate
		if a.IsZero() || b.IsZero() {
			return !a.IsZero() && b.IsZero()
		}
		return a.After(b)
	})
}

func wrapStoreError(op string, err error) error {
	if errors.Is(err, docstore.ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return docstore.Unavailable(op, err)
}
