// Package resolve dispatches classified errors to category-specific
// automated resolution strategies.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

// Strategy attempts automated fixes for errors of one category.
type Strategy interface {
	// Category is the category this strategy handles.
	Category() taxonomy.Category
	// Resolve attempts each error independently.
	Resolve(ctx context.Context, errs []taxonomy.BuildError) CategoryResult
}

// CategoryResult is the outcome of one strategy over one category batch.
type CategoryResult struct {
	Category   taxonomy.Category     `json:"category"`
	Resolved   []taxonomy.BuildError `json:"resolved"`
	Unresolved []taxonomy.BuildError `json:"unresolved"`
	Actions    []string              `json:"actions,omitempty"`
}

// Total returns the number of errors in the batch.
func (r CategoryResult) Total() int {
	return len(r.Resolved) + len(r.Unresolved)
}

// Result aggregates the per-category outcomes of one resolution run.
type Result struct {
	Categories []CategoryResult `json:"categories"`
}

// Resolved returns the number of resolved errors across all categories.
func (r *Result) Resolved() int {
	n := 0
	for _, c := range r.Categories {
		n += len(c.Resolved)
	}
	return n
}

// Total returns the number of errors across all categories.
func (r *Result) Total() int {
	n := 0
	for _, c := range r.Categories {
		n += c.Total()
	}
	return n
}

// SuccessRate is resolved/total, defined as 1.0 when there were no errors.
func (r *Result) SuccessRate() float64 {
	total := r.Total()
	if total == 0 {
		return 1.0
	}
	return float64(r.Resolved()) / float64(total)
}

// Unresolved returns every unresolved error in category order.
func (r *Result) Unresolved() []taxonomy.BuildError {
	var out []taxonomy.BuildError
	for _, c := range r.Categories {
		out = append(out, c.Unresolved...)
	}
	return out
}

// Registry maps categories to strategies. Build one per pipeline; it holds
// no global state.
type Registry struct {
	strategies map[taxonomy.Category]Strategy
}

// NewRegistry creates a registry from the given strategies. A later
// strategy for the same category replaces an earlier one.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[taxonomy.Category]Strategy, len(strategies))}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

// Register adds or replaces the strategy for its category.
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Category()] = s
}

// Lookup returns the strategy for category, if registered.
func (r *Registry) Lookup(category taxonomy.Category) (Strategy, bool) {
	s, ok := r.strategies[category]
	return s, ok
}

// Categories returns the registered categories in taxonomy order.
func (r *Registry) Categories() []taxonomy.Category {
	out := make([]taxonomy.Category, 0, len(r.strategies))
	for c := range r.strategies {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Resolve groups errs by category (in first-seen order) and hands each group
// to its strategy. Groups without a strategy are reported unresolved.
func (r *Registry) Resolve(ctx context.Context, errs []taxonomy.BuildError) *Result {
	result := &Result{}

	var order []taxonomy.Category
	groups := make(map[taxonomy.Category][]taxonomy.BuildError)
	for _, e := range errs {
		if _, ok := groups[e.Category]; !ok {
			order = append(order, e.Category)
		}
		groups[e.Category] = append(groups[e.Category], e)
	}

	for _, category := range order {
		batch := groups[category]
		strategy, ok := r.Lookup(category)
		if !ok {
			slog.Warn("no resolution strategy registered", "category", category, "errors", len(batch))
			result.Categories = append(result.Categories, CategoryResult{
				Category:   category,
				Unresolved: batch,
				Actions:    []string{fmt.Sprintf("no strategy registered for %s", category)},
			})
			continue
		}

		cr := safeResolve(ctx, strategy, batch)
		slog.Info("resolution attempted",
			"category", category,
			"resolved", len(cr.Resolved),
			"unresolved", len(cr.Unresolved))
		result.Categories = append(result.Categories, cr)
	}

	return result
}

// safeResolve guards against a strategy that panics or loses errors: any
// error not accounted for in the strategy's result is reported unresolved.
func safeResolve(ctx context.Context, s Strategy, batch []taxonomy.BuildError) (cr CategoryResult) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("resolution strategy panicked", "category", s.Category(), "panic", rec)
			cr = CategoryResult{
				Category:   s.Category(),
				Unresolved: batch,
				Actions:    []string{fmt.Sprintf("strategy panicked: %v", rec)},
			}
		}
	}()

	cr = s.Resolve(ctx, batch)
	cr.Category = s.Category()

	seen := make(map[string]bool, cr.Total())
	resolved := cr.Resolved[:0:0]
	for _, e := range cr.Resolved {
		if !seen[e.ID] {
			seen[e.ID] = true
			resolved = append(resolved, e)
		}
	}
	unresolved := cr.Unresolved[:0:0]
	for _, e := range cr.Unresolved {
		if !seen[e.ID] {
			seen[e.ID] = true
			unresolved = append(unresolved, e)
		}
	}
	for _, e := range batch {
		if !seen[e.ID] {
			seen[e.ID] = true
			unresolved = append(unresolved, e)
		}
	}
	cr.Resolved, cr.Unresolved = resolved, unresolved
	return cr
}

// FixFunc attempts to fix one error. It returns a description of the action
// taken and whether the error is now resolved.
type FixFunc func(ctx context.Context, e taxonomy.BuildError) (action string, resolved bool, err error)

// ResolveEach applies fix to every error independently. An error or panic
// while fixing one error marks only that error unresolved.
func ResolveEach(ctx context.Context, category taxonomy.Category, errs []taxonomy.BuildError, fix FixFunc) CategoryResult {
	cr := CategoryResult{Category: category}
	for _, e := range errs {
		if ctx.Err() != nil {
			cr.Unresolved = append(cr.Unresolved, e)
			continue
		}
		action, ok, err := attempt(ctx, e, fix)
		if action != "" {
			cr.Actions = append(cr.Actions, action)
		}
		if err != nil {
			slog.Debug("fix attempt failed", "category", category, "error_id", e.ID, "err", err)
			cr.Actions = append(cr.Actions, fmt.Sprintf("fix for %q failed: %v", e.Message, err))
			ok = false
		}
		if ok {
			cr.Resolved = append(cr.Resolved, e)
		} else {
			cr.Unresolved = append(cr.Unresolved, e)
		}
	}
	return cr
}

func attempt(ctx context.Context, e taxonomy.BuildError, fix FixFunc) (action string, ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fix(ctx, e)
}
