package materialize

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/vk/conflux/internal/ctxlog"
)

// Validate reports every kind whose Go type cannot be materialized: a
// factory that does not return a struct pointer, malformed `cfg` tags, or
// field types go-cty cannot convert to. All problems are returned together.
func (r *Registry) Validate(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	var errs error
	for _, name := range r.order {
		k := r.kinds[name]
		if k.err != nil {
			errs = multierr.Append(errs, fmt.Errorf("kind '%s': %w", name, k.err))
			continue
		}
		for _, f := range k.fields {
			if f.mode != modeAttr || f.def == "" {
				continue
			}
			if err := checkDefault(k, f); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("kind '%s', field '%s': invalid default %q: %w", name, f.goName, f.def, err))
			}
		}
	}

	if errs != nil {
		return fmt.Errorf("registry validation failed: %w", errs)
	}
	logger.Debug("Registry validated.", "count", len(r.order), "kinds", r.order)
	return nil
}

// checkDefault converts the default of f into a scratch instance of k.
func checkDefault(k *Kind, f fieldSpec) error {
	scratch := k.New()
	return assign(fieldOf(scratch, f), f.def)
}
