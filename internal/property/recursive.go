package property

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// MaxDepth bounds how many nested resolutions a single lookup may perform.
const MaxDepth = 64

var (
	// ErrCycle is matched by every CycleError.
	ErrCycle = errors.New("property resolution cycle")
	// ErrTooDeep is returned when recursive expansion exceeds MaxDepth.
	ErrTooDeep = errors.New("property resolution too deep")
)

// CycleError reports a property whose value transitively refers back to
// itself. Chain lists the names in resolution order, ending with the repeat.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("property resolution cycle: %s", strings.Join(e.Chain, " -> "))
}

func (e *CycleError) Is(target error) bool { return target == ErrCycle }

// RecursiveResolver re-expands resolved values that contain further
// references, using the same resolver for the nested lookups.
type RecursiveResolver struct {
	inner Resolver
}

// Recursive decorates r so that its values are expanded recursively. Each
// top-level Resolve call tracks its own resolution path, so a name may be
// used many times as long as it never appears inside its own expansion.
func Recursive(r Resolver) *RecursiveResolver {
	return &RecursiveResolver{inner: r}
}

func (r *RecursiveResolver) Resolve(name string) (string, error) {
	return r.resolve(name, nil)
}

func (r *RecursiveResolver) resolve(name string, path []string) (string, error) {
	if slices.Contains(path, name) {
		return "", &CycleError{Chain: append(slices.Clone(path), name)}
	}
	if len(path) >= MaxDepth {
		return "", fmt.Errorf("%w: %s", ErrTooDeep, strings.Join(path, " -> "))
	}

	v, err := r.inner.Resolve(name)
	if err != nil {
		return "", err
	}
	if !ContainsRef(v) {
		return v, nil
	}

	next := append(slices.Clone(path), name)
	return expand(Parse(v), func(n string) (string, error) {
		return r.resolve(n, next)
	}, false)
}
