package binding

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vk/conflux/internal/service"
)

var (
	// ErrNotReady is returned when a BindOnly import is read before the
	// configure phase has finished.
	ErrNotReady = errors.New("capability not available until all units are configured")
	// ErrUndeclared is returned when a unit reads a capability it did not import.
	ErrUndeclared = errors.New("capability was not declared as an import")
	// ErrUnbound is returned for optional imports that found no provider.
	ErrUnbound = errors.New("optional import has no provider")
)

// AmbiguousError reports an import that matches several providers at the
// same scope level, none of them marked as default.
type AmbiguousError struct {
	Unit       string
	Import     service.Import
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%s: import %s is ambiguous between %s; set an id or mark one provider default=\"true\"",
		e.Unit, e.Import, strings.Join(e.Candidates, ", "))
}

// MissingError reports a required import with no provider in scope.
type MissingError struct {
	Unit   string
	Import service.Import
	Reason string
}

func (e *MissingError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: import %s: %s", e.Unit, e.Import, e.Reason)
	}
	return fmt.Sprintf("%s: no provider for import %s in scope", e.Unit, e.Import)
}

// DuplicateError reports two sibling units with the same kind and id.
type DuplicateError struct {
	Parent string
	Kind   string
	ID     string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: duplicate %s with id %q", e.Parent, e.Kind, e.ID)
}

// AddressError reports a unit whose address is already held by another
// unit, which happens when an id contains '/', '#' or '['.
type AddressError struct {
	Addr  string
	Kind  string
	ID    string
	Other string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("%s: address of %s with id %q collides with a %s unit", e.Addr, e.Kind, e.ID, e.Other)
}

// Hint is a non-fatal finding of the planner, such as an optional import
// that stayed unbound.
type Hint struct {
	Unit   string
	Import service.Import
	Reason string
}

func (h Hint) String() string {
	return fmt.Sprintf("%s: import %s: %s", h.Unit, h.Import, h.Reason)
}
