package materialize

import "github.com/vk/conflux/internal/service"

// Group is a plain container kind. It has no attributes of its own and only
// holds sub-services and imports.
type Group struct {
	service.Base
}

// NewGroup is the Factory for Group.
func NewGroup() service.Service { return &Group{} }
