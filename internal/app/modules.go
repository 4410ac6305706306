package app

import (
	"github.com/vk/conflux/internal/materialize"
	"github.com/vk/conflux/modules/greeter"
	"github.com/vk/conflux/modules/health"
	"github.com/vk/conflux/modules/httpclient"
	"github.com/vk/conflux/modules/memstore"
)

// groupModule registers the plain container kinds.
type groupModule struct{}

func (groupModule) Register(r *materialize.Registry) {
	r.RegisterKind("app", materialize.NewGroup)
	r.RegisterKind("group", materialize.NewGroup)
}

// coreModules is the definitive list of all modules that are compiled into
// the conflux binary.
var coreModules = []materialize.Module{
	groupModule{},
	&memstore.Module{},
	&greeter.Module{},
	&health.Module{},
	&httpclient.Module{},
}

// CoreModules returns the compiled-in modules, for callers that want to
// extend rather than replace them.
func CoreModules() []materialize.Module {
	return append([]materialize.Module(nil), coreModules...)
}
