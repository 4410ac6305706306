package app

import (
	"io"

	"github.com/spf13/afero"

	"github.com/vk/conflux/internal/binding"
	"github.com/vk/conflux/internal/document"
	"github.com/vk/conflux/internal/lifecycle"
	"github.com/vk/conflux/internal/materialize"
	"github.com/vk/conflux/internal/property"
)

// Option customizes an App.
type Option func(*App)

// WithSources adds configuration sources. They are merged before the paths
// listed in Config.Sources, so files named on the command line win.
func WithSources(sources ...document.Source) Option {
	return func(a *App) { a.sources = append(a.sources, sources...) }
}

// WithResolvers adds property resolvers consulted before the defaults.
func WithResolvers(resolvers ...property.Resolver) Option {
	return func(a *App) { a.resolvers = append(a.resolvers, resolvers...) }
}

// WithHome sets the home directories, overriding Config.Home.
func WithHome(h Home) Option {
	return func(a *App) { a.home = &h }
}

// WithBindings supplies capabilities from outside the service forest.
func WithBindings(extras ...binding.Extra) Option {
	return func(a *App) { a.extras = append(a.extras, extras...) }
}

// WithListeners registers lifecycle listeners.
func WithListeners(listeners ...lifecycle.Listener) Option {
	return func(a *App) { a.listeners = append(a.listeners, listeners...) }
}

// WithModules replaces the compiled-in service modules.
func WithModules(modules ...materialize.Module) Option {
	return func(a *App) { a.modules = modules }
}

// WithMaterializer replaces the default registry based materializer.
// Modules are ignored when a materializer is given.
func WithMaterializer(m materialize.Materializer) Option {
	return func(a *App) { a.materializer = m }
}

// WithFs sets the filesystem used for sources, home and env files.
func WithFs(fs afero.Fs) Option {
	return func(a *App) { a.fs = fs }
}

// WithOutput sets the log destination.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.outW = w }
}
