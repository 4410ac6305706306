// Package materialize turns the effective configuration tree into a forest of
// typed services.
//
// Modules register service kinds with the Registry. Each kind is a factory
// returning a pointer to a struct; exported fields tagged `cfg` receive
// configuration:
//
//	type Server struct {
//		service.Base
//		Port    int           `cfg:"port,required"`
//		Timeout time.Duration `cfg:"timeout" default:"5s"`
//		Routes  []*Route      `cfg:"route,elem"`
//		Store   Store         `cfg:"store,ref"`
//	}
//
// Plain fields read the attribute of the same name, converted with go-cty.
// `elem` fields receive the sub-services built from child elements with that
// tag. `ref` fields name another identified service by its id; they are
// resolved in a second pass once the whole forest exists, and each resolved
// reference orders the target before the referring service.
package materialize
