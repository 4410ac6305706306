// Package httpclient provides a stateful, shareable HTTP client service and a
// probe service that makes a single request through it on start.
package httpclient

import (
	"github.com/vk/conflux/internal/materialize"
	"github.com/vk/conflux/internal/service"
)

// Capability is published by Client as a *http.Client.
const Capability service.Capability = "http.client"

// Module registers the http_client and http_probe kinds.
type Module struct{}

func (m *Module) Register(r *materialize.Registry) {
	r.RegisterKind("http_client", func() service.Service { return &Client{} })
	r.RegisterKind("http_probe", newProbe)
}
