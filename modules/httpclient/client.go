package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/vk/conflux/internal/ctxlog"
	"github.com/vk/conflux/internal/service"
)

// Client is the `http_client` service kind: a shared, pooled *http.Client
// published for other services to import.
type Client struct {
	service.Base
	Timeout         time.Duration `cfg:"timeout" default:"30s"`
	MaxIdleConns    int           `cfg:"max-idle-conns" default:"100"`
	MaxIdlePerHost  int           `cfg:"max-idle-per-host" default:"10"`
	IdleConnTimeout time.Duration `cfg:"idle-timeout" default:"90s"`

	client *http.Client
}

func (c *Client) Provides() []service.Capability { return []service.Capability{Capability} }

// Configure builds the client and publishes it.
func (c *Client) Configure(ctx context.Context, b service.Binder) error {
	c.client = &http.Client{
		Timeout: c.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        c.MaxIdleConns,
			MaxIdleConnsPerHost: c.MaxIdlePerHost,
			IdleConnTimeout:     c.IdleConnTimeout,
		},
	}
	ctxlog.FromContext(ctx).Debug("HTTP client created.", "timeout", c.Timeout)
	return b.Publish(Capability, c.client)
}

// Close releases idle connections.
func (c *Client) Close() error {
	if c.client != nil {
		c.client.CloseIdleConnections()
	}
	return nil
}
