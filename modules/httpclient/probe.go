package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/vk/conflux/internal/ctxlog"
	"github.com/vk/conflux/internal/service"
)

// Probe is the `http_probe` service kind. It issues one request on start
// through the nearest http.client in scope (or the one marked default) and
// fails the start when the response status differs from the expected one.
type Probe struct {
	service.Base
	URL    string `cfg:"url,required"`
	Method string `cfg:"method" default:"GET"`
	Expect int    `cfg:"expect" default:"200"`

	client func() (any, error)
	result Result
}

// Result is the outcome of the last request.
type Result struct {
	StatusCode int
	Body       string
}

func newProbe() service.Service {
	p := &Probe{}
	p.Meta().Imports = []service.Import{{Capability: Capability, Mode: service.DependsOn}}
	return p
}

func (p *Probe) Configure(_ context.Context, b service.Binder) error {
	p.client = b.Lazy(Capability, "")
	return nil
}

func (p *Probe) Start(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Making HTTP request", "method", p.Method, "url", p.URL)

	v, err := p.client()
	if err != nil {
		return err
	}
	client, ok := v.(*http.Client)
	if !ok {
		return fmt.Errorf("import %s: value of type %T is not *http.Client", Capability, v)
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, p.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	logger.Info("Received HTTP response", "status", resp.Status)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	p.result = Result{StatusCode: resp.StatusCode, Body: string(body)}

	if resp.StatusCode != p.Expect {
		return fmt.Errorf("%s %s: got status %d, want %d", p.Method, p.URL, resp.StatusCode, p.Expect)
	}
	return nil
}

// Result returns the outcome of the request made on start.
func (p *Probe) Result() Result { return p.result }
