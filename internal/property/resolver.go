package property

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
)

// ErrNotFound is returned by a Resolver that cannot supply a property.
var ErrNotFound = errors.New("property not found")

// Resolver supplies property values by name. Implementations return an error
// wrapping ErrNotFound when they do not know the name; any other error aborts
// resolution.
type Resolver interface {
	Resolve(name string) (string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(name string) (string, error)

func (f ResolverFunc) Resolve(name string) (string, error) { return f(name) }

// Map is a fixed set of properties.
type Map map[string]string

func (m Map) Resolve(name string) (string, error) {
	if v, ok := m[name]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, name)
}

// chain tries each resolver in order; the first one that knows the name wins.
type chain []Resolver

// Chain composes resolvers so that the first success wins. Errors other than
// ErrNotFound stop the search.
func Chain(resolvers ...Resolver) Resolver {
	flat := make(chain, 0, len(resolvers))
	for _, r := range resolvers {
		if r == nil {
			continue
		}
		if c, ok := r.(chain); ok {
			flat = append(flat, c...)
			continue
		}
		flat = append(flat, r)
	}
	return flat
}

func (c chain) Resolve(name string) (string, error) {
	for _, r := range c {
		v, err := r.Resolve(name)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Env resolves properties from the process environment. A name is looked up
// verbatim first, then in its conventional variable form: upper case, with
// dots and dashes turned into underscores and the optional prefix prepended
// (`app.port` with prefix `CONFLUX_` becomes `CONFLUX_APP_PORT`).
type Env struct {
	Prefix string
	// Lookup replaces os.LookupEnv, mainly for tests.
	Lookup func(string) (string, bool)
}

var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

func (e Env) Resolve(name string) (string, error) {
	lookup := e.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(name); ok {
		return v, nil
	}
	key := e.Prefix + strings.ToUpper(envKeyReplacer.Replace(name))
	if v, ok := lookup(key); ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Dotenv reads a .env style file into a Map. A missing file yields an empty
// Map, so optional env files can be configured unconditionally.
func Dotenv(fs afero.Fs, path string) (Map, error) {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Map{}, nil
		}
		return nil, fmt.Errorf("opening env file %s: %w", path, err)
	}
	defer f.Close()
	return parseDotenv(f, path)
}

func parseDotenv(r io.Reader, path string) (Map, error) {
	values, err := godotenv.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing env file %s: %w", path, err)
	}
	return Map(values), nil
}
