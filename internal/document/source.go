package document

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/vk/conflux/internal/ctxlog"
	"github.com/vk/conflux/internal/fsutil"
	"github.com/vk/conflux/internal/tree"
)

// Source yields one or more configuration documents, in merge order.
type Source interface {
	Load(ctx context.Context, fs afero.Fs) ([]*tree.Node, error)
	String() string
}

// File is a single document on disk; its format follows the file extension.
func File(path string) Source { return fileSource{path: path} }

// Inline is a document held in memory, such as built-in defaults.
func Inline(name string, format Format, text string) Source {
	return inlineSource{name: name, format: format, text: text}
}

// Dir loads every recognised document below path, recursively, in lexical
// path order. Naming files `10-base.xml`, `20-site.yaml` and so on controls
// precedence.
func Dir(path string) Source { return dirSource{path: path} }

// LoadAll loads the sources in order and returns their documents flattened.
func LoadAll(ctx context.Context, fs afero.Fs, sources ...Source) ([]*tree.Node, error) {
	logger := ctxlog.FromContext(ctx)
	var docs []*tree.Node
	for _, src := range sources {
		loaded, err := src.Load(ctx, fs)
		if err != nil {
			return nil, err
		}
		logger.Debug("Configuration source loaded.", "source", src.String(), "documents", len(loaded))
		docs = append(docs, loaded...)
	}
	return docs, nil
}

type fileSource struct {
	path string
}

func (s fileSource) String() string { return s.path }

func (s fileSource) Load(_ context.Context, fs afero.Fs) ([]*tree.Node, error) {
	doc, err := loadFile(fs, s.path)
	if err != nil {
		return nil, err
	}
	return []*tree.Node{doc}, nil
}

type inlineSource struct {
	name   string
	format Format
	text   string
}

func (s inlineSource) String() string { return s.name }

func (s inlineSource) Load(context.Context, afero.Fs) ([]*tree.Node, error) {
	doc, err := Parse(s.name, s.format, []byte(s.text))
	if err != nil {
		return nil, err
	}
	return []*tree.Node{doc}, nil
}

type dirSource struct {
	path string
}

func (s dirSource) String() string { return s.path + "/" }

func (s dirSource) Load(ctx context.Context, fs afero.Fs) ([]*tree.Node, error) {
	files, err := fsutil.FindFilesByExtension(fs, s.path, Extensions...)
	if err != nil {
		return nil, fmt.Errorf("scanning configuration directory %s: %w", s.path, err)
	}
	ctxlog.FromContext(ctx).Debug("Discovered configuration files.", "dir", s.path, "count", len(files))

	docs := make([]*tree.Node, 0, len(files))
	for _, f := range files {
		doc, err := loadFile(fs, f)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func loadFile(fs afero.Fs, path string) (*tree.Node, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration file %s: %w", path, err)
	}
	return Parse(path, format, data)
}
