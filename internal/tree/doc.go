// Package tree defines the format-agnostic configuration element model shared
// by the document loaders, the merger and the property filter.
//
// A Node is an element with a tag name, ordered attributes, ordered children,
// optional text content and a merge Directive. The reserved `combine`
// attribute is lifted into Directive when a document is loaded; the `id`
// attribute correlates the same logical element across layered documents.
package tree
