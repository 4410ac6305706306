package tree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirective(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Directive
		wantErr bool
	}{
		{in: "", want: Merge},
		{in: "merge", want: Merge},
		{in: "Append", want: Append},
		{in: " OVERRIDE ", want: Override},
		{in: "remove", want: Remove},
		{in: "defaults", want: Defaults},
		{in: "replace", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseDirective(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDirective)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLiftDirectives(t *testing.T) {
	t.Parallel()

	root := New("a").Add(
		New("b", "combine", "override", "x", "1"),
		New("c").Add(New("d", "combine", "REMOVE")),
	)
	require.NoError(t, LiftDirectives(root))

	b := root.Children[0]
	assert.Equal(t, Override, b.Directive)
	_, has := b.Attr(CombineAttr)
	assert.False(t, has)
	assert.Equal(t, []Attr{{Name: "x", Value: "1"}}, b.Attrs)
	assert.Equal(t, Remove, root.Children[1].Children[0].Directive)

	bad := New("a").Add(New("b", "combine", "sideways"))
	err := LiftDirectives(bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDirective))
	assert.Contains(t, err.Error(), "/a/b")
}

func TestNode_CloneIsDeep(t *testing.T) {
	t.Parallel()

	orig := New("a", "k", "v").Add(New("b").WithText("t"))
	cp := orig.Clone()
	require.True(t, orig.Equal(cp))

	cp.SetAttr("k", "changed")
	cp.Children[0].Text = "other"
	assert.Equal(t, "v", mustAttr(t, orig, "k"))
	assert.Equal(t, "t", orig.Children[0].Text)
	assert.False(t, orig.Equal(cp))
}

func TestNode_AttrHelpers(t *testing.T) {
	t.Parallel()

	n := New("svc", "id", "main", "port", "80")
	assert.Equal(t, "main", n.ID())
	assert.Equal(t, "svc#main", n.Key())

	n.SetAttr("port", "81")
	n.SetAttr("host", "localhost")
	assert.Equal(t, []Attr{{"id", "main"}, {"port", "81"}, {"host", "localhost"}}, n.Attrs)

	assert.True(t, n.DeleteAttr("id"))
	assert.False(t, n.DeleteAttr("id"))
	assert.Equal(t, "svc", n.Key())
}

func TestNode_WalkPaths(t *testing.T) {
	t.Parallel()

	root := New("app").Add(
		New("server", "id", "web").Add(New("connector")),
		New("store"),
	)
	var paths []string
	require.NoError(t, root.Walk(func(path string, _ *Node) error {
		paths = append(paths, path)
		return nil
	}))
	assert.Equal(t, []string{"/app", "/app/server#web", "/app/server#web/connector", "/app/store"}, paths)
}

func TestNode_String(t *testing.T) {
	t.Parallel()

	root := New("a", "b", "v2").Add(New("c").WithText("x < y"), New("d"))
	want := "<a b=\"v2\">\n  <c>x &lt; y</c>\n  <d/>\n</a>\n"
	assert.Equal(t, want, root.String())

	quoted := New("db", "url", "a=1&b=2", "note", `say "hi"`, "lines", "x\ny<z").WithDirective(Override)
	assert.Equal(t,
		"<db url=\"a=1&amp;b=2\" note=\"say &quot;hi&quot;\" lines=\"x&#xA;y&lt;z\" combine=\"OVERRIDE\"/>\n",
		quoted.String())
}

func mustAttr(t *testing.T, n *Node, name string) string {
	t.Helper()
	v, ok := n.Attr(name)
	require.True(t, ok, "attribute %q missing", name)
	return v
}
