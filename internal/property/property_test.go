package property

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/conflux/internal/tree"
)

func TestFilter_Simple(t *testing.T) {
	t.Parallel()

	got, err := Filter("${testKey}", Map{"testKey": "testValue"})
	require.NoError(t, err)
	assert.Equal(t, "testValue", got)
}

func TestFilter_Table(t *testing.T) {
	t.Parallel()

	props := Map{
		"host":     "localhost",
		"port":     "8080",
		"env":      "prod",
		"db_prod":  "pg://prod",
		"db_test":  "pg://test",
		"fallback": "fb",
		"empty":    "",
	}

	testCases := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain text", in: "no refs here", want: "no refs here"},
		{name: "embedded", in: "http://${host}:${port}/", want: "http://localhost:8080/"},
		{name: "nested name", in: "${db_${env}}", want: "pg://prod"},
		{name: "oneof first wins", in: "${oneof:missing,host,port}", want: "localhost"},
		{name: "oneof empty fallback", in: "[${oneof:missing,other,}]", want: "[]"},
		{name: "oneof nested candidate", in: "${oneof:db_${nope},db_${env}}", want: "pg://prod"},
		{name: "empty value", in: "a${empty}b", want: "ab"},
		{name: "unbalanced is literal", in: "cost ${ 5", want: "cost ${ 5"},
		{name: "lone dollar", in: "$5 and ${port}", want: "$5 and 8080"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Filter(tc.in, props)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFilter_Unresolved(t *testing.T) {
	t.Parallel()

	_, err := Filter("x=${missing}", Map{})
	require.Error(t, err)
	var uErr *UnresolvedError
	require.True(t, errors.As(err, &uErr))
	assert.Equal(t, "missing", uErr.Name)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Filter("${oneof:a,b}", Map{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFilter_KeepUnresolved(t *testing.T) {
	t.Parallel()

	got, err := Filter("${known}/${missing}/${oneof:x,y}", Map{"known": "k"}, KeepUnresolved())
	require.NoError(t, err)
	assert.Equal(t, "k/${missing}/${oneof:x,y}", got)
}

func TestFilter_Idempotent(t *testing.T) {
	t.Parallel()

	r := Map{"a": "1"}
	once, err := Filter("v=${a}", r)
	require.NoError(t, err)
	twice, err := Filter(once, r)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestFilter_ResolverFailureAborts(t *testing.T) {
	t.Parallel()

	boom := errors.New("backend down")
	r := Chain(ResolverFunc(func(string) (string, error) { return "", boom }), Map{"a": "1"})

	_, err := Filter("${oneof:a,}", r)
	assert.ErrorIs(t, err, boom)

	_, err = Filter("${a}", r, KeepUnresolved())
	assert.ErrorIs(t, err, boom, "keep-unresolved must not hide resolver failures")
}

func TestRecursive(t *testing.T) {
	t.Parallel()

	r := Recursive(Map{
		"first":  "value",
		"second": "${first} ${first}",
		"third":  "${second} ${first}",
	})

	got, err := Filter("${third}", r)
	require.NoError(t, err)
	assert.Equal(t, "value value value", got)
}

func TestRecursive_Cycle(t *testing.T) {
	t.Parallel()

	r := Recursive(Map{
		"first":  "${third}",
		"second": "${first}",
		"third":  "${second}",
	})

	_, err := Filter("${third}", r)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycle)

	var cErr *CycleError
	require.True(t, errors.As(err, &cErr))
	assert.Equal(t, []string{"third", "second", "first", "third"}, cErr.Chain)
}

func TestRecursive_SelfReference(t *testing.T) {
	t.Parallel()

	_, err := Recursive(Map{"a": "x${a}"}).Resolve("a")
	assert.ErrorIs(t, err, ErrCycle)
}

func TestRecursive_OneOfSkipsCycleFree(t *testing.T) {
	t.Parallel()

	r := Recursive(Map{
		"port":         "${oneof:app.port,default.port}",
		"default.port": "80",
	})
	got, err := Filter("${port}", r)
	require.NoError(t, err)
	assert.Equal(t, "80", got)
}

func TestChain_Precedence(t *testing.T) {
	t.Parallel()

	r := Chain(Map{"a": "user"}, nil, Chain(Map{"a": "home", "b": "home"}, Map{"c": "env"}))

	for name, want := range map[string]string{"a": "user", "b": "home", "c": "env"} {
		got, err := r.Resolve(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
	_, err := r.Resolve("d")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnv(t *testing.T) {
	t.Parallel()

	vars := map[string]string{"HOME": "/home/u", "CONFLUX_APP_PORT": "9000"}
	env := Env{Prefix: "CONFLUX_", Lookup: func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}}

	got, err := env.Resolve("HOME")
	require.NoError(t, err)
	assert.Equal(t, "/home/u", got)

	got, err = env.Resolve("app.port")
	require.NoError(t, err)
	assert.Equal(t, "9000", got)

	_, err = env.Resolve("app.host")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDotenv(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cfg/.env", []byte("# comment\nDB_URL=pg://local\nexport MODE=\"dev\"\n"), 0o644))

	m, err := Dotenv(fs, "/cfg/.env")
	require.NoError(t, err)
	assert.Equal(t, Map{"DB_URL": "pg://local", "MODE": "dev"}, m)

	m, err = Dotenv(fs, "/cfg/missing.env")
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestFilterTree(t *testing.T) {
	t.Parallel()

	root := tree.New("app", "name", "${name}").Add(
		tree.New("server", "id", "web", "port", "${port}").WithText("${greeting}, world"),
		tree.New("${literal-tag}"),
	)
	r := Map{"name": "demo", "port": "80", "greeting": "hello"}

	got, err := FilterTree(root, r)
	require.NoError(t, err)

	want := tree.New("app", "name", "demo").Add(
		tree.New("server", "id", "web", "port", "80").WithText("hello, world"),
		tree.New("${literal-tag}"),
	)
	assert.True(t, want.Equal(got), got.String())
	assert.Equal(t, "${name}", root.Attrs[0].Value, "input must not be modified")
}

func TestFilterTree_ErrorCarriesPath(t *testing.T) {
	t.Parallel()

	root := tree.New("app").Add(tree.New("server", "id", "web", "port", "${port}"))

	_, err := FilterTree(root, Map{})
	require.Error(t, err)

	var fErr *FilterError
	require.True(t, errors.As(err, &fErr))
	assert.Equal(t, "/app/server#web", fErr.Path)
	assert.Equal(t, "port", fErr.Attr)
	assert.Contains(t, err.Error(), "/app/server#web@port")
}
