package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerScaffold(t *testing.T) {
	engine, err := New()
	require.NoError(t, err)

	out, err := engine.Handler("js", HandlerData{Export: "handler", Function: "orders"})
	require.NoError(t, err)
	assert.Contains(t, out, "exports.handler = (event, context, callback)")
	assert.Contains(t, out, "hello from orders")

	out, err = engine.Handler("py", HandlerData{Export: "main", Function: "orders"})
	require.NoError(t, err)
	assert.Contains(t, out, "def main(event, context):")
}

func TestBootstrapQuotesPaths(t *testing.T) {
	engine, err := Default()
	require.NoError(t, err)

	out, err := engine.Bootstrap("py", BootstrapData{
		SourceDir: `/tmp/my "project"/src`,
		Module:    "app",
		Export:    "lambda_handler",
	})
	require.NoError(t, err)
	assert.Contains(t, out, `sys.path.insert(0, "/tmp/my \"project\"/src")`)
	assert.Contains(t, out, `importlib.import_module("app")`)
}

func TestQuoteProducesPortableLiterals(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "app", want: `"app"`},
		{in: `C:\src\"x"`, want: `"C:\\src\\\"x\""`},
		{in: "a\tb\n", want: `"a\tb\n"`},
		{in: "tag\U000e0001", want: "\"tag\U000e0001\""},
		{in: "next\u0085line", want: "\"next\u0085line\""},
		{in: "a<b>&c", want: `"a<b>&c"`},
	}
	for _, tt := range tests {
		got, err := quote(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
		assert.NotContains(t, got, `\U`)
	}
}

func TestDefaultIsShared(t *testing.T) {
	a, err := Default()
	require.NoError(t, err)
	b, err := Default()
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestUnsupportedLanguage(t *testing.T) {
	engine, err := New()
	require.NoError(t, err)

	assert.True(t, engine.Supports("js"))
	assert.True(t, engine.Supports("PY"))
	assert.False(t, engine.Supports("rb"))

	_, err = engine.Handler("rb", HandlerData{})
	require.ErrorIs(t, err, ErrNoTemplate)

	var nilEngine *Engine
	_, err = nilEngine.Bootstrap("js", BootstrapData{})
	assert.Error(t, err)
	assert.False(t, nilEngine.Supports("js"))
}
