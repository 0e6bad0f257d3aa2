package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requirePython(t *testing.T) string {
	t.Helper()
	bin, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not available")
	}
	return bin
}

func writeModule(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestProcessResolverPython(t *testing.T) {
	bin := requirePython(t)
	dir := t.TempDir()
	writeModule(t, dir, "index.py", `
def handler(event, context):
    print("received", event.get("name"))
    return {"greeting": "hello " + event.get("name", "nobody")}

def failing(event, context):
    raise ValueError("bad name")
`)

	var logs bytes.Buffer
	p := &ProcessResolver{SourceDir: dir, Runtime: "python3.6", Python: bin, Stderr: &logs}

	out, err := NewLocal(p).Run(context.Background(), "index.handler", json.RawMessage(`{"name":"lmb"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"greeting":"hello lmb"}`, string(out))
	assert.Contains(t, logs.String(), "received lmb")

	_, err = NewLocal(p).Run(context.Background(), "index.failing", nil)
	require.Error(t, err)
	assert.Equal(t, "bad name", err.Error())

	_, err = NewLocal(p).Run(context.Background(), "index.missing", nil)
	require.ErrorIs(t, err, ErrHandlerNotFound)
}

func TestProcessResolverNestedPythonModule(t *testing.T) {
	bin := requirePython(t)
	dir := t.TempDir()
	writeModule(t, dir, "lib/__init__.py", "")
	writeModule(t, dir, "lib/api.py", `
def main(event, context):
    return event
`)

	p := &ProcessResolver{SourceDir: dir, Runtime: "python3.6", Python: bin}
	out, err := NewLocal(p).Run(context.Background(), "lib/api.main", json.RawMessage(`[1,2,3]`))
	require.NoError(t, err)
	assert.Equal(t, `[1,2,3]`, string(out))
}

func TestProcessResolverMissingModule(t *testing.T) {
	p := &ProcessResolver{SourceDir: t.TempDir(), Runtime: "nodejs6.10"}
	_, err := p.Resolve(HandlerRef{Module: "index", Export: "handler"})
	require.ErrorIs(t, err, ErrHandlerNotFound)
}

func TestProcessResolverUnsupportedRuntime(t *testing.T) {
	p := &ProcessResolver{SourceDir: t.TempDir(), Runtime: "java8"}
	_, err := p.Resolve(HandlerRef{Module: "index", Export: "handler"})
	require.ErrorIs(t, err, ErrRuntimeUnsupported)

	_, err = Chain{NewRegistry(), p}.Resolve(HandlerRef{Module: "index", Export: "handler"})
	require.ErrorIs(t, err, ErrRuntimeUnsupported)
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "", lastLine(""))
	assert.Equal(t, "only", lastLine("only\n"))
	assert.Equal(t, "last", lastLine("first\r\n  last  \r\n"))
}
