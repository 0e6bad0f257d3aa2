package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"lmb/pkg/render"
)

// ErrRuntimeUnsupported is returned for runtimes that cannot be run as a local process.
var ErrRuntimeUnsupported = errors.New("runtime cannot run locally")

const (
	exitHandlerFailed  = 1
	exitHandlerMissing = 2
)

type interpreter struct {
	bin  string
	flag string
	ext  string
}

// ProcessResolver runs nodejs and python handlers from the source directory through
// the runtime's interpreter, feeding the event on stdin.
type ProcessResolver struct {
	SourceDir string
	Runtime   string
	// Node and Python override the interpreter binaries.
	Node   string
	Python string
	// Stderr receives everything the handler logs.
	Stderr io.Writer
}

// Resolve implements Resolver.
func (p *ProcessResolver) Resolve(ref HandlerRef) (Handler, error) {
	interp, err := p.interpreter()
	if err != nil {
		return nil, err
	}
	srcDir, err := filepath.Abs(p.SourceDir)
	if err != nil {
		return nil, err
	}
	modulePath := filepath.Join(srcDir, filepath.FromSlash(ref.Module)+"."+interp.ext)
	if _, err := os.Stat(modulePath); err != nil {
		return nil, fmt.Errorf("%w: %s (%s)", ErrHandlerNotFound, ref, modulePath)
	}

	module := ref.Module
	if interp.ext == "py" {
		module = strings.ReplaceAll(module, "/", ".")
	} else {
		module = "./" + module
	}
	engine, err := render.Default()
	if err != nil {
		return nil, err
	}
	script, err := engine.Bootstrap(interp.ext, render.BootstrapData{
		SourceDir: srcDir,
		Module:    module,
		Export:    ref.Export,
	})
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, event json.RawMessage, _ *Context) (any, error) {
		return p.run(ctx, interp, srcDir, script, ref, event)
	}, nil
}

func (p *ProcessResolver) run(ctx context.Context, interp interpreter, dir, script string, ref HandlerRef, event json.RawMessage) (any, error) {
	var stdout, stderr bytes.Buffer
	logOut := p.Stderr
	if logOut == nil {
		logOut = io.Discard
	}

	cmd := exec.CommandContext(ctx, interp.bin, interp.flag, script)
	cmd.Dir = dir
	cmd.Stdin = bytes.NewReader(event)
	cmd.Stdout = &stdout
	cmd.Stderr = io.MultiWriter(&stderr, logOut)

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := lastLine(stderr.String())
		if exitErr.ExitCode() == exitHandlerMissing {
			return nil, fmt.Errorf("%w: %s: %s", ErrHandlerNotFound, ref, msg)
		}
		if msg == "" {
			msg = fmt.Sprintf("handler %s exited with status %d", ref, exitErr.ExitCode())
		}
		return nil, errors.New(msg)
	}
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", interp.bin, err)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(out) {
		return nil, fmt.Errorf("handler %s returned invalid JSON", ref)
	}
	return json.RawMessage(out), nil
}

func (p *ProcessResolver) interpreter() (interpreter, error) {
	switch {
	case strings.HasPrefix(p.Runtime, "nodejs"):
		bin := p.Node
		if bin == "" {
			bin = "node"
		}
		return interpreter{bin: bin, flag: "-e", ext: "js"}, nil
	case strings.HasPrefix(p.Runtime, "python"):
		bin := p.Python
		if bin == "" {
			bin = "python3"
		}
		return interpreter{bin: bin, flag: "-c", ext: "py"}, nil
	default:
		return interpreter{}, fmt.Errorf("%w: %q", ErrRuntimeUnsupported, p.Runtime)
	}
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\r\n")
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
