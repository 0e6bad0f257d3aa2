package invoke

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"lmb/pkg/lambda"
	"lmb/services/deployer/internal/config"
)

// Invoker is the remote synchronous invocation capability.
type Invoker interface {
	Invoke(ctx context.Context, name, qualifier string, payload []byte) (*lambda.InvokeOutput, error)
}

// RawResult is what the platform returned for one invocation.
type RawResult struct {
	StatusCode      int32
	FunctionError   string
	LogResult       string
	Payload         []byte
	ExecutedVersion string
}

// Result is a decoded invocation result.
type Result struct {
	Log             []string
	Payload         json.RawMessage
	FunctionError   string
	ExecutedVersion string
}

// Failed reports whether the function itself raised an error.
func (r Result) Failed() bool {
	return r.FunctionError != ""
}

// InvokeMargin is added to the function timeout to bound a synchronous call.
const InvokeMargin = 30 * time.Second

// Remote invokes deployed functions through a fixed qualifier.
type Remote struct {
	api       Invoker
	qualifier string
	timeout   time.Duration
}

// NewRemote returns a Remote targeting qualifier, "stage" when empty.
func NewRemote(api Invoker, qualifier string) (*Remote, error) {
	if api == nil {
		return nil, errors.New("invoker is required")
	}
	if strings.TrimSpace(qualifier) == "" {
		qualifier = config.DefaultQualifier
	}
	return &Remote{api: api, qualifier: qualifier}, nil
}

// Qualifier returns the alias or version the Remote targets.
func (r *Remote) Qualifier() string {
	return r.qualifier
}

// SetFunctionTimeout bounds each call by the function's own timeout plus
// InvokeMargin. Zero leaves calls bounded only by the caller's context.
func (r *Remote) SetFunctionTimeout(d time.Duration) {
	r.timeout = max(d, 0)
}

// Deadline returns the per-call bound, zero when there is none.
func (r *Remote) Deadline() time.Duration {
	if r.timeout <= 0 {
		return 0
	}
	return r.timeout + InvokeMargin
}

// Invoke calls the function synchronously. Only failures to invoke are errors;
// an invocation in which the function raised is returned with FunctionError set.
func (r *Remote) Invoke(ctx context.Context, function string, payload json.RawMessage) (RawResult, error) {
	if len(payload) == 0 {
		payload = emptyEvent
	}
	if d := r.Deadline(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	out, err := r.api.Invoke(ctx, function, r.qualifier, payload)
	if err != nil {
		return RawResult{}, fmt.Errorf("%w %s:%s: %w", ErrInvoke, function, r.qualifier, err)
	}
	return RawResult{
		StatusCode:      out.StatusCode,
		FunctionError:   out.FunctionError,
		LogResult:       out.LogResult,
		Payload:         out.Payload,
		ExecutedVersion: out.ExecutedVersion,
	}, nil
}

// ParseResult decodes the base64 execution log into lines and extracts the payload.
func ParseResult(raw RawResult) (Result, error) {
	res := Result{
		Payload:         json.RawMessage(raw.Payload),
		FunctionError:   raw.FunctionError,
		ExecutedVersion: raw.ExecutedVersion,
	}
	if raw.LogResult == "" {
		return res, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(raw.LogResult)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrLogDecode, err)
	}
	text := strings.TrimRight(strings.ReplaceAll(string(decoded), "\r\n", "\n"), "\n")
	if text != "" {
		res.Log = strings.Split(text, "\n")
	}
	return res, nil
}
