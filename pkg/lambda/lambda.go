package lambda

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	smithy "github.com/aws/smithy-go"
)

// ErrNotFound is returned (wrapped) when the remote function or alias does not exist.
var ErrNotFound = errors.New("resource not found")

const defaultUpdateWait = 2 * time.Minute

// FunctionSpec carries everything needed to create or update a function from an S3 archive.
type FunctionSpec struct {
	Name        string
	Description string
	Runtime     string
	Role        string
	Handler     string
	Timeout     int32
	MemoryMB    int32
	Bucket      string
	Key         string
	Publish     bool
}

// Function is the subset of remote function state the tool cares about.
type Function struct {
	Name    string
	ARN     string
	Version string
	State   string
}

// Alias is a named pointer to a function version.
type Alias struct {
	FunctionName    string
	Name            string
	FunctionVersion string
	Description     string
	ARN             string
}

// InvokeOutput is the raw result of a synchronous invocation.
type InvokeOutput struct {
	StatusCode      int32
	FunctionError   string
	LogResult       string
	Payload         []byte
	ExecutedVersion string
}

// Client wraps the AWS SDK v2 Lambda client.
type Client struct {
	api        *lambda.Client
	updateWait time.Duration
}

// New builds a Client from a loaded AWS configuration; endpoint overrides the
// regional endpoint when set.
func New(cfg aws.Config, endpoint string) *Client {
	endpoint = strings.TrimSpace(endpoint)
	client := lambda.NewFromConfig(cfg, func(o *lambda.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &Client{api: client, updateWait: defaultUpdateWait}
}

// GetFunction fetches the function by name.
func (c *Client) GetFunction(ctx context.Context, name string) (*Function, error) {
	if c == nil {
		return nil, errors.New("nil client")
	}
	out, err := c.api.GetFunction(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(name)})
	if err != nil {
		return nil, classify(fmt.Sprintf("get function %q", name), err)
	}
	return functionFromConfiguration(out.Configuration), nil
}

// CreateFunction creates the function from the archive referenced by spec.
func (c *Client) CreateFunction(ctx context.Context, spec FunctionSpec) (*Function, error) {
	if c == nil {
		return nil, errors.New("nil client")
	}
	out, err := c.api.CreateFunction(ctx, &lambda.CreateFunctionInput{
		FunctionName: aws.String(spec.Name),
		Description:  aws.String(spec.Description),
		Runtime:      lambdatypes.Runtime(spec.Runtime),
		Role:         aws.String(spec.Role),
		Handler:      aws.String(spec.Handler),
		Timeout:      aws.Int32(spec.Timeout),
		MemorySize:   aws.Int32(spec.MemoryMB),
		Publish:      spec.Publish,
		Code: &lambdatypes.FunctionCode{
			S3Bucket: aws.String(spec.Bucket),
			S3Key:    aws.String(spec.Key),
		},
	})
	if err != nil {
		return nil, classify(fmt.Sprintf("create function %q", spec.Name), err)
	}
	return &Function{
		Name:    aws.ToString(out.FunctionName),
		ARN:     aws.ToString(out.FunctionArn),
		Version: aws.ToString(out.Version),
		State:   string(out.State),
	}, nil
}

// UpdateFunctionConfiguration applies the requested configuration and waits until the
// update has settled so a following code update is accepted.
func (c *Client) UpdateFunctionConfiguration(ctx context.Context, spec FunctionSpec) error {
	if c == nil {
		return errors.New("nil client")
	}
	_, err := c.api.UpdateFunctionConfiguration(ctx, &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(spec.Name),
		Description:  aws.String(spec.Description),
		Runtime:      lambdatypes.Runtime(spec.Runtime),
		Role:         aws.String(spec.Role),
		Handler:      aws.String(spec.Handler),
		Timeout:      aws.Int32(spec.Timeout),
		MemorySize:   aws.Int32(spec.MemoryMB),
	})
	if err != nil {
		return classify(fmt.Sprintf("update configuration of %q", spec.Name), err)
	}

	waiter := lambda.NewFunctionUpdatedV2Waiter(c.api)
	if err := waiter.Wait(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(spec.Name)}, c.updateWait); err != nil {
		return fmt.Errorf("wait for configuration of %q: %w", spec.Name, err)
	}
	return nil
}

// UpdateFunctionCode points the function at the archive referenced by spec.
func (c *Client) UpdateFunctionCode(ctx context.Context, spec FunctionSpec) (*Function, error) {
	if c == nil {
		return nil, errors.New("nil client")
	}
	out, err := c.api.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
		FunctionName: aws.String(spec.Name),
		S3Bucket:     aws.String(spec.Bucket),
		S3Key:        aws.String(spec.Key),
		Publish:      spec.Publish,
	})
	if err != nil {
		return nil, classify(fmt.Sprintf("update code of %q", spec.Name), err)
	}
	return &Function{
		Name:    aws.ToString(out.FunctionName),
		ARN:     aws.ToString(out.FunctionArn),
		Version: aws.ToString(out.Version),
		State:   string(out.State),
	}, nil
}

// Invoke calls the function synchronously with log tailing enabled.
func (c *Client) Invoke(ctx context.Context, name, qualifier string, payload []byte) (*InvokeOutput, error) {
	if c == nil {
		return nil, errors.New("nil client")
	}
	input := &lambda.InvokeInput{
		FunctionName:   aws.String(name),
		InvocationType: lambdatypes.InvocationTypeRequestResponse,
		LogType:        lambdatypes.LogTypeTail,
		Payload:        payload,
	}
	if qualifier != "" {
		input.Qualifier = aws.String(qualifier)
	}
	out, err := c.api.Invoke(ctx, input)
	if err != nil {
		return nil, classify(fmt.Sprintf("invoke %q", name), err)
	}
	return &InvokeOutput{
		StatusCode:      out.StatusCode,
		FunctionError:   aws.ToString(out.FunctionError),
		LogResult:       aws.ToString(out.LogResult),
		Payload:         out.Payload,
		ExecutedVersion: aws.ToString(out.ExecutedVersion),
	}, nil
}

// ListAliases pages through the function's aliases. The sequence issues remote calls
// as it is consumed and stops at the first error.
func (c *Client) ListAliases(ctx context.Context, name string) iter.Seq2[Alias, error] {
	return func(yield func(Alias, error) bool) {
		if c == nil {
			yield(Alias{}, errors.New("nil client"))
			return
		}
		pager := lambda.NewListAliasesPaginator(c.api, &lambda.ListAliasesInput{FunctionName: aws.String(name)})
		for pager.HasMorePages() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				yield(Alias{}, classify(fmt.Sprintf("list aliases of %q", name), err))
				return
			}
			for _, a := range page.Aliases {
				if !yield(aliasFromConfiguration(name, a), nil) {
					return
				}
			}
		}
	}
}

// ListVersions pages through the function's published versions, including $LATEST.
func (c *Client) ListVersions(ctx context.Context, name string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if c == nil {
			yield("", errors.New("nil client"))
			return
		}
		pager := lambda.NewListVersionsByFunctionPaginator(c.api, &lambda.ListVersionsByFunctionInput{FunctionName: aws.String(name)})
		for pager.HasMorePages() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				yield("", classify(fmt.Sprintf("list versions of %q", name), err))
				return
			}
			for _, v := range page.Versions {
				if !yield(aws.ToString(v.Version), nil) {
					return
				}
			}
		}
	}
}

// GetAlias fetches a single alias.
func (c *Client) GetAlias(ctx context.Context, function, alias string) (*Alias, error) {
	if c == nil {
		return nil, errors.New("nil client")
	}
	out, err := c.api.GetAlias(ctx, &lambda.GetAliasInput{
		FunctionName: aws.String(function),
		Name:         aws.String(alias),
	})
	if err != nil {
		return nil, classify(fmt.Sprintf("get alias %q of %q", alias, function), err)
	}
	return &Alias{
		FunctionName:    function,
		Name:            aws.ToString(out.Name),
		FunctionVersion: aws.ToString(out.FunctionVersion),
		Description:     aws.ToString(out.Description),
		ARN:             aws.ToString(out.AliasArn),
	}, nil
}

// CreateAlias creates a.Name pointing at a.FunctionVersion.
func (c *Client) CreateAlias(ctx context.Context, a Alias) (*Alias, error) {
	if c == nil {
		return nil, errors.New("nil client")
	}
	out, err := c.api.CreateAlias(ctx, &lambda.CreateAliasInput{
		FunctionName:    aws.String(a.FunctionName),
		Name:            aws.String(a.Name),
		FunctionVersion: aws.String(a.FunctionVersion),
		Description:     aws.String(a.Description),
	})
	if err != nil {
		return nil, classify(fmt.Sprintf("create alias %q of %q", a.Name, a.FunctionName), err)
	}
	return &Alias{
		FunctionName:    a.FunctionName,
		Name:            aws.ToString(out.Name),
		FunctionVersion: aws.ToString(out.FunctionVersion),
		Description:     aws.ToString(out.Description),
		ARN:             aws.ToString(out.AliasArn),
	}, nil
}

// DeleteAlias removes the alias.
func (c *Client) DeleteAlias(ctx context.Context, function, alias string) error {
	if c == nil {
		return errors.New("nil client")
	}
	_, err := c.api.DeleteAlias(ctx, &lambda.DeleteAliasInput{
		FunctionName: aws.String(function),
		Name:         aws.String(alias),
	})
	if err != nil {
		return classify(fmt.Sprintf("delete alias %q of %q", alias, function), err)
	}
	return nil
}

func functionFromConfiguration(cfg *lambdatypes.FunctionConfiguration) *Function {
	if cfg == nil {
		return &Function{}
	}
	return &Function{
		Name:    aws.ToString(cfg.FunctionName),
		ARN:     aws.ToString(cfg.FunctionArn),
		Version: aws.ToString(cfg.Version),
		State:   string(cfg.State),
	}
}

func aliasFromConfiguration(function string, a lambdatypes.AliasConfiguration) Alias {
	return Alias{
		FunctionName:    function,
		Name:            aws.ToString(a.Name),
		FunctionVersion: aws.ToString(a.FunctionVersion),
		Description:     aws.ToString(a.Description),
		ARN:             aws.ToString(a.AliasArn),
	}
}

// classify wraps err with op and, for missing resources, ErrNotFound.
func classify(op string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isNotFound(err error) bool {
	var rnf *lambdatypes.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException"
}
