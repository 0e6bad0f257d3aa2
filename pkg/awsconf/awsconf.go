package awsconf

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"lmb/pkg/telemetry"
)

// Options controls how the shared AWS configuration is resolved.
type Options struct {
	Region string
	// AccessKey and SecretKey select static credentials, typically for a local emulator.
	// When both are empty the SDK default credential chain is used.
	AccessKey string
	SecretKey string
	// Timeout caps every request end to end. Zero leaves requests bounded only by
	// their context, which long invocations and large uploads need.
	Timeout time.Duration
}

// OptionsFromEnv reads LMB_ACCESS_KEY / LMB_SECRET_KEY for static credentials.
func OptionsFromEnv(region string) Options {
	return Options{
		Region:    region,
		AccessKey: strings.TrimSpace(os.Getenv("LMB_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("LMB_SECRET_KEY")),
	}
}

// Load resolves an aws.Config whose HTTP requests are traced. The SDK's buildable
// client is kept underneath so settings such as AWS_CA_BUNDLE still apply.
func Load(ctx context.Context, opts Options) (aws.Config, error) {
	if strings.TrimSpace(opts.Region) == "" {
		return aws.Config{}, errors.New("region is required")
	}
	if (opts.AccessKey == "") != (opts.SecretKey == "") {
		return aws.Config{}, errors.New("LMB_ACCESS_KEY and LMB_SECRET_KEY must be set together")
	}

	client := awshttp.NewBuildableClient()
	if opts.Timeout > 0 {
		client = client.WithTimeout(opts.Timeout)
	}

	loaders := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithHTTPClient(client),
	}
	if opts.AccessKey != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}
	cfg.HTTPClient = newTracedClient(cfg.HTTPClient)
	return cfg, nil
}

// tracedClient sends requests through the telemetry transport on top of the
// resolved SDK client.
type tracedClient struct {
	inner     aws.HTTPClient
	transport http.RoundTripper
}

func newTracedClient(inner aws.HTTPClient) *tracedClient {
	if inner == nil {
		inner = awshttp.NewBuildableClient()
	}
	return &tracedClient{
		inner:     inner,
		transport: telemetry.HTTPTransport(roundTripFunc(inner.Do)),
	}
}

func (c *tracedClient) Do(req *http.Request) (*http.Response, error) {
	return c.transport.RoundTrip(req)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
