package lambda

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	smithy "github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		notFound bool
	}{
		{name: "typed resource not found", err: &lambdatypes.ResourceNotFoundException{Message: aws.String("Function not found")}, notFound: true},
		{name: "generic api error", err: &smithy.GenericAPIError{Code: "ResourceNotFoundException"}, notFound: true},
		{name: "conflict", err: &lambdatypes.ResourceConflictException{}, notFound: false},
		{name: "throttled", err: &smithy.GenericAPIError{Code: "TooManyRequestsException"}, notFound: false},
		{name: "transport", err: errors.New("dial tcp: i/o timeout"), notFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("get function \"orders\"", tt.err)
			assert.Equal(t, tt.notFound, errors.Is(got, ErrNotFound))
			assert.ErrorIs(t, got, tt.err)
			assert.Contains(t, got.Error(), "get function \"orders\"")
		})
	}
}

func TestAliasFromConfiguration(t *testing.T) {
	got := aliasFromConfiguration("orders", lambdatypes.AliasConfiguration{
		Name:            aws.String("prod"),
		FunctionVersion: aws.String("7"),
		Description:     aws.String("1.4.2"),
		AliasArn:        aws.String("arn:aws:lambda:us-east-1:123:function:orders:prod"),
	})
	assert.Equal(t, Alias{
		FunctionName:    "orders",
		Name:            "prod",
		FunctionVersion: "7",
		Description:     "1.4.2",
		ARN:             "arn:aws:lambda:us-east-1:123:function:orders:prod",
	}, got)
}

func TestFunctionFromConfiguration(t *testing.T) {
	assert.Equal(t, &Function{}, functionFromConfiguration(nil))

	got := functionFromConfiguration(&lambdatypes.FunctionConfiguration{
		FunctionName: aws.String("orders"),
		Version:      aws.String("$LATEST"),
		State:        lambdatypes.StateActive,
	})
	assert.Equal(t, "orders", got.Name)
	assert.Equal(t, "$LATEST", got.Version)
	assert.Equal(t, "Active", got.State)
}

func TestNilClientListings(t *testing.T) {
	var c *Client
	for _, err := range c.ListAliases(t.Context(), "orders") {
		assert.Error(t, err)
	}
	for _, err := range c.ListVersions(t.Context(), "orders") {
		assert.Error(t, err)
	}
	_, err := c.GetFunction(t.Context(), "orders")
	assert.Error(t, err)
}
