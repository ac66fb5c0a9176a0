package config

import (
	"context"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMConfig names the Parameter Store entries read in prod.
type SSMConfig struct {
	PostgresHostParam     string        `mapstructure:"postgres_host_param"`
	PostgresUserParam     string        `mapstructure:"postgres_user_param"`
	PostgresPasswordParam string        `mapstructure:"postgres_password_param"`
	MongoURIParam         string        `mapstructure:"mongo_uri_param"`
	Timeout               time.Duration `mapstructure:"timeout"`
}

// ParameterReader looks up a single parameter value; "" means unavailable.
type ParameterReader interface {
	Get(ctx context.Context, name string, decrypt bool) string
}

// ParameterStore reads parameters from AWS SSM using the default credential chain.
type ParameterStore struct {
	client *ssm.Client
}

func NewParameterStore(ctx context.Context) (*ParameterStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &ParameterStore{client: ssm.NewFromConfig(cfg)}, nil
}

func (p *ParameterStore) Get(ctx context.Context, parameterName string, decrypt bool) string {
	if parameterName == "" {
		return ""
	}

	input := &ssm.GetParameterInput{
		Name:           &parameterName,
		WithDecryption: &decrypt,
	}

	result, err := p.client.GetParameter(ctx, input)
	if err != nil {
		return ""
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return ""
	}

	return *result.Parameter.Value
}
