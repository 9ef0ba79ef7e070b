package ssmcerts

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/softmtls/internal/pki"
)

// ErrEmptyParameter is returned when a parameter exists but holds no value.
var ErrEmptyParameter = errors.New("parameter has no value")

// ParameterGetter is the subset of the SSM client used by Loader.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Config names the SSM parameters holding the PEM encoded server identity.
type Config struct {
	CertParam string
	KeyParam  string
}

// Enabled reports whether both parameters are configured.
func (c Config) Enabled() bool {
	return c.CertParam != "" && c.KeyParam != ""
}

// Loader reads a server identity from SSM Parameter Store. It never writes to SSM,
// identities are provisioned out of band.
type Loader struct {
	client ParameterGetter
}

// New creates a loader using client.
func New(client ParameterGetter) *Loader {
	return &Loader{client: client}
}

// NewFromDefaultConfig creates a loader from the default AWS credential chain.
func NewFromDefaultConfig(ctx context.Context) (*Loader, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return New(ssm.NewFromConfig(awsConfig)), nil
}

// Load fetches the certificate and key named in cfg and checks that they belong together.
func (l *Loader) Load(ctx context.Context, cfg Config) (*pki.Identity, error) {
	if !cfg.Enabled() {
		return nil, errors.New("both certificate and key parameters are required")
	}

	certPEM, err := l.getParameter(ctx, cfg.CertParam)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate from SSM: %w", err)
	}

	keyPEM, err := l.getParameter(ctx, cfg.KeyParam)
	if err != nil {
		return nil, fmt.Errorf("failed to load key from SSM: %w", err)
	}

	cert, err := pki.ParseCertificatePEM([]byte(certPEM))
	if err != nil {
		return nil, fmt.Errorf("certificate parameter %s: %w", cfg.CertParam, err)
	}

	key, err := pki.ParseKeyPEM([]byte(keyPEM))
	if err != nil {
		return nil, fmt.Errorf("key parameter %s: %w", cfg.KeyParam, err)
	}

	if err := pki.VerifyKeyPair(cert, key); err != nil {
		return nil, fmt.Errorf("parameters %s and %s: %w", cfg.CertParam, cfg.KeyParam, err)
	}

	log.Info().
		Str("cert_param", cfg.CertParam).
		Str("fingerprint", pki.Fingerprint(cert)).
		Msg("loaded identity from SSM")

	return &pki.Identity{Key: key, Certificate: cert}, nil
}

// getParameter fetches a parameter from SSM
func (l *Loader) getParameter(ctx context.Context, name string) (string, error) {
	output, err := l.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", err
	}
	if output.Parameter == nil || output.Parameter.Value == nil {
		return "", fmt.Errorf("%s: %w", name, ErrEmptyParameter)
	}
	return *output.Parameter.Value, nil
}
