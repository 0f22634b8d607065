package identity

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"sync"

	"docvault/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// secretFetcher retrieves a raw secret payload by ID. Tests substitute a
// stub; production uses AWS Secrets Manager.
type secretFetcher interface {
	FetchSecret(ctx context.Context, region, endpoint, secretID string) (string, error)
}

var _ secretFetcher = (*AWSSecretsManagerFetcher)(nil)

// AWSSecretsManagerFetcher retrieves secret payloads and caches clients per
// region/endpoint pair.
type AWSSecretsManagerFetcher struct {
	mu      sync.Mutex
	clients map[string]*secretsmanager.Client
}

func NewAWSSecretsManagerFetcher() *AWSSecretsManagerFetcher {
	return &AWSSecretsManagerFetcher{
		clients: make(map[string]*secretsmanager.Client),
	}
}

func (f *AWSSecretsManagerFetcher) FetchSecret(ctx context.Context, region, endpoint, secretID string) (string, error) {
	if secretID == "" {
		return "", fmt.Errorf("secret id is required")
	}
	if region == "" {
		return "", fmt.Errorf("region is required to read secret %s", secretID)
	}

	client, err := f.getClient(ctx, region, endpoint)
	if err != nil {
		return "", err
	}

	output, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &secretID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch secret %s: %w", secretID, err)
	}

	if output.SecretString != nil {
		return *output.SecretString, nil
	}
	if len(output.SecretBinary) > 0 {
		return string(output.SecretBinary), nil
	}
	return "", fmt.Errorf("secret %s did not return string or binary payload", secretID)
}

func (f *AWSSecretsManagerFetcher) getClient(ctx context.Context, region, endpoint string) (*secretsmanager.Client, error) {
	key := region + "|" + endpoint

	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[key]; ok {
		return client, nil
	}

	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration for region %s: %w", region, err)
	}

	opts := []func(*secretsmanager.Options){}
	if endpoint != "" {
		opts = append(opts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	client := secretsmanager.NewFromConfig(cfg, opts...)
	f.clients[key] = client
	return client, nil
}

// ExternalCredentialLoader loads the server key pair and certificate from an
// external secret source instead of the local credential store. The secret
// payload is JSON with PEM blobs under the configured field names.
type ExternalCredentialLoader struct {
	fetcher secretFetcher
}

func NewExternalCredentialLoader() *ExternalCredentialLoader {
	return &ExternalCredentialLoader{fetcher: NewAWSSecretsManagerFetcher()}
}

// Load fetches and parses the server credentials described by cfg.
func (l *ExternalCredentialLoader) Load(ctx context.Context, cfg config.ExternalSourceConfig) (*KeyPair, *x509.Certificate, error) {
	if cfg.Type != "awsSecretsManager" {
		return nil, nil, fmt.Errorf("unsupported external credential source type %q", cfg.Type)
	}

	payload, err := l.fetcher.FetchSecret(ctx, cfg.AWS.Region, cfg.AWS.Endpoint, cfg.AWS.SecretName)
	if err != nil {
		return nil, nil, err
	}

	keyField := cfg.AWS.SecretKeyField
	if keyField == "" {
		keyField = "private_key"
	}
	crtField := cfg.AWS.SecretCrtField
	if crtField == "" {
		crtField = "certificate"
	}

	keyPEM, err := extractFieldFromJSON(payload, keyField)
	if err != nil {
		return nil, nil, err
	}
	crtPEM, err := extractFieldFromJSON(payload, crtField)
	if err != nil {
		return nil, nil, err
	}

	keyPair, err := parseKeyPEM([]byte(keyPEM))
	if err != nil {
		return nil, nil, err
	}

	block, _ := pem.Decode([]byte(crtPEM))
	if block == nil {
		return nil, nil, fmt.Errorf("external certificate payload is not PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse external certificate: %w", err)
	}

	return keyPair, cert, nil
}

func parseKeyPEM(raw []byte) (*KeyPair, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("external key payload is not PEM")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse external private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("external private key is not RSA")
	}
	return &KeyPair{private: rsaKey}, nil
}

func extractFieldFromJSON(payload, field string) (string, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return "", fmt.Errorf("secret payload is not JSON: %w", err)
	}

	raw, ok := doc[field]
	if !ok {
		return "", fmt.Errorf("secret payload missing field %q", field)
	}

	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("secret field %q is not a string: %w", field, err)
	}
	return value, nil
}
