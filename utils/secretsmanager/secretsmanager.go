package secretsmanager

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcpsecretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/keyvault/azsecrets"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

var (
	ErrMultipleSources  = errors.New("credentials may only be fetched from one cloud provider")
	ErrIncompleteSource = errors.New("incomplete secret location")
	ErrInvalidSecret    = errors.New("credentials secret must be formatted `username:password`")
)

// Source identifies a `username:password` secret held by one of the
// supported cloud secret stores.
type Source struct {
	AwsID     string
	AwsRegion string

	AzureID        string
	AzureVaultName string

	GcpID        string
	GcpProjectID string
}

// Configured reports whether any provider was selected.
func (s Source) Configured() bool {
	return s.AwsID != "" || s.AzureID != "" || s.GcpID != ""
}

func (s Source) Validate() error {
	selected := 0
	if s.AwsID != "" {
		selected++
		if s.AwsRegion == "" {
			return fmt.Errorf("%w: must specify region and id when fetching secrets from aws", ErrIncompleteSource)
		}
	}
	if s.AzureID != "" {
		selected++
		if s.AzureVaultName == "" {
			return fmt.Errorf("%w: must specify key vault name and id when fetching secrets from azure", ErrIncompleteSource)
		}
	}
	if s.GcpID != "" {
		selected++
		if s.GcpProjectID == "" {
			return fmt.Errorf("%w: must specify project and secret ids when fetching secrets from gcp", ErrIncompleteSource)
		}
	}

	if selected > 1 {
		return ErrMultipleSources
	}
	return nil
}

// FetchCredentials fetches the username and password held by the selected
// provider.
func FetchCredentials(ctx context.Context, s Source) (string, string, error) {
	err := s.Validate()
	if err != nil {
		return "", "", err
	}

	switch {
	case s.AwsID != "":
		return FetchAWSSecret(ctx, s.AwsID, s.AwsRegion)
	case s.AzureID != "":
		return FetchAzureSecret(ctx, s.AzureID, s.AzureVaultName)
	case s.GcpID != "":
		return FetchGcpSecret(ctx, s.GcpID, s.GcpProjectID)
	}

	return "", "", fmt.Errorf("%w: no provider selected", ErrIncompleteSource)
}

func FetchAWSSecret(ctx context.Context, secretId string, region string) (string, string, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return "", "", fmt.Errorf("failed to load default aws config: %w", err)
	}

	secrets := secretsmanager.NewFromConfig(cfg)
	res, err := secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &secretId})
	if err != nil {
		return "", "", fmt.Errorf("failed to get aws secret: %w", err)
	}
	if res.SecretString == nil {
		return "", "", fmt.Errorf("aws secret %s not a string", secretId)
	}

	return credsFromSecret(*res.SecretString)
}

func FetchAzureSecret(ctx context.Context, secretId string, keyVaultName string) (string, string, error) {
	vaultURI := fmt.Sprintf("https://%s.vault.azure.net/", keyVaultName)

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to obtain azure credential: %w", err)
	}

	client, err := azsecrets.NewClient(vaultURI, cred, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create azure client: %w", err)
	}

	// an empty version is the latest
	resp, err := client.GetSecret(ctx, secretId, "", nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to get azure secret: %w", err)
	}
	if resp.Value == nil {
		return "", "", fmt.Errorf("azure secret %s has no value", secretId)
	}

	return credsFromSecret(*resp.Value)
}

func FetchGcpSecret(ctx context.Context, secretId string, projectId string) (string, string, error) {
	client, err := gcpsecretmanager.NewClient(ctx)
	if err != nil {
		return "", "", fmt.Errorf("failed to create gcp secretmanager client: %w", err)
	}
	defer client.Close()

	req := &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectId, secretId),
	}

	result, err := client.AccessSecretVersion(ctx, req)
	if err != nil {
		return "", "", fmt.Errorf("failed to get gcp secret: %w", err)
	}

	return credsFromSecret(string(result.Payload.Data))
}

// credsFromSecret splits on the first colon, passwords may contain colons.
func credsFromSecret(secret string) (string, string, error) {
	username, password, ok := strings.Cut(strings.TrimSpace(secret), ":")
	if !ok || username == "" {
		return "", "", ErrInvalidSecret
	}

	return username, password, nil
}
