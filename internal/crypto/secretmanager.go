package crypto

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GregMSThompson/budget-tracker/internal/errs"
)

// Secret path
// projects/{project}/secrets/plaid-access-token-{uid}-{itemID}

type secretClient interface {
	GetSecret(ctx context.Context, req *secretmanagerpb.GetSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	DeleteSecret(ctx context.Context, req *secretmanagerpb.DeleteSecretRequest, opts ...gax.CallOption) error
}

type secretVault struct {
	client    secretClient
	projectID string
	prefix    string
}

// NewSecretManagerVault keeps tokens in Secret Manager. The sealed value is
// the secret version name, so the item document never holds key material.
func NewSecretManagerVault(client secretClient, projectID string) *secretVault {
	return &secretVault{
		client:    client,
		projectID: projectID,
		prefix:    "plaid-access-token",
	}
}

func (s *secretVault) secretID(uid, itemID string) string {
	return fmt.Sprintf("%s-%s-%s", s.prefix, uid, itemID)
}

func (s *secretVault) secretName(uid, itemID string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", s.projectID, s.secretID(uid, itemID))
}

func (s *secretVault) ensureSecret(ctx context.Context, uid, itemID string) error {
	_, err := s.client.GetSecret(ctx, &secretmanagerpb.GetSecretRequest{Name: s.secretName(uid, itemID)})
	if status.Code(err) != codes.NotFound {
		return err
	}
	_, err = s.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   fmt.Sprintf("projects/%s", s.projectID),
		SecretId: s.secretID(uid, itemID),
		Secret: &secretmanagerpb.Secret{
			Labels: map[string]string{"purpose": "plaid-access-token"},
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{Automatic: &secretmanagerpb.Replication_Automatic{}},
			},
		},
	})
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	return err
}

func (s *secretVault) Seal(ctx context.Context, uid, itemID, token string) (string, error) {
	if err := s.ensureSecret(ctx, uid, itemID); err != nil {
		return "", errs.NewEncryptionError("create token secret", err)
	}
	v, err := s.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  s.secretName(uid, itemID),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(token)},
	})
	if err != nil {
		return "", errs.NewEncryptionError("store access token", err)
	}
	return v.GetName(), nil
}

func (s *secretVault) Open(ctx context.Context, uid, itemID, sealed string) (string, error) {
	name := sealed
	if name == "" {
		name = s.secretName(uid, itemID) + "/versions/latest"
	}
	if !strings.HasPrefix(name, s.secretName(uid, itemID)+"/versions/") {
		return "", errs.NewEncryptionError("access token does not belong to item", nil)
	}
	res, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", errs.NewEncryptionError("read access token", err)
	}
	return string(res.GetPayload().GetData()), nil
}

func (s *secretVault) Discard(ctx context.Context, uid, itemID string) error {
	err := s.client.DeleteSecret(ctx, &secretmanagerpb.DeleteSecretRequest{Name: s.secretName(uid, itemID)})
	if err != nil && status.Code(err) != codes.NotFound {
		return errs.NewEncryptionError("delete access token", err)
	}
	return nil
}
