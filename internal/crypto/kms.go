package crypto

import (
	"context"
	"encoding/base64"
	"hash/crc32"

	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/GregMSThompson/budget-tracker/internal/errs"
)

type kmsClient interface {
	Encrypt(ctx context.Context, req *kmspb.EncryptRequest, opts ...gax.CallOption) (*kmspb.EncryptResponse, error)
	Decrypt(ctx context.Context, req *kmspb.DecryptRequest, opts ...gax.CallOption) (*kmspb.DecryptResponse, error)
}

type kmsVault struct {
	client  kmsClient
	keyName string
}

// NewKMSVault seals tokens with Cloud KMS. The ciphertext is bound to the
// owning user and item through additional authenticated data.
func NewKMSVault(client kmsClient, keyName string) *kmsVault {
	return &kmsVault{client: client, keyName: keyName}
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func checksum(b []byte) *wrapperspb.Int64Value {
	return wrapperspb.Int64(int64(crc32.Checksum(b, castagnoli)))
}

func aad(uid, itemID string) []byte {
	return []byte(uid + "/" + itemID)
}

func (k *kmsVault) Seal(ctx context.Context, uid, itemID, token string) (string, error) {
	plaintext := []byte(token)
	resp, err := k.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:                              k.keyName,
		Plaintext:                         plaintext,
		PlaintextCrc32C:                   checksum(plaintext),
		AdditionalAuthenticatedData:       aad(uid, itemID),
		AdditionalAuthenticatedDataCrc32C: checksum(aad(uid, itemID)),
	})
	if err != nil {
		return "", errs.NewEncryptionError("encrypt access token", err)
	}
	if !resp.GetVerifiedPlaintextCrc32C() || !resp.GetVerifiedAdditionalAuthenticatedDataCrc32C() {
		return "", errs.NewEncryptionError("encrypt request corrupted in transit", nil)
	}
	if resp.GetCiphertextCrc32C().GetValue() != checksum(resp.GetCiphertext()).GetValue() {
		return "", errs.NewEncryptionError("encrypt response corrupted in transit", nil)
	}
	return base64.StdEncoding.EncodeToString(resp.GetCiphertext()), nil
}

func (k *kmsVault) Open(ctx context.Context, uid, itemID, sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", errs.NewEncryptionError("decode access token", err)
	}
	resp, err := k.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:                              k.keyName,
		Ciphertext:                        raw,
		CiphertextCrc32C:                  checksum(raw),
		AdditionalAuthenticatedData:       aad(uid, itemID),
		AdditionalAuthenticatedDataCrc32C: checksum(aad(uid, itemID)),
	})
	if err != nil {
		return "", errs.NewEncryptionError("decrypt access token", err)
	}
	if resp.GetPlaintextCrc32C().GetValue() != checksum(resp.GetPlaintext()).GetValue() {
		return "", errs.NewEncryptionError("decrypt response corrupted in transit", nil)
	}
	return string(resp.GetPlaintext()), nil
}

func (k *kmsVault) Discard(context.Context, string, string) error { return nil }
