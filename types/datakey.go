package types

import (
	"time"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
)

// DataKey is the field encryption key as wrapped by a KMS provider
type DataKey struct {
	// Store complete BlobInfo from KMS wrapper
	BlobInfo *wrapping.BlobInfo `bson:"blobInfo" json:"blobInfo"`

	Provider  ProviderType `bson:"provider" json:"provider"`
	CreatedAt time.Time    `bson:"createdAt" json:"createdAt"`
}

func (k *DataKey) GetKeyID() string {
	if k.BlobInfo == nil || k.BlobInfo.KeyInfo == nil {
		return ""
	}
	return k.BlobInfo.KeyInfo.KeyId
}

func (k *DataKey) GetCiphertext() []byte {
	if k.BlobInfo == nil {
		return nil
	}
	return k.BlobInfo.Ciphertext
}

// DataKeyInfo is the printable summary of a freshly wrapped data key
type DataKeyInfo struct {
	Provider  ProviderType `json:"provider" bson:"provider"`
	KeyID     string       `json:"keyId" bson:"keyId"`
	Wrapped   string       `json:"wrapped" bson:"wrapped"`
	CreatedAt time.Time    `json:"createdAt" bson:"createdAt"`
}
