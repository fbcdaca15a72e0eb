package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"go-plant-identifier/pkg/models"
)

type blobUploader interface {
	UploadBuffer(ctx context.Context, containerName string, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

type azureArchive struct {
	client    blobUploader
	account   string
	container string
}

// NewAzureArchive uploads identified images to an Azure Blob container
func NewAzureArchive(accountName, accountKey, container string) (ImageArchive, error) {
	if container == "" {
		return nil, errors.New("azure container required")
	}
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}

	return newAzureArchive(client, accountName, container), nil
}

func newAzureArchive(client blobUploader, account, container string) *azureArchive {
	return &azureArchive{client: client, account: account, container: container}
}

func (s *azureArchive) Archive(ctx context.Context, key string, img *models.ImageBlob) (string, error) {
	if img.Empty() {
		return "", errors.New("nothing to archive")
	}
	contentType := contentTypeOrDefault(img)
	_, err := s.client.UploadBuffer(ctx, s.container, key, img.Data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s", s.account, s.container, key), nil
}

func (s *azureArchive) Name() string {
	return "azure"
}
