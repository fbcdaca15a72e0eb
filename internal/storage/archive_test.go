package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"go-plant-identifier/pkg/models"
)

type fakeUploader struct {
	container   string
	name        string
	data        []byte
	contentType string
	err         error
}

func (f *fakeUploader) UploadBuffer(_ context.Context, containerName string, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error) {
	f.container = containerName
	f.name = blobName
	f.data = buffer
	if o != nil && o.HTTPHeaders != nil && o.HTTPHeaders.BlobContentType != nil {
		f.contentType = *o.HTTPHeaders.BlobContentType
	}
	return azblob.UploadBufferResponse{}, f.err
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, nil
}

type fakeSender struct {
	messages []*sqs.SendMessageInput
}

func (f *fakeSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.messages = append(f.messages, params)
	return &sqs.SendMessageOutput{}, nil
}

var fern = &models.ImageBlob{Filename: "fern.jpg", ContentType: "image/jpeg", Data: []byte{0xFF, 0xD8, 0xFF}}

func TestArchiveKey(t *testing.T) {
	at := time.Date(2026, 4, 2, 9, 30, 15, 0, time.UTC)
	if got := ArchiveKey("abc", at, "dir/fern.jpg"); got != "plants/abc/20260402_093015_fern.jpg" {
		t.Errorf("Unexpected key %s", got)
	}
	if got := ArchiveKey("abc", at, ""); got != "plants/abc/20260402_093015_image" {
		t.Errorf("Unexpected key for empty filename %s", got)
	}
}

func TestAzureArchive(t *testing.T) {
	uploader := &fakeUploader{}
	archive := newAzureArchive(uploader, "acct", "plant-images")

	location, err := archive.Archive(context.Background(), "plants/s/1_fern.jpg", fern)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if location != "https://acct.blob.core.windows.net/plant-images/plants/s/1_fern.jpg" {
		t.Errorf("Unexpected location %s", location)
	}
	if uploader.container != "plant-images" || uploader.name != "plants/s/1_fern.jpg" {
		t.Errorf("Unexpected upload target %s/%s", uploader.container, uploader.name)
	}
	if uploader.contentType != "image/jpeg" {
		t.Errorf("Expected content type image/jpeg, got %s", uploader.contentType)
	}

	uploader.err = errors.New("403")
	if _, err := archive.Archive(context.Background(), "k", fern); err == nil {
		t.Error("Expected upload error to surface")
	}
	if _, err := archive.Archive(context.Background(), "k", &models.ImageBlob{}); err == nil {
		t.Error("Expected empty blob to be rejected")
	}
}

func TestS3ArchiveWithNotice(t *testing.T) {
	putter := &fakePutter{}
	sender := &fakeSender{}
	archive := &s3Archive{s3: putter, sqs: sender, bucket: "plants", queueURL: "https://sqs.local/queue"}

	location, err := archive.Archive(context.Background(), "plants/s/1_fern.jpg", fern)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if location != "s3://plants/plants/s/1_fern.jpg" {
		t.Errorf("Unexpected location %s", location)
	}
	if aws.ToString(putter.input.Bucket) != "plants" || aws.ToString(putter.input.ContentType) != "image/jpeg" {
		t.Errorf("Unexpected put input %+v", putter.input)
	}
	if string(putter.body) != string(fern.Data) {
		t.Error("Expected image bytes to be uploaded")
	}

	if len(sender.messages) != 1 {
		t.Fatalf("Expected 1 SQS message, got %d", len(sender.messages))
	}
	var notice ArchiveNotice
	if err := json.Unmarshal([]byte(aws.ToString(sender.messages[0].MessageBody)), &notice); err != nil {
		t.Fatalf("decode notice: %v", err)
	}
	if notice.Bucket != "plants" || notice.Key != "plants/s/1_fern.jpg" || notice.UploadedAt == "" {
		t.Errorf("Unexpected notice %+v", notice)
	}
}

func TestS3ArchiveWithoutQueue(t *testing.T) {
	putter := &fakePutter{}
	archive := &s3Archive{s3: putter, bucket: "plants"}
	if _, err := archive.Archive(context.Background(), "k", fern); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if putter.input == nil {
		t.Error("Expected object to be uploaded")
	}
}
