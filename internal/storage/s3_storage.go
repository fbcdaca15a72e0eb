package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"go-plant-identifier/pkg/models"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type messageSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// ArchiveNotice is sent to the SQS queue after an upload
type ArchiveNotice struct {
	Bucket     string `json:"bucket"`
	Key        string `json:"key"`
	UploadedAt string `json:"uploadedAt"`
}

type s3Archive struct {
	s3       objectPutter
	sqs      messageSender
	bucket   string
	queueURL string
}

// NewS3Archive uploads identified images to S3 and, when queueName is set,
// announces each upload on that SQS queue. Credentials, region and endpoint
// come from the default AWS configuration chain.
func NewS3Archive(ctx context.Context, bucket, queueName string) (ImageArchive, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS SDK config: %w", err)
	}

	s3Client := s3.New(s3.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
		UsePathStyle: true,
	})

	archive := &s3Archive{s3: s3Client, bucket: bucket}
	if queueName == "" {
		return archive, nil
	}

	sqsClient := sqs.New(sqs.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
	})
	resp, err := sqsClient.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(queueName)})
	if err != nil {
		return nil, fmt.Errorf("get SQS queue URL: %w", err)
	}
	archive.sqs = sqsClient
	archive.queueURL = aws.ToString(resp.QueueUrl)
	return archive, nil
}

func (s *s3Archive) Archive(ctx context.Context, key string, img *models.ImageBlob) (string, error) {
	if img.Empty() {
		return "", errors.New("nothing to archive")
	}
	_, err := s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(img.Data),
		ContentType: aws.String(contentTypeOrDefault(img)),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return "", fmt.Errorf("upload to S3: %w", err)
	}
	location := fmt.Sprintf("s3://%s/%s", s.bucket, key)

	if s.sqs != nil {
		body, err := json.Marshal(ArchiveNotice{
			Bucket:     s.bucket,
			Key:        key,
			UploadedAt: time.Now().Format(time.RFC3339),
		})
		if err != nil {
			return location, fmt.Errorf("encode archive notice: %w", err)
		}
		if _, err := s.sqs.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(s.queueURL),
			MessageBody: aws.String(string(body)),
		}); err != nil {
			return location, fmt.Errorf("send SQS notice: %w", err)
		}
	}
	return location, nil
}

func (s *s3Archive) Name() string {
	return "s3"
}
