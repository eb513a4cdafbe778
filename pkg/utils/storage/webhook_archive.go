package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	s3Client *s3.Client
	bucket   string
)

// InitArchive wires the S3 client used for raw webhook payload archival.
// Explicit keys override the default credential chain, which lets the
// archive point at S3-compatible storage. Callers treat archival as a
// best-effort side effect.
func InitArchive(bucketName, region, accessKeyID, secretAccessKey string) error {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(), opts...)
	if err != nil {
		return fmt.Errorf("unable to load SDK config: %v", err)
	}

	s3Client = s3.NewFromConfig(cfg)
	bucket = bucketName
	return nil
}

func Enabled() bool {
	return s3Client != nil && bucket != ""
}

// ArchiveWebhookPayload stores the raw event body keyed by date and event
// id, kept as an audit trail next to the database delivery log.
func ArchiveWebhookPayload(eventID string, payload []byte) error {
	if !Enabled() {
		return nil
	}

	key := fmt.Sprintf("stripe/%s/%s.json", time.Now().Format("2006/01/02"), eventID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("could not archive webhook payload: %v", err)
	}
	return nil
}
