package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sethvargo/go-retry"
)

// S3Uploader copies finished artifacts to S3-compatible storage. The upload
// is an idempotent PUT of an immutable file, so it is retried with backoff.
type S3Uploader struct {
	user     string
	password string
	bucket   string
	region   string
	endpoint string
}

func NewS3Uploader(user, password, bucket, region, endpoint string) *S3Uploader {
	return &S3Uploader{
		user:     user,
		password: password,
		bucket:   bucket,
		region:   region,
		endpoint: endpoint,
	}
}

func (u *S3Uploader) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(u.region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			u.user, u.password, "",
		)))
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(u.endpoint)
	}), nil
}

// Upload stores the artifact under backups/{filename}.
func (u *S3Uploader) Upload(ctx context.Context, path string) error {
	client, err := u.client(ctx)
	if err != nil {
		return fmt.Errorf("building s3 client: %w", err)
	}

	key := "backups/" + filepath.Base(path)
	backoff := retry.WithMaxRetries(3, retry.NewExponential(time.Second))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(u.bucket),
			Key:    aws.String(key),
			Body:   f,
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
