package remote

import (
	"context"
	"fmt"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/replicate/cogset/pkg/util/console"
)

// S3Backend moves object bytes to/from an S3 bucket, grounded on the
// teacher's tools/uploader (aws-sdk-go-v2's s3.Client, multipart-aware
// transfer) but simplified to the manager package's Uploader/Downloader
// rather than hand-rolled multipart bookkeeping — this engine pushes
// single content-addressed objects, not the large-file streaming case
// the teacher's uploader was built for.
type S3Backend struct {
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
	download *manager.Downloader
}

// NewS3Backend parses an "s3://bucket/prefix" URL and loads AWS
// credentials from the default chain.
func NewS3Backend(rawURL string) (*S3Backend, error) {
	bucket, prefix, err := parseS3URL(rawURL)
	if err != nil {
		return nil, err
	}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("remote: loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Backend{
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
		download: manager.NewDownloader(client),
	}, nil
}

func parseS3URL(rawURL string) (bucket, prefix string, err error) {
	trimmed := strings.TrimPrefix(rawURL, "s3://")
	if trimmed == rawURL {
		return "", "", fmt.Errorf("remote: not an s3:// URL: %q", rawURL)
	}
	parts := strings.SplitN(trimmed, "/", 2)
	bucket = parts[0]
	if bucket == "" {
		return "", "", fmt.Errorf("remote: s3 URL missing bucket: %q", rawURL)
	}
	if len(parts) == 2 {
		prefix = strings.TrimSuffix(parts[1], "/")
	}
	return bucket, prefix, nil
}

func (s *S3Backend) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *S3Backend) Push(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	objectKey := s.objectKey(key)
	console.Debugf("uploading %s to s3://%s/%s", localPath, s.bucket, objectKey)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("remote: s3 upload %s: %w", objectKey, err)
	}
	return nil
}

func (s *S3Backend) Pull(ctx context.Context, key, localPath string) error {
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	objectKey := s.objectKey(key)
	console.Debugf("downloading s3://%s/%s to %s", s.bucket, objectKey, localPath)
	_, err = s.download.Download(ctx, f, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
	})
	if err != nil {
		return fmt.Errorf("remote: s3 download %s: %w", objectKey, err)
	}
	return nil
}

func (s *S3Backend) Exists(ctx context.Context, key string) (bool, error) {
	objectKey := s.objectKey(key)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &objectKey,
	})
	if err != nil {
		if strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "404") {
			return false, nil
		}
		return false, fmt.Errorf("remote: s3 head %s: %w", objectKey, err)
	}
	return true, nil
}
