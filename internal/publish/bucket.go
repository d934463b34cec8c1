package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"readcast/internal/config"
	"readcast/internal/services"
)

// FeedKey is the bucket location of the rendered feed document.
const FeedKey = "feed.xml"

// ArtworkKey is the bucket location of the optional show artwork. The feed
// references it only when the object exists; uploading it is up to the
// operator.
const ArtworkKey = "artwork.jpg"

// EpisodeKey returns the bucket-relative location for an article's audio
// artifact. This relative form is what gets stored on the record; it is
// joined with the public base URL only at feed render time.
func EpisodeKey(sourceID string) string {
	return "episodes/" + sourceID + ".mp3"
}

// Uploader defines the bucket operations the pipeline uses.
type Uploader interface {
	UploadFile(ctx context.Context, key, localPath, contentType string) error
	UploadBytes(ctx context.Context, key string, body []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
}

// Bucket stores artifacts and the feed document in an S3-compatible bucket
// such as Cloudflare R2.
type Bucket struct {
	client *s3.Client
	bucket string
}

var _ Uploader = (*Bucket)(nil)

// NewBucket creates a bucket client from the publish configuration.
func NewBucket(cfg config.Publish) (*Bucket, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("publish endpoint required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("publish bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	awsCfg := aws.Config{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		HTTPClient:  &http.Client{Timeout: timeout},
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return &Bucket{client: client, bucket: cfg.Bucket}, nil
}

// UploadFile streams a local file to the bucket under the given key.
func (b *Bucket) UploadFile(ctx context.Context, key, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}
	return b.put(ctx, key, f, info.Size(), contentType)
}

// UploadBytes writes an in-memory document to the bucket under the given key.
func (b *Bucket) UploadBytes(ctx context.Context, key string, body []byte, contentType string) error {
	return b.put(ctx, key, strings.NewReader(string(body)), int64(len(body)), contentType)
}

func (b *Bucket) put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return classify(err, "put "+key)
	}
	return nil
}

// Exists reports whether an object is present in the bucket.
func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, classify(err, "head "+key)
	}
	return true, nil
}

// Ping verifies the bucket is reachable with the configured credentials.
func (b *Bucket) Ping(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	if err != nil {
		return classify(err, "head bucket")
	}
	return nil
}

// classify maps S3 errors onto the pipeline failure taxonomy: credential
// problems halt the run, everything else is retryable.
func classify(err error, operation string) error {
	msg := err.Error()
	if strings.Contains(msg, "403") ||
		strings.Contains(msg, "AccessDenied") ||
		strings.Contains(msg, "InvalidAccessKeyId") ||
		strings.Contains(msg, "SignatureDoesNotMatch") {
		return services.Wrap(services.ErrAuth, "publish", operation, "bucket rejected credentials", err)
	}
	return services.Wrap(services.ErrTransient, "publish", operation, "", err)
}

func isNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "404") || strings.Contains(msg, "NotFound") || strings.Contains(msg, "NoSuchKey")
}
