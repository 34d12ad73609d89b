package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// putObjectAPI is the subset of the S3 client used by S3Uploader.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ putObjectAPI = (*s3.Client)(nil)

// S3Options configures an S3Uploader. Any S3-compatible service can be used
// by setting Endpoint.
type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string

	// BaseURL is the public prefix objects are served from. When empty it is
	// derived from Endpoint and Bucket.
	BaseURL string

	// PathStyle addresses the bucket as endpoint/bucket rather than as a
	// bucket.endpoint virtual host.
	PathStyle bool
}

// S3Uploader uploads objects with a single PutObject call.
type S3Uploader struct {
	api     putObjectAPI
	bucket  string
	baseURL string
}

// NewS3Uploader creates an S3Uploader. Static credentials are used when an
// access key is given; otherwise the default AWS credential chain applies.
func NewS3Uploader(ctx context.Context, opts S3Options) (*S3Uploader, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
		o.RetryMaxAttempts = 1
	})

	return newS3Uploader(client, opts), nil
}

func newS3Uploader(api putObjectAPI, opts S3Options) *S3Uploader {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultS3BaseURL(opts)
	}
	return &S3Uploader{api: api, bucket: opts.Bucket, baseURL: baseURL}
}

func defaultS3BaseURL(opts S3Options) string {
	if opts.Endpoint != "" {
		return publicURL(opts.Endpoint, opts.Bucket)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
}

// Upload puts content into the bucket under the object name.
func (u *S3Uploader) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(req.ObjectName),
		Body:        req.Content,
		ContentType: aws.String(req.ContentType),
	}
	if req.Size >= 0 {
		input.ContentLength = aws.Int64(req.Size)
	}

	if _, err := u.api.PutObject(ctx, input); err != nil {
		return nil, fmt.Errorf("storage: put object %q failed: %w", req.ObjectName, err)
	}

	return &UploadResult{
		ObjectName: req.ObjectName,
		URL:        publicURL(u.baseURL, req.ObjectName),
	}, nil
}
