package artifact

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/8gabri8/TST-bioimage/internal/errors"
)

// S3Config holds the construction parameters of an S3 store. Credentials
// fall back to the default AWS chain when AccessKeyID is empty.
type S3Config struct {
	Region          string
	Bucket          string
	Endpoint        string // optional, for S3 compatible services such as MinIO
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// S3Store uploads objects to a single bucket
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates an S3 store. Extra options are applied to the client
// after the configured endpoint settings.
func NewS3Store(ctx context.Context, cfg S3Config, optFns ...func(*s3.Options)) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.Newf("s3 bucket required").Category(errors.CategoryConfiguration).Build()
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "load_aws_config").
			Build()
	}

	opts := []func(*s3.Options){func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}}
	client := s3.NewFromConfig(awsCfg, append(opts, optFns...)...)
	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3Store) Driver() Driver { return DriverS3 }

// Put uploads r under key, replacing any existing object
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	clean, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	input := &s3.PutObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(clean), Body: r}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return errors.New(err).
			Category(errors.CategoryStorage).
			Context("operation", "s3_put_object").
			Context("bucket", s.bucket).
			Context("key", clean).
			Build()
	}
	return nil
}
