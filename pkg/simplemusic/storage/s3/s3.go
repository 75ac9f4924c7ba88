package s3

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/tendant/simple-music/pkg/simplemusic"
	"github.com/tendant/simple-music/pkg/simplemusic/mediaprobe"
	"github.com/tendant/simple-music/pkg/simplemusic/objectkey"
)

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// PublicBaseURL is the prefix of URLs stored on records. Defaults to the
	// virtual-hosted bucket URL, or Endpoint/Bucket when Endpoint is set.
	PublicBaseURL string

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool // Create bucket if it doesn't exist

	Prober mediaprobe.Prober
	Keys   objectkey.Generator
}

// Backend is an S3-compatible implementation of the simplemusic.BlobStore interface
type Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	baseURL  string
	prober   mediaprobe.Prober
	keys     objectkey.Generator
	config   Config
}

var (
	_ simplemusic.BlobStore    = (*Backend)(nil)
	_ simplemusic.ObjectLister = (*Backend)(nil)
)

// New creates a new S3-compatible storage backend
func New(config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}

	var awsCfg aws.Config
	var err error

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		// Use default credential chain
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
		)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)

	// Custom endpoint for S3-compatible services (MinIO, etc.)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)

	backend := &Backend{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   config.Bucket,
		baseURL:  publicBaseURL(config),
		prober:   config.Prober,
		keys:     config.Keys,
		config:   config,
	}
	if backend.prober == nil {
		backend.prober = mediaprobe.NewBeepProber()
	}
	if backend.keys == nil {
		backend.keys = objectkey.NewRecommendedGenerator()
	}

	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return backend, nil
}

func publicBaseURL(config Config) string {
	if config.PublicBaseURL != "" {
		return strings.TrimRight(config.PublicBaseURL, "/")
	}
	if config.Endpoint != "" {
		return strings.TrimRight(config.Endpoint, "/") + "/" + config.Bucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", config.Bucket, config.Region)
}

// createBucketIfNotExists creates the bucket if it doesn't exist
func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err == nil {
		return nil
	}

	// MinIO reports a missing bucket in several shapes
	var noSuchBucket *types.NoSuchBucket
	if !isNotFound(err) && !errors.As(err, &noSuchBucket) &&
		!strings.Contains(err.Error(), "BadRequest") &&
		!strings.Contains(err.Error(), "NoSuchBucket") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	}

	// Add location constraint for regions other than us-east-1
	if b.config.Region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}

	_, err = b.client.CreateBucket(ctx, createInput)
	if err != nil {
		if strings.Contains(err.Error(), "BucketAlreadyExists") ||
			strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}

// Upload streams the staged file to the bucket
func (b *Backend) Upload(ctx context.Context, localPath string, class simplemusic.ContentClass, folder string) (*simplemusic.UploadResult, error) {
	if !class.IsValid() {
		return nil, fmt.Errorf("unsupported content class %q", class)
	}

	result := &simplemusic.UploadResult{}
	if class == simplemusic.ContentClassAudio {
		d, err := b.prober.Duration(ctx, localPath)
		if err != nil {
			return nil, fmt.Errorf("failed to probe audio: %w", err)
		}
		result.DurationSeconds = d
	}

	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open staged file: %w", err)
	}
	defer file.Close()

	key := b.keys.GenerateKey(folder, uuid.New(), filepath.Base(localPath))

	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentTypeFor(localPath, class)),
	}

	if b.config.EnableSSE {
		input.ServerSideEncryption = types.ServerSideEncryption(b.config.SSEAlgorithm)
		if b.config.SSEAlgorithm == "aws:kms" && b.config.SSEKMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
		}
	}

	if _, err := b.uploader.Upload(ctx, input); err != nil {
		return nil, fmt.Errorf("failed to upload object: %w", err)
	}

	result.URL = b.urlFor(key)
	return result, nil
}

// Delete removes the object behind url; a missing object yields simplemusic.ErrObjectAbsent
func (b *Backend) Delete(ctx context.Context, url string, class simplemusic.ContentClass) error {
	key, err := b.keyFor(url)
	if err != nil {
		return err
	}

	// DeleteObject succeeds for missing keys, so existence is checked first
	_, err = b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return simplemusic.ErrObjectAbsent
		}
		return fmt.Errorf("failed to check object: %w", err)
	}

	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

// List pages through every object under folder
func (b *Backend) List(ctx context.Context, folder string) ([]simplemusic.ObjectInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(strings.Trim(folder, "/") + "/"),
	})

	var infos []simplemusic.ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			info := simplemusic.ObjectInfo{
				URL:  b.urlFor(aws.ToString(obj.Key)),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.ModifiedAt = *obj.LastModified
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}

func (b *Backend) urlFor(key string) string {
	return b.baseURL + "/" + key
}

func (b *Backend) keyFor(url string) (string, error) {
	key, ok := strings.CutPrefix(url, b.baseURL+"/")
	if !ok || key == "" {
		return "", fmt.Errorf("url %q does not belong to bucket %s", url, b.bucket)
	}
	return key, nil
}

func contentTypeFor(path string, class simplemusic.ContentClass) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	if class == simplemusic.ContentClassAudio {
		return "audio/mpeg"
	}
	return "application/octet-stream"
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
