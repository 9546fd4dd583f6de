package network

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
)

const numS3Retries = 3

// DefaultPresignTTL is how long a staged source URL stays fetchable by the
// conversion service.
const DefaultPresignTTL = 2 * time.Hour

// S3UploadParams ...
type S3UploadParams struct {
	SourcePath      string
	Bucket          string
	KeyPrefix       string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// PresignTTL bounds the validity of the returned URL. Zero means
	// DefaultPresignTTL.
	PresignTTL time.Duration
}

type s3StagingService struct {
	client         *s3.Client
	bucket         string
	sourcePath     string
	sourceChecksum string
	sourceSize     int64
}

// UploadSourceToS3 stages a local file in a caller-owned S3 bucket and
// returns a presigned GET URL that can be submitted as a conversion source.
// An object with an identical checksum is not uploaded again; its expiration
// is extended instead.
func UploadSourceToS3(ctx context.Context, params S3UploadParams, logger log.Logger) (string, error) {
	if params.Bucket == "" {
		return "", fmt.Errorf("bucket must not be empty")
	}

	info, err := os.Stat(params.SourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrSourceNotFound, params.SourcePath)
		}
		return "", fmt.Errorf("stat file: %w", err)
	}

	checksum, err := checksumOfFile(params.SourcePath)
	if err != nil {
		return "", fmt.Errorf("checksum source: %w", err)
	}

	cfg, err := loadAWSCredentials(
		ctx,
		params.Region,
		params.AccessKeyID,
		params.SecretAccessKey,
		logger,
	)
	if err != nil {
		return "", fmt.Errorf("load aws credentials: %w", err)
	}

	client := s3.NewFromConfig(*cfg)
	service := &s3StagingService{
		client:         client,
		bucket:         params.Bucket,
		sourcePath:     params.SourcePath,
		sourceChecksum: checksum,
		sourceSize:     info.Size(),
	}

	key := params.KeyPrefix + checksum[:16] + "-" + filepath.Base(params.SourcePath)
	if err := service.stageWithS3Client(ctx, key, logger); err != nil {
		return "", err
	}

	ttl := params.PresignTTL
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}

	presigner := s3.NewPresignClient(client)
	presigned, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(params.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign source URL: %w", err)
	}

	return presigned.URL, nil
}

// If the object for the key & checksum exists in bucket -> extend expiration
// If the object for the key exists in bucket -> upload -> overwrites existing object & expiration
// If the object is not yet present in bucket -> upload
func (service *s3StagingService) stageWithS3Client(ctx context.Context, key string, logger log.Logger) error {
	checksum, err := service.findChecksumWithRetry(ctx, key)
	if err != nil {
		return fmt.Errorf("validate object: %w", err)
	}

	if checksum == service.sourceChecksum {
		logger.Debugf("Found staged source with the same checksum. Extending expiration time...")
		if err := service.copyObjectWithRetry(ctx, key, logger); err != nil {
			return fmt.Errorf("copy object: %w", err)
		}
		return nil
	}

	logger.Debugf("Staging source in bucket %s...", service.bucket)
	if err := service.putObjectWithRetry(ctx, key); err != nil {
		return fmt.Errorf("upload source: %w", err)
	}

	return nil
}

// findChecksumWithRetry tries to find the staged object in the bucket.
// If the object is present, it returns its SHA-256 checksum.
// If the object isn't present, it returns an empty string.
func (service *s3StagingService) findChecksumWithRetry(ctx context.Context, key string) (string, error) {
	var checksum string
	err := retry.Times(numS3Retries).Wait(5 * time.Second).TryWithAbort(func(attempt uint) (error, bool) {
		_, err := service.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(service.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var apiError smithy.APIError
			if errors.As(err, &apiError) {
				switch apiError.(type) {
				case *types.NotFound:
					// continue with upload
					return nil, true
				default:
					return fmt.Errorf("validating object: %w", err), false
				}
			}
		}

		attributes, err := service.client.GetObjectAttributes(ctx, &s3.GetObjectAttributesInput{
			Bucket: aws.String(service.bucket),
			Key:    aws.String(key),
			ObjectAttributes: []types.ObjectAttributes{
				"Checksum",
			},
		})
		if err != nil {
			return fmt.Errorf("get object attributes: %w", err), false
		}

		if attributes != nil && attributes.Checksum != nil && attributes.Checksum.ChecksumSHA256 != nil {
			decodedChecksum, err := base64.StdEncoding.DecodeString(*attributes.Checksum.ChecksumSHA256)
			if err != nil {
				return fmt.Errorf("base64 decode checksum: %w", err), true
			}

			checksum = hex.EncodeToString(decodedChecksum)
		}

		return nil, true
	})

	return checksum, err
}

// By copying an S3 object into itself with the same Storage Class, the expiration date gets extended.
// copyObjectWithRetry uses this trick to extend the staged object's expiration.
func (service *s3StagingService) copyObjectWithRetry(ctx context.Context, key string, logger log.Logger) error {
	return retry.Times(numS3Retries).Wait(5 * time.Second).TryWithAbort(func(attempt uint) (error, bool) {
		resp, err := service.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:       aws.String(service.bucket),
			Key:          aws.String(key),
			StorageClass: types.StorageClassStandard,
			CopySource:   aws.String(fmt.Sprintf("%s/%s", service.bucket, key)),
		})
		if err != nil {
			return fmt.Errorf("extend expiration: %w", err), false
		}
		if resp != nil && resp.Expiration != nil {
			logger.Debugf("New expiration date is %s", *resp.Expiration)
		}
		return nil, true
	})
}

func (service *s3StagingService) putObjectWithRetry(ctx context.Context, key string) error {
	return retry.Times(numS3Retries).Wait(5 * time.Second).TryWithAbort(func(attempt uint) (error, bool) {
		file, err := os.Open(service.sourcePath)
		if err != nil {
			return fmt.Errorf("open source path: %w", err), true
		}
		defer file.Close() //nolint:errcheck
		var partMB int64 = 10

		uploader := manager.NewUploader(service.client, func(u *manager.Uploader) {
			u.PartSize = partMB * 1024 * 1024
		})

		_, err = uploader.Upload(ctx, &s3.PutObjectInput{
			Body:              file,
			Bucket:            aws.String(service.bucket),
			Key:               aws.String(key),
			ContentType:       aws.String("application/pdf"),
			ContentLength:     aws.Int64(service.sourceSize),
			ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
		})
		if err != nil {
			return fmt.Errorf("upload source: %w", err), false
		}

		return nil, true
	})
}

func checksumOfFile(path string) (string, error) {
	hash := sha256.New()

	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close() //nolint:errcheck

	_, err = io.Copy(hash, file)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
