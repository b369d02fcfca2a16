package datastore

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/objectfs/pagestate/pkg/errors"
	"github.com/objectfs/pagestate/pkg/retry"
	"github.com/objectfs/pagestate/pkg/types"
	"github.com/objectfs/pagestate/pkg/utils"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config configures an S3Store.
type S3Config struct {
	Bucket         string
	Prefix         string
	Region         string
	Endpoint       string
	ForcePathStyle bool
	AccessKeyID    string
	SecretKey      string
	Retry          retry.Config
}

// S3Store stores pages as objects named <prefix>/<session>/<page id>.
type S3Store struct {
	client  S3API
	bucket  string
	prefix  string
	retryer *retry.Retryer
	logger  *utils.StructuredLogger
}

// NewS3Client builds an S3 client from cfg using the default AWS credential
// chain, or static credentials when a key pair is configured.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}), nil
}

// NewS3Store creates a store over client. Every call goes through a retryer
// built from cfg.Retry.
func NewS3Store(client S3API, cfg S3Config, logger *utils.StructuredLogger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "bucket name cannot be empty").
			WithComponent("datastore")
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	logger = logger.WithComponent("datastore").WithFields(map[string]interface{}{
		"backend": "s3",
		"bucket":  cfg.Bucket,
	})

	retryCfg := cfg.Retry
	retryCfg.IsRetryable = isRetryableS3Error
	retryer := retry.New(retryCfg).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		logger.Warn("retrying s3 request", map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err,
		})
	})

	return &S3Store{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		retryer: retryer,
		logger:  logger,
	}, nil
}

// StoreData implements types.DataStore.
func (s *S3Store) StoreData(ctx context.Context, session types.SessionID, id types.PageID, data []byte) error {
	key := s.objectKey(session, id)
	err := s.retryer.Do(ctx, func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/octet-stream"),
		})
		return err
	})
	if err != nil {
		return s.wrap(err, errors.ErrCodeStorageWrite, "PutObject", session, key)
	}
	return nil
}

// GetData implements types.DataStore.
func (s *S3Store) GetData(ctx context.Context, session types.SessionID, id types.PageID) ([]byte, bool, error) {
	key := s.objectKey(session, id)

	var data []byte
	found := true
	err := s.retryer.Do(ctx, func(ctx context.Context) error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isNotFound(err) {
				found = false
				return nil
			}
			return err
		}
		defer out.Body.Close()

		data, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		return nil, false, s.wrap(err, errors.ErrCodeStorageRead, "GetObject", session, key)
	}
	if !found {
		return nil, false, nil
	}
	return data, true, nil
}

// RemoveData implements types.DataStore.
func (s *S3Store) RemoveData(ctx context.Context, session types.SessionID, id types.PageID) error {
	key := s.objectKey(session, id)
	err := s.retryer.Do(ctx, func(ctx context.Context) error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if isNotFound(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return s.wrap(err, errors.ErrCodeStorageWrite, "DeleteObject", session, key)
	}
	return nil
}

// RemoveSession implements types.DataStore. It deletes every object under
// the session prefix, one listing page at a time.
func (s *S3Store) RemoveSession(ctx context.Context, session types.SessionID) error {
	prefix := s.sessionPrefix(session)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	deleted := 0
	for paginator.HasMorePages() {
		var page *s3.ListObjectsV2Output
		err := s.retryer.Do(ctx, func(ctx context.Context) error {
			var err error
			page, err = paginator.NextPage(ctx)
			return err
		})
		if err != nil {
			return s.wrap(err, errors.ErrCodeStorageRead, "ListObjectsV2", session, prefix)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, s3types.ObjectIdentifier{Key: obj.Key})
		}
		err = s.retryer.Do(ctx, func(ctx context.Context) error {
			_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(s.bucket),
				Delete: &s3types.Delete{Objects: objects, Quiet: aws.Bool(true)},
			})
			return err
		})
		if err != nil {
			return s.wrap(err, errors.ErrCodeStorageWrite, "DeleteObjects", session, prefix)
		}
		deleted += len(objects)
	}

	s.logger.Debug("session removed", map[string]interface{}{"session": session, "objects": deleted})
	return nil
}

// Close implements types.DataStore. The S3 client holds no resources.
func (s *S3Store) Close() error {
	return nil
}

func (s *S3Store) sessionPrefix(session types.SessionID) string {
	return path.Join(s.prefix, string(session)) + "/"
}

func (s *S3Store) objectKey(session types.SessionID, id types.PageID) string {
	return s.sessionPrefix(session) + strconv.Itoa(int(id))
}

func (s *S3Store) wrap(err error, code errors.ErrorCode, operation string, session types.SessionID, key string) error {
	return errors.Wrap(err, code, operation+" failed").
		WithComponent("datastore").
		WithOperation(operation).
		WithSession(string(session)).
		WithDetail("key", key)
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var noSuchKey *s3types.NoSuchKey
	if stderrors.As(err, &noSuchKey) {
		return true
	}
	var notFound *s3types.NotFound
	return stderrors.As(err, &notFound)
}

// isRetryableS3Error retries throttling and server-side faults.
func isRetryableS3Error(err error) bool {
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "Throttling", "ThrottlingException", "RequestTimeout", "InternalError", "ServiceUnavailable":
			return true
		}
		return apiErr.ErrorFault() == smithy.FaultServer
	}
	return false
}
