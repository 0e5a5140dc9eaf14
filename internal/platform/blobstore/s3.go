package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used by S3BlobStore.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 user metadata keys.
const (
	metaFileName = "file-name"
	metaCategory = "category"
	metaHash     = "sha256"
	metaID       = "blob-id"
	tagPrefix    = "tag-"
)

// S3BlobStore stores blobs under <category>/<id>/<file name> in one bucket.
type S3BlobStore struct {
	client S3API
	bucket string
}

// NewS3Client builds an S3 client from the default AWS config chain.
// Path-style addressing keeps local S3 emulators working.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return s3.New(s3.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
		UsePathStyle: true,
	}), nil
}

func NewS3BlobStore(client S3API, bucket string) *S3BlobStore {
	return &S3BlobStore{client: client, bucket: bucket}
}

func (s *S3BlobStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}

	userMeta := map[string]string{
		metaID:       meta.ID,
		metaFileName: meta.FileName,
		metaCategory: meta.Category,
		metaHash:     meta.Hash,
	}
	for k, v := range meta.Tags {
		userMeta[tagPrefix+k] = v
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(meta.Key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(meta.ContentType),
		ContentLength: aws.Int64(meta.Size),
		Metadata:      userMeta,
		ACL:           types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return nil, fmt.Errorf("put s3://%s/%s: %w", s.bucket, meta.Key, err)
	}
	return &meta, nil
}

// keyFor resolves a blob id to its object key by listing <category>/<id>/.
func (s *S3BlobStore) keyFor(ctx context.Context, id string) (string, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)})
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("list s3://%s: %w", s.bucket, err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if idFromKey(key) == id {
				return key, nil
			}
		}
	}
	return "", ErrBlobNotFound
}

func idFromKey(key string) string {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}

func metadataFrom(key string, contentType *string, size *int64, modified *time.Time, user map[string]string) *BlobMetadata {
	m := &BlobMetadata{
		ID:          idFromKey(key),
		Key:         key,
		FileName:    user[metaFileName],
		ContentType: aws.ToString(contentType),
		Size:        aws.ToInt64(size),
		Category:    user[metaCategory],
		Hash:        user[metaHash],
		CreatedAt:   aws.ToTime(modified).UTC(),
		Tags:        make(map[string]string),
	}
	for k, v := range user {
		if strings.HasPrefix(k, tagPrefix) {
			m.Tags[strings.TrimPrefix(k, tagPrefix)] = v
		}
	}
	return m
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

func (s *S3BlobStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	key, err := s.keyFor(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	return out.Body, metadataFrom(key, out.ContentType, out.ContentLength, out.LastModified, out.Metadata), nil
}

func (s *S3BlobStore) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	key, err := s.keyFor(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.head(ctx, key)
}

func (s *S3BlobStore) head(ctx context.Context, key string) (*BlobMetadata, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("head s3://%s/%s: %w", s.bucket, key, err)
	}
	return metadataFrom(key, out.ContentType, out.ContentLength, out.LastModified, out.Metadata), nil
}

func (s *S3BlobStore) Delete(ctx context.Context, id string) error {
	key, err := s.keyFor(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		return fmt.Errorf("delete s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// Search lists the bucket (or the category prefix) and filters on object
// metadata.
func (s *S3BlobStore) Search(ctx context.Context, params SearchParams) ([]*BlobMetadata, int, error) {
	in := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if params.Category != "" {
		in.Prefix = aws.String(params.Category + "/")
	}

	var matched []*BlobMetadata
	p := s3.NewListObjectsV2Paginator(s.client, in)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("list s3://%s: %w", s.bucket, err)
		}
		for _, obj := range out.Contents {
			m, err := s.head(ctx, aws.ToString(obj.Key))
			if err != nil {
				return nil, 0, err
			}
			if matchesSearch(m, params) {
				matched = append(matched, m)
			}
		}
	}
	return page(matched, params.Limit, params.Offset), len(matched), nil
}
