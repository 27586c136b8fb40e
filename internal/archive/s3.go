package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dandytbermillo/canvasd/internal/apperr"
	"github.com/dandytbermillo/canvasd/internal/checksum"
)

// S3 implements Provider on an S3-compatible bucket (AWS S3 or MinIO). One
// object per note under the configured prefix.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ Provider = (*S3)(nil)

// S3Config carries the bucket coordinates. Credentials come from the default
// AWS chain.
type S3Config struct {
	Region    string
	Bucket    string
	Prefix    string
	Endpoint  string // optional, for MinIO-style deployments
	PathStyle bool
}

// NewS3 creates an S3 archive provider.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

func (s *S3) key(noteID string) string {
	return s.prefix + noteID + Suffix
}

func (s *S3) List(ctx context.Context) ([]Entry, error) {
	var out []Entry
	var token *string
	for {
		resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            &s.prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("archive: s3 list: %w", err)
		}
		for _, obj := range resp.Contents {
			key := aws.ToString(obj.Key)
			noteID := NoteIDFromPath(strings.TrimPrefix(key, s.prefix))
			if noteID == "" {
				continue
			}
			out = append(out, Entry{
				NoteID:    noteID,
				Checksum:  checksum.NormalizeETag(aws.ToString(obj.ETag)),
				UpdatedAt: aws.ToTime(obj.LastModified),
			})
		}
		if resp.IsTruncated != nil && *resp.IsTruncated && resp.NextContinuationToken != nil {
			token = resp.NextContinuationToken
			continue
		}
		return out, nil
	}
}

func (s *S3) Read(ctx context.Context, noteID string) ([]byte, error) {
	key := s.key(noteID)
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		var nk *types.NoSuchKey
		if errors.As(err, &nk) {
			return nil, fmt.Errorf("archive: %s: %w", noteID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("archive: s3 get %s: %w", noteID, err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("archive: s3 read %s: %w", noteID, err)
	}
	return data, nil
}

func (s *S3) Write(ctx context.Context, noteID string, data []byte) error {
	key := s.key(noteID)
	ct := "application/json"
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &ct,
		Metadata:    map[string]string{"checksum": checksum.Sum(data)},
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", noteID, err)
	}
	return nil
}

func (s *S3) Delete(ctx context.Context, noteID string) error {
	key := s.key(noteID)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return fmt.Errorf("archive: s3 delete %s: %w", noteID, err)
	}
	return nil
}
