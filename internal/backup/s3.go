package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3Sink stores snapshots as objects in a single bucket, for runs whose
// artifacts must outlive the operator's machine.
type s3Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config holds explicit construction parameters (mostly for tests; prod
// relies on environment variables and the default credential chain).
type S3Config struct {
	Region   string
	Bucket   string
	Prefix   string // optional key prefix inside the bucket
	Endpoint string // optional; enables a custom endpoint (e.g. MinIO)
}

// NewS3 creates an S3-backed sink from S3Config.
func NewS3(ctx context.Context, cfg S3Config) (Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-2"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &s3Sink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// OpenS3FromEnv constructs an S3 sink from process environment:
//
//	FINZOPS_BACKUP_S3_BUCKET (required)
//	FINZOPS_BACKUP_S3_PREFIX (optional)
//	FINZOPS_BACKUP_S3_ENDPOINT (optional, for MinIO)
func OpenS3FromEnv(ctx context.Context, region string) (Sink, error) {
	bucket := os.Getenv("FINZOPS_BACKUP_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("FINZOPS_BACKUP_S3_BUCKET required for s3 backup driver")
	}
	return NewS3(ctx, S3Config{
		Region:   region,
		Bucket:   bucket,
		Prefix:   os.Getenv("FINZOPS_BACKUP_S3_PREFIX"),
		Endpoint: os.Getenv("FINZOPS_BACKUP_S3_ENDPOINT"),
	})
}

func (s *s3Sink) Driver() Driver { return DriverS3 }

func (s *s3Sink) objectKey(ref string) string {
	if s.prefix == "" {
		return ref
	}
	return s.prefix + "/" + ref
}

func (s *s3Sink) Write(ctx context.Context, key string, data []byte) (string, error) {
	ref := timestampRef(key, time.Now())
	obj := s.objectKey(ref)
	ct := "application/json"
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &obj,
		Body:        bytes.NewReader(data),
		ContentType: &ct,
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

func (s *s3Sink) Read(ctx context.Context, ref string) ([]byte, error) {
	obj := s.objectKey(ref)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &obj})
	if err != nil {
		return nil, err
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(out.Body)
}

func (s *s3Sink) List(ctx context.Context, prefix string) ([]string, error) {
	full := s.objectKey(prefix)
	var refs []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: &s.bucket, Prefix: &full, ContinuationToken: token})
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			ref := aws.ToString(obj.Key)
			if s.prefix != "" {
				ref = ref[len(s.prefix)+1:]
			}
			refs = append(refs, ref)
		}
		if out.IsTruncated != nil && *out.IsTruncated && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Strings(refs)
	return refs, nil
}
