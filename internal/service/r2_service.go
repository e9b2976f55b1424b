package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	config "github.com/maheshrc27/postflow/configs"
)

// r2API is the part of the S3 client the store uses.
type r2API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type r2UploadStore struct {
	client    r2API
	bucket    string
	publicURL string
}

// NewR2UploadStore stores images in a Cloudflare R2 bucket served from R2_PUBLIC_URL.
func NewR2UploadStore(ctx context.Context, cfg config.R2) (UploadStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
	})
	return newR2UploadStore(client, cfg.BucketName, cfg.PublicURL), nil
}

func newR2UploadStore(client r2API, bucket, publicURL string) *r2UploadStore {
	return &r2UploadStore{client: client, bucket: bucket, publicURL: strings.TrimRight(publicURL, "/")}
}

func (s *r2UploadStore) Save(ctx context.Context, data []byte) (string, error) {
	ext, mime, err := sniffImage(data)
	if err != nil {
		return "", err
	}

	key, err := newFilename(ext)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mime),
	})
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	return s.URLFor(key), nil
}

func (s *r2UploadStore) URLFor(filename string) string {
	return fmt.Sprintf("%s/%s", s.publicURL, filename)
}

// Delete checks the object first since S3 deletes succeed for missing keys.
func (s *r2UploadStore) Delete(ctx context.Context, filename string) bool {
	if filename == "" {
		return false
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(filename),
	})
	if err != nil {
		var notFound *types.NotFound
		if !errors.As(err, &notFound) {
			slog.WarnContext(ctx, "failed to stat upload", "file", filename, "err", err)
		}
		return false
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(filename),
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to delete upload", "file", filename, "err", err)
		return false
	}
	slog.InfoContext(ctx, "deleted upload", "file", filename)
	return true
}

func (s *r2UploadStore) Owns(url string) (string, bool) {
	return ownedFilename(url, s.publicURL+"/")
}
