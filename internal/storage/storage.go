// Package storage deletes uploaded import file artifacts by derived
// location, over either the local filesystem or S3. Absence is success:
// callers only care that the file is no longer present.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ignite/analytics-import/internal/domain"
)

// Config holds file store settings. Bucket may be empty when only local
// storage is in use.
type Config struct {
	LocalDir   string `yaml:"local_dir"`
	Bucket     string `yaml:"bucket"`
	Region     string `yaml:"region"`
	AWSProfile string `yaml:"aws_profile"`
}

// Store implements importjob.FileStore over local disk and S3.
type Store struct {
	s3Client *s3.Client
	bucket   string
}

// NewStore creates a file store. The S3 client is only initialized when a
// bucket is configured; a store without one still serves local deletes.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	st := &Store{bucket: cfg.Bucket}
	if cfg.Bucket == "" {
		return st, nil
	}

	var awsCfg aws.Config
	var err error
	if cfg.AWSProfile != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithSharedConfigProfile(cfg.AWSProfile),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	st.s3Client = s3.NewFromConfig(awsCfg)
	return st, nil
}

// Delete removes the file at loc. Returns (true, nil) when a file was
// removed and (false, nil) when it was already gone; "already gone" is a
// successful no-op, never an error. Permission, network, and backend
// failures propagate.
func (s *Store) Delete(ctx context.Context, loc domain.StorageLocation) (bool, error) {
	if loc.Key == "" {
		return false, fmt.Errorf("storage location key is empty")
	}
	if loc.Remote {
		return s.deleteRemote(ctx, loc.Key)
	}
	return deleteLocal(loc.Key)
}

func deleteLocal(path string) (bool, error) {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", path, err)
	}
	return true, nil
}

func (s *Store) deleteRemote(ctx context.Context, key string) (bool, error) {
	if s.s3Client == nil {
		return false, fmt.Errorf("remote storage not configured")
	}

	// DeleteObject succeeds even for absent keys, so probe first to report
	// "already gone" distinctly from "deleted".
	_, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("head s3://%s/%s: %w", s.bucket, key, err)
	}

	_, err = s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, fmt.Errorf("delete s3://%s/%s: %w", s.bucket, key, err)
	}
	return true, nil
}
