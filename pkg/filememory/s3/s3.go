// Copyright 2025 The Procyon Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package s3 implements filememory.Memory on an S3 bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/procyon-ai/procyon/pkg/filememory"
)

// Options configures the S3 file memory.
type Options struct {
	Bucket string
	Region string

	// CreateBucketOnStartup creates the bucket during Start when set.
	CreateBucketOnStartup bool

	// Client overrides the SDK client; used by tests.
	Client Client
}

// Client is the subset of the S3 API the memory uses.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Memory stores blobs as S3 objects.
type Memory struct {
	client Client
	opts   Options
}

// New creates an S3-backed file memory. When no client is supplied the
// default AWS configuration chain is used.
func New(ctx context.Context, opts Options) (*Memory, error) {
	if opts.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	client := opts.Client
	if client == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if opts.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = s3.NewFromConfig(cfg)
	}
	return &Memory{client: client, opts: opts}, nil
}

// Start creates the bucket when configured to do so.
func (m *Memory) Start(ctx context.Context) error {
	if !m.opts.CreateBucketOnStartup {
		return nil
	}
	_, err := m.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(m.opts.Bucket),
	})
	var owned *types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return nil
	}
	return err
}

// Read implements filememory.Memory.
func (m *Memory) Read(ctx context.Context, p string) ([]byte, error) {
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.opts.Bucket),
		Key:    aws.String(p),
	})
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return nil, filememory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Write implements filememory.Memory.
func (m *Memory) Write(ctx context.Context, p string, contents []byte) error {
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.opts.Bucket),
		Key:    aws.String(p),
		Body:   bytes.NewReader(contents),
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

// Delete implements filememory.Memory.
func (m *Memory) Delete(ctx context.Context, p string) error {
	_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.opts.Bucket),
		Key:    aws.String(p),
	})
	return err
}

// Exists implements filememory.Memory.
func (m *Memory) Exists(ctx context.Context, p string) (bool, error) {
	out, err := m.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.opts.Bucket),
		Prefix: aws.String(p),
	})
	if err != nil {
		return false, err
	}
	for _, obj := range out.Contents {
		if aws.ToString(obj.Key) == p {
			return true, nil
		}
	}
	return false, nil
}

// Glob implements filememory.Memory.
func (m *Memory) Glob(ctx context.Context, pattern string) ([]string, error) {
	var matches []string
	var token *string
	for {
		out, err := m.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(m.opts.Bucket),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			ok, err := path.Match(pattern, key)
			if err != nil {
				return nil, err
			}
			if ok {
				matches = append(matches, key)
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	return matches, nil
}
