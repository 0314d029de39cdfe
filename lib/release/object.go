// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kiln-build/kiln/lib/artifact"
)

// ObjectHost publishes releases to an S3-compatible object store.
// Objects land under
//
//	<prefix>/<tag>/<job>-<variant>/<asset name>
//
// with the bundle manifest alongside. Idempotency comes from a
// per-object existence check: a retried publish skips objects that
// already exist, so the same tag never accumulates duplicates.
type ObjectHost struct {
	client *minio.Client
	bucket string
	prefix string
}

// ObjectConfig configures an object-store release host.
type ObjectConfig struct {
	// Endpoint is the S3 endpoint host[:port], without scheme.
	Endpoint string

	// AccessKey and SecretKey authenticate to the store. They come
	// from the sealed secrets file.
	AccessKey string
	SecretKey string

	// Bucket must already exist; kiln does not manage bucket
	// lifecycle or policy.
	Bucket string

	// Prefix is the key prefix for all releases ("releases" when
	// empty).
	Prefix string

	// Insecure disables TLS, for local development endpoints.
	Insecure bool
}

// NewObjectHost connects to the object store and verifies the bucket
// exists.
func NewObjectHost(ctx context.Context, config ObjectConfig) (*ObjectHost, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: !config.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to object store %s: %w", config.Endpoint, err)
	}

	exists, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", config.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("release bucket %s does not exist", config.Bucket)
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = "releases"
	}
	return &ObjectHost{client: client, bucket: config.Bucket, prefix: prefix}, nil
}

func (h *ObjectHost) Publish(ctx context.Context, release *Release) (string, error) {
	tagPrefix := path.Join(h.prefix, release.Tag)

	for _, bundle := range release.Bundles {
		bundlePrefix := path.Join(tagPrefix, bundle.Job+"-"+bundle.Variant)

		for _, file := range bundle.Files {
			key := path.Join(bundlePrefix, file.Name)
			if err := h.putFileOnce(ctx, key, file); err != nil {
				return "", &PublishError{Tag: release.Tag, Err: err}
			}
		}

		manifest, err := bundle.MarshalManifest()
		if err != nil {
			return "", &PublishError{Tag: release.Tag, Err: err}
		}
		manifestKey := path.Join(bundlePrefix, "manifest.cbor")
		if err := h.putBytesOnce(ctx, manifestKey, manifest, "application/cbor"); err != nil {
			return "", &PublishError{Tag: release.Tag, Err: err}
		}
	}

	return "s3://" + path.Join(h.bucket, tagPrefix), nil
}

// putFileOnce uploads a bundled file unless an object with the key
// already exists (retried publish).
func (h *ObjectHost) putFileOnce(ctx context.Context, key string, file artifact.File) error {
	if exists, err := h.objectExists(ctx, key); err != nil {
		return err
	} else if exists {
		return nil
	}

	source, err := os.Open(file.Path)
	if err != nil {
		return fmt.Errorf("opening asset %s: %w", file.Name, err)
	}
	defer source.Close()

	_, err = h.client.PutObject(ctx, h.bucket, key, source, file.Size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
		UserMetadata: map[string]string{
			"kiln-ref": file.Ref,
		},
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

func (h *ObjectHost) putBytesOnce(ctx context.Context, key string, data []byte, contentType string) error {
	if exists, err := h.objectExists(ctx, key); err != nil {
		return err
	} else if exists {
		return nil
	}
	_, err := h.client.PutObject(ctx, h.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

func (h *ObjectHost) objectExists(ctx context.Context, key string) (bool, error) {
	_, err := h.client.StatObject(ctx, h.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	response := minio.ToErrorResponse(err)
	if response.Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("checking %s: %w", key, err)
}
