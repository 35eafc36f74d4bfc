// SPDX-License-Identifier: MIT

package tilestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/minio/minio-go/v7"
)

// S3 is the subset of minio.Client this package uses. Defining a narrow
// interface rather than depending on *minio.Client directly keeps the
// store testable with a fake.
type S3 interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3Store uploads the directory-of-files layout directly to an S3
// bucket instead of local disk, one PutObject per tile plus a
// metadata.json object at Finish.
type S3Store struct {
	ctx    context.Context
	client S3
	bucket string
	prefix string
}

func NewS3Store(ctx context.Context, client S3, bucket, prefix string) *S3Store {
	return &S3Store{ctx: ctx, client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) objectKey(z uint8, x, y uint32) string {
	return s.prefix + "/" + strconv.Itoa(int(z)) + "/" + strconv.Itoa(int(x)) + "/" + strconv.FormatUint(uint64(y), 10) + ".pbf"
}

func (s *S3Store) PutTile(z uint8, x, y uint32, data []byte) error {
	key := s.objectKey(z, x, y)
	_, err := s.client.PutObject(s.ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/vnd.mapbox-vector-tile", ContentEncoding: "gzip"})
	if err != nil {
		return fmt.Errorf("tilestore: uploading %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Finish(meta Metadata) error {
	vectorLayers, err := vectorLayersJSON(meta)
	if err != nil {
		return err
	}
	doc := fmt.Sprintf(`{"name":%q,"minzoom":%d,"maxzoom":%d,"json":%s}`,
		meta.Name, meta.MinZoom, meta.MaxZoom, vectorLayers)
	key := s.prefix + "/metadata.json"
	_, err = s.client.PutObject(s.ctx, s.bucket, key, bytes.NewReader([]byte(doc)), int64(len(doc)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("tilestore: uploading %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Close() error { return nil }
