/*
Copyright (C) 2026  GeddyDB Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package segment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrNotExist is returned by a Backend when the requested object (a
// segment or the tombstone file) does not exist.
var ErrNotExist = errors.New("segment: object does not exist")

// Backend abstracts where a table's segment files and tombstone file
// physically live, mirroring the teacher's PersistenceEngine
// (storage/persistence.go) one level down: scoped to one table's
// segments directory instead of a whole schema.
type Backend interface {
	ListSegments(table string) ([]string, error)
	ReadSegment(table, name string) ([]byte, error)
	WriteSegment(table, name string, data []byte) error
	RemoveSegment(table, name string) error
	ReadTombstones(table string) ([]byte, error)
	WriteTombstones(table string, data []byte) error
	RemoveTombstones(table string) error
}

// FileBackend stores segments and tombstones on the local file system
// under segments/{table}/, the layout described in §6. Grounded on
// storage/persistence-files.go's FileStorage.
type FileBackend struct {
	Root string
}

func (b *FileBackend) tableDir(table string) string {
	return filepath.Join(b.Root, table)
}

func (b *FileBackend) ListSegments(table string) ([]string, error) {
	entries, err := os.ReadDir(b.tableDir(table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("segment: list %s: %w", table, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "seg_") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (b *FileBackend) ReadSegment(table, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(b.tableDir(table), name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("segment: read %s/%s: %w", table, name, err)
	}
	return data, nil
}

func (b *FileBackend) WriteSegment(table, name string, data []byte) error {
	dir := b.tableDir(table)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("segment: mkdir %s: %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o640); err != nil {
		return fmt.Errorf("segment: write %s/%s: %w", table, name, err)
	}
	return nil
}

func (b *FileBackend) RemoveSegment(table, name string) error {
	if err := os.Remove(filepath.Join(b.tableDir(table), name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("segment: remove %s/%s: %w", table, name, err)
	}
	return nil
}

const tombstoneName = "deletes.json"

func (b *FileBackend) ReadTombstones(table string) ([]byte, error) {
	return b.ReadSegment(table, tombstoneName)
}

func (b *FileBackend) WriteTombstones(table string, data []byte) error {
	return b.WriteSegment(table, tombstoneName, data)
}

func (b *FileBackend) RemoveTombstones(table string) error {
	return b.RemoveSegment(table, tombstoneName)
}

// S3Config mirrors the teacher's S3Factory (storage/persistence-s3.go):
// everything needed to build an aws-sdk-go-v2 S3 client, including the
// MinIO/S3-compatible knobs (custom Endpoint, ForcePathStyle).
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string
	Bucket          string
	Prefix          string
	ForcePathStyle  bool
}

// S3Backend stores segments and tombstones as objects under
// {Prefix}/{table}/, built lazily on first use exactly like the
// teacher's S3Storage.ensureOpen.
type S3Backend struct {
	cfg S3Config

	mu     sync.Mutex
	client *s3.Client
}

func NewS3Backend(cfg S3Config) *S3Backend {
	return &S3Backend{cfg: cfg}
}

func (b *S3Backend) ensureOpen(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return nil
	}
	var opts []func(*config.LoadOptions) error
	if b.cfg.Region != "" {
		opts = append(opts, config.WithRegion(b.cfg.Region))
	}
	if b.cfg.AccessKeyID != "" && b.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(b.cfg.AccessKeyID, b.cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("segment: load aws config: %w", err)
	}
	var s3Opts []func(*s3.Options)
	if b.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(b.cfg.Endpoint) })
	}
	if b.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	b.client = s3.NewFromConfig(awsCfg, s3Opts...)
	return nil
}

func (b *S3Backend) key(table, name string) string {
	prefix := strings.TrimSuffix(b.cfg.Prefix, "/")
	if prefix != "" {
		return prefix + "/" + table + "/" + name
	}
	return table + "/" + name
}

func (b *S3Backend) ListSegments(table string) ([]string, error) {
	ctx := context.Background()
	if err := b.ensureOpen(ctx); err != nil {
		return nil, err
	}
	prefix := b.key(table, "seg_")
	var names []string
	var token *string
	for {
		resp, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.cfg.Bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("segment: list %s: %w", table, err)
		}
		for _, obj := range resp.Contents {
			names = append(names, strings.TrimPrefix(*obj.Key, b.key(table, "")))
		}
		if resp.IsTruncated == nil || !*resp.IsTruncated {
			break
		}
		token = resp.NextContinuationToken
	}
	sort.Strings(names)
	return names, nil
}

func (b *S3Backend) get(table, name string) ([]byte, error) {
	ctx := context.Background()
	if err := b.ensureOpen(ctx); err != nil {
		return nil, err
	}
	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(table, name)),
	})
	if err != nil {
		return nil, ErrNotExist
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("segment: read %s/%s: %w", table, name, err)
	}
	return data, nil
}

func (b *S3Backend) put(table, name string, data []byte) error {
	ctx := context.Background()
	if err := b.ensureOpen(ctx); err != nil {
		return err
	}
	if _, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(table, name)),
		Body:   bytes.NewReader(data),
	}); err != nil {
		return fmt.Errorf("segment: write %s/%s: %w", table, name, err)
	}
	return nil
}

func (b *S3Backend) remove(table, name string) error {
	ctx := context.Background()
	if err := b.ensureOpen(ctx); err != nil {
		return err
	}
	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(table, name)),
	}); err != nil {
		return fmt.Errorf("segment: remove %s/%s: %w", table, name, err)
	}
	return nil
}

func (b *S3Backend) ReadSegment(table, name string) ([]byte, error)  { return b.get(table, name) }
func (b *S3Backend) WriteSegment(table, name string, data []byte) error { return b.put(table, name, data) }
func (b *S3Backend) RemoveSegment(table, name string) error         { return b.remove(table, name) }
func (b *S3Backend) ReadTombstones(table string) ([]byte, error)    { return b.get(table, tombstoneName) }
func (b *S3Backend) WriteTombstones(table string, data []byte) error {
	return b.put(table, tombstoneName, data)
}
func (b *S3Backend) RemoveTombstones(table string) error { return b.remove(table, tombstoneName) }
