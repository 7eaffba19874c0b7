// Package s3x implements filetransfer.FileTransfer over S3-compatible
// object storage, per spec §4.1's object-store adaptation: directories
// are synthetic (derived from "/"-delimited key prefixes), Mkdir is a
// zero-length PUT of a trailing-slash key, and RemoveDirAll batches
// deletes 1000 keys at a time (the DeleteObjects API limit).
//
// Grounded on github.com/aws/aws-sdk-go-v2's config/credentials/s3
// client packages, the only cloud SDK pulled into go.mod from the pack.
package s3x

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/rescale-labs/termscp/internal/ferrors"
	"github.com/rescale-labs/termscp/internal/filetransfer"
	"github.com/rescale-labs/termscp/internal/fsentry"
)

const deleteBatchSize = 1000

// Client implements filetransfer.FileTransfer against one S3 bucket.
type Client struct {
	params filetransfer.S3Params
	s3     *s3.Client
	cwd    string
}

// New builds a Client that resolves credentials and dials on Connect.
func New(params filetransfer.S3Params) *Client {
	return &Client{params: params, cwd: "/"}
}

func (c *Client) Connect(ctx context.Context) (filetransfer.WelcomeBanner, error) {
	if c.s3 != nil {
		return "", nil
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if c.params.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.params.Region))
	}
	if c.params.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.params.Profile))
	}
	if c.params.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.params.AccessKey, c.params.SecretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return "", ferrors.New(ferrors.ConnectionFailed, err)
	}

	c.s3 = s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.params.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.params.Endpoint)
		}
		o.UsePathStyle = c.params.NewPathStyle
	})

	if _, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &c.params.Bucket}); err != nil {
		c.s3 = nil
		return "", classifyS3Err("", err)
	}
	return "", nil
}

func (c *Client) Disconnect() { c.s3 = nil }
func (c *Client) IsConnected() bool { return c.s3 != nil }

func (c *Client) Pwd(ctx context.Context) (string, error) { return c.cwd, nil }

func (c *Client) Cd(ctx context.Context, p string) (string, error) {
	prefix := toPrefix(c.resolve(p))
	if prefix != "" {
		out, err := c.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: &c.params.Bucket, Prefix: &prefix, MaxKeys: aws.Int32(1),
		})
		if err != nil {
			return "", classifyS3Err(p, err)
		}
		if len(out.Contents) == 0 && len(out.CommonPrefixes) == 0 {
			return "", ferrors.NewPath(ferrors.NotFound, p, nil)
		}
	}
	c.cwd = c.resolve(p)
	return c.cwd, nil
}

func (c *Client) resolve(p string) string {
	if len(p) > 0 && p[0] == '/' {
		return fsentry.NormalizePath(p)
	}
	return fsentry.Join(c.cwd, p)
}

// toKey converts a normalized "/"-absolute path into an S3 key with no
// leading slash.
func toKey(p string) string {
	return strings.TrimPrefix(p, "/")
}

// toPrefix converts a directory path into a "/"-terminated key prefix
// ("" for the bucket root).
func toPrefix(p string) string {
	key := toKey(p)
	if key == "" {
		return ""
	}
	return strings.TrimSuffix(key, "/") + "/"
}

// ListDir lists the immediate children of path using prefix+delimiter
// ("/") semantics: CommonPrefixes become synthetic directories,
// Contents become files.
func (c *Client) ListDir(ctx context.Context, p string) ([]fsentry.Entry, error) {
	prefix := toPrefix(c.resolve(p))
	var out []fsentry.Entry
	var token *string
	for {
		page, err := c.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &c.params.Bucket,
			Prefix:            &prefix,
			Delimiter:         aws.String("/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, classifyS3Err(p, err)
		}
		select {
		case <-ctx.Done():
			return nil, ferrors.New(ferrors.Cancelled, ctx.Err())
		default:
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(*cp.Prefix, prefix), "/")
			if name == "" {
				continue
			}
			out = append(out, fsentry.Entry{
				Kind: fsentry.Directory,
				Name: name,
				Path: fsentry.NormalizePath("/" + *cp.Prefix),
			})
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(*obj.Key, prefix)
			if name == "" || strings.HasSuffix(name, "/") {
				continue // the zero-length directory marker object itself
			}
			var mt *time.Time
			if obj.LastModified != nil {
				t := *obj.LastModified
				mt = &t
			}
			out = append(out, fsentry.Entry{
				Kind:    fsentry.File,
				Name:    name,
				Path:    fsentry.NormalizePath("/" + *obj.Key),
				Size:    aws.ToInt64(obj.Size),
				ModTime: mt,
			})
		}
		if !aws.ToBool(page.IsTruncated) {
			break
		}
		token = page.NextContinuationToken
	}
	return out, nil
}

func (c *Client) Stat(ctx context.Context, p string) (fsentry.Entry, error) {
	full := c.resolve(p)
	key := toKey(full)
	head, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &c.params.Bucket, Key: &key})
	if err == nil {
		var mt *time.Time
		if head.LastModified != nil {
			t := *head.LastModified
			mt = &t
		}
		return fsentry.Entry{
			Kind:    fsentry.File,
			Name:    fsentry.Base(full),
			Path:    full,
			Size:    aws.ToInt64(head.ContentLength),
			ModTime: mt,
		}, nil
	}
	if !isNotFound(err) {
		return fsentry.Entry{}, classifyS3Err(p, err)
	}
	// Not an object; check whether it is a synthetic prefix-directory.
	prefix := toPrefix(full)
	out, lerr := c.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: &c.params.Bucket, Prefix: &prefix, MaxKeys: aws.Int32(1),
	})
	if lerr != nil {
		return fsentry.Entry{}, classifyS3Err(p, lerr)
	}
	if len(out.Contents) == 0 && len(out.CommonPrefixes) == 0 {
		return fsentry.Entry{}, ferrors.NewPath(ferrors.NotFound, p, nil)
	}
	return fsentry.Entry{Kind: fsentry.Directory, Name: fsentry.Base(full), Path: full}, nil
}

func (c *Client) Exists(ctx context.Context, p string) (bool, error) {
	_, err := c.Stat(ctx, p)
	if err == nil {
		return true, nil
	}
	if ferrors.Is(err, ferrors.NotFound) {
		return false, nil
	}
	return false, err
}

// Mkdir creates the synthetic directory marker: a zero-length object
// at the "/"-terminated key.
func (c *Client) Mkdir(ctx context.Context, p string) error {
	key := toPrefix(c.resolve(p))
	if key == "" {
		return nil
	}
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &c.params.Bucket, Key: &key, Body: bytes.NewReader(nil),
	})
	return classifyS3Err(p, err)
}

func (c *Client) RemoveFile(ctx context.Context, p string) error {
	key := toKey(c.resolve(p))
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &c.params.Bucket, Key: &key})
	return classifyS3Err(p, err)
}

func (c *Client) RemoveDir(ctx context.Context, p string) error {
	key := toPrefix(c.resolve(p))
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &c.params.Bucket, Key: &key})
	return classifyS3Err(p, err)
}

// RemoveDirAll lists every key under the prefix and deletes them in
// batches of deleteBatchSize (the DeleteObjects API's per-request cap).
func (c *Client) RemoveDirAll(ctx context.Context, p string) error {
	prefix := toPrefix(c.resolve(p))
	var keys []string
	var token *string
	for {
		page, err := c.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: &c.params.Bucket, Prefix: &prefix, ContinuationToken: token,
		})
		if err != nil {
			return classifyS3Err(p, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, *obj.Key)
		}
		if !aws.ToBool(page.IsTruncated) {
			break
		}
		token = page.NextContinuationToken
	}

	for start := 0; start < len(keys); start += deleteBatchSize {
		select {
		case <-ctx.Done():
			return ferrors.New(ferrors.Cancelled, ctx.Err())
		default:
		}
		end := min(start+deleteBatchSize, len(keys))
		objs := make([]s3.ObjectIdentifier, end-start)
		for i, k := range keys[start:end] {
			key := k
			objs[i] = s3.ObjectIdentifier{Key: &key}
		}
		_, err := c.s3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: &c.params.Bucket,
			Delete: &s3.Delete{Objects: objs},
		})
		if err != nil {
			return classifyS3Err(p, err)
		}
	}
	return nil
}

// Rename is copy-then-delete; S3 has no atomic rename.
func (c *Client) Rename(ctx context.Context, from, to string) error {
	fromKey := toKey(c.resolve(from))
	toKeyStr := toKey(c.resolve(to))
	source := c.params.Bucket + "/" + fromKey
	_, err := c.s3.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket: &c.params.Bucket, Key: &toKeyStr, CopySource: &source,
	})
	if err != nil {
		return classifyS3Err(from, err)
	}
	_, err = c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &c.params.Bucket, Key: &fromKey})
	return classifyS3Err(from, err)
}

// Symlink, Chmod and Chown have no S3 equivalent.
func (c *Client) Symlink(ctx context.Context, link, target string) error {
	return ferrors.NewPath(ferrors.UnsupportedFeature, link, nil)
}

func (c *Client) Chmod(ctx context.Context, p string, mode uint32) error {
	return ferrors.NewPath(ferrors.UnsupportedFeature, p, nil)
}

func (c *Client) Chown(ctx context.Context, p string, uid, gid int) error {
	return ferrors.NewPath(ferrors.UnsupportedFeature, p, nil)
}

func (c *Client) OpenRead(ctx context.Context, p string) (filetransfer.ReadStream, error) {
	key := toKey(c.resolve(p))
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{Bucket: &c.params.Bucket, Key: &key})
	if err != nil {
		return nil, classifyS3Err(p, err)
	}
	return out.Body, nil
}

// OpenWrite buffers the write into a temp file, since PutObject needs
// a seekable/len-known body and S3 has no append semantics; Finalize
// uploads the buffered content.
func (c *Client) OpenWrite(ctx context.Context, p string, size int64) (filetransfer.WriteStream, error) {
	f, err := os.CreateTemp("", "termscp-s3-upload-*")
	if err != nil {
		return nil, ferrors.NewPath(ferrors.Io, p, err)
	}
	return &s3WriteStream{client: c, path: p, file: f}, nil
}

type s3WriteStream struct {
	client *Client
	path   string
	file   *os.File
}

func (s *s3WriteStream) Write(p []byte) (int, error) { return s.file.Write(p) }

func (s *s3WriteStream) finish(ctx context.Context) error {
	defer os.Remove(s.file.Name())
	defer s.file.Close()

	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return ferrors.NewPath(ferrors.Io, s.path, err)
	}
	key := toKey(s.client.resolve(s.path))
	_, err := s.client.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.client.params.Bucket, Key: &key, Body: s.file,
	})
	return classifyS3Err(s.path, err)
}

func (c *Client) Finalize(ctx context.Context, stream filetransfer.WriteStream) error {
	if ws, ok := stream.(*s3WriteStream); ok {
		return ws.finish(ctx)
	}
	return nil
}

var _ filetransfer.FileTransfer = (*Client)(nil)

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func classifyS3Err(p string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return ferrors.NewPath(ferrors.NotFound, p, err)
		case "AccessDenied":
			return ferrors.NewPath(ferrors.PermissionDenied, p, err)
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return ferrors.NewPath(ferrors.AuthFailed, p, err)
		case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
			return ferrors.NewPath(ferrors.AlreadyExists, p, err)
		}
	}
	return ferrors.NewPath(ferrors.Io, p, err)
}
