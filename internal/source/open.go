package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const s3Scheme = "s3"

// S3Config configures access to sources stored in S3 or an S3 compatible store.
// Empty fields fall back to the default AWS configuration chain.
type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

type options struct {
	s3      S3Config
	tempDir string

	// newS3Client is overridden in tests.
	newS3Client func(ctx context.Context, cfg S3Config) (manager.DownloadAPIClient, error)
}

var defaultOptions = options{
	newS3Client: newS3Client,
}

// Option represents an optional function to override Load default values.
type Option func(*options)

// WithS3Config sets the configuration used for s3:// sources.
func WithS3Config(cfg S3Config) Option {
	return func(o *options) {
		o.s3 = cfg
	}
}

// WithTempDir sets the directory remote sources are downloaded to. The system default is used if empty.
func WithTempDir(dir string) Option {
	return func(o *options) {
		o.tempDir = dir
	}
}

// open returns a reader over the raw source bytes.
func open(ctx context.Context, path string, opts options) (io.ReadCloser, error) {
	if bucket, key, ok, err := parseS3URI(path); err != nil {
		return nil, err
	} else if ok {
		return download(ctx, bucket, key, opts)
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Join(ErrNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}

	// A directory opens fine but fails on first read; report it early.
	if fi, err := f.Stat(); err == nil && fi.IsDir() {
		f.Close()
		return nil, fmt.Errorf("source %q is a directory", path)
	}

	return f, nil
}

// decode returns a reader producing UTF-8 content.
// A UTF-8 byte order mark is stripped and UTF-16 content with a byte order mark is transcoded.
// Content without a byte order mark is passed through untouched.
func decode(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(transform.Nop))
}

// parseS3URI returns the bucket and key of an s3://bucket/key URI. ok is false for any other path.
func parseS3URI(path string) (bucket, key string, ok bool, err error) {
	if !strings.HasPrefix(path, s3Scheme+"://") {
		return "", "", false, nil
	}

	u, err := url.Parse(path)
	if err != nil {
		return "", "", false, fmt.Errorf("invalid S3 URI %q: %v", path, err)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", false, fmt.Errorf("invalid S3 URI %q: expected s3://bucket/key", path)
	}
	return bucket, key, true, nil
}

// tempFile is a downloaded copy of a remote source, removed on Close.
type tempFile struct {
	*os.File
}

func (f tempFile) Close() error {
	return errors.Join(f.File.Close(), os.Remove(f.Name()))
}

// download copies the S3 object to a temporary file and returns it rewound.
func download(ctx context.Context, bucket, key string, opts options) (_ io.ReadCloser, err error) {
	client, err := opts.newS3Client(ctx, opts.s3)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %v", err)
	}

	tmp, err := os.CreateTemp(opts.tempDir, "solr-ingest-*.src")
	if err != nil {
		return nil, fmt.Errorf("failed to create download file: %v", err)
	}
	f := tempFile{tmp}
	defer func() {
		if err != nil {
			f.Close()
		}
	}()

	slog.Info("Downloading source", "bucket", bucket, "key", key)
	n, err := manager.NewDownloader(client).Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var noBucket *types.NoSuchBucket
		if errors.As(err, &noKey) || errors.As(err, &noBucket) {
			return nil, errors.Join(ErrNotFound, err)
		}
		return nil, fmt.Errorf("failed to download s3://%s/%s: %w", bucket, key, err)
	}
	slog.Debug("Downloaded source", "bucket", bucket, "key", key, "bytes", n)

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind download file: %v", err)
	}
	return f, nil
}

// newS3Client builds an S3 client from the default AWS configuration chain, overridden by cfg.
func newS3Client(ctx context.Context, cfg S3Config) (manager.DownloadAPIClient, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
