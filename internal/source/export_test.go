package source

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
)

// WithS3Client overrides the S3 client used to download s3:// sources.
func WithS3Client(c manager.DownloadAPIClient) Option {
	return func(o *options) {
		o.newS3Client = func(context.Context, S3Config) (manager.DownloadAPIClient, error) {
			return c, nil
		}
	}
}

// ParseS3URI exposes parseS3URI for tests.
var ParseS3URI = parseS3URI
