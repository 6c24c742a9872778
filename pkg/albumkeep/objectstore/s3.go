package objectstore

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/albumkeep/albumkeep/pkg/albumkeep"
)

// S3API is the subset of the S3 client the prober uses.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Prober looks up object size and content type with a HeadObject call.
type S3Prober struct {
	client S3API
}

// NewS3Prober creates a prober.
func NewS3Prober(client S3API) *S3Prober {
	return &S3Prober{client: client}
}

// Probe heads the object. A missing object maps to
// albumkeep.ErrObjectNotFound.
func (p *S3Prober) Probe(ctx context.Context, bucket, key string) (*albumkeep.ObjectInfo, error) {
	out, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NotFound", "NoSuchKey":
				return nil, albumkeep.ErrObjectNotFound
			}
		}
		return nil, err
	}
	return &albumkeep.ObjectInfo{
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}, nil
}
