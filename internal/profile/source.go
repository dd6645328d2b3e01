package profile

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/viper"
)

// Source reads the raw bytes of a profile document.
type Source interface {
	Read(ctx context.Context) ([]byte, error)
	String() string
}

// ParseSource picks a Source implementation from a location string:
// s3://bucket/key, gs://bucket/object, or a local path.
func ParseSource(location string) (Source, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("%w: no profile source configured", ErrConfig)
	}

	switch {
	case strings.HasPrefix(location, "s3://"):
		bucket, key, err := splitBucketPath(strings.TrimPrefix(location, "s3://"))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrConfig, location, err)
		}
		return &S3Source{Bucket: bucket, Key: key}, nil
	case strings.HasPrefix(location, "gs://"):
		bucket, object, err := splitBucketPath(strings.TrimPrefix(location, "gs://"))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrConfig, location, err)
		}
		return &GCSSource{Bucket: bucket, Object: object}, nil
	default:
		return FileSource(strings.TrimPrefix(location, "file://")), nil
	}
}

func splitBucketPath(rest string) (string, string, error) {
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("expected <bucket>/<path>")
	}
	return bucket, key, nil
}

// FileSource reads a profile document from the local filesystem.
type FileSource string

func (f FileSource) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrConfig, string(f), err)
	}
	return data, nil
}

func (f FileSource) String() string { return string(f) }

// S3Source reads a profile document from an S3 object. Credentials come from
// aws.access_key_id / aws.secret_access_key when set, otherwise from the
// default AWS chain (optionally pinned to aws.profile).
type S3Source struct {
	Bucket string
	Key    string
}

func (s *S3Source) Read(ctx context.Context) ([]byte, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region := viper.GetString("aws.region"); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile := viper.GetString("aws.profile"); profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if id, secret := viper.GetString("aws.access_key_id"), viper.GetString("aws.secret_access_key"); id != "" && secret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(id, secret, viper.GetString("aws.session_token")),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load AWS config: %v", ErrConfig, err)
	}

	out, err := s3.NewFromConfig(cfg).GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrConfig, s, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrConfig, s, err)
	}
	return data, nil
}

func (s *S3Source) String() string { return "s3://" + s.Bucket + "/" + s.Key }

// GCSSource reads a profile document from a Cloud Storage object using
// Application Default Credentials.
type GCSSource struct {
	Bucket string
	Object string
}

func (g *GCSSource) Read(ctx context.Context) ([]byte, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create storage client: %v", ErrConfig, err)
	}
	defer client.Close()

	r, err := client.Bucket(g.Bucket).Object(g.Object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrConfig, g, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrConfig, g, err)
	}
	return data, nil
}

func (g *GCSSource) String() string { return "gs://" + g.Bucket + "/" + g.Object }
