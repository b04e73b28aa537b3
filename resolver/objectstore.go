// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package resolver // import "github.com/stacksym/stacksym/resolver"

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/stacksym/stacksym/backtrace"
	"github.com/stacksym/stacksym/metrics"
)

// ErrObjectNotFound is returned by fetchers when the requested object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectFetcher retrieves objects from the object store.
type ObjectFetcher interface {
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
}

// PublicBucketURL returns the public read URL of an S3 bucket.
func PublicBucketURL(bucket string) string {
	return "https://s3.amazonaws.com/" + bucket + "/"
}

// HTTPFetcher reads objects through a public read URL.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFetcher creates a fetcher that downloads objects from baseURL + key.
func NewHTTPFetcher(baseURL string, client *http.Client) *HTTPFetcher {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{baseURL: baseURL, client: client}
}

// Fetch implements ObjectFetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	body, err := httpGet(ctx, f.client, f.baseURL+key)
	if err != nil {
		var statusErr *statusError
		if errors.As(err, &statusErr) &&
			(statusErr.statusCode == http.StatusNotFound ||
				statusErr.statusCode == http.StatusForbidden) {
			// Public buckets answer 403 for keys that do not exist.
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, err
	}
	return body, nil
}

// S3Fetcher reads objects through the S3 API with the default AWS credential chain.
type S3Fetcher struct {
	client *s3.Client
	bucket string
}

// NewS3Fetcher creates a fetcher for bucket. Region and endpoint are optional.
func NewS3Fetcher(ctx context.Context, bucket, region, endpoint string) (*S3Fetcher, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Fetcher{client: client, bucket: bucket}, nil
}

// Fetch implements ObjectFetcher.
func (f *S3Fetcher) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isErrNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, err
	}
	return out.Body, nil
}

// isErrNoSuchKey checks whether the given AWS error indicates that the key does not exist.
// The client reports a plain 404 as NotFound without the API error code, so both are
// accepted.
func isErrNoSuchKey(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// BuildIDResolver finds debug files in an object store keyed by build id and keeps
// decompressed copies in a local cache directory.
type BuildIDResolver struct {
	cacheDir string
	fetcher  ObjectFetcher
	logger   *log.Entry
	fetches  singleflight.Group
}

// NewBuildIDResolver creates the resolver, creating cacheDir if needed.
func NewBuildIDResolver(cacheDir string, fetcher ObjectFetcher) (*BuildIDResolver, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &BuildIDResolver{
		cacheDir: cacheDir,
		fetcher:  fetcher,
		logger:   log.WithField("component", "s3-resolver"),
	}, nil
}

// Resolve implements Resolver.
func (r *BuildIDResolver) Resolve(ctx context.Context, so *backtrace.SharedObjectInfo) (string, bool) {
	if so.BuildID == "" {
		metrics.ResolverLookup(ctx, string(KindObjectStore), metrics.OutcomeNotFound)
		return "", false
	}
	buildID, err := normalizeBuildID(so.BuildID)
	if err != nil {
		r.logger.Warnf("Skipping debug file lookup: %v", err)
		metrics.ResolverLookup(ctx, string(KindObjectStore), metrics.OutcomeError)
		return "", false
	}

	localPath := filepath.Join(r.cacheDir, buildID+debugSuffix)
	present, err := isPresentLocally(localPath)
	if err != nil {
		r.logger.Errorf("Failed to check for %s: %v", localPath, err)
		metrics.ResolverLookup(ctx, string(KindObjectStore), metrics.OutcomeError)
		return "", false
	}
	if present {
		metrics.ResolverLookup(ctx, string(KindObjectStore), metrics.OutcomeFound)
		return localPath, true
	}

	_, err, _ = r.fetches.Do(buildID, func() (any, error) {
		return nil, r.fetch(ctx, buildID, localPath)
	})
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			r.logger.Warnf("No debug file for build id %s in the object store", buildID)
			metrics.ResolverLookup(ctx, string(KindObjectStore), metrics.OutcomeNotFound)
		} else {
			r.logger.Errorf("Failed to fetch debug file for build id %s: %v", buildID, err)
			metrics.ResolverLookup(ctx, string(KindObjectStore), metrics.OutcomeError)
		}
		return "", false
	}
	metrics.ResolverLookup(ctx, string(KindObjectStore), metrics.OutcomeFound)
	return localPath, true
}

func (r *BuildIDResolver) fetch(ctx context.Context, buildID, localPath string) error {
	// Another caller may have finished the same download in the meantime.
	if present, err := isPresentLocally(localPath); err != nil || present {
		return err
	}

	body, err := r.fetcher.Fetch(ctx, buildID+debugSuffix+".gz")
	if err != nil {
		return err
	}
	defer body.Close()

	stream, err := decompress(body, false)
	if err != nil {
		return err
	}
	defer stream.Close()

	r.logger.Debugf("Downloading debug file for build id %s", buildID)
	return writeLocal(localPath, stream)
}
