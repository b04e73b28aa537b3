// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package resolver // import "github.com/stacksym/stacksym/resolver"

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/stacksym/stacksym/backtrace"
	"github.com/stacksym/stacksym/cache"
	"github.com/stacksym/stacksym/metrics"
)

const (
	// DefaultServiceHost is the debug symbol service used when no host is configured.
	DefaultServiceHost = "https://symbolizer-service.server-tig.prod.corp.mongodb.com"

	// DefaultFileName names the debug file when the service does not report one.
	DefaultFileName = "mongo"

	archiveSuffix  = ".tgz"
	unpackedSuffix = ".unpacked"
)

// ServiceConfig configures a ServiceResolver.
type ServiceConfig struct {
	// Host is the base URL of the debug symbol service.
	Host string
	// CacheDir receives downloaded archives and their unpacked contents.
	CacheDir string
	// CacheSize bounds the in-memory build id cache. Zero disables it.
	CacheSize int
	// DefaultFileName is used when the service answer lacks a file name.
	DefaultFileName string
	// BinaryFolder maps a debug file name to its directory inside an unpacked
	// archive. Defaults to DefaultBinaryFolder.
	BinaryFolder func(name string) string
	// Client performs the authenticated lookups against Host.
	Client *http.Client
	// DownloadClient fetches the archives. Archive URLs are usually pre-signed, so
	// this client must not add credentials.
	DownloadClient *http.Client
}

// NewDownloadClient returns an HTTP client suited for fetching large archives.
func NewDownloadClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:              http.ProxyFromEnvironment,
			MaxIdleConns:       2,
			IdleConnTimeout:    30 * time.Second,
			DisableCompression: true,
		},
	}
}

// artifact is what the service tells us about a build id.
type artifact struct {
	URL      string
	FileName string
}

type lookupResponse struct {
	Data struct {
		DebugSymbolsURL string `json:"debug_symbols_url"`
		FileName        string `json:"file_name"`
	} `json:"data"`
}

// ServiceResolver asks a remote debug symbol service for the archive containing the
// debug file of a build id, then downloads and unpacks it into a local cache.
type ServiceResolver struct {
	cfg       ServiceConfig
	artifacts *cache.FIFO[artifact]
	logger    *log.Entry

	lookups   singleflight.Group
	downloads singleflight.Group
}

// NewServiceResolver creates the resolver, creating the cache directory if needed.
func NewServiceResolver(cfg ServiceConfig) (*ServiceResolver, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultServiceHost
	}
	cfg.Host = strings.TrimSuffix(cfg.Host, "/")
	if cfg.DefaultFileName == "" {
		cfg.DefaultFileName = DefaultFileName
	}
	if cfg.BinaryFolder == nil {
		cfg.BinaryFolder = DefaultBinaryFolder
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.DownloadClient == nil {
		cfg.DownloadClient = NewDownloadClient()
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	artifacts, err := cache.New[artifact](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &ServiceResolver{
		cfg:       cfg,
		artifacts: artifacts,
		logger:    log.WithField("component", "service-resolver"),
	}, nil
}

// Resolve implements Resolver.
func (r *ServiceResolver) Resolve(ctx context.Context, so *backtrace.SharedObjectInfo) (string, bool) {
	if so.BuildID == "" {
		return r.fallback(ctx, so, errors.New("no build id"))
	}
	buildID, err := normalizeBuildID(so.BuildID)
	if err != nil {
		r.logger.Warnf("Skipping debug file lookup: %v", err)
		metrics.ResolverLookup(ctx, string(KindService), metrics.OutcomeError)
		return "", false
	}

	art, ok := r.artifacts.Get(buildID)
	if !ok {
		v, err, _ := r.lookups.Do(buildID, func() (any, error) {
			return r.lookup(ctx, buildID)
		})
		if err != nil {
			var statusErr *statusError
			if errors.As(err, &statusErr) {
				return r.fallback(ctx, so, err)
			}
			r.logger.Errorf("Error occurred while trying to get response from server "+
				"for build id %s: %v", buildID, err)
			metrics.ResolverLookup(ctx, string(KindService), metrics.OutcomeError)
			return "", false
		}
		art = v.(artifact)
		if art.URL == "" {
			r.logger.Warnf("Server does not know debug symbols for build id %s", buildID)
			metrics.ResolverLookup(ctx, string(KindService), metrics.OutcomeNotFound)
			return "", false
		}
		r.artifacts.Insert(buildID, art)
	}

	dir, err := r.fetchArtifact(ctx, art.URL)
	if err != nil {
		r.logger.Errorf("Failed to download and unpack debug symbols for build id %s: %v",
			buildID, err)
		metrics.ResolverLookup(ctx, string(KindService), metrics.OutcomeError)
		return "", false
	}

	name := art.FileName
	if name == "" {
		name = r.cfg.DefaultFileName
	}
	name = debugFileName(name)
	metrics.ResolverLookup(ctx, string(KindService), metrics.OutcomeFound)
	return filepath.Join(dir, r.cfg.BinaryFolder(name), name), true
}

// ReportStatistics implements StatisticsReporter. It publishes the build id cache
// activity since the previous call.
func (r *ServiceResolver) ReportStatistics(ctx context.Context) {
	if !r.artifacts.Enabled() {
		return
	}
	stats := r.artifacts.GetAndResetStatistics()
	metrics.CacheEvents(ctx, stats.Hit, stats.Miss, stats.Added, stats.Evicted)
	r.logger.Debugf("Build id cache: %d hits, %d misses, %d added, %d evicted (%d held)",
		stats.Hit, stats.Miss, stats.Added, stats.Evicted, r.artifacts.Len())
}

// fallback uses the path recorded in the crash report when the service could not help.
func (r *ServiceResolver) fallback(ctx context.Context, so *backtrace.SharedObjectInfo,
	cause error) (string, bool) {
	if so.Path == "" {
		r.logger.Errorf("Could not find the debug file from the symbolizer service (%v) "+
			"and no path is recorded for the binary", cause)
		metrics.ResolverLookup(ctx, string(KindService), metrics.OutcomeNotFound)
		return "", false
	}
	r.logger.Infof("Could not find the debug file from the symbolizer service (%v). "+
		"Trying to use the provided path: %s", cause, so.Path)
	metrics.ResolverLookup(ctx, string(KindService), metrics.OutcomeFallback)
	return so.Path, true
}

func (r *ServiceResolver) lookup(ctx context.Context, buildID string) (artifact, error) {
	query := url.Values{"build_id": []string{buildID}}
	body, err := httpGet(ctx, r.cfg.Client, r.cfg.Host+"/find_by_id?"+query.Encode())
	if err != nil {
		return artifact{}, err
	}
	defer body.Close()

	var resp lookupResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return artifact{}, fmt.Errorf("failed to decode service response: %w", err)
	}
	return artifact{
		URL:      resp.Data.DebugSymbolsURL,
		FileName: resp.Data.FileName,
	}, nil
}

// fetchArtifact makes sure the archive behind rawURL is downloaded and unpacked, and
// returns the directory it was unpacked into.
func (r *ServiceResolver) fetchArtifact(ctx context.Context, rawURL string) (string, error) {
	archiveName, err := archiveFileName(rawURL)
	if err != nil {
		return "", err
	}
	archivePath := filepath.Join(r.cfg.CacheDir, archiveName)
	unpackName := strings.Replace(archiveName, archiveSuffix, "", 1)
	if unpackName == archiveName {
		unpackName += unpackedSuffix
	}
	outDir := filepath.Join(r.cfg.CacheDir, unpackName)

	_, err, _ = r.downloads.Do(archivePath, func() (any, error) {
		return nil, r.ensureUnpacked(ctx, rawURL, archivePath, outDir)
	})
	if err != nil {
		return "", err
	}
	return outDir, nil
}

func (r *ServiceResolver) ensureUnpacked(ctx context.Context, rawURL, archivePath,
	outDir string) error {
	present, err := isPresentLocally(archivePath)
	if err != nil {
		return err
	}
	if present {
		r.logger.Debugf("%s already exists in cache", archivePath)
	} else {
		r.logger.Infof("Downloading %s", rawURL)
		body, err := httpGet(ctx, r.cfg.DownloadClient, rawURL)
		if err != nil {
			return err
		}
		err = writeLocal(archivePath, body)
		body.Close()
		if err != nil {
			return err
		}
	}

	unpacked, err := isPresentLocally(outDir)
	if err != nil || unpacked {
		return err
	}

	tmpDir, err := os.MkdirTemp(r.cfg.CacheDir, localTempPrefix)
	if err != nil {
		return err
	}
	r.logger.Debugf("Unpacking %s", archivePath)
	if err = unpackArchive(archivePath, tmpDir); err == nil {
		err = os.Rename(tmpDir, outDir)
	}
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return err
	}
	return nil
}

// archiveFileName returns the last path segment of an archive URL.
func archiveFileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid archive URL %q: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == ".." ||
		strings.HasPrefix(name, localTempPrefix) {
		return "", fmt.Errorf("archive URL %q has no usable file name", rawURL)
	}
	return name, nil
}
