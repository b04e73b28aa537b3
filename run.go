// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/stacksym/stacksym/auth"
	"github.com/stacksym/stacksym/backtrace"
	"github.com/stacksym/stacksym/live"
	"github.com/stacksym/stacksym/output"
	"github.com/stacksym/stacksym/preprocess"
	"github.com/stacksym/stacksym/resolver"
	"github.com/stacksym/stacksym/symbolizer"
	"github.com/stacksym/stacksym/vc"
)

// pipeline holds everything needed to symbolize one backtrace.
type pipeline struct {
	resolver   resolver.Resolver
	preprocess *preprocess.Preprocessor
	symbolizer symbolizer.Config
	output     *output.Writer
}

func run(ctx context.Context, cfg *config, stdin io.Reader, stdout io.Writer) error {
	if cfg.Version {
		fmt.Fprintf(stdout, "stacksym %s (revision %s)\n", vc.Version(), vc.Revision())
		return nil
	}
	if cfg.VerboseMode {
		log.SetLevel(log.DebugLevel)
	}

	p, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.Live {
		fmt.Fprintln(stdout, "Entering live mode")
		return p.runLive(ctx, stdin, stdout)
	}

	doc, err := backtrace.FindDocument(stdin)
	if errors.Is(err, backtrace.ErrEmptyInput) {
		log.Warnf("Please provide the backtrace through stdin for symbolization; " +
			"e.g. `stacksym < /file/with/stacktrace`")
		return backtrace.ErrNoDocument
	}
	if err != nil {
		return err
	}

	frames, err := p.preprocess.Process(ctx, doc)
	p.reportStatistics(ctx)
	if err != nil {
		return err
	}
	if cfg.SrcDirToMove != "" {
		if err := linkSourceDir(p.resolver, cfg.SrcDirToMove); err != nil {
			log.Warnf("Failed to link source directory: %v", err)
		}
	}
	if err := symbolizer.Symbolize(ctx, p.symbolizer, frames); err != nil {
		return err
	}
	return p.output.Write(stdout, frames)
}

func newPipeline(ctx context.Context, cfg *config) (*pipeline, error) {
	inFormat, err := preprocess.ParseFormat(cfg.InputFormat)
	if err != nil {
		return nil, err
	}
	outFormat, err := output.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return nil, err
	}
	kind, err := resolver.ParseKind(cfg.Resolver)
	if err != nil {
		return nil, err
	}

	res, err := newResolver(ctx, cfg, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to set up %s resolver: %w", kind, err)
	}
	pre, err := preprocess.New(inFormat, res,
		preprocess.WithConcurrency(cfg.ResolveConcurrency))
	if err != nil {
		return nil, err
	}

	var outOpts []output.Option
	if cfg.Demangle {
		outOpts = append(outOpts, output.WithDemangle())
	}
	if cfg.Live {
		// Live mode always renders classic output between the log lines.
		outFormat = output.FormatClassic
	}
	writer, err := output.New(outFormat, outOpts...)
	if err != nil {
		return nil, err
	}

	return &pipeline{
		resolver:   res,
		preprocess: pre,
		symbolizer: symbolizer.Config{
			Path:      cfg.SymbolizerPath,
			DsymHints: cfg.DsymHints,
		},
		output: writer,
	}, nil
}

func (p *pipeline) runLive(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	fmt.Fprintln(stdout, "Live mode activated, waiting for input...")
	return live.Run(ctx, stdin, stdout,
		func(ctx context.Context, trace *live.Trace, out io.Writer) error {
			frames, err := p.preprocess.Process(ctx, trace.Doc)
			p.reportStatistics(ctx)
			if err != nil {
				return err
			}
			if err := symbolizer.Symbolize(ctx, p.symbolizer, frames); err != nil {
				return err
			}
			trace.Logger.Debugf("Symbolized %d frames", len(frames))
			return p.output.Write(out, frames)
		})
}

func (p *pipeline) reportStatistics(ctx context.Context) {
	if reporter, ok := p.resolver.(resolver.StatisticsReporter); ok {
		reporter.ReportStatistics(ctx)
	}
}

func newResolver(ctx context.Context, cfg *config, kind resolver.Kind) (resolver.Resolver, error) {
	switch kind {
	case resolver.KindPath:
		var opts []resolver.PathOption
		if cfg.UseEmbeddedPaths {
			opts = append(opts, resolver.WithEmbeddedPaths())
		}
		return resolver.NewPathResolver(cfg.PathToExecutable, opts...)
	case resolver.KindObjectStore:
		fetcher, err := newObjectFetcher(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return resolver.NewBuildIDResolver(cfg.S3CacheDir, fetcher)
	default:
		src, err := auth.NewTokenSource(ctx, auth.Config{
			Token:           cfg.PRToken,
			ClientID:        cfg.PRClientID,
			ClientSecret:    cfg.PRClientSecret,
			TokenURL:        cfg.PRTokenURL,
			Scopes:          splitList(cfg.PRScope),
			CredentialsFile: cfg.PRCredentialsFile,
		})
		if errors.Is(err, auth.ErrNoCredentials) {
			log.Debugf("Querying the symbolizer service without credentials")
			src = nil
		} else if err != nil {
			return nil, err
		}
		return resolver.NewServiceResolver(resolver.ServiceConfig{
			Host:            cfg.PRHost,
			CacheDir:        cfg.PRCacheDir,
			CacheSize:       cfg.PRCacheSize,
			DefaultFileName: cfg.PRDefaultFileName,
			Client:          auth.NewClient(src, nil, cfg.PRTimeout),
			DownloadClient:  resolver.NewDownloadClient(),
		})
	}
}

func newObjectFetcher(ctx context.Context, cfg *config) (resolver.ObjectFetcher, error) {
	if cfg.S3UseSDK {
		if cfg.S3Bucket == "" {
			return nil, errors.New("-s3-bucket is required with -s3-use-sdk")
		}
		return resolver.NewS3Fetcher(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
	}
	baseURL := cfg.S3PublicURL
	if baseURL == "" {
		if cfg.S3Bucket == "" {
			return nil, errors.New("-s3-bucket or -s3-public-url is required")
		}
		baseURL = resolver.PublicBucketURL(cfg.S3Bucket)
	}
	return resolver.NewHTTPFetcher(baseURL, resolver.NewDownloadClient()), nil
}

// linkSourceDir makes the source file names recorded in the debug information
// resolve locally by linking dir into the build root the binary was built in.
func linkSourceDir(res resolver.Resolver, dir string) error {
	observer, ok := res.(resolver.BuildRootObserver)
	if !ok {
		log.Debugf("The debug file resolver does not know the build root")
		return nil
	}
	root, ok := observer.BuildRoot()
	if !ok {
		return nil
	}

	if !filepath.IsAbs(dir) {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		dir = filepath.Join(cwd, dir)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	err := os.Symlink(dir, filepath.Join(root, "src"))
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	return err
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
