// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3"

	"github.com/stacksym/stacksym/auth"
	"github.com/stacksym/stacksym/output"
	"github.com/stacksym/stacksym/preprocess"
	"github.com/stacksym/stacksym/resolver"
	"github.com/stacksym/stacksym/symbolizer"
)

const (
	// Default values for CLI flags
	defaultInputFormat        = string(preprocess.FormatClassic)
	defaultOutputFormat       = string(output.FormatClassic)
	defaultResolver           = string(resolver.KindService)
	defaultS3CacheDir         = "s3_cache"
	defaultPRCacheDir         = "dl_cache"
	defaultPRCacheSize        = 0
	defaultResolveConcurrency = 1
	defaultPRTimeout          = 60 * time.Second

	envVarPrefix = "STACKSYM"
)

// Help strings for command line arguments
var (
	configHelp         = "Optional config file with one flag name and value per line."
	dsymHintHelp       = "Directory to search for macOS dSYM bundles. May be repeated."
	symbolizerPathHelp = fmt.Sprintf("Path of the llvm-symbolizer compatible executable. "+
		"Defaults to $%s, then to %s in PATH.",
		symbolizer.EnvSymbolizerPath, symbolizer.DefaultSymbolizerPath)
	inputFormatHelp  = "Layout of the backtrace entries: classic or thin."
	outputFormatHelp = "Output format: classic or json. json shows some extra information."
	resolverHelp     = "How debug files are located: path (the given executable), " +
		"s3 (object store by build id) or pr (symbolizer service)."
	srcDirToMoveHelp = "Source directory to link into <build root>/src so that the file " +
		"names of the debug information resolve locally."
	liveHelp             = "Symbolize backtraces in log lines read from stdin until it is closed."
	useEmbeddedPathsHelp = "With the path resolver, prefer the binary path recorded in the " +
		"crash report when there is one."
	resolveConcurrencyHelp = "Number of debug files resolved in parallel."
	demangleHelp           = "Demangle C++ function names in classic output."
	verboseModeHelp        = "Enable verbose logging."
	versionHelp            = "Show version."

	s3CacheDirHelp  = "Local cache directory of the s3 resolver."
	s3BucketHelp    = "Bucket holding <build id>.debug.gz objects."
	s3PublicURLHelp = "Public read URL of the bucket. Defaults to " +
		resolver.PublicBucketURL("<bucket>")
	s3UseSDKHelp   = "Fetch objects through the S3 API with the default AWS credential chain."
	s3RegionHelp   = "AWS region of the bucket (S3 API only)."
	s3EndpointHelp = "Custom S3 compatible endpoint (S3 API only)."

	prHostHelp            = "Base URL of the symbolizer service."
	prCacheDirHelp        = "Local cache directory for downloaded debug symbol archives."
	prCacheSizeHelp       = "Number of build id lookups remembered in memory. 0 disables the cache."
	prCredentialsFileHelp = "File caching access tokens between runs."
	prTokenHelp           = "Static access token for the symbolizer service."
	prClientIDHelp        = "OAuth2 client id for the client credentials flow."
	prClientSecretHelp    = "OAuth2 client secret for the client credentials flow."
	prTokenURLHelp        = "OAuth2 token endpoint for the client credentials flow."
	prScopeHelp           = "Comma-separated OAuth2 scopes to request."
	prDefaultFileNameHelp = "Debug file name used when the service does not report one."
	prTimeoutHelp         = "Timeout of a single request to the symbolizer service."
)

// stringList collects the values of a repeatable flag.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

type config struct {
	DsymHints          stringList
	SymbolizerPath     string
	InputFormat        string
	OutputFormat       string
	Resolver           string
	SrcDirToMove       string
	Live               bool
	UseEmbeddedPaths   bool
	ResolveConcurrency int
	Demangle           bool
	VerboseMode        bool
	Version            bool

	S3CacheDir  string
	S3Bucket    string
	S3PublicURL string
	S3UseSDK    bool
	S3Region    string
	S3Endpoint  string

	PRHost            string
	PRCacheDir        string
	PRCacheSize       int
	PRCredentialsFile string
	PRToken           string
	PRClientID        string
	PRClientSecret    string
	PRTokenURL        string
	PRScope           string
	PRDefaultFileName string
	PRTimeout         time.Duration

	// PathToExecutable is the optional positional argument.
	PathToExecutable string
}

func newFlagSet(cfg *config) *flag.FlagSet {
	fs := flag.NewFlagSet("stacksym", flag.ContinueOnError)

	// Please keep the parameters ordered alphabetically in the source-code.
	fs.String("config", "", configHelp)

	fs.BoolVar(&cfg.Demangle, "demangle", false, demangleHelp)
	fs.StringVar(&cfg.Resolver, "debug-file-resolver", defaultResolver, resolverHelp)
	fs.Var(&cfg.DsymHints, "dsym-hint", dsymHintHelp)

	fs.StringVar(&cfg.InputFormat, "input-format", defaultInputFormat, inputFormatHelp)

	fs.BoolVar(&cfg.Live, "live", false, liveHelp)

	fs.StringVar(&cfg.OutputFormat, "output-format", defaultOutputFormat, outputFormatHelp)

	fs.StringVar(&cfg.PRCacheDir, "pr-cache-dir", defaultPRCacheDir, prCacheDirHelp)
	fs.IntVar(&cfg.PRCacheSize, "pr-cache-size", defaultPRCacheSize, prCacheSizeHelp)
	fs.StringVar(&cfg.PRClientID, "pr-client-id", "", prClientIDHelp)
	fs.StringVar(&cfg.PRClientSecret, "pr-client-secret", "", prClientSecretHelp)
	fs.StringVar(&cfg.PRCredentialsFile, "pr-credentials-file", auth.DefaultCredentialsFile,
		prCredentialsFileHelp)
	fs.StringVar(&cfg.PRDefaultFileName, "pr-default-file-name", resolver.DefaultFileName,
		prDefaultFileNameHelp)
	fs.StringVar(&cfg.PRHost, "pr-host", resolver.DefaultServiceHost, prHostHelp)
	fs.StringVar(&cfg.PRScope, "pr-scope", "", prScopeHelp)
	fs.DurationVar(&cfg.PRTimeout, "pr-timeout", defaultPRTimeout, prTimeoutHelp)
	fs.StringVar(&cfg.PRToken, "pr-token", "", prTokenHelp)
	fs.StringVar(&cfg.PRTokenURL, "pr-token-url", "", prTokenURLHelp)

	fs.IntVar(&cfg.ResolveConcurrency, "resolve-concurrency", defaultResolveConcurrency,
		resolveConcurrencyHelp)

	fs.StringVar(&cfg.S3Bucket, "s3-bucket", "", s3BucketHelp)
	fs.StringVar(&cfg.S3CacheDir, "s3-cache-dir", defaultS3CacheDir, s3CacheDirHelp)
	fs.StringVar(&cfg.S3Endpoint, "s3-endpoint", "", s3EndpointHelp)
	fs.StringVar(&cfg.S3PublicURL, "s3-public-url", "", s3PublicURLHelp)
	fs.StringVar(&cfg.S3Region, "s3-region", "", s3RegionHelp)
	fs.BoolVar(&cfg.S3UseSDK, "s3-use-sdk", false, s3UseSDKHelp)

	fs.StringVar(&cfg.SrcDirToMove, "src-dir-to-move", "", srcDirToMoveHelp)
	fs.StringVar(&cfg.SymbolizerPath, "symbolizer-path", "", symbolizerPathHelp)

	fs.BoolVar(&cfg.UseEmbeddedPaths, "use-embedded-paths", false, useEmbeddedPathsHelp)

	fs.BoolVar(&cfg.VerboseMode, "v", false, "Shorthand for -verbose.")
	fs.BoolVar(&cfg.VerboseMode, "verbose", false, verboseModeHelp)
	fs.BoolVar(&cfg.Version, "version", false, versionHelp)

	return fs
}

// parseOptions are shared by the root command and its subcommands.
func parseOptions() []ff.Option {
	return []ff.Option{
		ff.WithEnvVarPrefix(envVarPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithAllowMissingConfigFile(true),
	}
}
