// Package boot turns a resolved configuration into a running staging
// service. The HTTP server and the Lambda entry point share it, so each
// main is a short composition of Load, New and a transport.
package boot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/vista-staging/internal/blob"
	"github.com/fpang/vista-staging/internal/config"
	"github.com/fpang/vista-staging/internal/events"
	"github.com/fpang/vista-staging/internal/imagegen"
	"github.com/fpang/vista-staging/internal/imagesrc"
	"github.com/fpang/vista-staging/internal/lock"
	"github.com/fpang/vista-staging/internal/logging"
	"github.com/fpang/vista-staging/internal/metrics"
	"github.com/fpang/vista-staging/internal/property"
	"github.com/fpang/vista-staging/internal/staging"
	"github.com/fpang/vista-staging/internal/store"
)

// GeminiKeyEnv is consulted when gemini.api_key is not configured.
const GeminiKeyEnv = "GEMINI_API_KEY"

const redisLockPrefix = "vista:lock:"

// App holds the wired components. Close releases database and Redis
// connections.
type App struct {
	Config     *config.Config
	Service    *staging.Service
	Properties *property.Repository

	closers []func() error
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Options override components New would otherwise build from config.
type Options struct {
	// Generator replaces the Gemini client.
	Generator imagegen.Generator
	// CommitHash and BuildTime are reported in the startup log.
	CommitHash string
	BuildTime  string
}

// New builds every component named by cfg. name identifies the binary in
// the startup log.
func New(ctx context.Context, cfg *config.Config, name string, opts Options) (_ *App, err error) {
	start := time.Now()
	app := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	startup := logging.NewStartupLogger(name).
		CommitHash(opts.CommitHash).
		BuildTime(opts.BuildTime)

	var awsCfg aws.Config
	if needsAWS(cfg, opts) {
		awsCfg, err = InitAWS(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, err
		}
	}

	docs, err := openStore(cfg, awsCfg, app, startup)
	if err != nil {
		return nil, err
	}
	blobs := openBlobs(cfg, awsCfg, startup)
	locker, err := openLocker(ctx, cfg, app, startup)
	if err != nil {
		return nil, err
	}
	publisher := openEvents(cfg, awsCfg, startup)

	gen := opts.Generator
	if gen == nil {
		key, err := LoadGeminiKey(ctx, ssmClient(awsCfg), cfg.Gemini.APIKey, cfg.Gemini.SSMParam)
		if err != nil {
			return nil, err
		}
		if cfg.Gemini.APIKey == "" && os.Getenv(GeminiKeyEnv) == "" {
			startup.SSMParam("geminiApiKey", cfg.Gemini.SSMParam)
		}
		gc, err := imagegen.NewGeminiClient(ctx, key, cfg.Gemini.Model)
		if err != nil {
			return nil, err
		}
		gen = gc
		startup.Config("geminiModel", gc.Model())
	}

	if cfg.Metrics.Enabled {
		metrics.Configure(os.Stdout, cfg.Metrics.Namespace)
	}

	loader := imagesrc.NewLoader(blobs, cfg.Image.FetchTimeout, imagesrc.WithMaxDimension(cfg.Image.MaxDimension))
	app.Properties = property.NewRepository(docs)
	app.Service = staging.NewService(staging.Deps{
		Docs:       docs,
		Blobs:      blobs,
		Images:     loader,
		Generator:  gen,
		Properties: app.Properties,
		Locker:     locker,
		Events:     publisher,
	}, staging.Options{
		ChatContextMessages: cfg.Staging.ChatContextMessages,
		MutateAttempts:      cfg.Staging.MutateAttempts,
		VersioningEnabled:   cfg.Versioning.Enabled,
		MaxVersions:         cfg.Versioning.MaxVersions,
	})

	startup.
		Feature("versioning", cfg.Versioning.Enabled).
		Feature("metrics", cfg.Metrics.Enabled).
		Config("logLevel", cfg.Log.Level).
		Config("maxImageDimension", strconv.Itoa(cfg.Image.MaxDimension)).
		Config("chatContextMessages", strconv.Itoa(cfg.Staging.ChatContextMessages)).
		InitDuration(time.Since(start)).
		Log()
	return app, nil
}

func needsAWS(cfg *config.Config, opts Options) bool {
	if cfg.Store.Backend == config.StoreDynamo || cfg.Blob.Backend == config.BlobS3 || cfg.Events.Bus != "" {
		return true
	}
	return opts.Generator == nil && cfg.Gemini.APIKey == "" && os.Getenv(GeminiKeyEnv) == ""
}

// InitAWS loads the default AWS config, pinned to region when set.
func InitAWS(ctx context.Context, region string) (aws.Config, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return cfg, nil
}

// SSMAPI is the subset of *ssm.Client used to read secrets.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

func ssmClient(cfg aws.Config) SSMAPI {
	if cfg.Credentials == nil && cfg.Region == "" {
		return nil
	}
	return ssm.NewFromConfig(cfg)
}

// LoadGeminiKey returns the configured key, else GEMINI_API_KEY, else the
// decrypted SSM parameter.
func LoadGeminiKey(ctx context.Context, client SSMAPI, configured, param string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if key := os.Getenv(GeminiKeyEnv); key != "" {
		return key, nil
	}
	if client == nil || param == "" {
		return "", errors.New("gemini api key is not configured")
	}

	start := time.Now()
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("read gemini api key from SSM %s: %w", param, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("SSM parameter %s is empty", param)
	}
	log.Debug().Str("param", param).Dur("elapsed", time.Since(start)).Msg("Gemini API key loaded from SSM")
	return aws.ToString(out.Parameter.Value), nil
}

func openStore(cfg *config.Config, awsCfg aws.Config, app *App, startup *logging.StartupLogger) (store.DocumentStore, error) {
	startup.Backend("store", cfg.Store.Backend)
	switch cfg.Store.Backend {
	case config.StoreDynamo:
		startup.Table("documents", cfg.Store.Table)
		return store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.Store.Table), nil
	case config.StoreSQLite:
		s, err := store.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, s.Close)
		startup.Config("sqlitePath", cfg.Store.SQLitePath)
		return s, nil
	default:
		log.Warn().Msg("Using in-memory document store; data is lost on exit")
		return store.NewMemoryStore(), nil
	}
}

func openBlobs(cfg *config.Config, awsCfg aws.Config, startup *logging.StartupLogger) blob.Store {
	startup.Backend("blob", cfg.Blob.Backend)
	baseURL := cfg.BlobBaseURL(awsCfg.Region)
	if cfg.Blob.Backend == config.BlobS3 {
		startup.Bucket("resources", cfg.Blob.Bucket)
		return blob.NewS3Store(s3.NewFromConfig(awsCfg), cfg.Blob.Bucket, baseURL)
	}
	return blob.NewMemory(baseURL)
}

func openLocker(ctx context.Context, cfg *config.Config, app *App, startup *logging.StartupLogger) (lock.Locker, error) {
	startup.Backend("lock", cfg.Lock.Backend)
	if cfg.Lock.Backend != config.LockRedis {
		return lock.NewMemory(), nil
	}
	client, err := lock.DialRedis(ctx, cfg.Lock.RedisAddr, cfg.Lock.RedisPassword, cfg.Lock.RedisDB)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, client.Close)
	startup.Config("redisAddr", cfg.Lock.RedisAddr)
	return lock.NewRedis(client, redisLockPrefix, cfg.Lock.TTL), nil
}

func openEvents(cfg *config.Config, awsCfg aws.Config, startup *logging.StartupLogger) events.Publisher {
	if cfg.Events.Bus == "" {
		startup.Backend("events", "none")
		return events.Nop{}
	}
	startup.Backend("events", "eventbridge").Config("eventBus", cfg.Events.Bus)
	return events.NewEventBridge(eventbridge.NewFromConfig(awsCfg), cfg.Events.Bus, cfg.Events.Source)
}
