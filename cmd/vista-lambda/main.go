// Command vista-lambda serves the virtual staging API from AWS Lambda
// behind an API Gateway HTTP API (payload v2).
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/vista-staging/internal/api"
	"github.com/fpang/vista-staging/internal/boot"
	"github.com/fpang/vista-staging/internal/config"
	"github.com/fpang/vista-staging/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Getenv("VISTA_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	// CloudWatch wants JSON lines.
	logging.Init(cfg.Log.Level, false)

	app, err := boot.New(context.Background(), cfg, "vista-lambda", boot.Options{
		CommitHash: commitHash,
		BuildTime:  buildTime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise")
	}

	handler := api.New(app.Service, api.Options{AllowedOrigins: cfg.CORS.AllowedOrigins})
	adapter := httpadapter.NewV2(handler)
	lambda.Start(adapter.ProxyWithContext)
}
