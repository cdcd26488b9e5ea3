package main

import (
	"os"

	"github.com/DRSN-tech/image-metadata/internal/app"
	config "github.com/DRSN-tech/image-metadata/internal/cfg"
	"github.com/DRSN-tech/image-metadata/pkg/logger"
	"github.com/aws/aws-lambda-go/lambda"
)

func main() {
	log := logger.NewSlogLogger()

	cfg, err := config.LoadLambda(log)
	if err != nil {
		log.Errorf(err, "failed to load config")
		os.Exit(1)
	}

	handler, err := app.NewLambdaHandler(cfg, log)
	if err != nil {
		log.Errorf(err, "failed to initialize handler")
		os.Exit(1)
	}

	lambda.Start(handler.Handle)
}
