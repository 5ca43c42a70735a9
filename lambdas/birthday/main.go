package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/pihlajus/bday-wisher/pkg/features/config"
	"github.com/pihlajus/bday-wisher/pkg/features/deps"
	"github.com/pihlajus/bday-wisher/pkg/features/logger"
	"github.com/pihlajus/bday-wisher/pkg/handlers/birthday"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Println(err)
		return
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Println(err)
		return
	}
	defer zl.Sync()

	d, err := deps.Build(context.Background(), cfg, zl)
	if err != nil {
		zl.Error("building dependencies", zap.Error(err))
		return
	}
	defer d.Close()

	loc, _ := cfg.ReferenceLocation()

	handler := birthday.Handler{
		Records:        d.Records,
		Composer:       d.Composer,
		Sender:         d.Sender,
		Location:       loc,
		MaxConcurrency: cfg.MaxConcurrency,
		Log:            zl,
	}

	lambda.Start(handler.Handle)
}
