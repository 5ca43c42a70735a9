package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"

	"github.com/pihlajus/bday-wisher/pkg/features/config"
	"github.com/pihlajus/bday-wisher/pkg/features/logger"
	schedulesync "github.com/pihlajus/bday-wisher/pkg/handlers/schedule-sync"
)

func main() {
	cfg, err := config.LoadSchedule()
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

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Println(err)
		return
	}

	handler := schedulesync.Handler{
		SchedulerClient: scheduler.NewFromConfig(awsCfg),
		Name:            cfg.ScheduleName,
		Timezone:        cfg.LocalTimezone,
		Hour:            cfg.LocalHour,
		Minute:          cfg.LocalMinute,
		TargetArn:       cfg.BirthdayFunctionARN,
		RoleArn:         cfg.SchedulerRoleARN,
		Log:             zl,
	}

	lambda.Start(handler.Handle)
}
