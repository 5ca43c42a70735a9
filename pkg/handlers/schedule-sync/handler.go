package schedulesync

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	schedulertypes "github.com/aws/aws-sdk-go-v2/service/scheduler/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	pkgerrors "github.com/pihlajus/bday-wisher/pkg/features/errors"
	"github.com/pihlajus/bday-wisher/pkg/features/logger"
)

type SchedulerApiClient interface {
	CreateSchedule(context.Context, *scheduler.CreateScheduleInput, ...func(*scheduler.Options)) (*scheduler.CreateScheduleOutput, error)
	UpdateSchedule(context.Context, *scheduler.UpdateScheduleInput, ...func(*scheduler.Options)) (*scheduler.UpdateScheduleOutput, error)
}

// Handler keeps one daily schedule for the birthday function, evaluated on the
// wall clock of Timezone so daylight saving changes need no redeploy.
type Handler struct {
	SchedulerClient SchedulerApiClient
	Name            string
	Timezone        string
	Hour            int
	Minute          int
	TargetArn       string
	RoleArn         string
	Log             *zap.Logger
}

type Result struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Timezone   string `json:"timezone"`
	Created    bool   `json:"created"`
	Arn        string `json:"arn"`
}

func (h *Handler) Handle(ctx context.Context) (Result, error) {
	return h.Sync(ctx)
}

func (h *Handler) Expression() string {
	return fmt.Sprintf("cron(%d %d * * ? *)", h.Minute, h.Hour)
}

// Sync creates the schedule, or updates it in place when it already exists.
func (h *Handler) Sync(ctx context.Context) (Result, error) {
	log := logger.WithRequest(ctx, h.Log)
	res := Result{Name: h.Name, Expression: h.Expression(), Timezone: h.Timezone}

	target := &schedulertypes.Target{
		Arn:     aws.String(h.TargetArn),
		RoleArn: aws.String(h.RoleArn),
	}
	window := &schedulertypes.FlexibleTimeWindow{
		Mode: schedulertypes.FlexibleTimeWindowModeOff,
	}

	created, err := h.SchedulerClient.CreateSchedule(ctx, &scheduler.CreateScheduleInput{
		Name:                       aws.String(h.Name),
		Description:                aws.String("Daily birthday messages"),
		ScheduleExpression:         aws.String(res.Expression),
		ScheduleExpressionTimezone: aws.String(h.Timezone),
		Target:                     target,
		FlexibleTimeWindow:         window,
		ClientToken:                aws.String(uuid.NewString()),
	})
	if err == nil {
		res.Created = true
		res.Arn = aws.ToString(created.ScheduleArn)
		log.Info("schedule created", zap.String("name", h.Name), zap.String("expression", res.Expression), zap.String("timezone", h.Timezone))
		return res, nil
	}

	var conflict *schedulertypes.ConflictException
	if !pkgerrors.As(err, &conflict) {
		log.Error("creating schedule failed", zap.String("name", h.Name), zap.Error(err))
		return res, fmt.Errorf("creating schedule %s: %w", h.Name, err)
	}

	updated, err := h.SchedulerClient.UpdateSchedule(ctx, &scheduler.UpdateScheduleInput{
		Name:                       aws.String(h.Name),
		Description:                aws.String("Daily birthday messages"),
		ScheduleExpression:         aws.String(res.Expression),
		ScheduleExpressionTimezone: aws.String(h.Timezone),
		Target:                     target,
		FlexibleTimeWindow:         window,
		ClientToken:                aws.String(uuid.NewString()),
	})
	if err != nil {
		log.Error("updating schedule failed", zap.String("name", h.Name), zap.Error(err))
		return res, fmt.Errorf("updating schedule %s: %w", h.Name, err)
	}

	res.Arn = aws.ToString(updated.ScheduleArn)
	log.Info("schedule updated", zap.String("name", h.Name), zap.String("expression", res.Expression), zap.String("timezone", h.Timezone))
	return res, nil
}
