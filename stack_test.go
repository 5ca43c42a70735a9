package main

import (
	"os/exec"
	"testing"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/assertions"
	"github.com/aws/jsii-runtime-go"
)

func synth(t *testing.T, env map[string]string) assertions.Template {
	t.Helper()
	if _, err := exec.LookPath("node"); err != nil {
		t.Skip("node is required to synthesize the stack")
	}

	app := awscdk.NewApp(&awscdk.AppProps{
		Context: &map[string]interface{}{"aws:cdk:bundling-stacks": []string{}},
	})
	stack, err := NewBirthdayWisherStack(app, "TestStack", &BirthdayWisherStackProps{Env: env})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return assertions.Template_FromStack(stack, nil)
}

func TestStackRulesFollowLocalZone(t *testing.T) {
	template := synth(t, map[string]string{"LOCAL_TIMEZONE": "America/New_York"})

	template.ResourceCountIs(jsii.String("AWS::Events::Rule"), jsii.Number(2))
	template.ResourceCountIs(jsii.String("Custom::Trigger"), jsii.Number(0))
	template.HasResourceProperties(jsii.String("AWS::Events::Rule"), &map[string]interface{}{
		"ScheduleExpression": "cron(1 9 ? 1,2,11,12 * *)",
	})
}

func TestStackDedupTableEnv(t *testing.T) {
	template := synth(t, map[string]string{"DEDUP_BACKEND": "dynamodb"})

	template.ResourceCountIs(jsii.String("AWS::DynamoDB::Table"), jsii.Number(1))
	template.HasResourceProperties(jsii.String("AWS::Lambda::Function"), assertions.Match_ObjectLike(&map[string]interface{}{
		"FunctionName": "BirthdayWisherBirthday",
		"Environment": map[string]interface{}{
			"Variables": assertions.Match_ObjectLike(&map[string]interface{}{
				"DEDUP_TABLE": "BirthdayWisherSentMessages",
			}),
		},
	}))
}

func TestStackSchedulerModeRunsSync(t *testing.T) {
	template := synth(t, map[string]string{"SCHEDULE_MODE": "scheduler"})

	template.ResourceCountIs(jsii.String("AWS::Events::Rule"), jsii.Number(0))
	template.ResourceCountIs(jsii.String("Custom::Trigger"), jsii.Number(1))
}
