package main

import (
	"log"
	"os"
	"time"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsapigateway"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsdynamodb"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsevents"
	"github.com/aws/aws-cdk-go/awscdk/v2/awseventstargets"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3deployment"
	"github.com/aws/aws-cdk-go/awscdk/v2/triggers"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/joho/godotenv"

	golambda "github.com/aws/aws-cdk-go/awscdklambdagoalpha/v2"
)

type BirthdayWisherStackProps struct {
	awscdk.StackProps
	// Env is passed to every function.
	Env map[string]string
}

func NewBirthdayWisherStack(scope constructs.Construct, id string, props *BirthdayWisherStackProps) (awscdk.Stack, error) {
	var sprops awscdk.StackProps
	var baseEnv map[string]string
	if props != nil {
		sprops = props.StackProps
		baseEnv = props.Env
	}

	settings := stackSettings(baseEnv)
	rules, err := settings.rules(time.Now().Year())
	if err != nil {
		return nil, err
	}

	stack := awscdk.NewStack(scope, &id, &sprops)

	// Lambda bundling options
	bundlingOptions := &golambda.BundlingOptions{
		GoBuildFlags: jsii.Strings(`-ldflags "-s -w"`),
		Environment: &map[string]*string{
			"CGO_ENABLED": jsii.String("0"),
		},
	}

	// Bucket holding the dataset, uploaded from data/

	bucket := awss3.NewBucket(stack, jsii.String("BirthdayWisherBucket"), &awss3.BucketProps{
		BucketName:        jsii.String(settings.Bucket),
		RemovalPolicy:     awscdk.RemovalPolicy_DESTROY,
		AutoDeleteObjects: jsii.Bool(true),
	})
	awss3deployment.NewBucketDeployment(stack, jsii.String("BirthdayWisherData"), &awss3deployment.BucketDeploymentProps{
		Sources:           &[]awss3deployment.ISource{awss3deployment.Source_Asset(jsii.String("data"), nil)},
		DestinationBucket: bucket,
	})

	// Optional table for send de-duplication

	var dedupTable awsdynamodb.Table
	if settings.DedupBackend == "dynamodb" {
		dedupTable = awsdynamodb.NewTable(stack, jsii.String("BirthdayWisherSentMessages"), &awsdynamodb.TableProps{
			TableName: jsii.String(settings.DedupTable),
			PartitionKey: &awsdynamodb.Attribute{
				Name: jsii.String("IdempotencyKey"),
				Type: awsdynamodb.AttributeType_STRING,
			},
			BillingMode:         awsdynamodb.BillingMode_PAY_PER_REQUEST,
			TimeToLiveAttribute: jsii.String("ExpireOn"),
			RemovalPolicy:       awscdk.RemovalPolicy_DESTROY,
		})
	}

	newFunction := func(name, entry string, memory float64, extra map[string]string) awslambda.Function {
		fn := golambda.NewGoFunction(stack, jsii.String(name), &golambda.GoFunctionProps{
			FunctionName: jsii.String(name),
			Entry:        jsii.String(entry),
			Runtime:      awslambda.Runtime_PROVIDED_AL2(),
			Architecture: awslambda.Architecture_ARM_64(),
			Timeout:      awscdk.Duration_Seconds(jsii.Number(30)),
			MemorySize:   jsii.Number(memory),
			Environment:  functionEnv(baseEnv, extra),
			Bundling:     bundlingOptions,
		})
		bucket.GrantRead(fn, nil)
		if dedupTable != nil {
			dedupTable.GrantReadWriteData(fn)
		}
		if settings.SMSProvider == "sns" {
			fn.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
				Actions:   jsii.Strings("sns:Publish"),
				Resources: jsii.Strings("*"),
			}))
		}
		return fn
	}

	extraEnv := settings.extraEnv()

	// Birthday Function
	birthdayLambda := newFunction("BirthdayWisherBirthday", "lambdas/birthday", 128, extraEnv)

	// Reply Function
	replierLambda := newFunction("BirthdayWisherReplier", "lambdas/replier", 512, extraEnv)

	if settings.UseScheduler {
		// A single zone-aware schedule kept in sync by its own function
		invokeRole := awsiam.NewRole(stack, jsii.String("BirthdayWisherInvokeRole"), &awsiam.RoleProps{
			AssumedBy: awsiam.NewServicePrincipal(jsii.String("scheduler.amazonaws.com"), nil),
		})
		invokeRole.AddToPolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
			Actions:   jsii.Strings("lambda:InvokeFunction"),
			Resources: jsii.Strings(*birthdayLambda.FunctionArn()),
		}))

		syncEnv := map[string]string{
			"BIRTHDAY_FUNCTION_ARN": *birthdayLambda.FunctionArn(),
			"SCHEDULER_ROLE_ARN":    *invokeRole.RoleArn(),
		}
		for k, v := range extraEnv {
			syncEnv[k] = v
		}
		syncLambda := newFunction("BirthdayWisherScheduleSync", "lambdas/schedule-sync", 128, syncEnv)
		syncLambda.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
			Actions:   jsii.Strings("scheduler:CreateSchedule", "scheduler:UpdateSchedule"),
			Resources: jsii.Strings("*"),
		}))
		syncLambda.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
			Actions:   jsii.Strings("iam:PassRole"),
			Resources: jsii.Strings(*invokeRole.RoleArn()),
		}))

		// Runs the sync on every deploy that changes the function, which
		// includes any change to the run time or zone.
		triggers.NewTrigger(stack, jsii.String("BirthdayWisherScheduleSyncTrigger"), &triggers.TriggerProps{
			Handler:                syncLambda,
			ExecuteAfter:           &[]constructs.Construct{birthdayLambda, invokeRole},
			ExecuteOnHandlerChange: jsii.Bool(true),
		})
	} else {
		// One rule per distinct UTC offset of the target zone
		for _, rule := range rules {
			awsevents.NewRule(stack, jsii.String("BirthdayWisherSchedule"+rule.Name), &awsevents.RuleProps{
				Schedule: awsevents.Schedule_Expression(jsii.String(rule.Expression())),
				Targets:  &[]awsevents.IRuleTarget{awseventstargets.NewLambdaFunction(birthdayLambda, nil)},
			})
		}
	}

	// Defining Rest API in API Gateway
	gateway := awsapigateway.NewRestApi(stack, jsii.String("BirthdayWisherApi"), &awsapigateway.RestApiProps{
		RestApiName: jsii.String("BirthdayWisherApi"),
	})
	messagesResource := gateway.Root().AddResource(jsii.String("messages"), nil)
	messagesResource.AddMethod(jsii.String("POST"), awsapigateway.NewLambdaIntegration(replierLambda, nil), nil)

	awscdk.NewCfnOutput(stack, jsii.String("WebhookUrl"), &awscdk.CfnOutputProps{
		Value: jsii.String(*gateway.Url() + "messages"),
	})

	return stack, nil
}

func main() {
	defer jsii.Close()

	app := awscdk.NewApp(nil)

	dotenv, err := godotenv.Read(".env")
	if err != nil && !os.IsNotExist(err) {
		log.Println(err)
		return
	}

	if _, err := NewBirthdayWisherStack(app, "BirthdayWisherStack", &BirthdayWisherStackProps{
		StackProps: awscdk.StackProps{
			Env: env(),
		},
		Env: dotenv,
	}); err != nil {
		log.Println(err)
		return
	}

	app.Synth(nil)
}

func env() *awscdk.Environment {
	return nil
}
