package notifier

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"

	pkgerrors "github.com/pihlajus/bday-wisher/pkg/features/errors"
)

type SnsApiClient interface {
	Publish(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSender publishes directly to a phone number.
type SNSSender struct {
	Client SnsApiClient
	// OriginationNumber and SenderID are optional.
	OriginationNumber string
	SenderID          string
}

func (s *SNSSender) Send(ctx context.Context, to, body string) (DeliveryResult, error) {
	attributes := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if s.OriginationNumber != "" {
		attributes["AWS.MM.SMS.OriginationNumber"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.OriginationNumber),
		}
	}
	if s.SenderID != "" {
		attributes["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.SenderID),
		}
	}

	out, err := s.Client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(to),
		Message:           aws.String(body),
		MessageAttributes: attributes,
	})
	if err != nil {
		deliveryErr := &pkgerrors.DeliveryError{Provider: "sns", Detail: err.Error(), Err: err}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			deliveryErr.Detail = apiErr.ErrorCode() + ": " + apiErr.ErrorMessage()
		}
		return DeliveryResult{}, deliveryErr
	}

	res := DeliveryResult{Status: "accepted"}
	if out != nil && out.MessageId != nil {
		res.MessageID = *out.MessageId
	}
	return res, nil
}
