package notifier

import (
	"context"
	"errors"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	pkgerrors "github.com/pihlajus/bday-wisher/pkg/features/errors"
)

type TwilioApiClient interface {
	CreateMessage(*twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type TwilioSender struct {
	Client TwilioApiClient
	From   string
}

func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{Client: client.Api, From: from}
}

func (s *TwilioSender) Send(ctx context.Context, to, body string) (DeliveryResult, error) {
	if err := ctx.Err(); err != nil {
		return DeliveryResult{}, &pkgerrors.DeliveryError{Provider: "twilio", Detail: err.Error(), Err: err}
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(s.From)
	params.SetTo(to)
	params.SetBody(body)

	msg, err := s.Client.CreateMessage(params)
	if err != nil {
		deliveryErr := &pkgerrors.DeliveryError{Provider: "twilio", Detail: err.Error(), Err: err}
		var restErr *twilioclient.TwilioRestError
		if errors.As(err, &restErr) {
			deliveryErr.Code = restErr.Code
			deliveryErr.Detail = restErr.Message
		}
		return DeliveryResult{}, deliveryErr
	}

	var res DeliveryResult
	if msg != nil {
		if msg.Sid != nil {
			res.MessageID = *msg.Sid
		}
		if msg.Status != nil {
			res.Status = *msg.Status
		}
	}
	return res, nil
}
