package replier

import (
	"context"
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pihlajus/bday-wisher/pkg/features/composer"
	"github.com/pihlajus/bday-wisher/pkg/features/dedup"
	"github.com/pihlajus/bday-wisher/pkg/features/errors"
	"github.com/pihlajus/bday-wisher/pkg/features/logger"
	"github.com/pihlajus/bday-wisher/pkg/features/notifier"
	"github.com/pihlajus/bday-wisher/pkg/features/records"
)

const signatureHeader = "X-Twilio-Signature"

type RecordLoader interface {
	LoadAll(context.Context) ([]records.Record, error)
}

type ReplyComposer interface {
	ComposeReply(ctx context.Context, in composer.Inbound, sender *records.Record) (string, error)
}

type OnceSender interface {
	SendOnce(ctx context.Context, key, to, body string) (notifier.DeliveryResult, error)
}

// SignatureValidator is satisfied by *client.RequestValidator from twilio-go.
type SignatureValidator interface {
	Validate(url string, params map[string]string, expectedSignature string) bool
}

// Handler answers inbound text messages. It keeps no state between requests.
type Handler struct {
	// Records is optional; without it replies are composed without the sender's name.
	Records  RecordLoader
	Composer ReplyComposer
	Sender   OnceSender
	// Validator is optional; when set, requests must carry a valid signature for WebhookURL.
	Validator  SignatureValidator
	WebhookURL string
	Log        *zap.Logger
}

func (h *Handler) Handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	log := logger.WithRequest(ctx, h.Log)

	body := request.Body
	if request.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			log.Warn("rejecting inbound message", zap.Error(err))
			return errors.BadRequest("invalid request body")
		}
		body = string(decoded)
	}

	form, err := url.ParseQuery(body)
	if err != nil {
		log.Warn("rejecting inbound message", zap.Error(err))
		return errors.BadRequest("invalid request body")
	}

	in := composer.Inbound{From: strings.TrimSpace(form.Get("From")), Body: form.Get("Body")}
	if in.From == "" || strings.TrimSpace(in.Body) == "" {
		log.Warn("rejecting inbound message", zap.String("reason", "missing From or Body"))
		return errors.BadRequest("missing 'From' or 'Body' parameter")
	}

	if h.Validator != nil {
		if !h.Validator.Validate(h.WebhookURL, flatten(form), header(request.Headers, signatureHeader)) {
			log.Warn("rejecting inbound message", zap.String("reason", "invalid signature"), logger.Phone("from", in.From))
			return errors.Forbidden("invalid signature")
		}
	}

	sid := form.Get("MessageSid")
	log = log.With(logger.Phone("from", in.From), zap.String("messageSid", sid))
	log.Info("inbound message received")

	sender := h.lookup(ctx, log, in.From)

	reply, err := h.Composer.ComposeReply(ctx, in, sender)
	if err != nil {
		log.Warn("generation failed, using fallback", zap.Error(err))
		reply = composer.FallbackReply()
	}

	if sid == "" {
		sid = uuid.NewString()
	}
	res, err := h.Sender.SendOnce(ctx, dedup.ReplyKey(sid), in.From, reply)
	switch {
	case errors.Is(err, errors.ErrDuplicate):
		log.Info("reply already sent")
	case err != nil:
		log.Error("sending reply failed", zap.Error(err))
	default:
		log.Info("reply sent", zap.String("messageID", res.MessageID))
	}

	return errors.Ack()
}

func (h *Handler) lookup(ctx context.Context, log *zap.Logger, from string) *records.Record {
	if h.Records == nil {
		return nil
	}
	recs, err := h.Records.LoadAll(ctx)
	if err != nil {
		log.Warn("could not load birthdays, replying without sender details", zap.Error(err))
		return nil
	}
	number, ok := records.NormalizePhone(from)
	if !ok {
		return nil
	}
	r, ok := records.Find(recs, number)
	if !ok {
		return nil
	}
	return &r
}

func flatten(form url.Values) map[string]string {
	params := make(map[string]string, len(form))
	for k := range form {
		params[k] = form.Get(k)
	}
	return params
}

// header looks name up case-insensitively, API Gateway passes headers as sent.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
