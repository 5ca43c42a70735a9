package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

var (
	// ErrStorageUnavailable means the dataset object could not be fetched or read.
	ErrStorageUnavailable = stderrors.New("storage unavailable")
	// ErrParse marks a single malformed dataset line.
	ErrParse = stderrors.New("parse error")
	// ErrEmptyDataset is returned when a load produced no valid records and that is configured as fatal.
	ErrEmptyDataset = stderrors.New("dataset contains no valid records")
	ErrGenerationFailed = stderrors.New("generation failed")
	ErrDeliveryFailed   = stderrors.New("delivery failed")
	// ErrDuplicate is returned when a message with the same idempotency key was already sent.
	ErrDuplicate = stderrors.New("duplicate send")
)

// ParseError describes a dataset line that was skipped.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// DeliveryError carries the SMS gateway's error detail.
type DeliveryError struct {
	Provider string
	Code     int
	Detail   string
	Err      error
}

func (e *DeliveryError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (code %d): %s", ErrDeliveryFailed, e.Provider, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", ErrDeliveryFailed, e.Provider, e.Detail)
}

func (e *DeliveryError) Is(target error) bool {
	return target == ErrDeliveryFailed
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Is and As are re-exported so callers importing this package as errors keep the stdlib helpers.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func ErrorResponse(message string, code int) (events.APIGatewayProxyResponse, error) {

	responseJSON, _ := json.Marshal(map[string]string{
		"message": message,
	})

	return events.APIGatewayProxyResponse{
		StatusCode: code,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: string(responseJSON),
	}, nil
}

// It returns bad request response with given message
func BadRequest(message string) (events.APIGatewayProxyResponse, error) {
	return ErrorResponse(message, http.StatusBadRequest)
}

// It returns forbidden response with given message
func Forbidden(message string) (events.APIGatewayProxyResponse, error) {
	return ErrorResponse(message, http.StatusForbidden)
}

// Ack returns the empty TwiML document the inbound channel expects. It is sent
// whatever happened to the reply, so the provider never redelivers the message.
func Ack() (events.APIGatewayProxyResponse, error) {
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Content-Type": "text/xml",
		},
		Body: `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`,
	}, nil
}
