package subscription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/sells-group/digest-cli/internal/mail"
	"github.com/sells-group/digest-cli/internal/model"
	"github.com/sells-group/digest-cli/internal/topic"
)

// DefaultMaxTopics is the topic limit per subscriber.
const DefaultMaxTopics = 3

// ValidationError is a rejected subscription request. InvalidTopics names
// the topics the validator refused, if any.
type ValidationError struct {
	Reason        string
	InvalidTopics []string
}

func (e *ValidationError) Error() string {
	return e.failure().Error()
}

// Unwrap exposes the validation_failure kind to model.KindOf.
func (e *ValidationError) Unwrap() error {
	return e.failure()
}

func (e *ValidationError) failure() *model.Failure {
	detail := e.Reason
	if len(e.InvalidTopics) > 0 {
		detail += ": " + strings.Join(e.InvalidTopics, ", ")
	}
	return model.NewFailure(model.KindValidation, detail, nil)
}

// Request is a subscription submission.
type Request struct {
	Email  string   `json:"email" validate:"required,email,max=254"`
	Topics []string `json:"topics" validate:"min=1"`
}

// Service validates submissions before driving the Machine and mails the
// verification code.
type Service struct {
	machine   *Machine
	topics    *topic.Validator
	sender    mail.Sender
	validate  *validator.Validate
	maxTopics int
}

// NewService creates a Service. maxTopics <= 0 uses DefaultMaxTopics.
func NewService(m *Machine, topics *topic.Validator, sender mail.Sender, maxTopics int) *Service {
	if maxTopics <= 0 {
		maxTopics = DefaultMaxTopics
	}
	return &Service{
		machine:   m,
		topics:    topics,
		sender:    sender,
		validate:  validator.New(),
		maxTopics: maxTopics,
	}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Subscribe validates the request, stores it pending verification and mails
// the code. It returns a *ValidationError for bad input and a
// delivery_failure when the code could not be mailed; in the latter case
// the subscription stays pending.
func (s *Service) Subscribe(ctx context.Context, email string, rawTopics []string) error {
	req := Request{Email: NormalizeEmail(email), Topics: topic.Normalize(rawTopics)}

	if err := s.validate.Struct(req); err != nil {
		return &ValidationError{Reason: describe(err)}
	}
	if len(req.Topics) > s.maxTopics {
		return &ValidationError{Reason: fmt.Sprintf("at most %d topics allowed, got %d", s.maxTopics, len(req.Topics))}
	}

	verdicts := s.topics.ValidateAll(ctx, req.Topics)
	if bad := topic.InvalidTopics(req.Topics, verdicts); len(bad) > 0 {
		return &ValidationError{Reason: "invalid topics", InvalidTopics: bad}
	}

	code, err := s.machine.Submit(ctx, req.Email, req.Topics)
	if err != nil {
		return err
	}

	msg, err := mail.OTPMessage(req.Email, code, s.machine.ttl)
	if err != nil {
		return eris.Wrap(err, "subscription: build otp mail")
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return model.NewFailure(model.KindDelivery, "send verification code to "+req.Email, err)
	}
	return nil
}

// Verify confirms email with code.
func (s *Service) Verify(ctx context.Context, email, code string) error {
	return s.machine.Verify(ctx, NormalizeEmail(email), strings.TrimSpace(code))
}

// State reports the lifecycle state of email.
func (s *Service) State(ctx context.Context, email string) (model.SubscriptionState, error) {
	return s.machine.State(ctx, NormalizeEmail(email))
}

// OTPTTL is how long codes mailed by the service stay valid.
func (s *Service) OTPTTL() time.Duration {
	return s.machine.ttl
}

func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "email":
			msgs = append(msgs, field+" must be a valid email address")
		case "min":
			msgs = append(msgs, "at least one "+strings.TrimSuffix(field, "s")+" is required")
		case "max":
			msgs = append(msgs, field+" is too long")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}
