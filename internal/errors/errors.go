package appErrors

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable wraps infrastructure failures of the persisted store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrTransportUnavailable marks the mail transport as down for the whole run.
	ErrTransportUnavailable = errors.New("mail transport unavailable")
)

// NotFoundError is returned when an entity does not exist.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %d not found", e.Entity, e.ID)
}

func NewCampaignNotFound(id int64) error {
	return &NotFoundError{Entity: "campaign", ID: id}
}

func NewTemplateNotFound(id int64) error {
	return &NotFoundError{Entity: "template", ID: id}
}

func NewDeliveryNotFound(campaignID, recipientID int64) error {
	return &NotFoundError{Entity: fmt.Sprintf("delivery for campaign %d recipient", campaignID), ID: recipientID}
}

// ValidationError is surfaced synchronously and never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TemplateErrorKind distinguishes the two template failures.
type TemplateErrorKind string

const (
	UnresolvedPlaceholder TemplateErrorKind = "unresolved_placeholder"
	MalformedPattern      TemplateErrorKind = "malformed_pattern"
)

type TemplateError struct {
	Kind        TemplateErrorKind
	Placeholder string
	Detail      string
}

func (e *TemplateError) Error() string {
	switch e.Kind {
	case UnresolvedPlaceholder:
		return fmt.Sprintf("unresolved placeholder {%s}", e.Placeholder)
	default:
		return fmt.Sprintf("malformed template pattern: %s", e.Detail)
	}
}

func NewUnresolvedPlaceholder(name string) error {
	return &TemplateError{Kind: UnresolvedPlaceholder, Placeholder: name}
}

func NewMalformedPattern(detail string) error {
	return &TemplateError{Kind: MalformedPattern, Detail: detail}
}

// CampaignStateError reports a transition that is not in the lifecycle table.
type CampaignStateError struct {
	From string
	To   string
}

func (e *CampaignStateError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

func NewInvalidTransition(from, to string) error {
	return &CampaignStateError{From: from, To: to}
}

// TransientDeliveryError is a per-recipient failure worth retrying.
type TransientDeliveryError struct {
	Err error
}

func (e *TransientDeliveryError) Error() string { return "transient delivery error: " + e.Err.Error() }
func (e *TransientDeliveryError) Unwrap() error { return e.Err }

// FatalDeliveryError is a per-recipient failure that must not be retried.
// Bounced marks a permanent rejection of the recipient address.
type FatalDeliveryError struct {
	Err     error
	Bounced bool
}

func (e *FatalDeliveryError) Error() string {
	if e.Bounced {
		return "recipient bounced: " + e.Err.Error()
	}
	return "fatal delivery error: " + e.Err.Error()
}
func (e *FatalDeliveryError) Unwrap() error { return e.Err }

// IsValidation reports whether err belongs to the validation category,
// which includes template errors.
func IsValidation(err error) bool {
	var ve *ValidationError
	var te *TemplateError
	return errors.As(err, &ve) || errors.As(err, &te)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsStateError(err error) bool {
	var se *CampaignStateError
	return errors.As(err, &se)
}

func IsTransient(err error) bool {
	var te *TransientDeliveryError
	return errors.As(err, &te)
}

func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrTransportUnavailable)
}
