package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
	grpccodes "google.golang.org/grpc/codes"
)

// Code is the type representing a namespace error code.
type Code[MT any] struct {
	Code     uint16
	Name     string
	GrpcCode grpccodes.Code
}

// New creates a new error with the given code and the message
func (c Code[MT]) New(msg string, args ...any) TypedError[MT] {
	return &ErrorImpl[MT]{
		code:  c,
		cause: fmt.Errorf(msg, args...),
	}
}

// Wrap creates a new Error with the given code and the cause error
func (c Code[MT]) Wrap(cause error) TypedError[MT] {
	return &ErrorImpl[MT]{
		code:  c,
		cause: cause,
	}
}

// Is reports whether any error in err's tree carries this code.
func (c Code[MT]) Is(err error) bool {
	var e Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code() == c.Code
}

func (c Code[MT]) String() string {
	return fmt.Sprintf("%s (%d)", c.Name, c.Code)
}

type Error interface {
	error
	Log() *log.Entry
	Code() uint16
	CodeName() string
	GrpcCode() grpccodes.Code
	HttpStatus() int
	Metadata() map[string]string
}

type TypedError[MT any] interface {
	Error
	WithMetadata(MT) TypedError[MT]
	TypedMetadata() MT
}

// ErrorImpl is the default concrete implementation of TypedError.
type ErrorImpl[MT any] struct {
	code     Code[MT]
	cause    error
	metadata MT
}

func (e *ErrorImpl[MT]) Log() *log.Entry {
	return log.WithField("name", e.code.Name).
		WithField("code", e.code.Code).
		WithField("metadata", e.metadata)
}

func (e *ErrorImpl[MT]) Metadata() map[string]string {
	// convert any metadata to map[string]string
	metadata := make(map[string]string)
	buf, err := json.Marshal(e.metadata)
	if err == nil {
		var genericMap map[string]any
		if err := json.Unmarshal(buf, &genericMap); err == nil {
			for k, v := range genericMap {
				vStr := ""
				if v != nil {
					vStr = fmt.Sprintf("%v", v)
				}
				metadata[k] = vStr
			}
		}
	}
	return metadata
}

func (e *ErrorImpl[MT]) TypedMetadata() MT {
	return e.metadata
}

func (e *ErrorImpl[MT]) GrpcCode() grpccodes.Code {
	return e.code.GrpcCode
}

// HttpStatus maps the grpc code of the error to the closest http status.
func (e *ErrorImpl[MT]) HttpStatus() int {
	switch e.code.GrpcCode {
	case grpccodes.InvalidArgument, grpccodes.OutOfRange:
		return http.StatusBadRequest
	case grpccodes.NotFound:
		return http.StatusNotFound
	case grpccodes.Unauthenticated:
		return http.StatusUnauthorized
	case grpccodes.AlreadyExists, grpccodes.Aborted:
		return http.StatusConflict
	case grpccodes.FailedPrecondition:
		return http.StatusUnprocessableEntity
	case grpccodes.Unavailable:
		return http.StatusServiceUnavailable
	case grpccodes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (e *ErrorImpl[MT]) Code() uint16 {
	return e.code.Code
}

func (e *ErrorImpl[MT]) CodeName() string {
	return e.code.Name
}

// Error() implements the error interface.
func (e *ErrorImpl[MT]) Error() string {
	return fmt.Sprintf("%s: %s", e.code.String(), e.cause.Error())
}

func (e *ErrorImpl[MT]) Unwrap() error {
	return e.cause
}

func (e *ErrorImpl[MT]) WithMetadata(metadata MT) TypedError[MT] {
	e.metadata = metadata
	return e
}

// Amounts are carried as base-10 strings to keep arbitrary precision.

type CollateralShortfallMetadata struct {
	Locked    string `json:"locked"`
	Required  string `json:"required"`
	Shortfall string `json:"shortfall"`
}

type InsufficientSupplyMetadata struct {
	Requested string `json:"requested"`
	Supply    string `json:"supply"`
	Reserved  string `json:"reserved,omitempty"`
}

type FeedUnavailableMetadata struct {
	Source string `json:"source"`
}

type AttestationInvalidMetadata struct {
	Reason string `json:"reason"`
}

type AttestationStaleMetadata struct {
	ProducedAt int64  `json:"produced_at"`
	MaxAge     string `json:"max_age"`
	Age        string `json:"age"`
}

type IntentMetadata struct {
	IntentId string `json:"intent_id"`
}

type InvalidTransitionMetadata struct {
	IntentId string `json:"intent_id"`
	From     string `json:"from"`
	To       string `json:"to"`
}

type AmountTooHighMetadata struct {
	Amount    string `json:"amount"`
	MaxAmount string `json:"max_amount"`
}

type AmountTooLowMetadata struct {
	Amount    string `json:"amount"`
	MinAmount string `json:"min_amount"`
}

type DuplicateEntryMetadata struct {
	Ref string `json:"ref"`
}

type InvalidAddressMetadata struct {
	Address string `json:"address"`
}

var INTERNAL_ERROR = Code[map[string]any]{0, "INTERNAL_ERROR", grpccodes.Internal}

var COLLATERAL_SHORTFALL = Code[CollateralShortfallMetadata]{
	1,
	"COLLATERAL_SHORTFALL",
	grpccodes.FailedPrecondition,
}

var INSUFFICIENT_SUPPLY = Code[InsufficientSupplyMetadata]{
	2,
	"INSUFFICIENT_SUPPLY",
	grpccodes.FailedPrecondition,
}

var FEED_UNAVAILABLE = Code[FeedUnavailableMetadata]{
	3,
	"FEED_UNAVAILABLE",
	grpccodes.Unavailable,
}

var ATTESTATION_INVALID = Code[AttestationInvalidMetadata]{
	4,
	"ATTESTATION_INVALID",
	grpccodes.InvalidArgument,
}

var ATTESTATION_STALE = Code[AttestationStaleMetadata]{
	5,
	"ATTESTATION_STALE",
	grpccodes.FailedPrecondition,
}
var REDEMPTION_EXPIRED = Code[IntentMetadata]{6, "REDEMPTION_EXPIRED", grpccodes.DeadlineExceeded}
var INVALID_AMOUNT = Code[any]{7, "INVALID_AMOUNT", grpccodes.InvalidArgument}
var AMOUNT_TOO_HIGH = Code[AmountTooHighMetadata]{8, "AMOUNT_TOO_HIGH", grpccodes.InvalidArgument}
var AMOUNT_TOO_LOW = Code[AmountTooLowMetadata]{9, "AMOUNT_TOO_LOW", grpccodes.InvalidArgument}
var INTENT_NOT_FOUND = Code[IntentMetadata]{10, "INTENT_NOT_FOUND", grpccodes.NotFound}

var INVALID_STATE_TRANSITION = Code[InvalidTransitionMetadata]{
	11,
	"INVALID_STATE_TRANSITION",
	grpccodes.FailedPrecondition,
}
var DUPLICATE_ENTRY = Code[DuplicateEntryMetadata]{12, "DUPLICATE_ENTRY", grpccodes.AlreadyExists}
var INVALID_ADDRESS = Code[InvalidAddressMetadata]{13, "INVALID_ADDRESS", grpccodes.InvalidArgument}
var ATTESTATION_NOT_FOUND = Code[any]{14, "ATTESTATION_NOT_FOUND", grpccodes.NotFound}
var INVALID_PAYMENT_HASH = Code[any]{15, "INVALID_PAYMENT_HASH", grpccodes.InvalidArgument}
var INVALID_ARGUMENT = Code[any]{16, "INVALID_ARGUMENT", grpccodes.InvalidArgument}
var UNAUTHENTICATED = Code[any]{17, "UNAUTHENTICATED", grpccodes.Unauthenticated}
var SERVICE_NOT_READY = Code[any]{18, "SERVICE_NOT_READY", grpccodes.Unavailable}
