package exception

import "errors"

// Registered names of the item fault categories.
const (
	ParseErrorName             = "ParseError"
	TransientResourceErrorName = "TransientResourceError"
	UnexpectedInputErrorName   = "UnexpectedInputError"
	GenericErrorName           = "GenericError"
)

// Item fault categories. Readers, processors and writers wrap one of these so that
// skip and retry policies can classify the failure.
var (
	// ErrParse means the current item is invalid. The next item may still be valid.
	ErrParse = errors.New("item could not be parsed")
	// ErrTransientResource means the underlying resource is unusable and further reads fail too.
	// It is treated as fatal.
	ErrTransientResource = errors.New("item resource is unusable")
	// ErrUnexpectedInput means the input was not what the reader expected. It may be transient.
	ErrUnexpectedInput = errors.New("unexpected item input")
	// ErrGeneric is any other item fault.
	ErrGeneric = errors.New("item fault")
)

// Category returns the category sentinel err belongs to. Errors that wrap none of them are ErrGeneric.
func Category(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrParse):
		return ErrParse
	case errors.Is(err, ErrTransientResource):
		return ErrTransientResource
	case errors.Is(err, ErrUnexpectedInput):
		return ErrUnexpectedInput
	default:
		return ErrGeneric
	}
}

// CategoryName returns the registered name of err's category.
func CategoryName(err error) string {
	switch Category(err) {
	case ErrParse:
		return ParseErrorName
	case ErrTransientResource:
		return TransientResourceErrorName
	case ErrUnexpectedInput:
		return UnexpectedInputErrorName
	case nil:
		return ""
	default:
		return GenericErrorName
	}
}

// NewParseError wraps err in the parse category.
func NewParseError(module, message string, err error) *BatchError {
	return NewBatchError(module, message, join(ErrParse, err), true, false)
}

// NewUnexpectedInputError wraps err in the unexpected input category.
func NewUnexpectedInputError(module, message string, err error) *BatchError {
	return NewBatchError(module, message, join(ErrUnexpectedInput, err), true, true)
}

// NewTransientResourceError wraps err in the resource category. The resulting error is fatal.
func NewTransientResourceError(module, message string, err error) *BatchError {
	be := NewBatchError(module, message, join(ErrTransientResource, err), false, false)
	be.isFatal = true
	return be
}

func join(sentinel, err error) error {
	if err == nil {
		return sentinel
	}
	return errors.Join(sentinel, err)
}
