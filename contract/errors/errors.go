package errors

// Error codes for the bus contracts. Keep stable; used across adapters, the
// dispatch core, and the bus facade.
const (
	ErrCodeNilArgument         = "servicebus.nil_argument"
	ErrCodeHandlerExists       = "servicebus.handler_exists"
	ErrCodeHandlerNotFound     = "servicebus.handler_not_found"
	ErrCodeHandlerTypeMismatch = "servicebus.handler_type_mismatch"
	ErrCodeAmbiguousHandler    = "servicebus.ambiguous_handler"
	ErrCodeMissingMember       = "servicebus.missing_member"
	ErrCodeAsyncNotConfigured  = "servicebus.async_not_configured"
	ErrCodeEnqueueFailed       = "servicebus.enqueue_failed"
	ErrCodePublishFailed       = "servicebus.publish_failed"
	ErrCodeDelayUnsupported    = "servicebus.delay_unsupported"
	ErrCodeSerializationFailed = "servicebus.serialization_failed"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	// ErrNilArgument marks validation failures: a nil command, handler, or type
	// was passed where a value is required.
	ErrNilArgument = Code(ErrCodeNilArgument)

	// ErrHandlerExists marks duplicate bindings on paths that reject them.
	ErrHandlerExists = Code(ErrCodeHandlerExists)

	// ErrHandlerNotFound marks registration failures: no handler is bound for
	// the dispatched type.
	ErrHandlerNotFound = Code(ErrCodeHandlerNotFound)

	// ErrHandlerTypeMismatch marks registration failures: a handler is bound
	// but does not match the expected handler/result pairing.
	ErrHandlerTypeMismatch = Code(ErrCodeHandlerTypeMismatch)

	// ErrAmbiguousHandler marks registration failures on single-handler paths
	// that located more than one handler.
	ErrAmbiguousHandler = Code(ErrCodeAmbiguousHandler)

	// ErrMissingMember marks configuration failures on the dynamic path: a
	// required structural member is absent from a handler object.
	ErrMissingMember = Code(ErrCodeMissingMember)

	ErrAsyncNotConfigured  = Code(ErrCodeAsyncNotConfigured)
	ErrEnqueueFailed       = Code(ErrCodeEnqueueFailed)
	ErrPublishFailed       = Code(ErrCodePublishFailed)
	ErrDelayUnsupported    = Code(ErrCodeDelayUnsupported)
	ErrSerializationFailed = Code(ErrCodeSerializationFailed)
)
