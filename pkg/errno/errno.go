package errno

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	switch typed := err.(type) {
	case *Errno:
		return typed.Code, typed.Message
	case Errno:
		return typed.Code, typed.Message
	default:
		return InternalServerError.Code, err.Error()
	}
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error"}
)

// Send Errors (20100+)
var (
	ErrCurrencyUnknown  = Errno{Code: 20101, Message: "Unknown currency"}
	ErrValidationFailed = Errno{Code: 20102, Message: "Validation failed"}
	ErrNotReady         = Errno{Code: 20103, Message: "not ready"}
	ErrSendTimeout      = Errno{Code: 20104, Message: "Signing timed out"}
	ErrPublishFailed    = Errno{Code: 20105, Message: "Transaction publish failed"}
)

// Pairing / Inbox Errors (20200+)
var (
	ErrPairingAborted  = Errno{Code: 20201, Message: "Pairing aborted"}
	ErrPairingTimeout  = Errno{Code: 20202, Message: "Timed out waiting for link response"}
	ErrPairingRejected = Errno{Code: 20203, Message: "Remote rejected link request"}
	ErrEnvelopeInvalid = Errno{Code: 20204, Message: "Envelope verification failed"}
	ErrNotPaired       = Errno{Code: 20205, Message: "No paired wallet"}
)

// Store Errors (20300+)
var (
	ErrRecordNotFound = Errno{Code: 20301, Message: "Record not found"}
	ErrStoreConflict  = Errno{Code: 20302, Message: "Optimistic concurrency conflict"}
)
