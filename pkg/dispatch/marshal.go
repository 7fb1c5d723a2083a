package dispatch

import (
	"fmt"

	"github.com/marmos91/dittostorage/internal/logger"
	"github.com/marmos91/dittostorage/pkg/provider"
)

// ErrorPrefix is prepended to "<Kind>Exception" to form bus error names.
const ErrorPrefix = "org.dittostorage.Error."

// WireError is an error reply ready to be put on the bus. Fields follow
// the message, in order.
type WireError struct {
	Name    string
	Message string
	Fields  []any
}

func (e *WireError) Error() string {
	return e.Name + ": " + e.Message
}

// ErrorName returns the bus error name for kind.
func ErrorName(kind provider.ErrorKind) string {
	return ErrorPrefix + kind.String() + "Exception"
}

func unknownWireError(msg string) *WireError {
	return &WireError{Name: ErrorName(provider.KindUnknown), Message: msg}
}

// MarshalError converts err into a WireError. It never panics: anything
// that cannot be classified, including a panic while inspecting err,
// becomes an UnknownException.
func MarshalError(err error) (we *WireError) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("unknown exception thrown by provider: %v", r)
			logger.Error("%s", msg)
			we = unknownWireError(msg)
		}
	}()

	if err == nil {
		return unknownWireError("unknown exception thrown by provider")
	}

	se, ok := provider.AsStorageError(err)
	if !ok {
		msg := "unknown exception thrown by provider: " + err.Error()
		logger.Warn("%s", msg)
		return unknownWireError(msg)
	}

	we = &WireError{Name: ErrorName(se.Kind), Message: se.Error()}
	switch se.Kind {
	case provider.KindNotExists:
		we.Fields = []any{se.Key}
	case provider.KindExists, provider.KindDeleted:
		we.Fields = []any{se.Identity, se.Name}
	case provider.KindResource:
		logger.Warn("%s", se.Error())
		we.Fields = []any{int32(se.Code)}
	case provider.KindRemoteComms, provider.KindUnknown:
		logger.Warn("%s", se.Error())
	}
	return we
}
