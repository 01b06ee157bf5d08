package chat

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("message content cannot be blank")
	ErrClientGone      = errors.New("client disconnected")
	ErrEmptyCompletion = errors.New("provider returned no content")
)

// ConfigurationError means no usable model configuration could be resolved.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("model configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ProviderStreamError reports a failure while opening or reading a completion.
type ProviderStreamError struct {
	Provider string
	Err      error
}

func (e *ProviderStreamError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderStreamError) Unwrap() error { return e.Err }

// StorageError wraps a failed message write.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store message: %v", e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Kind names the failure class of err as reported in the X-Stream-Error trailer.
func Kind(err error) string {
	var (
		cfgErr      *ConfigurationError
		providerErr *ProviderStreamError
		storageErr  *StorageError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &providerErr):
		return "provider"
	case errors.As(err, &storageErr):
		return "storage"
	case errors.Is(err, ErrClientGone):
		return "client"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}
