package config

import "fmt"

// ConfigurationError reports an invalid or inconsistent setting. It is
// always fatal and is raised before any date is processed.
type ConfigurationError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErr(key string, err error) *ConfigurationError {
	return &ConfigurationError{Key: key, Reason: err.Error(), Err: err}
}
