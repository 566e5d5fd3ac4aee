package database

import "fmt"

// ConnectionError reports that the schema listing could not be obtained.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database connection to %s failed: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DumpError reports a failed schema dump.
type DumpError struct {
	Schema string
	Err    error
}

func (e *DumpError) Error() string {
	return fmt.Sprintf("dump of schema %s failed: %v", e.Schema, e.Err)
}

func (e *DumpError) Unwrap() error { return e.Err }

// LoadError reports a failed schema load.
type LoadError struct {
	Schema string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load of schema %s failed: %v", e.Schema, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
