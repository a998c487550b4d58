// Package apperrors provides the error values used throughout the client.
// Errors carry an HTTP status code and may wrap any number of underlying
// errors while remaining matchable with errors.Is, so callers can branch on
// the error kind (conflict vs. not-found vs. connectivity) without string
// comparison.
package apperrors

// Error extends the standard error interface with wrapping, status code
// management, and message derivation. Methods return Error to support
// chaining; none of them mutate the receiver.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	New(msg string) Error                  // derives a new error using current as template
	Msg(msg string) Error                  // new error with message, wrapping the original
	MsgErr(msg string, err ...error) Error // new error with message, wrapping extra errors
	Err(err ...error) Error                // attaches additional errors to the current error
	SetStatusCode(int) Error               // sets the HTTP status code
	StatusCode() int                       // returns the current status code
	ErrorAll() string                      // full message including wrapped errors
	UnwrapAll() []error                    // all wrapped errors in order
}
