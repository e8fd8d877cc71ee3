// Package apperrors provides the layered application error type used across
// the repository. Errors form a tree: a sentinel created with New is a base,
// and children derived with Error.New inherit its status code and satisfy
// errors.Is against every ancestor.
package apperrors

type Error interface {
	Error() string
	ErrorAll() string
	New(msg string) Error
	MsgErr(msg string, err ...error) Error
	Msg(msg string) Error
	Prefix(prefix string) Error
	Suffix(suffix string) Error
	Err(err ...error) Error
	Unwrap() []error
	Is(target error) bool
	SetExpandError(expand bool) Error
	SetStatusCode(code int) Error
	StatusCode() int
	SetRetryable(retryable bool) Error
	Retryable() bool
}
