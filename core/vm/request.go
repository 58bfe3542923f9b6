package vm

import "github.com/cairndb/cairn/core/table"

// Request is the external collaborator the evaluator invokes for
// everything outside the database itself (spec §6.2): request
// parameters, the response being built, uploaded file parts, and the
// batch-scoped error slot Throw/EXCEPTION() use.
type Request interface {
	// Arg returns the named request value of the given kind (path,
	// query, form, cookie, header, method, ...); unknown keys return "".
	Arg(kind, name string) string
	// Global returns an evaluator-global integer; kind 0 is the current
	// time in microseconds since the Unix epoch.
	Global(kind int) int64
	StatusCode(code int)
	Header(name, value string)
	// Selected emits one produced row's values to the output sink.
	Selected(values []table.Value)
	SetError(msg string)
	GetError() string
	FileAttr(part int, which string) string
	FileContent(part int) []byte
}
