package db

import (
	"time"

	"github.com/cairndb/cairn/core/table"
	"github.com/cairndb/cairn/core/vm"
)

var _ vm.Request = (*BasicRequest)(nil)

// FilePart is one uploaded file part a BasicRequest carries, addressed by
// index the way spec §6.2's file_attr/file_content operations do.
type FilePart struct {
	Attrs   map[string]string
	Content []byte
}

// BasicRequest is the engine's own vm.Request implementation: a plain,
// in-process collaborator covering the {path, query, form, cookie,
// header, method} envelope spec §6.2 describes, used directly by
// cmd/cairn and decoded from JSON/HTTP by internal/server.
type BasicRequest struct {
	Method string
	Path   map[string]string
	Query  map[string]string
	Form   map[string]string
	Cookie  map[string]string
	Headers map[string]string
	Files   []FilePart

	status  int
	headers map[string]string
	rows    [][]table.Value
	errMsg  string
}

// NewBasicRequest returns an empty BasicRequest with its maps initialised.
func NewBasicRequest() *BasicRequest {
	return &BasicRequest{
		Path:    map[string]string{},
		Query:   map[string]string{},
		Form:    map[string]string{},
		Cookie:  map[string]string{},
		Headers: map[string]string{},
		headers: map[string]string{},
	}
}

// Arg implements vm.Request.
func (r *BasicRequest) Arg(kind, name string) string {
	switch kind {
	case "path":
		return r.Path[name]
	case "query":
		return r.Query[name]
	case "form":
		return r.Form[name]
	case "cookie":
		return r.Cookie[name]
	case "header":
		return r.Headers[name]
	case "method":
		return r.Method
	default:
		return ""
	}
}

// Global implements vm.Request: kind 0 is the current time in
// microseconds since the Unix epoch.
func (r *BasicRequest) Global(kind int) int64 {
	if kind == 0 {
		return time.Now().UnixMicro()
	}
	return 0
}

// StatusCode implements vm.Request.
func (r *BasicRequest) StatusCode(code int) { r.status = code }

// Status returns the status code set by the batch, or 200 if none was set.
func (r *BasicRequest) Status() int {
	if r.status == 0 {
		return 200
	}
	return r.status
}

// Header implements vm.Request, recording a response header the batch set.
func (r *BasicRequest) Header(name, value string) { r.headers[name] = value }

// Selected implements vm.Request, appending one produced row.
func (r *BasicRequest) Selected(values []table.Value) {
	r.rows = append(r.rows, values)
}

// Rows returns every row Selected emitted, in emission order.
func (r *BasicRequest) Rows() [][]table.Value { return r.rows }

// ResponseHeaders returns every header the batch set via Header.
func (r *BasicRequest) ResponseHeaders() map[string]string { return r.headers }

// SetError implements vm.Request.
func (r *BasicRequest) SetError(msg string) { r.errMsg = msg }

// GetError implements vm.Request.
func (r *BasicRequest) GetError() string { return r.errMsg }

// FileAttr implements vm.Request.
func (r *BasicRequest) FileAttr(part int, which string) string {
	if part < 0 || part >= len(r.Files) {
		return ""
	}
	return r.Files[part].Attrs[which]
}

// FileContent implements vm.Request.
func (r *BasicRequest) FileContent(part int) []byte {
	if part < 0 || part >= len(r.Files) {
		return nil
	}
	return r.Files[part].Content
}
