package server

import (
	"fmt"
	"net/http"

	"github.com/cairndb/cairn/core/db"
)

// batchEnvelope is the wire shape of one RunBatch request, whether it
// arrives as a POST /batch body or a /ws text message (SPEC_FULL.md §7's
// {sql, path, query, form, cookies} envelope over the host Request
// collaborator, spec §6.2).
type batchEnvelope struct {
	SQL     string            `json:"sql"`
	Path    map[string]string `json:"path,omitempty"`
	Query   map[string]string `json:"query,omitempty"`
	Form    map[string]string `json:"form,omitempty"`
	Cookies map[string]string `json:"cookies,omitempty"`
}

// batchResult is the wire shape of a RunBatch outcome.
type batchResult struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Rows    [][]string        `json:"rows,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// newBasicRequest builds a db.BasicRequest from an envelope, layering in
// whatever the underlying net/http.Request itself carries (method, real
// query string, cookies) so a /batch caller only needs to set the fields it
// cares to override.
func newBasicRequest(env batchEnvelope, r *http.Request) *db.BasicRequest {
	req := db.NewBasicRequest()
	if r != nil {
		req.Method = r.Method
		for k := range r.URL.Query() {
			req.Query[k] = r.URL.Query().Get(k)
		}
		for _, c := range r.Cookies() {
			req.Cookie[c.Name] = c.Value
		}
		for k := range r.Header {
			req.Headers[k] = r.Header.Get(k)
		}
	}
	for k, v := range env.Path {
		req.Path[k] = v
	}
	for k, v := range env.Query {
		req.Query[k] = v
	}
	for k, v := range env.Form {
		req.Form[k] = v
	}
	for k, v := range env.Cookies {
		req.Cookie[k] = v
	}
	return req
}

// runBatch executes env against database and converts the BasicRequest's
// outcome into the wire result shape, stringifying row values the way a
// JSON/text transport needs (table.Value has no direct JSON mapping).
func runBatch(database *db.Database, env batchEnvelope, r *http.Request) batchResult {
	req := newBasicRequest(env, r)
	res := batchResult{Headers: req.ResponseHeaders()}

	err := database.RunBatch(env.SQL, req)
	if err != nil {
		res.Status = http.StatusBadRequest
		res.Error = err.Error()
		return res
	}

	res.Status = req.Status()
	for _, row := range req.Rows() {
		strRow := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				strRow[i] = ""
				continue
			}
			strRow[i] = fmt.Sprintf("%v", v)
		}
		res.Rows = append(res.Rows, strRow)
	}
	return res
}
