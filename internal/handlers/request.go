package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cast"

	"github.com/GregMSThompson/budget-tracker/internal/errs"
)

const maxBodyBytes = 1 << 20

// decodeJSON decodes the request body into dst. An empty body is allowed
// when optional is set.
func decodeJSON(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return errs.NewValidationError("invalid request body: " + err.Error())
	}
	return nil
}

// queryParams reads typed optional values from the URL query and remembers
// the first malformed one.
type queryParams struct {
	values map[string][]string
	err    error
}

func newQueryParams(r *http.Request) *queryParams {
	return &queryParams{values: r.URL.Query()}
}

func (q *queryParams) raw(name string) (string, bool) {
	v := strings.TrimSpace(strings.Join(q.values[name], ""))
	return v, v != ""
}

func (q *queryParams) String(name string) *string {
	v, ok := q.raw(name)
	if !ok {
		return nil
	}
	return &v
}

func (q *queryParams) Int(name string, def int) int {
	v, ok := q.raw(name)
	if !ok {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		q.fail(name)
		return def
	}
	return n
}

func (q *queryParams) Float(name string) *float64 {
	v, ok := q.raw(name)
	if !ok {
		return nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		q.fail(name)
		return nil
	}
	return &f
}

func (q *queryParams) Bool(name string) *bool {
	v, ok := q.raw(name)
	if !ok {
		return nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		q.fail(name)
		return nil
	}
	return &b
}

func (q *queryParams) fail(name string) {
	if q.err == nil {
		q.err = errs.NewValidationError("invalid query parameter " + name)
	}
}

func (q *queryParams) Err() error { return q.err }
