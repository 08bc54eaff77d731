package flexibee

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/roach88/flexiql/internal/dberr"
	"github.com/roach88/flexiql/internal/remote"
)

// responseError translates a failed response. A 404 may mean the company
// itself is gone, which is checked with a second request. Failed writes
// become persistence errors carrying the server's field messages.
func (c *Client) responseError(ctx context.Context, q *remote.Query, method, u string, status int, body []byte) error {
	if status == http.StatusNotFound && !c.companyExists(ctx, q) {
		return dberr.ScopeNotFound(q.Scope.DBName)
	}

	message, fieldErrors := parseErrors(body)
	if message == "" {
		message = fmt.Sprintf("%d %s", status, http.StatusText(status))
	}
	if method == http.MethodGet {
		return dberr.Transport(q.Table, message, fmt.Errorf("GET %s: status %d", u, status))
	}
	return dberr.Persistence(q.Table, message, fieldErrors, map[string]string{
		"status": strconv.Itoa(status),
		"url":    u,
	})
}

// companyExists probes <base>/c/<db>.json. Probe failures count as
// "exists" so the original error is reported.
func (c *Client) companyExists(ctx context.Context, q *remote.Query) bool {
	u := c.base + "/c/" + url.PathEscape(q.Scope.DBName) + ".json"
	status, _, err := c.do(ctx, http.MethodGet, q.Table, u, nil)
	if err != nil {
		return true
	}
	return status != http.StatusNotFound && status != http.StatusForbidden
}

// parseErrors reads winstrom.message and winstrom.results[].errors[].
func parseErrors(body []byte) (string, []dberr.FieldError) {
	if !gjson.ValidBytes(body) {
		return "", nil
	}
	root := gjson.GetBytes(body, "winstrom")
	message := root.Get("message").String()

	var fieldErrors []dberr.FieldError
	root.Get("results").ForEach(func(_, result gjson.Result) bool {
		result.Get("errors").ForEach(func(_, e gjson.Result) bool {
			fieldErrors = append(fieldErrors, dberr.FieldError{
				Field:   e.Get("for").String(),
				Message: e.Get("message").String(),
			})
			return true
		})
		return true
	})
	if message == "" && len(fieldErrors) > 0 {
		message = fieldErrors[0].Message
	}
	return message, fieldErrors
}
