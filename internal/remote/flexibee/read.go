package flexibee

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"

	"github.com/roach88/flexiql/internal/dberr"
	"github.com/roach88/flexiql/internal/remote"
)

// Fetch implements remote.Transport.
func (c *Client) Fetch(ctx context.Context, q *remote.Query, offset, limit int) ([]remote.Row, error) {
	return c.fetchColumns(ctx, q, q.Columns, offset, limit)
}

func (c *Client) fetchColumns(ctx context.Context, q *remote.Query, columns []string, offset, limit int) ([]remote.Row, error) {
	if err := checkScope(q); err != nil {
		return nil, err
	}
	u := c.readURL(q, columns, offset, limit)
	status, body, err := c.do(ctx, http.MethodGet, q.Table, u, nil)
	if err != nil {
		return nil, err
	}
	if !success(status) {
		return nil, c.responseError(ctx, q, http.MethodGet, u, status, body)
	}
	return decodeRows(q.Table, body)
}

// Count implements remote.Transport. It asks for a single id and reads
// the row count the server adds to the response.
func (c *Client) Count(ctx context.Context, q *remote.Query) (int64, error) {
	if err := checkScope(q); err != nil {
		return 0, err
	}
	u := c.readURL(q, []string{q.PrimaryKey}, 0, 1)
	status, body, err := c.do(ctx, http.MethodGet, q.Table, u, nil)
	if err != nil {
		return 0, err
	}
	if !success(status) {
		return 0, c.responseError(ctx, q, http.MethodGet, u, status, body)
	}

	raw := gjson.GetBytes(body, "winstrom."+gjson.Escape("@rowCount"))
	if !raw.Exists() {
		return 0, dberr.Transport(q.Table, "cannot parse response content, missing key @rowCount", nil)
	}
	n, err := strconv.ParseInt(raw.String(), 10, 64)
	if err != nil {
		return 0, dberr.Transport(q.Table, "invalid @rowCount", err)
	}
	return n, nil
}

// attachmentColumns are the attachment properties read from the server.
const attachmentColumns = "id,contentType,nazSoub,poznam,link"

// Attachments implements remote.AttachmentLister by reading
// /c/<db>/<table>/<id>/prilohy.json. The server answers 404 for objects
// without attachments.
func (c *Client) Attachments(ctx context.Context, q *remote.Query, id int64) ([]remote.Attachment, error) {
	if err := checkScope(q); err != nil {
		return nil, err
	}
	var p params
	p.add("detail", "custom:"+attachmentColumns)
	u := c.tableURL(q.Scope.DBName, q.Table, "/"+strconv.FormatInt(id, 10)+"/prilohy", p.encode())

	status, body, err := c.do(ctx, http.MethodGet, q.Table, u, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return []remote.Attachment{}, nil
	}
	if !success(status) {
		return nil, c.responseError(ctx, q, http.MethodGet, u, status, body)
	}

	rows, err := decodeRows("priloha", body)
	if err != nil {
		return nil, err
	}
	files := make([]remote.Attachment, 0, len(rows))
	for _, row := range rows {
		fileID, ok := remote.ParseID(row["id"])
		if !ok {
			return nil, dberr.Transport(q.Table, fmt.Sprintf("invalid attachment id %v", row["id"]), nil)
		}
		contentType := cast.ToString(row["contentType"])
		if contentType == "" {
			contentType = "content/unknown"
		}
		files = append(files, remote.Attachment{
			ID:          fileID,
			Filename:    cast.ToString(row["nazSoub"]),
			ContentType: contentType,
			Description: cast.ToString(row["poznam"]),
			Link:        cast.ToString(row["link"]),
		})
	}
	return files, nil
}

// decodeRows reads winstrom.<table> as a list of objects.
func decodeRows(table string, body []byte) ([]remote.Row, error) {
	if !gjson.ValidBytes(body) {
		return nil, dberr.Transport(table, "cannot parse response content", nil)
	}
	list := gjson.GetBytes(body, "winstrom."+gjson.Escape(table))
	if !list.Exists() {
		return nil, dberr.Transport(table, "cannot parse response content, missing key "+table, nil)
	}

	items := list.Array()
	rows := make([]remote.Row, 0, len(items))
	for _, item := range items {
		obj, isObj := item.Value().(map[string]any)
		if !isObj {
			return nil, dberr.Transport(table, "unexpected row "+item.Raw, nil)
		}
		rows = append(rows, remote.Row(obj))
	}
	return rows, nil
}
