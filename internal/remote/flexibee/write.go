package flexibee

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/roach88/flexiql/internal/dberr"
	"github.com/roach88/flexiql/internal/filter"
	"github.com/roach88/flexiql/internal/remote"
)

// ExternalIDsKey is the payload key carrying external ids. It is folded
// into the object's id list before sending.
const ExternalIDsKey = "external-ids"

// Insert implements remote.Transport.
func (c *Client) Insert(ctx context.Context, q *remote.Query, payload remote.Payload) (int64, error) {
	if err := checkScope(q); err != nil {
		return 0, err
	}
	if q.Via != nil {
		return c.insertVia(ctx, q, payload)
	}
	results, err := c.write(ctx, q, q.Table, []remote.Payload{payload})
	if err != nil {
		return 0, err
	}
	return singleID(q.Table, results)
}

// Update implements remote.Transport. A query addressing one object by id
// is written directly; otherwise the matching ids are fetched first and
// the payload is written to each of them.
func (c *Client) Update(ctx context.Context, q *remote.Query, payload remote.Payload) ([]int64, error) {
	if err := checkScope(q); err != nil {
		return nil, err
	}

	var objs []remote.Payload
	if id, single := q.IsSingleObject(); single {
		obj := clonePayload(payload)
		if q.Via != nil && obj[q.Via.FKColumn] == nil {
			rows, err := c.fetchColumns(ctx, q, c.idColumns(q), 0, 0)
			if err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				// The object does not exist remotely.
				return nil, nil
			}
			obj[q.Via.FKColumn] = parentID(rows[0], q.Via.FKColumn)
		}
		obj[q.PrimaryKey] = strings.Trim(cast.ToString(id), "'")
		objs = append(objs, obj)
	} else {
		rows, err := c.fetchColumns(ctx, q, c.idColumns(q), 0, 0)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			obj := clonePayload(payload)
			obj[q.PrimaryKey] = row[q.PrimaryKey]
			if q.Via != nil && obj[q.Via.FKColumn] == nil {
				obj[q.Via.FKColumn] = parentID(row, q.Via.FKColumn)
			}
			objs = append(objs, obj)
		}
	}
	if len(objs) == 0 {
		return nil, nil
	}

	ids, err := payloadIDs(q.Table, q.PrimaryKey, objs)
	if err != nil {
		return nil, err
	}
	if q.Via != nil {
		for _, obj := range objs {
			if _, err := c.storeVia(ctx, q, obj); err != nil {
				return nil, err
			}
		}
		return ids, nil
	}
	if _, err := c.write(ctx, q, q.Table, objs); err != nil {
		return nil, err
	}
	return ids, nil
}

// Delete implements remote.Transport.
func (c *Client) Delete(ctx context.Context, q *remote.Query) ([]int64, error) {
	if err := checkScope(q); err != nil {
		return nil, err
	}
	if q.Via != nil {
		return c.deleteVia(ctx, q)
	}

	body, err := sjson.SetBytes([]byte(`{"winstrom":{}}`), "winstrom."+gjson.Escape(q.Table), map[string]any{
		"@action": "delete",
		"@filter": q.FilterString(),
	})
	if err != nil {
		return nil, dberr.Transport(q.Table, "encode delete request", err)
	}
	results, err := c.put(ctx, q, q.Table, body)
	if err != nil {
		return nil, err
	}
	return resultIDs(q.Table, results)
}

// write sends objs to table and returns winstrom.results.
func (c *Client) write(ctx context.Context, q *remote.Query, table string, objs []remote.Payload) (gjson.Result, error) {
	prepared := make([]map[string]any, len(objs))
	for i, obj := range objs {
		prepared[i] = prepareObjIDs(q.PrimaryKey, obj)
	}
	body, err := sjson.SetBytes([]byte(`{"winstrom":{}}`), "winstrom."+gjson.Escape(table), prepared)
	if err != nil {
		return gjson.Result{}, dberr.Transport(table, "encode write request", err)
	}
	return c.put(ctx, q, table, body)
}

func (c *Client) put(ctx context.Context, q *remote.Query, table string, body []byte) (gjson.Result, error) {
	u := c.tableURL(q.Scope.DBName, table, "", "")
	status, resp, err := c.do(ctx, http.MethodPut, table, u, body)
	if err != nil {
		return gjson.Result{}, err
	}
	if !success(status) {
		target := q
		if table != q.Table {
			target = q.Derive(table)
		}
		return gjson.Result{}, c.responseError(ctx, target, http.MethodPut, u, status, resp)
	}
	results := gjson.GetBytes(resp, "winstrom.results")
	if !results.Exists() {
		return gjson.Result{}, dberr.Transport(table, "cannot parse response content, missing key results", nil)
	}
	return results, nil
}

// insertVia stores a child object through the relation of its parent. The
// new id is taken from the payload or, when absent, looked up by the
// generated external id.
func (c *Client) insertVia(ctx context.Context, q *remote.Query, payload remote.Payload) (int64, error) {
	obj := clonePayload(payload)
	if obj[q.PrimaryKey] == nil && obj[ExternalIDsKey] == nil {
		obj[ExternalIDsKey] = c.externalID()
	}
	return c.storeVia(ctx, q, obj)
}

func (c *Client) storeVia(ctx context.Context, q *remote.Query, obj remote.Payload) (int64, error) {
	via := q.Via
	parent := obj[via.FKColumn]
	if parent == nil {
		return 0, dberr.Transport(q.Table, fmt.Sprintf("missing %s of the parent %s", via.FKColumn, via.Table), nil)
	}

	parentObj := remote.Payload{
		remote.DefaultPrimaryKey: cast.ToString(parent),
		via.Relation:             []map[string]any{prepareObjIDs(q.PrimaryKey, obj)},
	}
	if _, err := c.write(ctx, q, via.Table, []remote.Payload{parentObj}); err != nil {
		return 0, err
	}

	if id, found := remote.ParseID(obj[q.PrimaryKey]); found {
		return id, nil
	}

	lookup := q.Derive(q.Table)
	lookup.AddFilter(filter.Elementary{Column: via.FKColumn, Op: filter.OpEqual, Value: literal(parent)})
	lookup.AddFilter(filter.Elementary{Column: q.PrimaryKey, Op: filter.OpEqual, Value: literal(cast.ToString(obj[ExternalIDsKey]))})
	rows, err := c.fetchColumns(ctx, lookup, []string{q.PrimaryKey}, 0, 1)
	if err != nil {
		return 0, err
	}
	if len(rows) != 1 {
		return 0, dberr.Transport(q.Table, "result must contain exactly one object", nil)
	}
	id, found := remote.ParseID(rows[0][q.PrimaryKey])
	if !found {
		return 0, dberr.Transport(q.Table, "result must contain id", nil)
	}
	return id, nil
}

// deleteVia removes children by rewriting each parent's relation without
// them.
func (c *Client) deleteVia(ctx context.Context, q *remote.Query) ([]int64, error) {
	via := q.Via
	rows, err := c.fetchColumns(ctx, q, c.idColumns(q), 0, 0)
	if err != nil {
		return nil, err
	}

	var parents []string
	byParent := make(map[string][]int64)
	for _, row := range rows {
		id, found := remote.ParseID(row[q.PrimaryKey])
		if !found {
			return nil, dberr.Transport(q.Table, "entity must contain id", nil)
		}
		p := cast.ToString(parentID(row, via.FKColumn))
		if _, seen := byParent[p]; !seen {
			parents = append(parents, p)
		}
		byParent[p] = append(byParent[p], id)
	}

	var deleted []int64
	for _, p := range parents {
		removed := make(map[int64]bool, len(byParent[p]))
		for _, id := range byParent[p] {
			removed[id] = true
		}

		pq := q.Derive(via.Table)
		pq.AddRelation(via.Relation)
		pq.AddFilter(filter.Elementary{Column: remote.DefaultPrimaryKey, Op: filter.OpEqual, Value: literal(p)})
		parentRows, err := c.fetchColumns(ctx, pq, []string{remote.DefaultPrimaryKey, via.Relation + "(id)"}, 0, 0)
		if err != nil {
			return nil, err
		}
		if len(parentRows) == 0 {
			return nil, dberr.Transport(via.Table, fmt.Sprintf("parent %s not found", p), nil)
		}

		kept := []map[string]any{}
		children, _ := parentRows[0][via.Relation].([]any)
		for _, child := range children {
			m, isObj := child.(map[string]any)
			if !isObj {
				continue
			}
			id, found := remote.ParseID(m[remote.DefaultPrimaryKey])
			if found && removed[id] {
				continue
			}
			kept = append(kept, map[string]any{remote.DefaultPrimaryKey: m[remote.DefaultPrimaryKey]})
		}

		parentObj := remote.Payload{
			remote.DefaultPrimaryKey:    parentRows[0][remote.DefaultPrimaryKey],
			via.Relation:                kept,
			via.Relation + "@removeAll": "true",
		}
		if _, err := c.write(ctx, q, via.Table, []remote.Payload{parentObj}); err != nil {
			return nil, err
		}
		deleted = append(deleted, byParent[p]...)
	}
	return deleted, nil
}

// idColumns are the columns needed to address rows of q for writing.
func (c *Client) idColumns(q *remote.Query) []string {
	cols := []string{q.PrimaryKey}
	if q.Via != nil {
		cols = append(cols, q.Via.FKColumn)
	}
	return cols
}

// prepareObjIDs turns the pk and external ids of obj into the id list
// FlexiBee expects.
func prepareObjIDs(pk string, obj remote.Payload) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	ids := []any{}
	if v := out[pk]; v != nil && v != "" {
		ids = append(ids, v)
	}
	if ext, found := out[ExternalIDsKey]; found {
		delete(out, ExternalIDsKey)
		if ext != nil && ext != "" {
			ids = append(ids, ext)
		}
	}
	delete(out, pk)
	out[remote.DefaultPrimaryKey] = ids
	return out
}

// parentID reads the parent id from "<fk>@ref", falling back to the raw
// column value.
func parentID(row remote.Row, fk string) any {
	if ref, isStr := row[fk+"@ref"].(string); isStr {
		seg := ref[strings.LastIndexByte(ref, '/')+1:]
		return strings.TrimSuffix(seg, ".json")
	}
	return row[fk]
}

// literal renders an id for a filter: numbers verbatim, codes quoted.
func literal(v any) string {
	s := cast.ToString(v)
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

func clonePayload(p remote.Payload) remote.Payload {
	out := make(remote.Payload, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}

func payloadIDs(table, pk string, objs []remote.Payload) ([]int64, error) {
	ids := make([]int64, 0, len(objs))
	for _, obj := range objs {
		id, found := remote.ParseID(obj[pk])
		if !found {
			return nil, dberr.Transport(table, "entity must contain id", nil)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func resultIDs(table string, results gjson.Result) ([]int64, error) {
	var ids []int64
	for _, r := range results.Array() {
		id, found := remote.ParseID(r.Get("id").String())
		if !found {
			return nil, dberr.Transport(table, "entity must contain id", nil)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func singleID(table string, results gjson.Result) (int64, error) {
	items := results.Array()
	if len(items) != 1 {
		return 0, dberr.Transport(table, "result must contain exactly one object", nil)
	}
	id, found := remote.ParseID(items[0].Get("id").String())
	if !found {
		return 0, dberr.Transport(table, "result must contain id", nil)
	}
	return id, nil
}
