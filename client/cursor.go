package client

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Cursor writes the pagination position into the query parameters of one request.
// offset is the number of records already received.
type Cursor interface {
	Apply(params url.Values, offset, pageSize int)
}

// OffsetCursor sends the raw record offset, e.g. Xero Journals?offset=200.
type OffsetCursor struct {
	Param string
}

func (c OffsetCursor) Apply(params url.Values, offset, _ int) {
	params.Set(paramOr(c.Param, "offset"), strconv.Itoa(offset))
}

// PageCursor sends a 1-based page number derived from offset/pageSize+1.
// With SizeParam set the page size is sent too, so the server pages the same
// way the page number is computed.
type PageCursor struct {
	Param     string
	SizeParam string
}

func (c PageCursor) Apply(params url.Values, offset, pageSize int) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	params.Set(paramOr(c.Param, "page"), strconv.Itoa(offset/pageSize+1))
	if c.SizeParam != "" {
		params.Set(c.SizeParam, strconv.Itoa(pageSize))
	}
}

// StartPositionCursor pages a QuickBooks query by appending
// STARTPOSITION/MAXRESULTS to the statement. Positions are 1-based.
type StartPositionCursor struct {
	SQL   string
	Param string
}

func (c StartPositionCursor) Apply(params url.Values, offset, pageSize int) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	stmt := strings.TrimRight(strings.TrimSpace(c.SQL), ";")
	params.Set(paramOr(c.Param, "query"), fmt.Sprintf("%s STARTPOSITION %d MAXRESULTS %d", stmt, offset+1, pageSize))
}

func paramOr(p, def string) string {
	if p == "" {
		return def
	}
	return p
}
