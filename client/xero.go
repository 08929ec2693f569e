package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	XeroTokenURL       = "https://identity.xero.com/connect/token"
	XeroConnectionsURL = "https://api.xero.com/connections"
	XeroAuthURL        = "https://login.xero.com/identity/connect/authorize"
	XeroDefaultBaseURL = "https://api.xero.com/api.xro/2.0"

	TenantHeader = "Xero-tenant-id"

	// XeroMaxPageSize is the largest pageSize the accounting API accepts.
	XeroMaxPageSize = 1000
	// XeroJournalsPageSize is the fixed number of journals returned per offset.
	XeroJournalsPageSize = 100
)

// Connection is one organisation the token has been granted access to.
type Connection struct {
	ID             string `json:"id"`
	AuthEventID    string `json:"authEventId"`
	TenantID       string `json:"tenantId"`
	TenantType     string `json:"tenantType"`
	TenantName     string `json:"tenantName"`
	CreatedDateUtc string `json:"createdDateUtc"`
	UpdatedDateUtc string `json:"updatedDateUtc"`
}

// Xero fetches accounting entities for one tenant.
type Xero struct {
	Fetcher        *Fetcher
	ConnectionsURL string
	TenantID       string
	PageSize       int
}

// NewXero wraps a Fetcher whose BaseURL points at the accounting API root.
// An empty tenantID is discovered through the connections endpoint on first use.
func NewXero(f *Fetcher, tenantID string) *Xero {
	x := &Xero{Fetcher: f, ConnectionsURL: XeroConnectionsURL, PageSize: DefaultPageSize}
	if tenantID != "" {
		x.setTenant(tenantID)
	}
	return x
}

// Connections lists the tenants the current token can access.
func (x *Xero) Connections(ctx context.Context) ([]Connection, error) {
	body, err := x.Fetcher.Do(ctx, Request{Method: http.MethodGet, Endpoint: x.ConnectionsURL})
	if err != nil {
		return nil, fmt.Errorf("failed to list Xero connections: %w", err)
	}
	var conns []Connection
	if err := json.Unmarshal(body, &conns); err != nil {
		return nil, fmt.Errorf("failed to parse Xero connections: %w", err)
	}
	return conns, nil
}

// ResolveTenant returns the configured tenant, or the first connection's tenant.
func (x *Xero) ResolveTenant(ctx context.Context) (string, error) {
	if x.TenantID != "" {
		return x.TenantID, nil
	}
	conns, err := x.Connections(ctx)
	if err != nil {
		return "", err
	}
	if len(conns) == 0 {
		return "", ErrNoConnections
	}
	if len(conns) > 1 {
		log.Warn().Int("connections", len(conns)).Str("tenant", conns[0].TenantName).
			Msg("Several Xero organisations connected, using the first; set XERO_TENANT_ID to choose")
	}
	x.setTenant(conns[0].TenantID)
	return x.TenantID, nil
}

func (x *Xero) setTenant(id string) {
	x.TenantID = id
	if x.Fetcher.Headers == nil {
		x.Fetcher.Headers = http.Header{}
	}
	x.Fetcher.Headers.Set(TenantHeader, id)
}

// FetchEndpoint pages through an entity endpoint such as Invoices or Journals.
func (x *Xero) FetchEndpoint(ctx context.Context, endpoint string, params map[string]string) (*FetchResult, error) {
	endpoint = strings.Trim(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint must not be empty")
	}
	if _, err := x.ResolveTenant(ctx); err != nil {
		return nil, err
	}
	cursor := CursorFor(endpoint)
	pageSize := x.pageSizeFor(cursor)
	log.Info().Str("endpoint", endpoint).Str("tenant", x.TenantID).Int("page_size", pageSize).Msg("Fetching Xero endpoint")
	return x.Fetcher.FetchAll(ctx, FetchRequest{
		Endpoint: endpoint,
		Query:    params,
		Cursor:   cursor,
		PageSize: pageSize,
	})
}

// pageSizeFor returns the page size the server will actually use. Offset paged
// endpoints always return XeroJournalsPageSize records; page numbered ones
// honour pageSize up to XeroMaxPageSize.
func (x *Xero) pageSizeFor(c Cursor) int {
	if _, ok := c.(OffsetCursor); ok {
		return XeroJournalsPageSize
	}
	size := x.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > XeroMaxPageSize {
		log.Warn().Int("page_size", size).Int("max", XeroMaxPageSize).Msg("Xero page size too large, using the maximum")
		size = XeroMaxPageSize
	}
	return size
}

// CursorFor picks the paging style Xero uses for an endpoint: Journals take a
// record offset, everything else a page number plus pageSize.
func CursorFor(endpoint string) Cursor {
	if strings.EqualFold(resultKey(endpoint), "Journals") {
		return OffsetCursor{Param: "offset"}
	}
	return PageCursor{Param: "page", SizeParam: "pageSize"}
}
