package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	QuickBooksSandboxURL    = "https://sandbox-quickbooks.api.intuit.com"
	QuickBooksProductionURL = "https://quickbooks.api.intuit.com"
	QuickBooksTokenURL      = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	QuickBooksAuthURL       = "https://appcenter.intuit.com/connect/oauth2"

	// QuickBooksMaxResults is the largest MAXRESULTS a query may ask for.
	QuickBooksMaxResults = 1000

	// DefaultMinorVersion is the QuickBooks API minor version sent with every query.
	DefaultMinorVersion = "65"

	realmPlaceholder  = "{realm_id}"
	defaultEntityName = "query_result"
	customEntityName  = "custom"
)

// QuickBooks runs queries and arbitrary endpoint calls against one company (realm).
type QuickBooks struct {
	Fetcher      *Fetcher
	RealmID      string
	MinorVersion string
}

// NewQuickBooks wraps a Fetcher whose BaseURL points at the QuickBooks host.
func NewQuickBooks(f *Fetcher, realmID string) *QuickBooks {
	return &QuickBooks{Fetcher: f, RealmID: realmID, MinorVersion: DefaultMinorVersion}
}

func (q *QuickBooks) queryEndpoint() string {
	return fmt.Sprintf("/v3/company/%s/query", q.RealmID)
}

func (q *QuickBooks) baseParams() url.Values {
	params := url.Values{}
	if q.MinorVersion != "" {
		params.Set("minorversion", q.MinorVersion)
	}
	return params
}

// Query runs one SQL-like statement and returns every record listed under
// QueryResponse, along with the entity named after FROM.
func (q *QuickBooks) Query(ctx context.Context, method, sql string) ([]Record, string, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, "", fmt.Errorf("query must not be empty")
	}
	if method == "" {
		method = http.MethodGet
	}
	params := q.baseParams()
	params.Set("query", sql)

	log.Info().Str("method", method).Str("query", sql).Msg("Running QuickBooks query")
	body, err := q.Fetcher.Do(ctx, Request{Method: method, Endpoint: q.queryEndpoint(), Params: params})
	if err != nil {
		return nil, "", err
	}
	page, err := ParsePage(body, "")
	if err != nil {
		return nil, "", err
	}

	entity := EntityFromQuery(sql)
	if page.Shape != ShapeQueryResponse {
		log.Warn().Str("shape", page.Shape.String()).Msg("Query response has no QueryResponse wrapper")
		return nil, entity, nil
	}
	return page.Records, entity, nil
}

// QueryAll pages through a query with STARTPOSITION/MAXRESULTS. The statement
// must not carry its own paging clauses.
func (q *QuickBooks) QueryAll(ctx context.Context, sql string, pageSize, maxIterations int) (*FetchResult, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	upper := strings.ToUpper(sql)
	if strings.Contains(upper, "STARTPOSITION") || strings.Contains(upper, "MAXRESULTS") {
		return nil, fmt.Errorf("query already contains STARTPOSITION/MAXRESULTS; run it without --all")
	}

	if pageSize > QuickBooksMaxResults {
		log.Warn().Int("page_size", pageSize).Int("max", QuickBooksMaxResults).Msg("MAXRESULTS too large, using the maximum")
		pageSize = QuickBooksMaxResults
	}

	query := map[string]string{}
	if q.MinorVersion != "" {
		query["minorversion"] = q.MinorVersion
	}
	res, err := q.Fetcher.FetchAll(ctx, FetchRequest{
		Endpoint:      q.queryEndpoint(),
		ResultKey:     queryResponseKey,
		Query:         query,
		Cursor:        StartPositionCursor{SQL: sql},
		PageSize:      pageSize,
		MaxIterations: maxIterations,
	})
	if err != nil {
		return nil, err
	}
	res.Endpoint = EntityFromQuery(sql)
	return res, nil
}

// Invoke calls an arbitrary endpoint. {realm_id} is replaced with the configured
// realm. The records are taken from the first field holding a non-empty list or an
// object; any other response becomes a single record named "custom".
func (q *QuickBooks) Invoke(ctx context.Context, method, endpoint string, body []byte) ([]Record, string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, "", fmt.Errorf("endpoint must not be empty")
	}
	endpoint = strings.ReplaceAll(endpoint, realmPlaceholder, q.RealmID)
	if method == "" {
		method = http.MethodGet
	}

	req := Request{Method: method, Endpoint: endpoint}
	if len(body) > 0 {
		req.Body = body
		req.ContentType = "application/json"
	}
	log.Info().Str("method", method).Str("endpoint", endpoint).Msg("Invoking QuickBooks endpoint")
	data, err := q.Fetcher.Do(ctx, req)
	if err != nil {
		return nil, "", err
	}
	page, err := ParsePage(data, "")
	if err != nil {
		return nil, "", err
	}
	if page.Shape == ShapeRaw || page.Key == "" {
		return page.Records, customEntityName, nil
	}
	return page.Records, page.Key, nil
}

// EntityFromQuery returns the upper-cased word after the first FROM, or
// "query_result" when there is none.
func EntityFromQuery(sql string) string {
	upper := strings.ToUpper(sql)
	idx := strings.Index(upper, "FROM")
	if idx < 0 {
		return defaultEntityName
	}
	rest := upper[idx+len("FROM"):]
	if next := strings.Index(rest, "FROM"); next >= 0 {
		rest = rest[:next]
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return defaultEntityName
	}
	return fields[0]
}
