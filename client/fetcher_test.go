package client

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAll_StopsOnShortPage(t *testing.T) {
	sizes := []int{100, 100, 37}
	var requests int32
	pages := &recorder{}
	f, tokens, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		pages.add(r.URL.Query().Get("page"))
		_, _ = w.Write(entityPage("Invoices", "p"+strconv.Itoa(int(n)), sizes[n-1]))
	})

	res, err := f.FetchAll(context.Background(), FetchRequest{Endpoint: "Invoices", Cursor: PageCursor{Param: "page"}, PageSize: 100})

	require.NoError(t, err)
	assert.Len(t, res.Records, 237)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
	assert.Equal(t, []string{"1", "2", "3"}, pages.values())
	assert.Equal(t, "p2-0", res.Records[100]["ID"], "records must keep provider order")
	assert.Equal(t, "Invoices", res.Endpoint)
	assert.Equal(t, 3, res.Pages)
	assert.False(t, res.Truncated)

	gets, refreshes := tokens.counts()
	assert.Equal(t, 3, gets, "access token should be fetched for every request")
	assert.Zero(t, refreshes)
}

func TestFetchAll_StopsOnEmptyPage(t *testing.T) {
	offsets := &recorder{}
	f, _, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		offsets.add(r.URL.Query().Get("offset"))
		n := 100
		if offsets.len() == 2 {
			n = 0
		}
		_, _ = w.Write(entityPage("Journals", "j", n))
	})

	res, err := f.FetchAll(context.Background(), FetchRequest{Endpoint: "Journals", Cursor: CursorFor("Journals")})

	require.NoError(t, err)
	assert.Len(t, res.Records, 100)
	assert.Equal(t, []string{"0", "100"}, offsets.values())
}

func TestFetchAll_RetriesSameCursorAfter429(t *testing.T) {
	var requests int32
	pages := &recorder{}
	f, _, clock := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		pages.add(r.URL.Query().Get("page"))
		if n == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write(entityPage("Contacts", "c", 37))
	})

	ch := async(func() (*FetchResult, error) {
		return f.FetchAll(context.Background(), FetchRequest{Endpoint: "Contacts", Cursor: PageCursor{}})
	})

	clock.BlockUntil(1)
	clock.Advance(6 * time.Second)
	clock.BlockUntil(1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests), "retry must wait the full Retry-After")
	clock.Advance(time.Second)

	res, err := await(t, ch)
	require.NoError(t, err)
	assert.Len(t, res.Records, 37)
	assert.Equal(t, []string{"1", "1"}, pages.values(), "the same cursor must be retried")
}

func TestFetchAll_429WithoutRetryAfterWaitsDefault(t *testing.T) {
	var requests int32
	f, _, clock := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write(entityPage("Items", "i", 1))
	})

	ch := async(func() (*FetchResult, error) {
		return f.FetchAll(context.Background(), FetchRequest{Endpoint: "Items", Cursor: PageCursor{}})
	})

	clock.BlockUntil(1)
	clock.Advance(59 * time.Second)
	clock.BlockUntil(1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
	clock.Advance(time.Second)

	res, err := await(t, ch)
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
}

func TestFetchAll_RateLimitWaitBudget(t *testing.T) {
	f, _, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3600")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	f.MaxRateLimitWait = time.Minute

	_, err := f.FetchAll(context.Background(), FetchRequest{Endpoint: "Items", Cursor: PageCursor{}})

	var maxErr *MaxRetriesExceededError
	require.True(t, errors.As(err, &maxErr))
	assert.Equal(t, http.StatusTooManyRequests, maxErr.LastStatus)
}

func TestFetchAll_TwoUnauthorizedFailAfterOneRefresh(t *testing.T) {
	var requests int32
	seen := &recorder{}
	f, tokens, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		seen.add(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := f.FetchAll(context.Background(), FetchRequest{Endpoint: "Invoices", Cursor: PageCursor{}})

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr), "got %v", err)
	_, refreshes := tokens.counts()
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
	assert.Equal(t, []string{"Bearer token-1", "Bearer token-2"}, seen.values())
}

func TestFetchAll_UnauthorizedOnceThenRecovers(t *testing.T) {
	var requests int32
	f, tokens, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write(entityPage("Invoices", "i", 5))
	})

	res, err := f.FetchAll(context.Background(), FetchRequest{Endpoint: "Invoices", Cursor: PageCursor{}})

	require.NoError(t, err)
	assert.Len(t, res.Records, 5)
	_, refreshes := tokens.counts()
	assert.Equal(t, 1, refreshes)
}

func TestFetchAll_RefreshFailureIsPropagated(t *testing.T) {
	f, tokens, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	refreshErr := &AuthRefreshError{Status: 400, Body: "invalid_grant"}
	tokens.refreshErr = refreshErr

	_, err := f.FetchAll(context.Background(), FetchRequest{Endpoint: "Invoices"})

	assert.ErrorIs(t, err, refreshErr)
}

func TestDo_BadRequestFailsImmediately(t *testing.T) {
	var requests int32
	f, _, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"Fault":{"Error":[{"Message":"parse error"}]}}`))
	})

	_, err := f.Do(context.Background(), Request{Endpoint: "/v3/company/1/query"})

	var invalid *InvalidRequestError
	require.True(t, errors.As(err, &invalid))
	assert.Contains(t, invalid.Body, "parse error")
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestDo_ServerErrorBacksOffThenSucceeds(t *testing.T) {
	var requests int32
	f, _, clock := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"CompanyInfo":{"CompanyName":"Acme"}}`))
	})

	ch := async(func() ([]byte, error) {
		return f.Do(context.Background(), Request{Endpoint: "companyinfo"})
	})

	clock.BlockUntil(1)
	clock.Advance(time.Second)

	body, err := await(t, ch)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Acme")
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestDo_PersistentUnavailableExhaustsRetries(t *testing.T) {
	var requests int32
	f, _, clock := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	f.MaxRetries = 3

	ch := async(func() ([]byte, error) {
		return f.Do(context.Background(), Request{Endpoint: "Invoices"})
	})

	for _, wait := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		clock.BlockUntil(1)
		clock.Advance(wait)
	}

	_, err := await(t, ch)
	var maxErr *MaxRetriesExceededError
	require.True(t, errors.As(err, &maxErr), "got %v", err)
	assert.Equal(t, http.StatusServiceUnavailable, maxErr.LastStatus)
	assert.Equal(t, 4, maxErr.Attempts)
	assert.Equal(t, int32(4), atomic.LoadInt32(&requests))
}

func TestDo_OtherStatusIsHTTPError(t *testing.T) {
	f, _, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("nope"))
	})

	_, err := f.Do(context.Background(), Request{Endpoint: "Nothing"})

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
}

func TestFetchAll_IterationCapReturnsPartialResults(t *testing.T) {
	var requests int32
	f, _, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		_, _ = w.Write(entityPage("Invoices", "i", 100))
	})

	res, err := f.FetchAll(context.Background(), FetchRequest{Endpoint: "Invoices", Cursor: PageCursor{}, MaxIterations: 3})

	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Len(t, res.Records, 300)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
}

func TestFetchAll_SendsHeadersAndParams(t *testing.T) {
	captured := make(chan *http.Request, 1)
	f, _, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		captured <- r.Clone(context.Background())
		_, _ = w.Write(entityPage("Invoices", "i", 1))
	})
	f.Headers.Set(TenantHeader, "tenant-42")

	_, err := f.FetchAll(context.Background(), FetchRequest{
		Endpoint: "Invoices",
		Query:    map[string]string{"where": `Status=="AUTHORISED"`},
		Cursor:   PageCursor{},
	})

	require.NoError(t, err)
	got := <-captured
	assert.Equal(t, "/Invoices", got.URL.Path)
	assert.Equal(t, "Bearer token-1", got.Header.Get("Authorization"))
	assert.Equal(t, "tenant-42", got.Header.Get("Xero-tenant-id"))
	assert.Equal(t, "application/json", got.Header.Get("Accept"))
	assert.Equal(t, `Status=="AUTHORISED"`, got.URL.Query().Get("where"))
	assert.Equal(t, "1", got.URL.Query().Get("page"))
}

func TestFetchAll_ContextCancelledDuringWait(t *testing.T) {
	f, _, clock := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	ctx, cancel := context.WithCancel(context.Background())

	ch := async(func() (*FetchResult, error) {
		return f.FetchAll(ctx, FetchRequest{Endpoint: "Invoices"})
	})
	clock.BlockUntil(1)
	cancel()

	_, err := await(t, ch)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"", 60 * time.Second},
		{"12", 12 * time.Second},
		{" 5 ", 5 * time.Second},
		{"-3", 60 * time.Second},
		{"soon", 60 * time.Second},
		{now.Add(30 * time.Second).Format(http.TimeFormat), 30 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, parseRetryAfter(c.in, now, 60*time.Second), "input %q", c.in)
	}
}

func TestBuildURL(t *testing.T) {
	u, err := buildURL("https://api.xero.com/api.xro/2.0/", "/Invoices", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.xero.com/api.xro/2.0/Invoices", u)

	u, err = buildURL("https://ignored", "https://api.xero.com/connections", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.xero.com/connections", u)

	_, err = buildURL("", "Invoices", nil)
	assert.Error(t, err)
}

func TestResultKey(t *testing.T) {
	assert.Equal(t, "Invoices", resultKey("Invoices"))
	assert.Equal(t, "Journals", resultKey("/api.xro/2.0/Journals/"))
	assert.Equal(t, "", resultKey(""))
}
