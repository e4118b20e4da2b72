package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/romanzzaa/catalog-price-watcher/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(pageSize, attempts int) *Client {
	return NewClient(Options{
		PageSize: pageSize,
		Timeout:  2 * time.Second,
		Retry: RetryPolicy{
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
			MaxAttempts: attempts,
		},
	}, testLogger())
}

func itemJSON(id string, price int64) map[string]any {
	return map[string]any{
		"productId":      id,
		"priceGroup":     "00",
		"name":           "item " + id,
		"genderCategory": "WOMEN",
		"prices":         map[string]any{"base": map[string]any{"value": price}},
		"images":         map[string]any{"main": map[string]any{"09": map[string]any{"image": "https://img/" + id + ".jpg"}}},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func okBody(total int, items ...map[string]any) map[string]any {
	if items == nil {
		items = []map[string]any{}
	}
	return map[string]any{
		"status": "ok",
		"result": map[string]any{
			"items":      items,
			"pagination": map[string]any{"total": total},
		},
	}
}

func TestPagesStopsWhenOffsetExceedsTotal(t *testing.T) {
	var mu sync.Mutex
	var offsets []int
	var lastQuery url.Values

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		mu.Lock()
		offsets = append(offsets, offset)
		lastQuery = r.URL.Query()
		mu.Unlock()
		writeJSON(w, okBody(250, itemJSON(fmt.Sprintf("P%d", offset), 1990)))
	}))
	defer srv.Close()

	src := domain.Source{Name: "UNIQLO", APIURL: srv.URL, Params: map[string]string{"storeId": "126608", "limit": "5", "offset": "999"}}
	client := testClient(100, 1)

	var pages []domain.Page
	for page, err := range client.Pages(context.Background(), src) {
		require.NoError(t, err)
		pages = append(pages, page)
	}

	require.Equal(t, []int{0, 100, 200}, offsets)
	require.Equal(t, "100", lastQuery.Get("limit"))
	require.Equal(t, "126608", lastQuery.Get("storeId"))
	require.Len(t, pages, 3)
	require.Equal(t, "P200", pages[2].Items[0].ProductID)
	require.Equal(t, "https://img/P0.jpg", pages[0].Items[0].ImageURL)
}

func TestFetchPageRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, okBody(1, itemJSON("A123", 1000)))
	}))
	defer srv.Close()

	page, err := testClient(100, 4).FetchPage(context.Background(), domain.Source{Name: "GU", APIURL: srv.URL}, 0)
	require.NoError(t, err)
	require.Equal(t, int32(3), calls.Load())
	require.Len(t, page.Items, 1)
	require.Equal(t, int64(1000), page.Items[0].Price)
}

func TestFetchPageGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(100, 4).FetchPage(context.Background(), domain.Source{Name: "GU", APIURL: srv.URL}, 100)
	require.Error(t, err)
	require.Equal(t, int32(4), calls.Load())

	var fetchErr *domain.FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.Equal(t, 4, fetchErr.Attempts)
	require.Equal(t, 100, fetchErr.Offset)

	var transient *domain.TransientError
	require.True(t, errors.As(err, &transient))
	require.Equal(t, http.StatusServiceUnavailable, transient.StatusCode)
}

func TestFetchPageProtocolErrorsAreNotRetried(t *testing.T) {
	cases := map[string]string{
		"malformed body":     `<html>maintenance</html>`,
		"status not ok":      `{"status":"nok","result":{}}`,
		"missing result":     `{"status":"ok"}`,
		"missing pagination": `{"status":"ok","result":{"items":[]}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				_, _ = io.WriteString(w, body)
			}))
			defer srv.Close()

			_, err := testClient(100, 4).FetchPage(context.Background(), domain.Source{Name: "GU", APIURL: srv.URL}, 0)
			var protoErr *domain.ProtocolError
			require.True(t, errors.As(err, &protoErr), "got %v", err)
			require.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestFetchPageSkipsItemsMissingFields(t *testing.T) {
	noPrice := itemJSON("NOPRICE", 0)
	delete(noPrice, "prices")
	noGroup := itemJSON("NOGROUP", 100)
	delete(noGroup, "priceGroup")
	badPrice := itemJSON("BADPRICE", 0)
	badPrice["prices"] = map[string]any{"base": map[string]any{"value": "free"}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, okBody(5, itemJSON("OK1", 100), noPrice, noGroup, badPrice, itemJSON("OK2", 200)))
	}))
	defer srv.Close()

	page, err := testClient(100, 1).FetchPage(context.Background(), domain.Source{Name: "GU", APIURL: srv.URL}, 0)
	require.NoError(t, err)

	require.Len(t, page.Items, 2)
	require.Equal(t, "OK1", page.Items[0].ProductID)
	require.Equal(t, "OK2", page.Items[1].ProductID)

	require.Len(t, page.Rejected, 3)
	require.Equal(t, "prices.base.value", page.Rejected[0].Field)
	require.Equal(t, "NOPRICE", page.Rejected[0].ProductID)
	require.Equal(t, "priceGroup", page.Rejected[1].Field)
	require.Equal(t, "BADPRICE", page.Rejected[2].ProductID)
	require.Equal(t, 3, page.Rejected[2].Index)
}

func TestPagesStopsAfterError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 2 {
			_, _ = io.WriteString(w, `{"status":"error"}`)
			return
		}
		writeJSON(w, okBody(300, itemJSON("X", 1)))
	}))
	defer srv.Close()

	var pages, errs int
	for _, err := range testClient(100, 2).Pages(context.Background(), domain.Source{Name: "GU", APIURL: srv.URL}) {
		if err != nil {
			errs++
			continue
		}
		pages++
	}
	require.Equal(t, 1, pages)
	require.Equal(t, 1, errs)
	require.Equal(t, int32(2), calls.Load())
}

func TestMainImage(t *testing.T) {
	require.Equal(t, "https://a.jpg", mainImage(json.RawMessage(`"https://a.jpg"`)))
	require.Equal(t, "https://00.jpg", mainImage(json.RawMessage(`{"09":{"image":"https://09.jpg"},"00":{"image":"https://00.jpg"}}`)))
	require.Equal(t, "", mainImage(nil))
	require.Equal(t, "", mainImage(json.RawMessage(`[1,2]`)))
}
