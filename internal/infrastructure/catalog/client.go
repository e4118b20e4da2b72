package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/romanzzaa/catalog-price-watcher/internal/domain"
)

const (
	DefaultPageSize = 100
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

var tracer = otel.Tracer("infrastructure/catalog")

type RetryPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

type Options struct {
	PageSize int
	Timeout  time.Duration
	Retry    RetryPolicy
}

type Client struct {
	http     *resty.Client
	pageSize int
	retry    RetryPolicy
	logger   *slog.Logger
}

func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 1
	}

	httpClient := resty.New().
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")
	if opts.Timeout > 0 {
		httpClient.SetTimeout(opts.Timeout)
	}

	c := &Client{
		http:     httpClient,
		pageSize: opts.PageSize,
		retry:    opts.Retry,
		logger:   logger.With("component", "catalog_client"),
	}
	httpClient.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		c.logger.Debug("catalog response",
			slog.String("url", res.Request.URL),
			slog.Int("status", res.StatusCode()),
			slog.Duration("took", res.Time()))
		return nil
	})
	return c
}

// --- Implementation of CatalogFetcher ---

// Pages lazily walks the catalog: offset 0, then +PageSize while the next
// offset does not exceed the reported total. The sequence ends after the
// first error it yields.
func (c *Client) Pages(ctx context.Context, src domain.Source) iter.Seq2[domain.Page, error] {
	return func(yield func(domain.Page, error) bool) {
		for offset := 0; ; offset += c.pageSize {
			page, err := c.FetchPage(ctx, src, offset)
			if err != nil {
				yield(domain.Page{Offset: offset}, err)
				return
			}
			if !yield(page, nil) {
				return
			}
			if offset+c.pageSize > page.Total {
				return
			}
		}
	}
}

// FetchPage requests one page with retries. Transient failures are retried
// with randomized exponential backoff and end in a FetchError; protocol
// failures are returned immediately.
func (c *Client) FetchPage(ctx context.Context, src domain.Source, offset int) (domain.Page, error) {
	ctx, span := tracer.Start(ctx, "catalog.FetchPage")
	defer span.End()
	span.SetAttributes(
		attribute.String("source", src.Name),
		attribute.Int("offset", offset),
		attribute.Int("limit", c.pageSize),
	)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retry.BaseDelay
	policy.MaxInterval = c.retry.MaxDelay
	policy.MaxElapsedTime = 0

	var page domain.Page
	attempts := 0
	op := func() error {
		attempts++
		var err error
		page, err = c.fetchOnce(ctx, src, offset)

		var protoErr *domain.ProtocolError
		if errors.As(err, &protoErr) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("page request failed, retrying",
			slog.String("source", src.Name),
			slog.Int("offset", offset),
			slog.Int("attempt", attempts),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.retry.MaxAttempts-1)), ctx)
	err := backoff.RetryNotify(op, b, notify)
	if err != nil {
		var protoErr *domain.ProtocolError
		if !errors.As(err, &protoErr) {
			err = &domain.FetchError{Source: src.Name, Offset: offset, Attempts: attempts, Err: err}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Page{}, err
	}

	span.SetAttributes(
		attribute.Int("items", len(page.Items)),
		attribute.Int("rejected", len(page.Rejected)),
		attribute.Int("total", page.Total),
	)
	return page, nil
}

// --- Private Helpers ---

func (c *Client) fetchOnce(ctx context.Context, src domain.Source, offset int) (domain.Page, error) {
	params := make(map[string]string, len(src.Params)+2)
	for k, v := range src.Params {
		params[k] = v
	}
	// Pagination always wins over source params.
	params["limit"] = strconv.Itoa(c.pageSize)
	params["offset"] = strconv.Itoa(offset)

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(src.APIURL)
	if err != nil {
		return domain.Page{}, &domain.TransientError{Op: "GET " + src.APIURL, Err: err}
	}
	if !resp.IsSuccess() {
		return domain.Page{}, &domain.TransientError{Op: "GET " + src.APIURL, StatusCode: resp.StatusCode()}
	}

	return decodePage(src.Name, offset, resp.Body())
}

func decodePage(source string, offset int, body []byte) (domain.Page, error) {
	var base BaseResponse[ProductsResponse]
	if err := json.Unmarshal(body, &base); err != nil {
		return domain.Page{}, &domain.ProtocolError{Source: source, Offset: offset, Reason: "malformed body", Err: err}
	}
	if base.Status != "ok" {
		return domain.Page{}, &domain.ProtocolError{Source: source, Offset: offset, Reason: fmt.Sprintf("status %q", base.Status)}
	}

	// Без pagination.total нельзя понять, где кончается каталог.
	if base.Result == nil {
		return domain.Page{}, &domain.ProtocolError{Source: source, Offset: offset, Reason: "missing result"}
	}
	if base.Result.Pagination == nil {
		return domain.Page{}, &domain.ProtocolError{Source: source, Offset: offset, Reason: "missing pagination"}
	}

	result := base.Result
	page := domain.Page{
		Offset: offset,
		Total:  result.Pagination.Total,
		Items:  make([]domain.Item, 0, len(result.Items)),
	}
	for i, raw := range result.Items {
		item, contractErr := parseItem(offset+i, raw)
		if contractErr != nil {
			page.Rejected = append(page.Rejected, contractErr)
			continue
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}
