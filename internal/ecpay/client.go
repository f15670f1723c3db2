package ecpay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ErrTimeout reports that the processor did not answer within the submit
// deadline. The caller surfaces it as retryable; the idempotency key makes
// a client-side retry safe.
var ErrTimeout = errors.New("processor request timed out")

// SubmitResult is the processor's answer to a checkout submission. The raw
// body is preserved verbatim for forensics.
type SubmitResult struct {
	RtnCode    int
	RtnMsg     string
	PaymentNo  string
	PaymentURL string
	Raw        []byte
}

// Client submits checkout requests to the processor with a bounded timeout
// and no internal retries.
type Client struct {
	httpClient  *http.Client
	checkoutURL string
}

func NewClient(checkoutURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, checkoutURL: checkoutURL}
}

// Submit posts the form-encoded parameter set and parses the processor's
// form-encoded reply. The context deadline bounds the whole exchange.
func (c *Client) Submit(ctx context.Context, params map[string]string) (*SubmitResult, error) {
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.checkoutURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build checkout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("submit checkout: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read checkout response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("checkout returned status %d", resp.StatusCode)
	}

	result := &SubmitResult{Raw: raw}
	if values, err := url.ParseQuery(string(raw)); err == nil {
		result.RtnCode, _ = strconv.Atoi(values.Get("RtnCode"))
		result.RtnMsg = values.Get("RtnMsg")
		result.PaymentNo = values.Get("PaymentNo")
		result.PaymentURL = values.Get("PaymentURL")
	}
	return result, nil
}
