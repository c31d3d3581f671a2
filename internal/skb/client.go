package skb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

type Format string

const (
	FormatJSON Format = "JSON"
	FormatPDF  Format = "PDF"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToUpper(s)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatPDF:
		return FormatPDF, nil
	}
	return "", fmt.Errorf("unknown response type %q", s)
}

var (
	ErrUnavailable = errors.New("partner service unavailable")
)

type ThrottleError struct {
	After time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("too many requests, retry after %s", e.After)
}

func (e *ThrottleError) RetryAfter() time.Duration {
	return e.After
}

// PermanentError is a rejection that will not change on retry.
type PermanentError struct {
	Status int
	Body   string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("partner rejected request: status %d: %s", e.Status, e.Body)
}

func (e *PermanentError) Permanent() bool {
	return true
}

type OrderMeta struct {
	UUID            uuid.UUID
	CadastralNumber string
}

type Result struct {
	Ready       bool
	Payload     json.RawMessage
	Document    []byte
	Filename    string
	ContentType string
}

type Kind struct {
	Code string
	Name string
}

type Client struct {
	http     *resty.Client
	priority int
}

func NewClient(baseURL string, apiKey string, priority int, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetQueryParam("api-key", apiKey)
	return &Client{http: c, priority: priority}
}

// CreateOrder registers the order with the partner and returns the id it echoes back.
func (c *Client) CreateOrder(ctx context.Context, kindCode string, meta OrderMeta) (string, error) {
	id := meta.UUID.String()

	response, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"Id":          id,
			"OrderId":     id,
			"Number":      meta.CadastralNumber,
			"Priority":    strconv.Itoa(c.priority),
			"RequestType": kindCode,
		}).
		Post("/Create")
	if err != nil {
		return "", transportError(err)
	}

	switch response.StatusCode() {
	case http.StatusOK, http.StatusCreated:
		var echo struct {
			ID string `json:"Id"`
		}
		if err := json.Unmarshal(response.Body(), &echo); err != nil || echo.ID == "" {
			return id, nil
		}
		return echo.ID, nil
	default:
		return "", statusError(response)
	}
}

// FetchResult asks for the result in the given format. A result that is still
// being prepared comes back with Ready == false and no error.
func (c *Client) FetchResult(ctx context.Context, orderUUID uuid.UUID, format Format) (*Result, error) {
	response, err := c.http.R().
		SetContext(ctx).
		SetPathParam("uuid", orderUUID.String()).
		SetQueryParam("Type", string(format)).
		Get("/Result/{uuid}")
	if err != nil {
		return nil, transportError(err)
	}

	switch response.StatusCode() {
	case http.StatusOK:
	case http.StatusAccepted, http.StatusNoContent, http.StatusNotFound:
		return &Result{Ready: false}, nil
	default:
		return nil, statusError(response)
	}

	contentType, _, _ := mime.ParseMediaType(response.Header().Get("Content-Type"))
	body := response.Body()

	if format == FormatJSON {
		return parseJSONResult(body), nil
	}

	if contentType == "application/json" || (contentType == "" && looksLikeJSON(body)) {
		// the partner answers a document request with a JSON status while it is busy
		return &Result{Ready: false}, nil
	}
	if len(body) == 0 {
		return &Result{Ready: false}, nil
	}
	if contentType == "" {
		contentType = "application/pdf"
	}
	return &Result{
		Ready:       true,
		Document:    body,
		Filename:    filename(response.Header().Get("Content-Disposition"), orderUUID),
		ContentType: contentType,
	}, nil
}

func parseJSONResult(body []byte) *Result {
	var status struct {
		HasError bool            `json:"hasError"`
		Message  string          `json:"Message"`
		Result   json.RawMessage `json:"Result"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return &Result{Ready: false}
	}
	if status.HasError || status.Message != "" {
		return &Result{Ready: false}
	}
	if status.Result != nil && !truthy(status.Result) {
		return &Result{Ready: false}
	}
	return &Result{
		Ready:       true,
		Payload:     json.RawMessage(body),
		ContentType: "application/json",
	}
}

func (c *Client) GetKinds(ctx context.Context) ([]Kind, error) {
	response, err := c.http.R().
		SetContext(ctx).
		Get("/Kinds")
	if err != nil {
		return nil, transportError(err)
	}
	if response.StatusCode() != http.StatusOK {
		return nil, statusError(response)
	}

	var raw []struct {
		ID   json.RawMessage `json:"Id"`
		Name string          `json:"Name"`
	}
	if err := json.Unmarshal(response.Body(), &raw); err != nil {
		return nil, fmt.Errorf("json parsing error %w", err)
	}
	kinds := make([]Kind, 0, len(raw))
	for _, k := range raw {
		code := strings.Trim(string(k.ID), `"`)
		if code == "" || code == "null" {
			continue
		}
		kinds = append(kinds, Kind{Code: code, Name: k.Name})
	}
	return kinds, nil
}

func transportError(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func statusError(response *resty.Response) error {
	code := response.StatusCode()
	switch {
	case code == http.StatusTooManyRequests:
		seconds, err := strconv.Atoi(response.Header().Get("Retry-After"))
		if err != nil || seconds < 0 {
			seconds = 0
		}
		return fmt.Errorf("%w", &ThrottleError{After: time.Duration(seconds) * time.Second})
	case code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d", ErrUnavailable, code)
	case code >= http.StatusBadRequest:
		return fmt.Errorf("%w", &PermanentError{Status: code, Body: string(response.Body())})
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrUnavailable, code)
	}
}

func filename(disposition string, orderUUID uuid.UUID) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	return orderUUID.String() + ".pdf"
}

func looksLikeJSON(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

func truthy(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "null", "false", "0", `""`, "[]", "{}":
		return false
	}
	return true
}
