package survey

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"
)

// Client is the typed backend API on top of a Transport
type Client struct {
	transport Transport
	now       func() time.Time
}

// NewClient wraps a transport
func NewClient(t Transport) *Client {
	return &Client{transport: t, now: time.Now}
}

// WifiInfo reads the current platform signal and validates it
func (c *Client) WifiInfo(ctx context.Context) (*WifiInfo, error) {
	var info WifiInfo
	if err := c.getJSON(ctx, "/wifi/info", nil, &info); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Message != "" {
			return nil, &SignalError{Reason: se.Message}
		}
		return nil, err
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return &info, nil
}

// UploadFloorPlan posts an image as multipart field "file"
func (c *Client) UploadFloorPlan(ctx context.Context, name string, data []byte) (*FloorPlan, error) {
	if err := ValidateUpload(name, int64(len(data))); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(name))
	if err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}

	resp, err := c.transport.Post(ctx, "/floor-plan", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	var fp FloorPlan
	if err := decodeJSON(http.MethodPost, "/floor-plan", resp, &fp); err != nil {
		return nil, err
	}
	return &fp, nil
}

// FloorPlan returns the current floor plan, or ErrNotFound when none is stored
func (c *Client) FloorPlan(ctx context.Context) (*FloorPlan, error) {
	var fp FloorPlan
	if err := c.getJSON(ctx, "/floor-plan", nil, &fp); err != nil {
		return nil, err
	}
	return &fp, nil
}

// Measurements returns the stored measurements in backend order
func (c *Client) Measurements(ctx context.Context) ([]MeasurementPoint, error) {
	var points []MeasurementPoint
	if err := c.getJSON(ctx, "/measurements", nil, &points); err != nil {
		return nil, err
	}
	return points, nil
}

// AddMeasurement submits a floor-plan-intrinsic sample and returns the accepted point
func (c *Client) AddMeasurement(ctx context.Context, m NewMeasurement) (*MeasurementPoint, error) {
	var created MeasurementPoint
	if err := c.postJSON(ctx, "/measurements", m, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// HeatMap fetches the interpolated heat map raster for the given method
func (c *Client) HeatMap(ctx context.Context, method string) (*HeatMapOverlay, error) {
	if method == "" {
		method = DefaultHeatMapMethod
	}
	q := url.Values{}
	q.Set("method", method)
	q.Set("t", strconv.FormatInt(c.now().UnixMilli(), 10))

	resp, err := c.getImage(ctx, "/heatmap", q)
	if err != nil {
		return nil, err
	}
	return &HeatMapOverlay{Method: method, ContentType: resp.ContentType, Data: resp.Body}, nil
}

// SignalChart fetches the signal-strength chart raster
func (c *Client) SignalChart(ctx context.Context) (*Response, error) {
	q := url.Values{}
	q.Set("t", strconv.FormatInt(c.now().UnixMilli(), 10))
	return c.getImage(ctx, "/signal-chart", q)
}

// SaveSession asks the backend to snapshot the session and returns its opaque blob
func (c *Client) SaveSession(ctx context.Context) (json.RawMessage, error) {
	var blob json.RawMessage
	if err := c.postJSON(ctx, "/session", nil, &blob); err != nil {
		return nil, err
	}
	return blob, nil
}

// LoadSession replaces the backend state with a blob from SaveSession
func (c *Client) LoadSession(ctx context.Context, blob json.RawMessage) error {
	if !json.Valid(blob) {
		return fmt.Errorf("loading session: %w", ErrInvalidSession)
	}
	resp, err := c.transport.Put(ctx, "/session", "application/json", bytes.NewReader(blob))
	if err != nil {
		return err
	}
	return decodeJSON(http.MethodPut, "/session", resp, nil)
}

// Reset clears all backend state
func (c *Client) Reset(ctx context.Context) error {
	return c.postJSON(ctx, "/reset", nil, nil)
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	resp, err := c.transport.Get(ctx, path, q)
	if err != nil {
		return err
	}
	return decodeJSON(http.MethodGet, path, resp, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return fmt.Errorf("encoding %s request: %w", path, err)
		}
	}
	resp, err := c.transport.Post(ctx, path, "application/json", &body)
	if err != nil {
		return err
	}
	return decodeJSON(http.MethodPost, path, resp, out)
}

func (c *Client) getImage(ctx context.Context, path string, q url.Values) (*Response, error) {
	resp, err := c.transport.Get(ctx, path, q)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(http.MethodGet, path, resp); err != nil {
		return nil, err
	}
	if len(resp.Body) == 0 {
		return nil, fmt.Errorf("HTTP GET %s: empty image", path)
	}
	if resp.ContentType == "" {
		resp.ContentType = http.DetectContentType(resp.Body)
	}
	return resp, nil
}

func checkStatus(method, path string, resp *Response) error {
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("HTTP %s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	return nil
}

func decodeJSON(method, path string, resp *Response, out any) error {
	if err := checkStatus(method, path, resp); err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", path, err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} from a backend error body
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Error
}
