package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/vote-admin/internal/tally"
)

var ErrUnauthorized = errors.New("unauthorized")
var ErrNoToken = errors.New("no token returned from server")
var ErrInvalidCandidate = errors.New("candidate name and position are required")

// StatusError is a non-auth HTTP failure from the backend.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Msg    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s %s: HTTP %d: %s", e.Method, e.Path, e.Code, e.Msg)
}

const (
	pathLogin         = "/api/auth/admin-login"
	pathCandidates    = "/api/candidates"
	pathCandidatesAlt = "/api/candidates/add"
	pathVerify        = "/api/verify"
	pathReset         = "/api/reset"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// WithToken returns a copy of c that sends token as a bearer credential.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) BaseURL() string { return c.baseURL }

// Login exchanges admin credentials for a token. The token may be returned
// as `token`, `access_token` or `data.token`.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var body struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
		Data        struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	payload := map[string]string{"username": username, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, pathLogin, payload, &body); err != nil {
		return "", err
	}

	token := firstNonEmpty(body.Token, body.AccessToken, body.Data.Token)
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Candidates is the snapshot fetch.
func (c *Client) Candidates(ctx context.Context) ([]tally.Candidate, error) {
	raw, err := c.do(ctx, http.MethodGet, pathCandidates, "", nil)
	if err != nil {
		return nil, err
	}
	return DecodeCandidates(raw), nil
}

// VoteUpdates is the poll fetch: the snapshot endpoint, read as a batch of
// vote counts.
func (c *Client) VoteUpdates(ctx context.Context) ([]tally.VoteUpdate, error) {
	raw, err := c.do(ctx, http.MethodGet, pathCandidates, "", nil)
	if err != nil {
		return nil, err
	}
	return DecodeUpdates(raw), nil
}

type NewCandidate struct {
	Name      string
	Position  string
	Image     io.Reader
	ImageName string
}

// CreateCandidate posts a multipart form to the primary endpoint and retries
// once on the alternate endpoint. Auth failures are not retried.
func (c *Client) CreateCandidate(ctx context.Context, nc NewCandidate) error {
	if strings.TrimSpace(nc.Name) == "" || strings.TrimSpace(nc.Position) == "" {
		return ErrInvalidCandidate
	}

	var image []byte
	if nc.Image != nil {
		b, err := io.ReadAll(nc.Image)
		if err != nil {
			return fmt.Errorf("read candidate image: %w", err)
		}
		image = b
	}

	err := c.postCandidate(ctx, pathCandidates, nc, image)
	if err == nil || errors.Is(err, ErrUnauthorized) {
		return err
	}
	c.log.Warn("primary candidate endpoint failed, trying alternate", zap.Error(err))
	return c.postCandidate(ctx, pathCandidatesAlt, nc, image)
}

func (c *Client) postCandidate(ctx context.Context, path string, nc NewCandidate, image []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("name", nc.Name); err != nil {
		return fmt.Errorf("backend multipart: %w", err)
	}
	if err := mw.WriteField("position", nc.Position); err != nil {
		return fmt.Errorf("backend multipart: %w", err)
	}
	if image != nil {
		name := nc.ImageName
		if name == "" {
			name = "image"
		}
		fw, err := mw.CreateFormFile("image", name)
		if err != nil {
			return fmt.Errorf("backend multipart: %w", err)
		}
		if _, err := fw.Write(image); err != nil {
			return fmt.Errorf("backend multipart: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("backend multipart: %w", err)
	}

	_, err := c.do(ctx, http.MethodPost, path, mw.FormDataContentType(), &buf)
	return err
}

const defaultVerifyMessage = "Votes verified and synced successfully!"

// VerifyVotes asks the backend to verify and resync its counts.
func (c *Client) VerifyVotes(ctx context.Context) (string, error) {
	var body struct {
		Message string `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodPost, pathVerify, nil, &body); err != nil {
		return "", err
	}
	if body.Message == "" {
		return defaultVerifyMessage, nil
	}
	return body.Message, nil
}

// ResetVotes sets every candidate's count back to zero.
func (c *Client) ResetVotes(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, pathReset, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, result any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("backend marshal: %w", err)
		}
		body = bytes.NewReader(data)
	}

	raw, err := c.do(ctx, method, path, "application/json", body)
	if err != nil {
		return err
	}
	if result == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("backend decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend read body: %w", err)
	}
	c.log.Debug("request done",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("body", loggableBody(path, data)))

	if err := classify(method, path, resp.StatusCode, data); err != nil {
		return nil, err
	}
	return data, nil
}

// classify maps a backend response to an error. Auth failures are detected
// by status or by an error body reading "unauthorized".
func classify(method, path string, status int, data []byte) error {
	if status < 400 {
		return nil
	}

	msg := errorMessage(data)
	if status == http.StatusUnauthorized || status == http.StatusForbidden ||
		strings.EqualFold(strings.TrimSpace(msg), "unauthorized") {
		return fmt.Errorf("backend %s %s: %w", method, path, ErrUnauthorized)
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &StatusError{Method: method, Path: path, Code: status, Msg: msg}
}

func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return firstNonEmpty(body.Error, body.Message)
}

// loggableBody keeps credentials out of the log: the login response carries
// the admin token.
func loggableBody(path string, data []byte) string {
	if path == pathLogin {
		return "<redacted>"
	}
	return truncate(data, 512)
}

func truncate(data []byte, maxLen int) string {
	if len(data) == 0 {
		return "<empty>"
	}
	if len(data) <= maxLen {
		return string(data)
	}
	return string(data[:maxLen]) + "...(truncated)"
}
