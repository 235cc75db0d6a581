package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"careerdesk/internal/domain"
)

// ErrNoCredential is returned when an authenticated operation runs without a
// stored bearer credential. It is terminal for the operation: nothing is
// retried and nothing is silently skipped.
var ErrNoCredential = errors.New("backend: no bearer credential available")

// TokenSource supplies the bearer credential attached to every request.
// The cache store satisfies this interface.
type TokenSource interface {
	AccessToken() (string, error)
}

// HTTPStatusError captures non-2xx backend responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("backend: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Session is a backend interview session as returned by the listing and
// start endpoints.
type Session struct {
	ID         string
	TargetRole string
	Preview    string
	UpdatedAt  time.Time
	Messages   []domain.Message
}

// SelfAnalysisRequest carries the inputs for a self-analysis run. JD is
// optional; Resume is required.
type SelfAnalysisRequest struct {
	ResumeFilename string
	Resume         io.Reader
	JDFilename     string
	JD             io.Reader
	TargetRole     string
}

// Client talks to the recruiting backend's REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a gateway Client reading credentials from ts.
func NewClient(ts TokenSource, opts ...Option) (*Client, error) {
	if ts == nil {
		return nil, errors.New("backend: token source must not be nil")
	}
	c := &Client{
		baseURL:    "http://localhost:8000",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     ts,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")
	return c, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// bearer resolves the credential for an authenticated request. A missing or
// unreadable credential maps to ErrNoCredential.
func (c *Client) bearer() (string, error) {
	token, err := c.tokens.AccessToken()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCredential, err)
	}
	if strings.TrimSpace(token) == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

// ListSessions returns the caller's interview sessions. Unlike every other
// operation, a missing credential degrades to an empty listing.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	token, err := c.bearer()
	if err != nil {
		if errors.Is(err, ErrNoCredential) {
			return []Session{}, nil
		}
		return nil, err
	}

	raw, err := c.doRequest(ctx, http.MethodGet, "/interview/list", token, "", nil)
	if err != nil {
		return nil, fmt.Errorf("backend: list sessions: %w", err)
	}
	return decodeSessions(raw), nil
}

// GetSession fetches the full message history for one session.
func (c *Client) GetSession(ctx context.Context, sessionID string) ([]domain.Message, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("backend: session id must not be empty")
	}
	token, err := c.bearer()
	if err != nil {
		return nil, err
	}

	raw, err := c.doRequest(ctx, http.MethodGet, "/interview/"+url.PathEscape(sessionID), token, "", nil)
	if err != nil {
		return nil, fmt.Errorf("backend: get session %s: %w", sessionID, err)
	}
	return decodeSessionMessages(raw), nil
}

// StartSession creates a new interview session for the target role.
func (c *Client) StartSession(ctx context.Context, targetRole string) (Session, error) {
	if strings.TrimSpace(targetRole) == "" {
		return Session{}, errors.New("backend: target role must not be empty")
	}
	token, err := c.bearer()
	if err != nil {
		return Session{}, err
	}

	form := url.Values{}
	form.Set("target_role", targetRole)
	raw, err := c.doRequest(ctx, http.MethodPost, "/interview/start", token,
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return Session{}, fmt.Errorf("backend: start session: %w", err)
	}
	return decodeStartedSession(raw), nil
}

// SendMessage posts the user's text to a session and returns the bot reply.
func (c *Client) SendMessage(ctx context.Context, sessionID, text string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", errors.New("backend: session id must not be empty")
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("backend: message text must not be empty")
	}
	token, err := c.bearer()
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("text", text)
	raw, err := c.doRequest(ctx, http.MethodPost, "/interview/"+url.PathEscape(sessionID)+"/message", token,
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("backend: send message: %w", err)
	}
	return decodeReply(raw), nil
}

// DeleteSession removes a session server-side.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("backend: session id must not be empty")
	}
	token, err := c.bearer()
	if err != nil {
		return err
	}

	if _, err := c.doRequest(ctx, http.MethodDelete, "/interview/"+url.PathEscape(sessionID), token, "", nil); err != nil {
		return fmt.Errorf("backend: delete session %s: %w", sessionID, err)
	}
	return nil
}

// UploadResume uploads a resume file and returns the stored artifact
// reference.
func (c *Client) UploadResume(ctx context.Context, filename string, file io.Reader, size int64) (domain.ResumeArtifact, error) {
	if strings.TrimSpace(filename) == "" || file == nil {
		return domain.ResumeArtifact{}, errors.New("backend: resume file is required")
	}
	token, err := c.bearer()
	if err != nil {
		return domain.ResumeArtifact{}, err
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return domain.ResumeArtifact{}, fmt.Errorf("backend: build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return domain.ResumeArtifact{}, fmt.Errorf("backend: read resume file: %w", err)
	}
	if err := w.Close(); err != nil {
		return domain.ResumeArtifact{}, fmt.Errorf("backend: finalize upload: %w", err)
	}

	raw, err := c.doRequest(ctx, http.MethodPost, "/upload/profile/upload_resume", token, w.FormDataContentType(), &body)
	if err != nil {
		return domain.ResumeArtifact{}, fmt.Errorf("backend: upload resume: %w", err)
	}
	return decodeResumeArtifact(raw, filename, size), nil
}

// SelfAnalysis submits a resume (and optionally a job description) for
// analysis against a target role.
func (c *Client) SelfAnalysis(ctx context.Context, req SelfAnalysisRequest) (domain.AnalysisReport, error) {
	if strings.TrimSpace(req.ResumeFilename) == "" || req.Resume == nil {
		return domain.AnalysisReport{}, errors.New("backend: resume file is required")
	}
	token, err := c.bearer()
	if err != nil {
		return domain.AnalysisReport{}, err
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", req.ResumeFilename)
	if err != nil {
		return domain.AnalysisReport{}, fmt.Errorf("backend: build analysis request: %w", err)
	}
	if _, err := io.Copy(part, req.Resume); err != nil {
		return domain.AnalysisReport{}, fmt.Errorf("backend: read resume file: %w", err)
	}
	if req.JD != nil && req.JDFilename != "" {
		jdPart, err := w.CreateFormFile("jd_file", req.JDFilename)
		if err != nil {
			return domain.AnalysisReport{}, fmt.Errorf("backend: build analysis request: %w", err)
		}
		if _, err := io.Copy(jdPart, req.JD); err != nil {
			return domain.AnalysisReport{}, fmt.Errorf("backend: read jd file: %w", err)
		}
	}
	if req.TargetRole != "" {
		if err := w.WriteField("target_role", req.TargetRole); err != nil {
			return domain.AnalysisReport{}, fmt.Errorf("backend: build analysis request: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return domain.AnalysisReport{}, fmt.Errorf("backend: finalize analysis request: %w", err)
	}

	raw, err := c.doRequest(ctx, http.MethodPost, "/api/ai/self_analysis", token, w.FormDataContentType(), &body)
	if err != nil {
		return domain.AnalysisReport{}, fmt.Errorf("backend: self analysis: %w", err)
	}
	return decodeAnalysisReport(raw, req.TargetRole), nil
}

func (c *Client) doRequest(ctx context.Context, method, path, token, contentType string, body io.Reader) ([]byte, error) {
	reqURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        reqURL,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
