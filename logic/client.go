package logic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ImageToText/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL     = "https://api.imagetotext.dev/api"
	DefaultOutputType  = "raw"
	DefaultSettleDelay = 200 * time.Millisecond
	DefaultTimeout     = 5 * time.Minute
)

// Client uploads local images through the pre-signed URL flow and asks the
// service to extract text from them. It holds no mutable state once built and
// is safe for concurrent use.
type Client struct {
	baseURL     string
	authHeader  string
	httpClient  *http.Client
	timeout     time.Duration
	settleDelay time.Duration
	logger      *zap.Logger
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient replaces the default client. WithTimeout is ignored when set.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

// WithSettleDelay sets the flat wait between the upload and the extraction
// request. Zero disables it.
func WithSettleDelay(delay time.Duration) Option {
	return func(c *Client) { c.settleDelay = delay }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	c := &Client{
		baseURL:     DefaultBaseURL,
		authHeader:  "Bearer " + apiKey,
		timeout:     DefaultTimeout,
		settleDelay: DefaultSettleDelay,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}

	return c, nil
}

// Process uploads imagePath and returns the extraction result for it.
// An empty outputType means "raw"; description and outputStructure are only
// sent when non-empty. Every call uploads the file again and is billed again.
func (c *Client) Process(ctx context.Context, imagePath, outputType, description, outputStructure string) (*models.ExtractionResult, error) {
	info, err := os.Stat(imagePath)
	if err != nil || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("process %s: %w", imagePath, ErrFileNotFound)
	}

	if outputType == "" {
		outputType = DefaultOutputType
	}

	structure, err := compactStructure(outputStructure)
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", imagePath, err)
	}

	log := c.logger.With(zap.String("call_id", uuid.NewString()), zap.String("file", imagePath))
	start := time.Now()

	dest, err := c.requestUploadDestination(ctx, imagePath)
	if err != nil {
		log.Warn("upload url request failed", zap.Error(err))
		return nil, fmt.Errorf("process %s: %w", imagePath, err)
	}
	log.Debug("got upload destination", zap.String("key", dest.Key))

	storedURL, err := c.uploadFile(ctx, dest.Url, imagePath)
	if err != nil {
		log.Warn("upload failed", zap.Error(err))
		return nil, fmt.Errorf("process %s: %w", imagePath, err)
	}
	log.Debug("file uploaded", zap.String("url", storedURL))

	if err := c.settle(ctx); err != nil {
		return nil, fmt.Errorf("process %s: %w", imagePath, err)
	}

	result, err := c.submitForExtraction(ctx, storedURL, outputType, description, structure)
	if err != nil {
		log.Warn("extraction failed", zap.Error(err))
		return nil, fmt.Errorf("process %s: %w", imagePath, err)
	}

	log.Info("image processed",
		zap.String("output_type", outputType),
		zap.Int("text_len", len(result.Text)),
		zap.Duration("took", time.Since(start)))

	return result, nil
}

func (c *Client) requestUploadDestination(ctx context.Context, imagePath string) (*models.UploadDestination, error) {
	info, err := os.Stat(imagePath)
	if err != nil {
		return nil, fmt.Errorf("request upload url: %w", err)
	}

	query := url.Values{}
	query.Set("name", filepath.Base(imagePath))
	query.Set("size", strconv.FormatInt(info.Size(), 10))
	endpoint := c.baseURL + "/get-upload-url?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("request upload url: %w", err)
	}

	body, err := c.do(req, PhaseUploadURL)
	if err != nil {
		return nil, fmt.Errorf("request upload url: %w", err)
	}

	var dest models.UploadDestination
	if err := json.Unmarshal(body, &dest); err != nil {
		return nil, fmt.Errorf("request upload url: %w: %w", ErrMalformedResponse, err)
	}
	if dest.Url == "" || dest.Key == "" {
		return nil, fmt.Errorf("request upload url: %w: want url and key, got %s", ErrMissingUploadField, truncate(body, 200))
	}

	return &dest, nil
}

func (c *Client) uploadFile(ctx context.Context, destinationURL, imagePath string) (string, error) {
	file, err := os.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}

	// The multipart envelope is rendered up front so the file itself is
	// streamed from disk and the request still carries an exact length.
	var envelope bytes.Buffer
	writer := multipart.NewWriter(&envelope)
	if _, err := writer.CreatePart(filePartHeader(filepath.Base(imagePath))); err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	head := append([]byte(nil), envelope.Bytes()...)
	envelope.Reset()
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	tail := envelope.Bytes()

	body := io.MultiReader(bytes.NewReader(head), file, bytes.NewReader(tail))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, destinationURL, body)
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	req.ContentLength = int64(len(head)) + info.Size() + int64(len(tail))
	req.Header.Set("Content-Type", writer.FormDataContentType())

	respBody, err := c.do(req, PhaseUpload)
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}

	var uploaded models.UploadResult
	if err := json.Unmarshal(respBody, &uploaded); err != nil {
		return "", fmt.Errorf("upload file: %w: %w", ErrMalformedResponse, err)
	}
	if uploaded.UfsUrl == "" {
		return "", fmt.Errorf("upload file: %w: want ufsUrl, got %s", ErrMissingUploadField, truncate(respBody, 200))
	}

	return uploaded.UfsUrl, nil
}

func (c *Client) submitForExtraction(ctx context.Context, storedURL, outputType, description, outputStructure string) (*models.ExtractionResult, error) {
	structure, err := compactStructure(outputStructure)
	if err != nil {
		return nil, fmt.Errorf("submit for extraction: %w", err)
	}

	payload, err := json.Marshal(models.ExtractionRequest{
		ImageUrl:        storedURL,
		OutputType:      outputType,
		Description:     description,
		OutputStructure: structure,
	})
	if err != nil {
		return nil, fmt.Errorf("submit for extraction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/image-to-text", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("submit for extraction: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, PhaseExtraction)
	if err != nil {
		return nil, fmt.Errorf("submit for extraction: %w", err)
	}

	var result models.ExtractionResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("submit for extraction: %w: %w", ErrMalformedResponse, err)
	}
	if result.ExplicitFailure() {
		return nil, fmt.Errorf("submit for extraction: %w", &ProcessingError{Result: &result, Body: string(body)})
	}

	return &result, nil
}

func (c *Client) do(req *http.Request, phase string) ([]byte, error) {
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Phase: phase, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Phase: phase, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Phase: phase, StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

func (c *Client) settle(ctx context.Context) error {
	if c.settleDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(c.settleDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func filePartHeader(fileName string) textproto.MIMEHeader {
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(fileName)))
	h.Set("Content-Type", contentType)
	return h
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
