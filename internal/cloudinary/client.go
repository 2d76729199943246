package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MaxFileSize is the largest KTM scan we accept.
const MaxFileSize = 5 << 20

var (
	ErrEmptyFile       = errors.New("file kosong")
	ErrFileTooLarge    = errors.New("ukuran file maksimal 5MB")
	ErrUnsupportedType = errors.New("file harus berupa JPG, PNG atau PDF")
	ErrBadEncoding     = errors.New("data harus berupa base64 atau data URL")
)

var allowedTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

// CheckFile sniffs the content type of an upload and enforces size and type
// limits.
func CheckFile(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyFile
	}
	if len(data) > MaxFileSize {
		return "", ErrFileTooLarge
	}
	ct := http.DetectContentType(data)
	if !allowedTypes[ct] {
		return ct, ErrUnsupportedType
	}
	return ct, nil
}

// DecodeDataURL returns the bytes of a "data:<type>;base64,<payload>" string
// or of a bare base64 payload. The declared type is ignored; CheckFile sniffs
// the real one.
func DecodeDataURL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		meta, payload, ok := strings.Cut(s, ",")
		if !ok || !strings.HasSuffix(meta, ";base64") {
			return nil, ErrBadEncoding
		}
		s = payload
	}
	if len(s) > base64.StdEncoding.EncodedLen(MaxFileSize) {
		return nil, ErrFileTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrBadEncoding
	}
	return data, nil
}

// Client uploads files to Cloudinary using their REST API.
type Client struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	BaseURL   string
	HTTP      *http.Client
	now       func() time.Time
}

// New creates a Cloudinary client.
func New(cloudName, apiKey, apiSecret, folder string) *Client {
	return &Client{
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		Folder:    folder,
		BaseURL:   "https://api.cloudinary.com",
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		now:       time.Now,
	}
}

// UploadResult holds the response from Cloudinary after a successful upload.
type UploadResult struct {
	PublicID     string `json:"public_id"`
	SecureURL    string `json:"secure_url"`
	URL          string `json:"url"`
	Format       string `json:"format"`
	ResourceType string `json:"resource_type"`
	Bytes        int    `json:"bytes"`
}

// UploadBase64 uploads a data URL ("data:image/jpeg;base64,...") or raw
// base64 payload.
func (c *Client) UploadBase64(ctx context.Context, data string) (*UploadResult, error) {
	return c.upload(ctx, func(w *multipart.Writer) error {
		return w.WriteField("file", data)
	})
}

// UploadBytes uploads raw file bytes. Images and PDFs are both accepted.
func (c *Client) UploadBytes(ctx context.Context, data []byte, filename string) (*UploadResult, error) {
	return c.upload(ctx, func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			return fmt.Errorf("cloudinary: create form file failed: %w", err)
		}
		if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("cloudinary: write file failed: %w", err)
		}
		return nil
	})
}

func (c *Client) upload(ctx context.Context, writeFile func(*multipart.Writer) error) (*UploadResult, error) {
	params := map[string]string{
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
		"api_key":   c.APIKey,
	}
	if c.Folder != "" {
		params["folder"] = c.Folder
	}
	params["signature"] = c.sign(params)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		_ = w.WriteField(k, v)
	}
	if err := writeFile(w); err != nil {
		return nil, err
	}
	w.Close()

	url := fmt.Sprintf("%s/v1_1/%s/auto/upload", strings.TrimRight(c.BaseURL, "/"), c.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cloudinary: upload failed (%d): %s", resp.StatusCode, string(body))
	}

	var result UploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("cloudinary: decode response failed: %w", err)
	}
	return &result, nil
}

// sign computes the Cloudinary API signature from the given params.
// api_key and file are excluded from the signature.
func (c *Client) sign(params map[string]string) string {
	excludeKeys := map[string]bool{"api_key": true, "file": true, "resource_type": true}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !excludeKeys[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)

	payload := strings.Join(pairs, "&") + c.APISecret
	h := sha1.New()
	h.Write([]byte(payload))
	return fmt.Sprintf("%x", h.Sum(nil))
}
