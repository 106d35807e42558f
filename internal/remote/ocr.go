package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Prompts sent with every recognition request
const (
	DefaultOCRModel        = "gemini-2.5-flash"
	DefaultOCRSystemPrompt = "Sos un OCR. Respondé breve."
	DefaultOCRUserPrompt   = "Buscá un alias CBU/CVU en la imagen (formato palabra.palabra, 6-20 caracteres, solo letras/números/puntos). Si lo encontrás, respondé SOLO el alias. Si no hay alias, respondé NO_ALIAS."
)

const (
	minAliasLength = 6
	maxAliasLength = 20
)

var (
	aliasPattern    = regexp.MustCompile(`(?i)[a-z][a-z0-9]*(\.[a-z0-9]+)+`)
	nonAliasPattern = regexp.MustCompile(`[^a-z0-9.]`)

	negativeAnswers = []string{"no_alias", "no alias", "no detectado", "no puedo", "no veo", "no hay"}
)

// OCRConfig configures the recognition proxy
type OCRConfig struct {
	URL          string
	Model        string
	Temperature  float64
	SystemPrompt string
	UserPrompt   string
	JPEGQuality  int
	Timeout      time.Duration
}

// Classification is the interpretation of a recognition answer
type Classification struct {
	Raw   string `json:"raw"`
	Alias string `json:"alias,omitempty"`
	Found bool   `json:"found"`
}

// OCRClient sends cropped frames to the remote recognition model
type OCRClient struct {
	cfg    OCRConfig
	client *http.Client
	tokens TokenSource
}

// NewOCRClient creates a client; client may be nil
func NewOCRClient(cfg OCRConfig, tokens TokenSource, client *http.Client) *OCRClient {
	if cfg.Model == "" {
		cfg.Model = DefaultOCRModel
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultOCRSystemPrompt
	}
	if cfg.UserPrompt == "" {
		cfg.UserPrompt = DefaultOCRUserPrompt
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 60
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &OCRClient{cfg: cfg, client: defaultClient(client, 0), tokens: tokens}
}

// Classify asks the model for an alias written in img
func (c *OCRClient) Classify(ctx context.Context, img image.Image) (Classification, error) {
	var photo bytes.Buffer
	if err := jpeg.Encode(&photo, img, &jpeg.Options{Quality: c.cfg.JPEGQuality}); err != nil {
		return Classification{}, fmt.Errorf("failed to encode photo: %w", err)
	}

	body, contentType, err := c.multipartBody(photo.Bytes())
	if err != nil {
		return Classification{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := sendAuthorized(ctx, c.client, c.tokens, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return Classification{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Classification{}, &StatusError{Op: "ocr", StatusCode: resp.StatusCode, Body: readBody(resp)}
	}
	defer resp.Body.Close()

	var answer struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return Classification{}, fmt.Errorf("invalid ocr response: %w", err)
	}

	return Interpret(answer.Response), nil
}

func (c *OCRClient) multipartBody(photo []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"model", c.cfg.Model},
		{"temperature", strconv.FormatFloat(c.cfg.Temperature, 'f', 1, 64)},
		{"system_prompt", c.cfg.SystemPrompt},
		{"user_prompt", c.cfg.UserPrompt},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="files"; filename="photo.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(photo); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// Interpret turns a raw model answer into a classification
func Interpret(raw string) Classification {
	result := Classification{Raw: raw}
	if IsNegativeAnswer(raw) {
		return result
	}

	alias := ExtractAlias(raw)
	if len(alias) >= minAliasLength && !nonAliasPattern.MatchString(alias) {
		result.Alias = alias
		result.Found = true
	}
	return result
}

// IsNegativeAnswer reports whether the model said there is no alias
func IsNegativeAnswer(raw string) bool {
	lower := strings.ToLower(raw)
	for _, marker := range negativeAnswers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ExtractAlias pulls an alias out of free text. The first word.word match of
// valid length wins; otherwise the text is reduced to alias characters.
func ExtractAlias(text string) string {
	if match := aliasPattern.FindString(text); match != "" {
		alias := strings.ToLower(match)
		if len(alias) >= minAliasLength && len(alias) <= maxAliasLength {
			return alias
		}
	}

	lower := strings.ToLower(text)
	cleaned := nonAliasPattern.ReplaceAllString(lower, "")
	if cleaned == "" {
		return lower
	}
	return cleaned
}
