package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/invoice-vision/internal/application/port"
	"github.com/garyjia/invoice-vision/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.NRGBA{R: 200, A: 128})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func candidateBody(text string) string {
	resp := map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

type recordedCall struct {
	Path string
	Key  string
	Body generateRequest
}

// fakeEndpoint answers each call with the next handler result for the request path
type fakeEndpoint struct {
	mu      sync.Mutex
	calls   []recordedCall
	respond func(path string, n int) (int, string)
}

func (f *fakeEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Path: r.URL.Path, Key: r.URL.Query().Get("key"), Body: body})
	n := 0
	for _, c := range f.calls {
		if c.Path == r.URL.Path {
			n++
		}
	}
	f.mu.Unlock()

	status, payload := f.respond(r.URL.Path, n)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}

func (f *fakeEndpoint) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Path)
	}
	return out
}

func newTestClient(t *testing.T, f *fakeEndpoint) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:      srv.URL,
		APIKey:       "test-key",
		Model:        "gemini-1.5-flash",
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		Timeout:      2 * time.Second,
		Temperature:  0.1,
	}, zap.NewNop())
}

func TestChain(t *testing.T) {
	targets := Chain([]string{"v1beta", "v1"}, "models/gemini-pro")
	assert.Equal(t, []Target{
		{Version: "v1beta", ModelPath: "gemini-pro"},
		{Version: "v1beta", ModelPath: "models/gemini-pro"},
		{Version: "v1", ModelPath: "gemini-pro"},
		{Version: "v1", ModelPath: "models/gemini-pro"},
	}, targets)
}

func TestClient_Recognize_Success(t *testing.T) {
	f := &fakeEndpoint{respond: func(path string, n int) (int, string) {
		return http.StatusOK, candidateBody("```json\n{\"date\":\"113/05/01\",\"invoice_no\":\"AB12345678\",\"total\":\"1,050\"}\n```")
	}}
	client := newTestClient(t, f)

	rec, err := client.Recognize(context.Background(), port.VisionRequest{Image: testPNG(t, 40, 30), FileName: "a.png"})
	require.NoError(t, err)

	assert.Equal(t, "v1beta", rec.Version)
	assert.Equal(t, "gemini-1.5-flash", rec.Model)
	assert.Empty(t, rec.Trail)
	assert.Equal(t, "113/05/01", rec.Fields[entity.FieldDate])
	assert.Equal(t, "AB12345678", rec.Fields[entity.FieldInvoiceNumber])
	assert.Equal(t, "1,050", rec.Fields[entity.FieldTotal])

	require.Len(t, f.calls, 1)
	call := f.calls[0]
	assert.Equal(t, "/v1beta/gemini-1.5-flash:generateContent", call.Path)
	assert.Equal(t, "test-key", call.Key)
	require.Len(t, call.Body.Contents, 1)
	require.Len(t, call.Body.Contents[0].Parts, 2)
	assert.Contains(t, call.Body.Contents[0].Parts[0].Text, "JSON")
	require.NotNil(t, call.Body.Contents[0].Parts[1].InlineData)
	assert.Equal(t, "image/jpeg", call.Body.Contents[0].Parts[1].InlineData.MimeType)
	assert.InDelta(t, 0.1, call.Body.GenerationConfig.Temperature, 1e-6)
	assert.Equal(t, 1024, call.Body.GenerationConfig.MaxOutputTokens)
}

func TestClient_Recognize_AllCombinationsNotFound(t *testing.T) {
	f := &fakeEndpoint{respond: func(path string, n int) (int, string) {
		return http.StatusNotFound, `{"error":{"code":404,"message":"model not found"}}`
	}}
	client := newTestClient(t, f)

	rec, err := client.Recognize(context.Background(), port.VisionRequest{Image: testPNG(t, 10, 10)})
	assert.Nil(t, rec)
	require.Error(t, err)

	var recErr *RecognitionError
	require.ErrorAs(t, err, &recErr)
	require.Len(t, recErr.Attempts, 4)
	for _, a := range recErr.Attempts {
		assert.Equal(t, KindHTTPStatus, a.Kind)
		assert.Equal(t, http.StatusNotFound, a.Status)
	}

	msg := err.Error()
	for _, target := range []string{
		"v1beta/gemini-1.5-flash:", "v1beta/models/gemini-1.5-flash:",
		"v1/gemini-1.5-flash:", "v1/models/gemini-1.5-flash:",
	} {
		assert.Contains(t, msg, target)
	}
	assert.NotContains(t, msg, "test-key")
	// 404 is not transient, one call per combination
	assert.Len(t, f.paths(), 4)
	assert.False(t, errors.Is(err, entity.ErrUnauthorized))
}

func TestClient_Recognize_UnauthorizedShortCircuits(t *testing.T) {
	f := &fakeEndpoint{respond: func(path string, n int) (int, string) {
		return http.StatusForbidden, `{"error":{"status":"PERMISSION_DENIED"}}`
	}}
	client := newTestClient(t, f)

	_, err := client.Recognize(context.Background(), port.VisionRequest{Image: testPNG(t, 10, 10)})
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrUnauthorized)
	assert.Len(t, f.paths(), 1)
}

func TestClient_Recognize_InvalidKeyBody(t *testing.T) {
	f := &fakeEndpoint{respond: func(path string, n int) (int, string) {
		return http.StatusBadRequest, `{"error":{"message":"API key not valid. Please pass a valid API key.","details":[{"reason":"API_KEY_INVALID"}]}}`
	}}
	client := newTestClient(t, f)

	_, err := client.Recognize(context.Background(), port.VisionRequest{Image: testPNG(t, 10, 10)})
	assert.ErrorIs(t, err, entity.ErrUnauthorized)
	assert.Len(t, f.paths(), 1)
}

func TestClient_Recognize_RetriesTransientThenSucceeds(t *testing.T) {
	f := &fakeEndpoint{respond: func(path string, n int) (int, string) {
		if n <= 2 {
			return http.StatusServiceUnavailable, `overloaded`
		}
		return http.StatusOK, candidateBody(`{"invoice_number":"ZP12345678"}`)
	}}
	client := newTestClient(t, f)

	rec, err := client.Recognize(context.Background(), port.VisionRequest{Image: testPNG(t, 10, 10)})
	require.NoError(t, err)
	assert.Equal(t, "ZP12345678", rec.Fields[entity.FieldInvoiceNumber])
	assert.Equal(t, "gemini-1.5-flash", rec.Model)
	assert.Len(t, f.paths(), 3)
}

func TestClient_Recognize_ExhaustedRetriesAdvance(t *testing.T) {
	f := &fakeEndpoint{respond: func(path string, n int) (int, string) {
		if strings.Contains(path, "/models/") {
			return http.StatusOK, candidateBody(`{"total": 10}`)
		}
		return http.StatusTooManyRequests, `slow down`
	}}
	client := newTestClient(t, f)

	rec, err := client.Recognize(context.Background(), port.VisionRequest{Image: testPNG(t, 10, 10)})
	require.NoError(t, err)
	assert.Equal(t, "models/gemini-1.5-flash", rec.Model)
	require.Len(t, rec.Trail, 1)
	assert.Contains(t, rec.Trail[0], "429")
	// one call plus two retries on the bare path, then the prefixed path
	assert.Len(t, f.paths(), 4)
}

func TestClient_Recognize_UnparsableOutputAdvances(t *testing.T) {
	f := &fakeEndpoint{respond: func(path string, n int) (int, string) {
		if strings.HasPrefix(path, "/v1beta/") {
			return http.StatusOK, candidateBody("Sorry, I cannot read this image.")
		}
		return http.StatusOK, candidateBody(`Here you go: {"seller_name": "全聯"} thanks`)
	}}
	client := newTestClient(t, f)

	rec, err := client.Recognize(context.Background(), port.VisionRequest{Image: testPNG(t, 10, 10)})
	require.NoError(t, err)
	assert.Equal(t, "v1", rec.Version)
	assert.Equal(t, "全聯", rec.Fields[entity.FieldSellerName])
	require.Len(t, rec.Trail, 2)
	assert.Contains(t, rec.Trail[0], string(KindJSONRecovery))
}

func TestClient_Recognize_NoCandidates(t *testing.T) {
	f := &fakeEndpoint{respond: func(path string, n int) (int, string) {
		return http.StatusOK, `{"candidates":[]}`
	}}
	client := newTestClient(t, f)

	_, err := client.Recognize(context.Background(), port.VisionRequest{Image: testPNG(t, 10, 10)})
	var recErr *RecognitionError
	require.ErrorAs(t, err, &recErr)
	require.Len(t, recErr.Attempts, 4)
	assert.Equal(t, KindNoCandidates, recErr.Attempts[0].Kind)
}

func TestClient_Recognize_MissingAPIKey(t *testing.T) {
	f := &fakeEndpoint{respond: func(path string, n int) (int, string) {
		return http.StatusOK, candidateBody(`{}`)
	}}
	srv := httptest.NewServer(f)
	defer srv.Close()
	client := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())

	_, err := client.Recognize(context.Background(), port.VisionRequest{Image: testPNG(t, 10, 10)})
	assert.ErrorIs(t, err, entity.ErrMissingAPIKey)
	assert.Empty(t, f.paths())
}

func TestClient_Recognize_RequestOverrides(t *testing.T) {
	f := &fakeEndpoint{respond: func(path string, n int) (int, string) {
		return http.StatusOK, candidateBody(`{"date":"2024/01/01"}`)
	}}
	client := newTestClient(t, f)

	_, err := client.Recognize(context.Background(), port.VisionRequest{
		Image:  testPNG(t, 10, 10),
		Model:  "gemini-2.0-flash",
		APIKey: "user-key",
	})
	require.NoError(t, err)
	require.Len(t, f.calls, 1)
	assert.Equal(t, "/v1beta/gemini-2.0-flash:generateContent", f.calls[0].Path)
	assert.Equal(t, "user-key", f.calls[0].Key)
}

func TestClient_Recognize_CanceledContext(t *testing.T) {
	f := &fakeEndpoint{respond: func(path string, n int) (int, string) {
		return http.StatusOK, candidateBody(`{}`)
	}}
	client := newTestClient(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Recognize(ctx, port.VisionRequest{Image: testPNG(t, 10, 10)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.paths())
}

func TestClient_Recognize_UndecodableImage(t *testing.T) {
	f := &fakeEndpoint{respond: func(path string, n int) (int, string) {
		return http.StatusOK, candidateBody(`{}`)
	}}
	client := newTestClient(t, f)

	_, err := client.Recognize(context.Background(), port.VisionRequest{Image: []byte("not an image")})
	assert.Error(t, err)
	assert.Empty(t, f.paths())
}
