package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSOEConfig() SOEConfig {
	return SOEConfig{
		AppID:     "12345",
		SecretID:  "AKIDexample",
		SecretKey: "secretkeyexample",
		Region:    "ap-guangzhou",
		Endpoint:  "soe.tencentcloudapi.com",
	}
}

// roundTripFunc lets a test stand in for the vendor endpoint.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, payload interface{}) *http.Response {
	body, _ := json.Marshal(payload)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestSignedHeaders(t *testing.T) {
	e := NewSOEEvaluator(testSOEConfig())
	payload := []byte(`{"Text":"hello"}`)
	timestamp := int64(1756700000)

	headers := e.signedHeaders(timestamp, payload)

	t.Run("required headers present", func(t *testing.T) {
		assert.Equal(t, "application/json", headers["Content-Type"])
		assert.Equal(t, "soe.tencentcloudapi.com", headers["Host"])
		assert.Equal(t, "KeywordEvaluate", headers["X-TC-Action"])
		assert.Equal(t, "2018-07-24", headers["X-TC-Version"])
		assert.Equal(t, "ap-guangzhou", headers["X-TC-Region"])
		assert.Equal(t, "1756700000", headers["X-TC-Timestamp"])
	})

	t.Run("authorization structure", func(t *testing.T) {
		pattern := regexp.MustCompile(
			`^TC3-HMAC-SHA256 Credential=AKIDexample/\d{4}-\d{2}-\d{2}/soe/tc3_request, SignedHeaders=content-type;host, Signature=[0-9a-f]{64}$`,
		)
		assert.Regexp(t, pattern, headers["Authorization"])
	})

	t.Run("signature is deterministic", func(t *testing.T) {
		again := e.signedHeaders(timestamp, payload)
		assert.Equal(t, headers["Authorization"], again["Authorization"])
	})

	t.Run("signature depends on payload", func(t *testing.T) {
		other := e.signedHeaders(timestamp, []byte(`{"Text":"goodbye"}`))
		assert.NotEqual(t, headers["Authorization"], other["Authorization"])
	})

	t.Run("signature depends on secret", func(t *testing.T) {
		cfg := testSOEConfig()
		cfg.SecretKey = "differentsecret"
		other := NewSOEEvaluator(cfg).signedHeaders(timestamp, payload)
		assert.NotEqual(t, headers["Authorization"], other["Authorization"])
	})
}

func TestSOEEvaluate(t *testing.T) {
	e := NewSOEEvaluator(testSOEConfig())

	var captured soeRequest
	e.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))

		assert.Equal(t, http.MethodPost, r.Method)
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "KeywordEvaluate", r.Header.Get("X-TC-Action"))

		return jsonResponse(http.StatusOK, map[string]interface{}{
			"Response": map[string]interface{}{
				"Keywords": []map[string]interface{}{
					{"PronAccuracy": 87.5, "PronFluency": 91.0, "PronCompletion": 0.95},
				},
			},
		}), nil
	})}

	eval, err := e.Evaluate(context.Background(), []byte("wav data"), "Good morning", "sess-42")
	require.NoError(t, err)

	assert.Equal(t, 88, eval.Score)
	assert.Equal(t, 87.5, eval.Accuracy)
	assert.Equal(t, 91.0, eval.Fluency)
	assert.InDelta(t, 95.0, eval.Integrity, 0.01)
	assert.NotEmpty(t, eval.Feedback)

	assert.Equal(t, "sess-42", captured.SessionID)
	assert.Equal(t, "Good morning", captured.Text)
	assert.Equal(t, 1, captured.IsEnd)
	assert.NotEmpty(t, captured.UserVoiceData, "audio must be base64 encoded into the payload")
}

func TestSOEEvaluateVendorError(t *testing.T) {
	e := NewSOEEvaluator(testSOEConfig())

	e.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, map[string]interface{}{
			"Response": map[string]interface{}{
				"Error": map[string]interface{}{
					"Code":    "AuthFailure.SignatureFailure",
					"Message": "The provided credentials could not be validated",
				},
			},
		}), nil
	})}

	_, err := e.Evaluate(context.Background(), []byte("wav data"), "Good morning", "sess-43")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AuthFailure.SignatureFailure")
}

func TestSOEEvaluateHTTPError(t *testing.T) {
	e := NewSOEEvaluator(testSOEConfig())

	e.client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Body:       io.NopCloser(bytes.NewReader([]byte("upstream sad"))),
		}, nil
	})}

	_, err := e.Evaluate(context.Background(), []byte("wav data"), "Good morning", "sess-44")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
