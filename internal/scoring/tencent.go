package scoring

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

const (
	soeService   = "soe"
	soeVersion   = "2018-07-24"
	soeAction    = "KeywordEvaluate"
	soeAlgorithm = "TC3-HMAC-SHA256"
)

type SOEConfig struct {
	AppID     string `toml:"app_id"`
	SecretID  string `toml:"secret_id"`
	SecretKey string `toml:"secret_key"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
}

// SOEEvaluator scores utterances through the Tencent Cloud Smart Oral
// Evaluation API, with TC3-HMAC-SHA256 request signing.
type SOEEvaluator struct {
	config SOEConfig
	client *http.Client
}

func NewSOEEvaluator(config SOEConfig) *SOEEvaluator {
	return &SOEEvaluator{
		config: config,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type soeRequest struct {
	SessionID       string  `json:"SessionId"`
	IsEnd           int     `json:"IsEnd"`
	SeqID           int     `json:"SeqId"`
	VoiceFileType   int     `json:"VoiceFileType"`
	VoiceEncodeType int     `json:"VoiceEncodeType"`
	UserVoiceData   string  `json:"UserVoiceData"`
	Text            string  `json:"Text"`
	EvalMode        int     `json:"EvalMode"`
	WorkMode        int     `json:"WorkMode"`
	ScoreCoeff      float64 `json:"ScoreCoeff"`
}

type soeResponse struct {
	Response struct {
		Error *struct {
			Code    string `json:"Code"`
			Message string `json:"Message"`
		} `json:"Error"`
		PronAccuracy   float64 `json:"PronAccuracy"`
		PronFluency    float64 `json:"PronFluency"`
		PronCompletion float64 `json:"PronCompletion"`
		Keywords       []struct {
			PronAccuracy   float64 `json:"PronAccuracy"`
			PronFluency    float64 `json:"PronFluency"`
			PronCompletion float64 `json:"PronCompletion"`
		} `json:"Keywords"`
	} `json:"Response"`
}

func (e *SOEEvaluator) Evaluate(ctx context.Context, audio []byte, text, sessionID string) (*Evaluation, error) {
	payload, err := json.Marshal(soeRequest{
		SessionID:       sessionID,
		IsEnd:           1,
		SeqID:           1,
		VoiceFileType:   3, // wav
		VoiceEncodeType: 1, // pcm
		UserVoiceData:   base64.StdEncoding.EncodeToString(audio),
		Text:            text,
		EvalMode:        0,
		WorkMode:        0,
		ScoreCoeff:      1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal soe request: %w", err)
	}

	timestamp := time.Now().Unix()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://"+e.config.Endpoint+"/", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build soe request: %w", err)
	}
	for name, value := range e.signedHeaders(timestamp, payload) {
		req.Header.Set(name, value)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("soe request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read soe response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("soe returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed soeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode soe response: %w", err)
	}
	if parsed.Response.Error != nil {
		return nil, fmt.Errorf("soe error %s: %s", parsed.Response.Error.Code, parsed.Response.Error.Message)
	}

	accuracy := parsed.Response.PronAccuracy
	fluency := parsed.Response.PronFluency
	completion := parsed.Response.PronCompletion
	if len(parsed.Response.Keywords) > 0 {
		kw := parsed.Response.Keywords[0]
		accuracy = kw.PronAccuracy
		fluency = kw.PronFluency
		completion = kw.PronCompletion
	}

	score := int(math.Round(accuracy))
	return &Evaluation{
		Score:     score,
		Accuracy:  accuracy,
		Fluency:   fluency,
		Integrity: completion * 100,
		Feedback:  feedbackForScore(score),
	}, nil
}

// signedHeaders builds the TC3-HMAC-SHA256 header set for one request.
// Derivation: secret -> date key -> service key -> signing key, then the
// signature over algorithm/timestamp/scope/hashed canonical request.
func (e *SOEEvaluator) signedHeaders(timestamp int64, payload []byte) map[string]string {
	date := time.Unix(timestamp, 0).UTC().Format("2006-01-02")

	hashedPayload := sha256Hex(payload)
	canonicalRequest := "POST\n/\n\n" +
		"content-type:application/json\n" +
		"host:" + e.config.Endpoint + "\n\n" +
		"content-type;host\n" +
		hashedPayload

	credentialScope := date + "/" + soeService + "/tc3_request"
	stringToSign := soeAlgorithm + "\n" +
		fmt.Sprintf("%d", timestamp) + "\n" +
		credentialScope + "\n" +
		sha256Hex([]byte(canonicalRequest))

	secretDate := hmacSHA256([]byte("TC3"+e.config.SecretKey), date)
	secretService := hmacSHA256(secretDate, soeService)
	secretSigning := hmacSHA256(secretService, "tc3_request")
	signature := hex.EncodeToString(hmacSHA256(secretSigning, stringToSign))

	authorization := soeAlgorithm +
		" Credential=" + e.config.SecretID + "/" + credentialScope +
		", SignedHeaders=content-type;host" +
		", Signature=" + signature

	return map[string]string{
		"Authorization":  authorization,
		"Content-Type":   "application/json",
		"Host":           e.config.Endpoint,
		"X-TC-Action":    soeAction,
		"X-TC-Timestamp": fmt.Sprintf("%d", timestamp),
		"X-TC-Version":   soeVersion,
		"X-TC-Region":    e.config.Region,
	}
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
