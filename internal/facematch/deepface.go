package facematch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kozaktomas/face-triage/internal/constants"
	"github.com/kozaktomas/face-triage/internal/fingerprint"
)

// DeepFaceVerifier calls the /verify endpoint of a DeepFace API server.
type DeepFaceVerifier struct {
	baseURL string
	client  *http.Client
}

func NewDeepFaceVerifier(baseURL string, timeout time.Duration) *DeepFaceVerifier {
	if baseURL == "" {
		baseURL = constants.DefaultDeepFaceURL
	}
	return &DeepFaceVerifier{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type deepFaceRequest struct {
	Img1             string `json:"img1"`
	Img2             string `json:"img2"`
	ModelName        string `json:"model_name,omitempty"`
	DetectorBackend  string `json:"detector_backend,omitempty"`
	Align            bool   `json:"align"`
	EnforceDetection bool   `json:"enforce_detection"`
}

type deepFaceResponse struct {
	Verified  bool     `json:"verified"`
	Distance  *float64 `json:"distance"`
	Threshold float64  `json:"threshold"`
	Model     string   `json:"model"`
	Error     string   `json:"error"`
}

func (v *DeepFaceVerifier) Verify(ctx context.Context, req Request) (Result, error) {
	img1, err := dataURI(req.ReferencePath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read reference image: %w", err)
	}
	img2, err := dataURI(req.CandidatePath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read candidate image: %w", err)
	}

	reqBody, err := json.Marshal(deepFaceRequest{
		Img1:             img1,
		Img2:             img2,
		ModelName:        req.Model,
		DetectorBackend:  req.Detector,
		Align:            req.Align,
		EnforceDetection: req.EnforceDetection,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/verify", bytes.NewReader(reqBody))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response: %w", err)
	}

	var dfResp deepFaceResponse
	jsonErr := json.Unmarshal(body, &dfResp)

	if resp.StatusCode != http.StatusOK {
		if jsonErr == nil && isNoFaceMessage(dfResp.Error) {
			return Result{}, fmt.Errorf("%w: %s", ErrNoFace, dfResp.Error)
		}
		return Result{}, fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if jsonErr != nil {
		return Result{}, fmt.Errorf("failed to parse response: %w", jsonErr)
	}

	result := Result{Faces: -1, Model: dfResp.Model}
	if dfResp.Distance != nil {
		result.Distance = *dfResp.Distance
		result.HasDistance = true
	}
	return result, nil
}

func isNoFaceMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "face could not be detected") || strings.Contains(msg, "no face")
}

// dataURI encodes an image file the way the DeepFace API accepts inline images.
func dataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mimeType := fingerprint.DetectMIMEType(data)
	if mimeType == "application/octet-stream" {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
