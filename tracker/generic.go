package tracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/docai/core/api"
)

// Function encode JSON encodes and writes given object with given status.
func encode[T any](w http.ResponseWriter, status int, v T) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// Function decode decodes given HTTP request body into an expected type.
func decode[T any](r *http.Request) (T, error) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		return v, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}

// Generic HTTP request with optional JSON body and resp body deserialization
// from JSON into given type. Non-2xx responses are returned as *ClientError.
func httpDoJSON[T any](
	ctx context.Context, client *http.Client, method, url string, body any,
	header http.Header,
) (T, error) {
	var result T
	var reqBody io.Reader
	if body != nil {
		jsonInput, jErr := json.Marshal(body)
		if jErr != nil {
			return result, fmt.Errorf("cannot serialize input: %w", jErr)
		}
		reqBody = bytes.NewReader(jsonInput)
	}
	req, rErr := http.NewRequestWithContext(ctx, method, url, reqBody)
	if rErr != nil {
		return result, fmt.Errorf("cannot create %s request: %w", method, rErr)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return result, fmt.Errorf("cannot perform %s request: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		cErr := &ClientError{StatusCode: resp.StatusCode}
		if uErr := json.Unmarshal(respBody, &cErr.Output); uErr != nil {
			cErr.Output = api.ErrorOutput{
				Kind: "internal", Message: string(respBody),
			}
		}
		return result, cErr
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

// ClientError is returned by Client for non-2xx responses.
type ClientError struct {
	StatusCode int
	Output     api.ErrorOutput
}

// Error returns text representation of the error.
func (e *ClientError) Error() string {
	return fmt.Sprintf("tracker responded with %d (%s): %s", e.StatusCode,
		e.Output.Kind, e.Output.Message)
}

// Is matches dagrun error kinds, so errors.Is(err, dagrun.ErrNotFound) works
// for client errors as well.
func (e *ClientError) Is(target error) bool {
	kindErr, ok := errorKinds[e.Output.Kind]
	return ok && errors.Is(kindErr, target)
}
