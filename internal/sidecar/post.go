package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/marlowe-finch/corral/internal/errs"
)

func postOnce(ctx context.Context, client *http.Client, url string, payload statusPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errs.NewStatusError(errs.StatusTransportError, 0, "marshal payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errs.NewStatusError(errs.StatusTransportError, 0, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return errs.NewStatusError(errs.StatusTransportError, 0, "post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted {
		return nil
	}
	return errs.NewStatusError(errs.StatusNonOKResponse, resp.StatusCode, "unexpected status %d", resp.StatusCode)
}
