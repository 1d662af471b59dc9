package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/allisson/admissions/internal/httputil"
	"github.com/allisson/admissions/internal/outbox/http/dto"
)

// adminRequestTimeout bounds each call to the running server.
const adminRequestTimeout = 10 * time.Second

// RunOutboxPause pauses (pause=true) or resumes the dispatcher of the server at baseURL.
// The pause flag lives in the server process, so the command calls its admin endpoint.
func RunOutboxPause(
	ctx context.Context,
	client *http.Client,
	logger *slog.Logger,
	writer io.Writer,
	baseURL string,
	pause bool,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	if baseURL == "" {
		return fmt.Errorf("server url is required")
	}

	action := "resume"
	if pause {
		action = "pause"
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/v1/outbox/" + action

	ctx, cancel := context.WithTimeout(ctx, adminRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", action, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		var errorResponse httputil.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errorResponse)
		return fmt.Errorf("server rejected %s with status %d: %s", action, resp.StatusCode, errorResponse.Error)
	}

	var pauseResponse dto.PauseResponse
	if err := json.NewDecoder(resp.Body).Decode(&pauseResponse); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", action, err)
	}

	if format == FormatJSON {
		if err := writeJSON(writer, pauseResponse); err != nil {
			return err
		}
	} else if pauseResponse.Paused {
		_, _ = fmt.Fprintln(writer, "Outbox dispatch paused")
	} else {
		_, _ = fmt.Fprintln(writer, "Outbox dispatch running")
	}

	logger.Info("outbox dispatch "+action+" requested",
		slog.String("url", endpoint),
		slog.Bool("paused", pauseResponse.Paused),
	)
	return nil
}
