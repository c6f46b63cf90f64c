package helper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// GenerateUUID creates a random unique UUID string
func GenerateUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID: %v", err)
	}
	return id.String(), nil
}

// PrettyPrint writes v as indented JSON
func PrettyPrint(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Error pretty printing")
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

const (
	baseRetryDelay = 200 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

// RetryDelay is the exponential backoff for the given 0-based attempt
func RetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 5 {
		return maxRetryDelay
	}
	d := baseRetryDelay << attempt
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}

// Retry calls fn until it succeeds, maxRetries extra attempts are used up
// or ctx is done. The last error is returned.
func Retry(ctx context.Context, maxRetries int, name string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == maxRetries {
			break
		}
		delay := RetryDelay(attempt)
		log.Warn().Err(err).Str("call", name).Int("attempt", attempt+1).Dur("backoff", delay).Msg("Retrying")
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
	return err
}
