// Package progress holds the outbound boundary to the learning platform's
// progress and roadmap systems. All notifications are best effort: the timer
// and task state stay authoritative whatever happens on the wire.
package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Activity describes a completed stretch of learning time.
type Activity struct {
	Kind     string `json:"kind"`
	Resource string `json:"resource"`
	Seconds  int    `json:"seconds"`
}

// Notifier delivers fire-and-forget signals to the platform. Implementations
// must be safe for concurrent use.
type Notifier interface {
	GoalCompleted(ctx context.Context, userID, goalID string) error
	LearningActivity(ctx context.Context, userID string, activity Activity) error
}

// NopNotifier drops every signal. Used when no platform URL is configured.
type NopNotifier struct{}

func (NopNotifier) GoalCompleted(context.Context, string, string) error { return nil }

func (NopNotifier) LearningActivity(context.Context, string, Activity) error { return nil }

// WebhookNotifier posts JSON signals to the platform's progress endpoints.
type WebhookNotifier struct {
	baseURL string
	client  *http.Client
}

func NewWebhookNotifier(baseURL string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (n *WebhookNotifier) GoalCompleted(ctx context.Context, userID, goalID string) error {
	return n.post(ctx, "/goals/complete", map[string]string{
		"userId": userID,
		"goalId": goalID,
	})
}

func (n *WebhookNotifier) LearningActivity(ctx context.Context, userID string, activity Activity) error {
	return n.post(ctx, "/activities", map[string]interface{}{
		"userId":   userID,
		"kind":     activity.Kind,
		"resource": activity.Resource,
		"seconds":  activity.Seconds,
	})
}

func (n *WebhookNotifier) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}
