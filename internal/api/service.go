package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/nhle/responder-checkin/internal/model"
)

// FetchTriggers retrieves the pending triggers for a user. Malformed
// entries are skipped and reported through the returned dropped count.
func (c *Client) FetchTriggers(
	ctx context.Context,
	userID string,
) ([]model.Trigger, int, error) {
	path := fmt.Sprintf("/users/%s/chat-triggers", url.PathEscape(userID))

	var list TriggerList
	if err := c.Get(ctx, path, &list); err != nil {
		return nil, 0, fmt.Errorf("fetching triggers for %s: %w", userID, err)
	}

	triggers := make([]model.Trigger, 0, len(list.Triggers))
	dropped := 0
	for _, raw := range list.Triggers {
		t, err := DecodeTrigger(raw, model.TriggerSourcePoll)
		if err != nil {
			dropped++
			continue
		}
		triggers = append(triggers, t)
	}
	return triggers, dropped, nil
}

// Acknowledge marks a trigger as consumed on the server.
func (c *Client) Acknowledge(
	ctx context.Context,
	userID string,
	triggerID string,
) error {
	path := fmt.Sprintf(
		"/users/%s/chat-triggers/%s/acknowledge",
		url.PathEscape(userID), url.PathEscape(triggerID),
	)
	if err := c.Post(ctx, path, struct{}{}, nil); err != nil {
		return fmt.Errorf("acknowledging trigger %s: %w", triggerID, err)
	}
	return nil
}

// Chat sends a user message to the responder service and returns the
// decoded reply.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (Reply, error) {
	var raw json.RawMessage
	if err := c.Post(ctx, "/chat", req, &raw); err != nil {
		return Reply{}, fmt.Errorf("requesting chat reply: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Reply{}, errors.Join(ErrUnparseableReply, err)
	}
	return decodeReply(resp)
}
