package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/btp2/btpmon/internal/api"
	"github.com/btp2/btpmon/internal/errors"
)

// SlackUsername is the sender name shown on posted messages.
const SlackUsername = "BTP Monitor"

// SlackMessage is the incoming-webhook payload.
type SlackMessage struct {
	Channel  string       `json:"channel"`
	Username string       `json:"username"`
	Text     string       `json:"text"`
	Blocks   []SlackBlock `json:"blocks,omitempty"`
}

// SlackBlock is a Block Kit section.
type SlackBlock struct {
	Type   string      `json:"type"`
	Fields []SlackText `json:"fields,omitempty"`
}

// SlackText is a Block Kit text object.
type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SlackNotifier posts link changes to a Slack incoming webhook.
type SlackNotifier struct {
	hook    string
	channel string
	http    *http.Client
}

// SlackOption configures a SlackNotifier.
type SlackOption func(*SlackNotifier)

// WithHTTPClient sets the HTTP client used for webhook calls.
func WithHTTPClient(h *http.Client) SlackOption {
	return func(s *SlackNotifier) {
		if h != nil {
			s.http = h
		}
	}
}

// NewSlackNotifier creates a notifier posting to hook in channel.
func NewSlackNotifier(hook, channel string, opts ...SlackOption) *SlackNotifier {
	s := &SlackNotifier{
		hook:    hook,
		channel: channel,
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notify posts one message listing the changes, with a section per connected pair.
func (s *SlackNotifier) Notify(ctx context.Context, changes []LinkChange, report *api.StatusReport) error {
	if len(changes) == 0 {
		return nil
	}

	body, err := json.Marshal(BuildSlackMessage(s.channel, changes, report))
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrNotify, "Couldn't encode Slack message", "")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.hook, bytes.NewReader(body))
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrNotify, "Couldn't build Slack request",
			"Check notify.slack_hook is a valid URL")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrNotify, "Couldn't post to Slack",
			"Check network access to hooks.slack.com")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New(errors.ErrNotify,
			fmt.Sprintf("Slack webhook returned %s", resp.Status),
			"Check the webhook URL and channel are still valid")
	}
	return nil
}

// BuildSlackMessage renders the webhook payload for changes.
func BuildSlackMessage(channel string, changes []LinkChange, report *api.StatusReport) SlackMessage {
	items := make([]string, 0, len(changes))
	for _, c := range changes {
		link := c.Link.SrcLabel() + " -> " + c.Link.DstLabel()
		if c.After == api.LinkGood {
			items = append(items, link+" : :large_green_circle: *GOOD*")
		} else {
			items = append(items, link+" : :red_circle: *BAD*")
		}
	}

	return SlackMessage{
		Channel:  channel,
		Username: SlackUsername,
		Text:     strings.Join(items, "\n"),
		Blocks:   slackBlocks(report),
	}
}

func slackBlocks(report *api.StatusReport) []SlackBlock {
	if report == nil {
		return nil
	}

	blocks := []SlackBlock{{
		Type: "section",
		Fields: []SlackText{
			{Type: "mrkdwn", Text: "*Source*\n*Destination*"},
			{Type: "mrkdwn", Text: "*Forward Status*\n*Backward Status*"},
		},
	}}

	for _, p := range report.Pairs() {
		bw := "-"
		if p.Backward != nil {
			bw = slackState(*p.Backward)
		}
		blocks = append(blocks, SlackBlock{
			Type: "section",
			Fields: []SlackText{
				{Type: "plain_text", Text: p.Forward.SrcLabel() + "\n" + p.Forward.DstLabel()},
				{Type: "plain_text", Text: slackState(*p.Forward) + "\n" + bw},
			},
		})
	}
	return blocks
}

func slackState(l api.Link) string {
	if l.State == api.LinkGood {
		return ":large_green_circle: OK"
	}
	return fmt.Sprintf(":red_circle: BAD (cnt=%d,dur=%s)", l.PendingCount, formatDelay(l.Delay()))
}
