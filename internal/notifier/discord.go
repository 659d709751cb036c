package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-resty/resty/v2"
	"github.com/italolelis/gumroad_downloader/internal/transfer"
)

// maxContentLength is the Discord message limit.
const maxContentLength = 2000

type Notifier interface {
	Notify(ctx context.Context, content string) error
}

// New returns a Discord notifier, or a no-op one when webhookURL is empty.
func New(webhookURL string) Notifier {
	if webhookURL == "" {
		return NopNotifier{}
	}

	return NewDiscordNotifier(webhookURL)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string) error { return nil }

type DiscordNotifier struct {
	WebhookURL string
	client     *resty.Client
}

func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		WebhookURL: webhookURL,
		client:     resty.New().SetTimeout(10 * time.Second),
	}
}

func (d *DiscordNotifier) Notify(ctx context.Context, content string) error {
	if d.WebhookURL == "" {
		return fmt.Errorf("webhook URL is not set")
	}

	if len(content) > maxContentLength {
		content = content[:maxContentLength-3] + "..."
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"content": content}).
		Post(d.WebhookURL)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	if !resp.IsSuccess() {
		return fmt.Errorf("webhook failed with status %d", resp.StatusCode())
	}

	return nil
}

// Summary renders a run report as a short chat message.
func Summary(title string, report transfer.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "**%s**\n", title)
	fmt.Fprintf(&b, "done: %d, skipped: %d, failed: %d, written: %s",
		report.Done, report.Skipped, report.Failed, humanize.Bytes(uint64(report.Bytes)))

	for _, f := range report.Failures {
		fmt.Fprintf(&b, "\n- %s (%s)", f.Name, f.Kind)
	}

	return b.String()
}
