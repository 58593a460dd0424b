// Package slack delivers run reports as Slack DMs using Block Kit.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	goslack "github.com/slack-go/slack"

	"github.com/nightwatchhq/nightwatch/pkg/models"
)

// Client is a thin wrapper around the slack-go SDK that resolves the
// configured user by display name and DMs them.
type Client struct {
	api        *goslack.Client
	notifyUser string
	userIDs    map[string]string
	logger     *slog.Logger
}

// NewClient creates a Slack client that notifies the given display name.
func NewClient(token, notifyUser string) *Client {
	return newClient(goslack.New(token), notifyUser)
}

// NewClientWithAPIURL creates a Slack client that targets a custom API URL.
// Useful for testing with a mock server.
func NewClientWithAPIURL(token, notifyUser, apiURL string) *Client {
	return newClient(goslack.New(token, goslack.OptionAPIURL(apiURL)), notifyUser)
}

func newClient(api *goslack.Client, notifyUser string) *Client {
	return &Client{
		api:        api,
		notifyUser: notifyUser,
		userIDs:    make(map[string]string),
		logger:     slog.Default().With("component", "slack"),
	}
}

// SendReport DMs the daily summary report to the configured user.
func (c *Client) SendReport(ctx context.Context, report *models.RunReport) bool {
	fallback := fmt.Sprintf("NightWatch: %d errors analyzed, %d fixes found",
		report.ErrorsAnalyzed, report.FixesFound())
	return c.sendDM(ctx, fallback, BuildReportBlocks(report))
}

// SendFollowup DMs the created issue and PR links.
func (c *Client) SendFollowup(ctx context.Context, issues []models.CreatedIssueResult, pr *models.CreatedPRResult) bool {
	fallback := fmt.Sprintf("NightWatch: %d issues created", len(issues))
	return c.sendDM(ctx, fallback, BuildFollowupBlocks(issues, pr))
}

// SendBlocks DMs a pre-built block list, for callers that assemble their
// own layout (workflow report sections).
func (c *Client) SendBlocks(ctx context.Context, fallbackText string, blocks []goslack.Block) bool {
	return c.sendDM(ctx, fallbackText, blocks)
}

func (c *Client) sendDM(ctx context.Context, fallbackText string, blocks []goslack.Block) bool {
	userID := c.lookupUserID(ctx, c.notifyUser)
	if userID == "" {
		return false
	}
	channel := c.openDM(ctx, userID)
	if channel == "" {
		return false
	}

	_, _, err := c.api.PostMessageContext(ctx, channel,
		goslack.MsgOptionText(fallbackText, false),
		goslack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		c.logger.Error("Slack send error", "error", err)
		return false
	}
	c.logger.Info("Slack message sent", "user", c.notifyUser)
	return true
}

// LookupUser resolves a display name to a Slack user ID, or "" when the
// user cannot be found. Used by connectivity checks.
func (c *Client) LookupUser(ctx context.Context, displayName string) string {
	return c.lookupUserID(ctx, displayName)
}

// lookupUserID finds a Slack user ID by display name. Matches the handle,
// real name, or profile names, falling back to a substring match.
func (c *Client) lookupUserID(ctx context.Context, displayName string) string {
	if id, ok := c.userIDs[displayName]; ok {
		return id
	}

	users, err := c.api.GetUsersContext(ctx)
	if err != nil {
		c.logger.Error("Slack user lookup error", "error", err)
		return ""
	}

	nameLower := strings.ToLower(displayName)
	for _, member := range users {
		if member.Deleted || member.IsBot {
			continue
		}
		names := []string{
			strings.ToLower(member.Name),
			strings.ToLower(member.RealName),
			strings.ToLower(member.Profile.DisplayName),
			strings.ToLower(member.Profile.RealName),
		}
		for _, n := range names {
			if n != "" && (n == nameLower || strings.Contains(n, nameLower)) {
				c.userIDs[displayName] = member.ID
				c.logger.Info("Found Slack user", "name", displayName, "id", member.ID)
				return member.ID
			}
		}
	}

	c.logger.Warn("Slack user not found", "name", displayName)
	return ""
}

func (c *Client) openDM(ctx context.Context, userID string) string {
	channel, _, _, err := c.api.OpenConversationContext(ctx, &goslack.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		c.logger.Error("Slack DM open error", "error", err)
		return ""
	}
	return channel.ID
}
