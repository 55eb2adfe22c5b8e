package slackbot

import (
	"context"
	"fmt"
	"log"

	"github.com/slack-go/slack"
)

// Gateway delivers notifications as Slack DMs to the member whose profile
// phone matches the recipient.
type Gateway struct {
	api   API
	users *userCache
}

func NewGateway(api API) *Gateway {
	return &Gateway{api: api, users: newUserCache(api)}
}

func (g *Gateway) Send(ctx context.Context, companyID, phone, text string) error {
	users, err := g.users.list(ctx)
	if err != nil {
		return fmt.Errorf("list slack users: %w", err)
	}
	user, ok := findUserByPhone(users, phone)
	if !ok {
		return fmt.Errorf("no slack member with phone %s", phone)
	}

	channel, _, _, err := g.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{user.ID},
	})
	if err != nil {
		return fmt.Errorf("open DM with %s: %w", user.ID, err)
	}
	if _, _, err := g.api.PostMessageContext(ctx, channel.ID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("post DM to %s: %w", user.ID, err)
	}
	log.Printf("slack gateway sent company=%s user=%s", companyID, user.ID)
	return nil
}
