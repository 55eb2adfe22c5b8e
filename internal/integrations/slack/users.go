package slackbot

import (
	"context"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"floorbot/internal/domain"
)

const userCacheTTL = 5 * time.Minute

// API is the part of the Slack Web API the bot and gateway use.
type API interface {
	GetUsersContext(ctx context.Context, options ...slack.GetUsersOption) ([]slack.User, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// userCache keeps the workspace member list for a few minutes.
type userCache struct {
	mu        sync.Mutex
	api       API
	users     []slack.User
	fetchedAt time.Time
	now       func() time.Time
}

func newUserCache(api API) *userCache {
	return &userCache{api: api, now: time.Now}
}

func (c *userCache) list(ctx context.Context) ([]slack.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.users != nil && c.now().Sub(c.fetchedAt) < userCacheTTL {
		return c.users, nil
	}
	users, err := c.api.GetUsersContext(ctx)
	if err != nil {
		return nil, err
	}
	c.users = users
	c.fetchedAt = c.now()
	return users, nil
}

// findUserByPhone matches phone against member profiles: exact digits first,
// then the last 10 digits. Deleted members and bots are skipped.
func findUserByPhone(users []slack.User, phone string) (slack.User, bool) {
	digits := domain.DigitsOnly(phone)
	if digits == "" {
		return slack.User{}, false
	}
	candidates := users[:0:0]
	for _, u := range users {
		if u.Deleted || u.IsBot || domain.DigitsOnly(u.Profile.Phone) == "" {
			continue
		}
		candidates = append(candidates, u)
	}
	for _, u := range candidates {
		if domain.DigitsOnly(u.Profile.Phone) == digits {
			return u, true
		}
	}
	for _, u := range candidates {
		if domain.PhonesMatch(u.Profile.Phone, digits) {
			return u, true
		}
	}
	return slack.User{}, false
}

func displayName(u *slack.User) string {
	for _, n := range []string{u.Profile.DisplayName, u.RealName, u.Name} {
		if n != "" {
			return n
		}
	}
	return u.ID
}
