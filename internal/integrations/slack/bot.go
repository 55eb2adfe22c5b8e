package slackbot

import (
	"context"
	"log"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"floorbot/internal/pipeline"
)

var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+>`)

// Pipeline is the message pipeline the bot feeds.
type Pipeline interface {
	ProcessMessage(ctx context.Context, companyID string, msg pipeline.Message) (pipeline.ProcessResult, error)
	ProcessIncompleteFollowUp(ctx context.Context, companyID, phone, text, commID string) (pipeline.FollowUpResult, error)
}

type Bot struct {
	client    *slack.Client
	api       API
	pipeline  Pipeline
	companyID string

	// departments maps a channel ID to the department whose floor it covers.
	departments map[string]string
}

func NewBot(client *slack.Client, p Pipeline, companyID string) *Bot {
	return &Bot{client: client, api: client, pipeline: p, companyID: companyID}
}

// WithChannelDepartments tags messages from the given channels with a
// department, which narrows escalation to that department's managers.
func (b *Bot) WithChannelDepartments(departments map[string]string) *Bot {
	b.departments = departments
	return b
}

// inbound is a message addressed to the bot, already stripped of mentions.
type inbound struct {
	UserID   string
	Channel  string
	Text     string
	TS       string
	ThreadTS string
}

// Run listens over Socket Mode until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	client := socketmode.New(b.client)

	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				client.Ack(*evt.Request)
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				go b.handleEventsAPI(ctx, eventsAPIEvent)
			case socketmode.EventTypeConnected:
				log.Println("Slack bot connected via Socket Mode")
			}
		}
	}()

	return client.RunContext(ctx)
}

func (b *Bot) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		if ev.BotID != "" {
			return
		}
		b.respond(ctx, inbound{UserID: ev.User, Channel: ev.Channel, Text: ev.Text, TS: ev.TimeStamp, ThreadTS: ev.ThreadTimeStamp})
	case *slackevents.MessageEvent:
		// Channel messages arrive as app_mention; only DMs are handled here.
		if ev.ChannelType != "im" || ev.BotID != "" || ev.SubType != "" {
			return
		}
		b.respond(ctx, inbound{UserID: ev.User, Channel: ev.Channel, Text: ev.Text, TS: ev.TimeStamp, ThreadTS: ev.ThreadTimeStamp})
	}
}

func (b *Bot) respond(ctx context.Context, in inbound) {
	reply := b.handle(ctx, in)
	if reply == "" {
		return
	}
	threadTS := in.ThreadTS
	if threadTS == "" {
		threadTS = in.TS
	}
	_, _, err := b.api.PostMessageContext(ctx, in.Channel,
		slack.MsgOptionText(reply, false),
		slack.MsgOptionTS(threadTS),
	)
	if err != nil {
		log.Printf("slack reply error channel=%s: %v", in.Channel, err)
	}
}

// handle runs one inbound message through the pipeline and returns the reply
// to post, or "" when the pipeline did not take the message.
func (b *Bot) handle(ctx context.Context, in inbound) string {
	text := strings.TrimSpace(mentionPattern.ReplaceAllString(in.Text, ""))
	if text == "" {
		return ""
	}
	commID := in.Channel + ":" + in.TS

	var phone, name string
	if user, err := b.api.GetUserInfoContext(ctx, in.UserID); err != nil {
		log.Printf("slack user info error user=%s (non-fatal): %v", in.UserID, err)
	} else {
		phone, name = user.Profile.Phone, displayName(user)
	}

	if phone != "" {
		up, err := b.pipeline.ProcessIncompleteFollowUp(ctx, b.companyID, phone, text, commID)
		if err != nil {
			log.Printf("slack follow-up error user=%s: %v", in.UserID, err)
			return "Não consegui registrar sua resposta agora. Tente novamente em instantes."
		}
		if up.Handled {
			return up.Reply
		}
	}

	res, err := b.pipeline.ProcessMessage(ctx, b.companyID, pipeline.Message{
		Text:            text,
		Sender:          name,
		SenderPhone:     phone,
		Department:      b.departments[in.Channel],
		CommunicationID: commID,
	})
	if err != nil {
		log.Printf("slack process error user=%s: %v", in.UserID, err)
		return "Não consegui registrar a ocorrência agora. Tente novamente em instantes."
	}
	if !res.Handled {
		log.Printf("slack message not handled user=%s category=%s", in.UserID, res.EventType)
		return ""
	}
	return res.Reply
}
