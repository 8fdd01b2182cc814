package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cybersecbot/internal/common"
	"cybersecbot/internal/engine"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// DiscordSink delivers the notifications of the engine as channel messages
type DiscordSink struct {
	send        func(ctx context.Context, channelID string, data *discordgo.MessageSend) (*discordgo.Message, error)
	edit        func(ctx context.Context, data *discordgo.MessageEdit) (*discordgo.Message, error)
	rateLimiter *common.RateLimiter
}

func NewDiscordSink(discord *discordgo.Session, restrictions []common.Restriction) *DiscordSink {
	return &DiscordSink{
		send: func(ctx context.Context, channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
			return discord.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
		},
		edit: func(ctx context.Context, data *discordgo.MessageEdit) (*discordgo.Message, error) {
			return discord.ChannelMessageEditComplex(data, discordgo.WithContext(ctx))
		},
		rateLimiter: common.NewRateLimiter(restrictions, nil),
	}
}

func (sink *DiscordSink) Deliver(ctx context.Context, delivery engine.Delivery) error {

	// Ask the rate limiter for permission
	if err := sink.rateLimiter.Wait(ctx); err != nil {
		return engine.Retryable(err)
	}

	// Refresh the message representing the campaign. Its buttons go away
	if delivery.Refresh != nil && delivery.MessageID != "" {
		edit := MessageEdit(*delivery.Refresh, nil, delivery.ChannelID, delivery.MessageID)
		if _, err := sink.edit(ctx, edit); err != nil {
			log.Warn().Err(err).Msg(fmt.Sprintf("Could not refresh message %s of campaign %s", delivery.MessageID, delivery.CampaignID))
		}
	}

	// Send the notification
	_, err := sink.send(ctx, delivery.ChannelID, MessageSend(delivery.Content, nil, delivery.ChannelID, delivery.ReplyTo))
	if err != nil && delivery.ReplyTo != "" && replyTargetGone(err) {
		// The message to reply to was deleted, send without the reply
		log.Warn().Msg(fmt.Sprintf("Message %s is gone, delivering %s without a reply", delivery.ReplyTo, delivery.IdempotencyKey))
		_, err = sink.send(ctx, delivery.ChannelID, MessageSend(delivery.Content, nil, delivery.ChannelID, ""))
	}
	if err != nil {
		return sink.classify(err)
	}
	log.Debug().Msg(fmt.Sprintf("Delivered %s to channel %s", delivery.IdempotencyKey, delivery.ChannelID))
	return nil
}

// classify decides whether a failed request is worth repeating.
// Missing channels and missing permissions never heal by themselves
func (sink *DiscordSink) classify(err error) error {

	var rateLimitErr *discordgo.RateLimitError
	if errors.As(err, &rateLimitErr) {
		if rateLimitErr.RateLimit != nil && rateLimitErr.TooManyRequests != nil {
			sink.rateLimiter.ReceivedRateLimit(rateLimitErr.RetryAfter)
		}
		return engine.Retryable(err)
	}

	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Response == nil {
		// Network trouble
		return engine.Retryable(err)
	}
	switch code := restErr.Response.StatusCode; {
	case code == common.RATE_LIMIT_EXCEEDED:
		sink.rateLimiter.ReceivedRateLimit(common.RetryAfter(restErr.Response.Header.Get("Retry-After")))
		return engine.Retryable(err)
	case code == common.UNAUTHORIZED, code == http.StatusRequestTimeout:
		// A bad token is not the campaign's fault
		return engine.Retryable(err)
	case code >= common.BAD_REQUEST && code < common.INTERNAL_SERVER_ERROR:
		return engine.Terminal(err)
	default:
		return engine.Retryable(err)
	}
}

// Discord answers a reply to a deleted message with a bad request or
// unknown message error
func replyTargetGone(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return false
	}
	code := restErr.Response.StatusCode
	return code == common.BAD_REQUEST || code == common.DATA_NOT_FOUND
}
