package bot

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"cybersecbot/internal/common"
	"cybersecbot/internal/engine"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDiscord struct {
	sent     []*discordgo.MessageSend
	edits    []*discordgo.MessageEdit
	sendErrs []error
	editErr  error
}

func (f *fakeDiscord) sink() *DiscordSink {
	return &DiscordSink{
		send: func(ctx context.Context, channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
			f.sent = append(f.sent, data)
			if len(f.sendErrs) > 0 {
				err := f.sendErrs[0]
				f.sendErrs = f.sendErrs[1:]
				if err != nil {
					return nil, err
				}
			}
			return &discordgo.Message{ID: "new", ChannelID: channelID}, nil
		},
		edit: func(ctx context.Context, data *discordgo.MessageEdit) (*discordgo.Message, error) {
			f.edits = append(f.edits, data)
			return &discordgo.Message{ID: data.ID}, f.editErr
		},
		rateLimiter: common.NewRateLimiter(nil, nil),
	}
}

func restError(code int, header http.Header) error {
	if header == nil {
		header = http.Header{}
	}
	return &discordgo.RESTError{Response: &http.Response{StatusCode: code, Status: http.StatusText(code), Header: header}}
}

func closeDelivery() engine.Delivery {
	refresh := engine.Content{Embed: &engine.Embed{Title: "🎉 Giveaway!"}}
	return engine.Delivery{
		CampaignID:     campaignID,
		Milestone:      "close",
		IdempotencyKey: campaignID + "/close",
		ChannelID:      "chan",
		MessageID:      "anchor",
		ReplyTo:        "anchor",
		Content:        engine.Content{Text: "🎉 **Giveaway ended!**"},
		Refresh:        &refresh,
	}
}

func TestDeliver_RefreshesAndReplies(t *testing.T) {
	discord := &fakeDiscord{}

	require.NoError(t, discord.sink().Deliver(context.Background(), closeDelivery()))

	require.Len(t, discord.edits, 1)
	assert.Equal(t, "anchor", discord.edits[0].ID)
	require.NotNil(t, discord.edits[0].Components)
	assert.Empty(t, *discord.edits[0].Components, "the buttons are removed")

	require.Len(t, discord.sent, 1)
	assert.Equal(t, "🎉 **Giveaway ended!**", discord.sent[0].Content)
	require.NotNil(t, discord.sent[0].Reference)
	assert.Equal(t, "anchor", discord.sent[0].Reference.MessageID)
}

func TestDeliver_PlainNotification(t *testing.T) {
	discord := &fakeDiscord{}
	delivery := engine.Delivery{
		CampaignID: campaignID,
		ChannelID:  "chan",
		Content:    engine.Content{Embed: &engine.Embed{Title: "picoCTF"}},
	}

	require.NoError(t, discord.sink().Deliver(context.Background(), delivery))
	assert.Empty(t, discord.edits)
	require.Len(t, discord.sent, 1)
	assert.Nil(t, discord.sent[0].Reference)
	assert.Equal(t, "picoCTF", discord.sent[0].Embeds[0].Title)
}

func TestDeliver_RefreshFailureIsIgnored(t *testing.T) {
	discord := &fakeDiscord{editErr: restError(http.StatusNotFound, nil)}

	require.NoError(t, discord.sink().Deliver(context.Background(), closeDelivery()))
	assert.Len(t, discord.sent, 1)
}

func TestDeliver_ReplyToDeletedMessage(t *testing.T) {
	discord := &fakeDiscord{sendErrs: []error{restError(http.StatusBadRequest, nil)}}

	require.NoError(t, discord.sink().Deliver(context.Background(), closeDelivery()))

	require.Len(t, discord.sent, 2)
	assert.NotNil(t, discord.sent[0].Reference)
	assert.Nil(t, discord.sent[1].Reference)
}

func TestDeliver_Classification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		terminal bool
	}{
		{"unknown channel", restError(http.StatusNotFound, nil), true},
		{"missing permissions", restError(http.StatusForbidden, nil), true},
		{"bad request", restError(http.StatusBadRequest, nil), true},
		{"bad token", restError(http.StatusUnauthorized, nil), false},
		{"server error", restError(http.StatusBadGateway, nil), false},
		{"rate limited", restError(http.StatusTooManyRequests, nil), false},
		{"network", errors.New("connection reset by peer"), false},
		{"timeout", context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			discord := &fakeDiscord{sendErrs: []error{tt.err}}
			delivery := closeDelivery()
			delivery.ReplyTo = ""

			err := discord.sink().Deliver(context.Background(), delivery)

			require.Error(t, err)
			assert.Equal(t, tt.terminal, engine.IsTerminal(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestDeliver_RateLimitStartsCooldown(t *testing.T) {
	discord := &fakeDiscord{sendErrs: []error{restError(http.StatusTooManyRequests, http.Header{"Retry-After": []string{"60"}})}}
	sink := discord.sink()
	delivery := closeDelivery()
	delivery.ReplyTo = ""

	err := sink.Deliver(context.Background(), delivery)
	require.Error(t, err)
	assert.False(t, sink.rateLimiter.Allow())

	// The next delivery waits for the cooldown and gives up with its context
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = sink.Deliver(ctx, delivery)
	require.Error(t, err)
	assert.False(t, engine.IsTerminal(err))
	assert.Len(t, discord.sent, 1)
}

func TestDeliver_DiscordRateLimitError(t *testing.T) {
	rateLimitErr := &discordgo.RateLimitError{RateLimit: &discordgo.RateLimit{
		TooManyRequests: &discordgo.TooManyRequests{RetryAfter: time.Minute},
	}}
	discord := &fakeDiscord{sendErrs: []error{rateLimitErr}}
	sink := discord.sink()
	delivery := closeDelivery()
	delivery.ReplyTo = ""

	err := sink.Deliver(context.Background(), delivery)
	require.Error(t, err)
	assert.False(t, engine.IsTerminal(err))
	assert.False(t, sink.rateLimiter.Allow())
}
