package bot

import (
	"github.com/bwmarrin/discordgo"
)

// Every interaction is acknowledged straight away and answered later by
// editing the acknowledgement, so slow work never hits Discord's deadline
type Response interface {
	Edit() *discordgo.WebhookEdit
}

type ResponseString struct {
	string
}

type ResponseEmbed struct {
	discordgo.MessageEmbed
}

// ResponseMenu is an embed with buttons below it
type ResponseMenu struct {
	embed      discordgo.MessageEmbed
	components []discordgo.MessageComponent
}

// Replacing the embeds and components clears whatever the acknowledged
// message showed before
func (response ResponseString) Edit() *discordgo.WebhookEdit {
	return &discordgo.WebhookEdit{
		Content:    &response.string,
		Embeds:     &[]*discordgo.MessageEmbed{},
		Components: &[]discordgo.MessageComponent{},
	}
}

func (response ResponseEmbed) Edit() *discordgo.WebhookEdit {
	empty := ""
	return &discordgo.WebhookEdit{
		Content:    &empty,
		Embeds:     &[]*discordgo.MessageEmbed{&response.MessageEmbed},
		Components: &[]discordgo.MessageComponent{},
	}
}

func (response ResponseMenu) Edit() *discordgo.WebhookEdit {
	empty := ""
	return &discordgo.WebhookEdit{
		Content:    &empty,
		Embeds:     &[]*discordgo.MessageEmbed{&response.embed},
		Components: &response.components,
	}
}

// Defer acknowledges an interaction. Commands and most buttons get a new
// message only the user can see; update acknowledges by editing the message
// the pressed button belongs to
func Defer(discord *discordgo.Session, interaction *discordgo.Interaction, update bool) error {
	kind := discordgo.InteractionResponseDeferredChannelMessageWithSource
	if update {
		kind = discordgo.InteractionResponseDeferredMessageUpdate
	}
	return discord.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: kind,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

// Send answers an acknowledged interaction
func Send(discord *discordgo.Session, interaction *discordgo.Interaction, response Response) error {
	_, err := discord.InteractionResponseEdit(interaction, response.Edit())
	return err
}
