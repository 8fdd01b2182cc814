package bot

import (
	"github.com/bwmarrin/discordgo"
)

// MANAGE_GUILD permission bit
const manageGuild int64 = 1 << 5

func adminOnly() *int64 {
	permissions := manageGuild
	return &permissions
}

// Commands lists the slash commands of the bot
func Commands(verifyDomain string) []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:                     NAME_GIVEAWAY_START,
			Description:              "Start a giveaway (admin only)",
			DefaultMemberPermissions: adminOnly(),
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "duration_minutes", Description: "Duration in minutes", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "prize", Description: "Description of the prize", Required: true, MaxLength: maxPrize},
			},
		},
		{
			Name:                     NAME_ROSTER_START,
			Description:              "Create a new CTF roster (admin only)",
			DefaultMemberPermissions: adminOnly(),
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "title", Description: "e.g. picoCTF 2024 Team Roster", Required: true, MaxLength: maxTitle},
				{Type: discordgo.ApplicationCommandOptionString, Name: "date_time", Description: "e.g. April 15, 2024 at 6:00 PM MST", Required: true, MaxLength: maxDateTime},
				{Type: discordgo.ApplicationCommandOptionString, Name: "description", Description: "Describe the CTF event", Required: true, MaxLength: maxDescription},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "close_in_minutes", Description: "Minutes until registration closes", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "limit", Description: "Roster limit, unlimited when left out"},
				{Type: discordgo.ApplicationCommandOptionString, Name: "thumbnail", Description: "Thumbnail URL", MaxLength: maxThumbnail},
			},
		},
		{
			Name:                     NAME_CAMPAIGN_CANCEL,
			Description:              "Cancel a giveaway or roster (admin only)",
			DefaultMemberPermissions: adminOnly(),
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "id", Description: "Id shown in the footer of the giveaway or roster", Required: true},
			},
		},
		{
			Name:        NAME_VERIFY,
			Description: "Start university email verification",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "email", Description: "Your @" + verifyDomain + " email address", Required: true},
			},
		},
		{
			Name:        NAME_SUBMIT_CODE,
			Description: "Submit the verification code from your email",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "code", Description: "The 6-digit verification code sent to your email", Required: true},
			},
		},
		{
			Name:                     NAME_SYNC,
			Description:              "Register the commands of the bot in this server again (admin only)",
			DefaultMemberPermissions: adminOnly(),
		},
		{
			Name:        NAME_HELP,
			Description: "Print the usage of the different commands",
		},
	}
}

// optionValues collects the values of the options of a slash command
func optionValues(options []*discordgo.ApplicationCommandInteractionDataOption) Options {
	values := Options{}
	for _, option := range options {
		values[option.Name] = option.Value
	}
	return values
}
