package bot

import (
	"fmt"
	"strings"
	"time"

	"cybersecbot/internal/campaign"
	"cybersecbot/internal/engine"

	"github.com/bwmarrin/discordgo"
)

// Use "teal" color for the bot
const color int = 0x008080

const (
	giveawayColor int = 0xF1C40F
	rosterColor   int = 0x9B59B6
	calendarColor int = 0x2ECC71
	ctfColor      int = 0x3498DB
)

// Discord rejects embed fields longer than this
const maxFieldLength = 1024

// Renderers turns the due milestones of every topic into Discord messages
func Renderers() engine.Renderers {
	return engine.Renderers{
		campaign.TopicGiveaway: engine.RendererFunc(renderGiveaway),
		campaign.TopicRoster:   engine.RendererFunc(renderRoster),
		campaign.TopicCalendar: engine.RendererFunc(renderCalendar),
		campaign.TopicCTF:      engine.RendererFunc(renderCTF),
	}
}

// The close of a giveaway announces the winner as a reply to the giveaway
// and marks the giveaway as ended
func renderGiveaway(c *campaign.Campaign, m campaign.Milestone) (engine.Notification, error) {

	var giveaway campaign.Giveaway
	if err := c.DecodePayload(&giveaway); err != nil {
		return engine.Notification{}, err
	}
	anchor := GiveawayAnchor(c, &giveaway, "Ended")

	text := "🎉 Giveaway ended! No entries, so no winner."
	if winner, ok := giveaway.Winner(c.ID); ok {
		text = fmt.Sprintf("🎉 **Giveaway ended!**\n\nCongratulations <@%s>! You won: **%s**", winner, giveaway.Prize)
	}
	return engine.Notification{Content: engine.Content{Text: text}, Refresh: &anchor, Reply: true}, nil
}

// The close of a roster posts the final roster and closes registration
func renderRoster(c *campaign.Campaign, m campaign.Milestone) (engine.Notification, error) {

	var roster campaign.Roster
	if err := c.DecodePayload(&roster); err != nil {
		return engine.Notification{}, err
	}
	anchor := RosterAnchor(c, &roster, "Closed")

	embed := &engine.Embed{
		Title:       fmt.Sprintf("📋 Final roster: %s", roster.Title),
		Description: fmt.Sprintf("Registration is closed. See you on **%s**!", roster.DateTime),
		Color:       rosterColor,
		Fields:      append([]engine.Field{participantCount(&roster)}, skillFields(&roster)...),
	}
	if len(roster.Participants) == 0 {
		embed.Description = "Registration is closed. Nobody signed up this time."
	}
	return engine.Notification{Content: engine.Content{Embed: embed}, Refresh: &anchor, Reply: true}, nil
}

func renderCalendar(c *campaign.Campaign, m campaign.Milestone) (engine.Notification, error) {

	var event campaign.Event
	if err := c.DecodePayload(&event); err != nil {
		return engine.Notification{}, err
	}
	embed := eventEmbed(&event, "Upcoming calendar event", calendarColor)
	return engine.Notification{Content: engine.Content{Embed: embed}}, nil
}

func renderCTF(c *campaign.Campaign, m campaign.Milestone) (engine.Notification, error) {

	var event campaign.Event
	if err := c.DecodePayload(&event); err != nil {
		return engine.Notification{}, err
	}
	embed := eventEmbed(&event, "Upcoming CTF", ctfColor)
	if !event.Finish.IsZero() {
		embed.Fields = append(embed.Fields, engine.Field{Name: "Ends", Value: timestamp(event.Finish, "F")})
	}
	return engine.Notification{Content: engine.Content{Embed: embed}}, nil
}

func eventEmbed(event *campaign.Event, description string, embedColor int) *engine.Embed {

	embed := &engine.Embed{
		Title:       event.Summary,
		Description: description,
		URL:         event.URL,
		Color:       embedColor,
		Fields: []engine.Field{
			{Name: "Starts", Value: fmt.Sprintf("%s (%s)", timestamp(event.Start, "F"), timestamp(event.Start, "R"))},
		},
	}
	if event.Location != "" {
		embed.Fields = append(embed.Fields, engine.Field{Name: "Where", Value: truncate(event.Location, maxFieldLength)})
	}
	if event.URL != "" {
		embed.Fields = append(embed.Fields, engine.Field{Name: "More info", Value: event.URL})
	}
	return embed
}

// GiveawayAnchor renders the message representing a giveaway
func GiveawayAnchor(c *campaign.Campaign, giveaway *campaign.Giveaway, status string) engine.Content {

	embed := &engine.Embed{
		Title:       "🎉 Giveaway!",
		Description: fmt.Sprintf("**Prize:** %s\n\nClick the button below to enter!", giveaway.Prize),
		Color:       giveawayColor,
		Fields: []engine.Field{
			{Name: "👥 Entries", Value: fmt.Sprintf("%d", len(giveaway.Entries)), Inline: true},
			{Name: "⏰ Ends", Value: fmt.Sprintf("%s • %s", timestamp(c.TargetTime, "F"), timestamp(c.TargetTime, "R"))},
			{Name: "📌 Status", Value: status, Inline: true},
		},
		Footer: fmt.Sprintf("Giveaway ID: %s", c.ID),
	}
	if giveaway.HostID != "" {
		embed.Fields = append(embed.Fields, engine.Field{Name: "Hosted by", Value: fmt.Sprintf("<@%s>", giveaway.HostID), Inline: true})
	}
	return engine.Content{Embed: embed}
}

// RosterAnchor renders the message representing a roster
func RosterAnchor(c *campaign.Campaign, roster *campaign.Roster, status string) engine.Content {

	embed := &engine.Embed{
		Title:       roster.Title,
		Description: roster.Description,
		Color:       rosterColor,
		Thumbnail:   roster.Thumbnail,
		Timestamp:   c.CreatedAt,
		Fields: []engine.Field{
			{Name: "📅 Date & Time", Value: roster.DateTime},
			participantCount(roster),
		},
	}
	embed.Fields = append(embed.Fields, skillFields(roster)...)

	switch {
	case status != "":
		embed.Fields = append(embed.Fields, engine.Field{Name: "Status", Value: status})
		embed.Footer = fmt.Sprintf("Roster ID: %s", c.ID)
	case len(roster.Participants) == 0:
		embed.Fields = append(embed.Fields, engine.Field{Name: "Status", Value: "*No participants yet. Be the first to join!*"})
		fallthrough
	default:
		embed.Fields = append(embed.Fields, engine.Field{Name: "🔒 Registration closes", Value: timestamp(c.TargetTime, "R")})
		embed.Footer = fmt.Sprintf("Click 'I'm Interested!' to join • Roster ID: %s", c.ID)
	}
	return engine.Content{Text: "📋 **CTF Roster**", Embed: embed}
}

// Anchor renders the message representing an interactive campaign in its
// current state, along with the buttons it should show
func Anchor(c *campaign.Campaign) (engine.Content, []discordgo.MessageComponent, error) {

	status := ""
	if !c.IsActive() {
		status = "Ended"
		if c.CloseReason == campaign.CloseCancelled {
			status = "Cancelled"
		}
	}

	switch c.Topic {
	case campaign.TopicGiveaway:
		var giveaway campaign.Giveaway
		if err := c.DecodePayload(&giveaway); err != nil {
			return engine.Content{}, nil, err
		}
		if status == "" {
			return GiveawayAnchor(c, &giveaway, "Open"), GiveawayButtons(c.ID), nil
		}
		return GiveawayAnchor(c, &giveaway, status), []discordgo.MessageComponent{}, nil
	case campaign.TopicRoster:
		var roster campaign.Roster
		if err := c.DecodePayload(&roster); err != nil {
			return engine.Content{}, nil, err
		}
		if status == "" {
			return RosterAnchor(c, &roster, ""), RosterButtons(c.ID), nil
		}
		return RosterAnchor(c, &roster, status), []discordgo.MessageComponent{}, nil
	default:
		return engine.Content{}, nil, fmt.Errorf("campaign %s of topic %s has no anchor", c.ID, c.Topic)
	}
}

func participantCount(roster *campaign.Roster) engine.Field {
	count := fmt.Sprintf("%d", len(roster.Participants))
	if roster.Limit > 0 {
		count += fmt.Sprintf(" / %d", roster.Limit)
	}
	return engine.Field{Name: "👥 Participants", Value: count}
}

// One field per skill level with participants, most experienced first
func skillFields(roster *campaign.Roster) []engine.Field {
	fields := []engine.Field{}
	for _, skill := range campaign.Skills {
		participants := roster.BySkill(skill)
		if len(participants) == 0 {
			continue
		}
		lines := make([]string, 0, len(participants))
		for _, p := range participants {
			lines = append(lines, fmt.Sprintf("• %s", p.Name))
		}
		fields = append(fields, engine.Field{
			Name:   fmt.Sprintf("%s (%d)", skill.Label(), len(participants)),
			Value:  truncate(strings.Join(lines, "\n"), maxFieldLength),
			Inline: true,
		})
	}
	return fields
}

// Discord renders <t:unix:style> in the local time of each reader
func timestamp(t time.Time, style string) string {
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), style)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

func GiveawayButtons(campaignID string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "🎉 Enter Giveaway", Style: discordgo.SuccessButton, CustomID: CustomID(BUTTON_GIVEAWAY_ENTER, campaignID)},
		}},
	}
}

func RosterButtons(campaignID string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "✋ I'm Interested!", Style: discordgo.PrimaryButton, CustomID: CustomID(BUTTON_ROSTER_JOIN, campaignID)},
			discordgo.Button{Label: "❎ Remove Me", Style: discordgo.DangerButton, CustomID: CustomID(BUTTON_ROSTER_LEAVE, campaignID)},
		}},
	}
}

// Content conversion

func messageEmbed(embed *engine.Embed) *discordgo.MessageEmbed {

	if embed == nil {
		return nil
	}
	result := &discordgo.MessageEmbed{
		Title:       embed.Title,
		Description: embed.Description,
		URL:         embed.URL,
		Color:       embed.Color,
	}
	for _, field := range embed.Fields {
		result.Fields = append(result.Fields, &discordgo.MessageEmbedField{Name: field.Name, Value: field.Value, Inline: field.Inline})
	}
	if embed.Footer != "" {
		result.Footer = &discordgo.MessageEmbedFooter{Text: embed.Footer}
	}
	if embed.Thumbnail != "" {
		result.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: embed.Thumbnail}
	}
	if !embed.Timestamp.IsZero() {
		result.Timestamp = embed.Timestamp.UTC().Format(time.RFC3339)
	}
	return result
}

func embeds(content engine.Content) []*discordgo.MessageEmbed {
	result := []*discordgo.MessageEmbed{}
	if embed := messageEmbed(content.Embed); embed != nil {
		result = append(result, embed)
	}
	return result
}

// MessageSend builds a new message, as a reply when replyTo is set
func MessageSend(content engine.Content, components []discordgo.MessageComponent, channelID string, replyTo string) *discordgo.MessageSend {
	send := &discordgo.MessageSend{Content: content.Text, Embeds: embeds(content), Components: components}
	if replyTo != "" {
		send.Reference = &discordgo.MessageReference{MessageID: replyTo, ChannelID: channelID}
	}
	return send
}

// MessageEdit replaces the whole content of a message, buttons included
func MessageEdit(content engine.Content, components []discordgo.MessageComponent, channelID string, messageID string) *discordgo.MessageEdit {
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	edit := discordgo.NewMessageEdit(channelID, messageID).SetContent(content.Text).SetEmbeds(embeds(content))
	edit.Components = &components
	return edit
}

// Interaction responses

func InputNotValid(errorMessage string) Response {
	return ResponseString{fmt.Sprintf("Input not valid: \n> %s", errorMessage)}
}

func SomethingWentWrong() Response {
	return ResponseString{"❌ Something went wrong. Please try again later."}
}

func GuildOnly() Response {
	return ResponseString{"This command must be used in a server."}
}

func HelpMessage() Response {

	embed := discordgo.MessageEmbed{Title: "Commands available", Color: color}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:   "`/giveaway_start <duration_minutes> <prize>`",
		Value:  "Start a giveaway in this channel. The winner is drawn when it ends (admin only)",
		Inline: false,
	})
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:   "`/roster_start <title> <date_time> <description> <close_in_minutes> [limit] [thumbnail]`",
		Value:  "Open a CTF team roster in this channel. The final roster is posted when registration closes (admin only)",
		Inline: false,
	})
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:   "`/campaign_cancel <id>`",
		Value:  "Cancel a giveaway or roster by the id shown in its footer (admin only)",
		Inline: false,
	})
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:   "`/verify <email>`",
		Value:  "Receive a verification code at your university email address",
		Inline: false,
	})
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:   "`/submit_code <code>`",
		Value:  "Submit the code from the email to get the verified role",
		Inline: false,
	})
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:   "`/sync`",
		Value:  "Register the commands of the bot in this server again (admin only)",
		Inline: false,
	})
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:   "`/help`",
		Value:  "Print the usage of the different commands",
		Inline: false,
	})
	return ResponseEmbed{embed}
}

func GiveawayStarted(prize string, end time.Time) Response {
	return ResponseString{fmt.Sprintf("✅ Giveaway for **%s** started! It ends %s.", prize, timestamp(end, "R"))}
}

func RosterStarted(title string) Response {
	return ResponseString{fmt.Sprintf("✅ Roster **%s** created!", title)}
}

func CampaignCancelled(id string) Response {
	return ResponseString{fmt.Sprintf("✅ Campaign `%s` cancelled.", id)}
}

func CampaignAlreadyClosed(id string) Response {
	return ResponseString{fmt.Sprintf("Campaign `%s` has already ended.", id)}
}

func CampaignNotFound(id string) Response {
	return ResponseString{fmt.Sprintf("❌ No campaign with id `%s`.", id)}
}

func Entered() Response {
	return ResponseString{"You're entered!"}
}

func SkillMenu(campaignID string) Response {

	embed := discordgo.MessageEmbed{
		Title: "Select Your CTF Skill Level",
		Description: "Please select the option that best describes your experience:\n\n" +
			"🐣 **Rookie**: New to CTFs or limited experience\n" +
			"🌵 **Intermediate**: Some CTF experience, familiar with basics\n" +
			"🥷 **Veteran**: Extensive CTF experience, advanced skills",
		Color: ctfColor,
	}
	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: campaign.SkillRookie.Label(), Style: discordgo.SuccessButton, CustomID: CustomID(BUTTON_ROSTER_SKILL, campaignID, string(campaign.SkillRookie))},
			discordgo.Button{Label: campaign.SkillIntermediate.Label(), Style: discordgo.PrimaryButton, CustomID: CustomID(BUTTON_ROSTER_SKILL, campaignID, string(campaign.SkillIntermediate))},
			discordgo.Button{Label: campaign.SkillVeteran.Label(), Style: discordgo.DangerButton, CustomID: CustomID(BUTTON_ROSTER_SKILL, campaignID, string(campaign.SkillVeteran))},
			discordgo.Button{Label: "❌ Cancel", Style: discordgo.SecondaryButton, CustomID: CustomID(BUTTON_ROSTER_DISMISS, campaignID)},
		}},
	}
	return ResponseMenu{embed: embed, components: components}
}

func Registered(skill campaign.Skill) Response {
	return ResponseString{fmt.Sprintf("✅ You've been registered as **%s**!", skill.Label())}
}

func RegistrationCancelled() Response {
	return ResponseString{"❌ Registration cancelled."}
}

func Removed() Response {
	return ResponseString{"✅ You've been removed from the roster."}
}

// MutationRejected explains to the user why a button did nothing
func MutationRejected(topic campaign.Topic, reason campaign.Reason) Response {

	switch reason {
	case campaign.ReasonCapacity:
		return ResponseString{"❌ Sorry, the roster is full!"}
	case campaign.ReasonClosed:
		if topic == campaign.TopicGiveaway {
			return ResponseString{"This giveaway has ended!"}
		}
		return ResponseString{"Registration for this roster is closed."}
	case campaign.ReasonDuplicate:
		if topic == campaign.TopicGiveaway {
			return ResponseString{"You're already entered!"}
		}
		return ResponseString{"You're already registered! Use the **Remove Me** button to unregister."}
	case campaign.ReasonNotParticipant:
		return ResponseString{"You're not registered on this roster."}
	case campaign.ReasonNotFound:
		return ResponseString{"This no longer exists."}
	default:
		return SomethingWentWrong()
	}
}

// Verification

func InvalidEmail(domain string) Response {
	return ResponseString{fmt.Sprintf("That doesn't look like a valid @%s email.", domain)}
}

func EmailNotConfigured() Response {
	return ResponseString{"Email is not configured on the bot. Contact an admin."}
}

func EmailNotSent() Response {
	return ResponseString{"Failed to send email. Try again later."}
}

func CodeSent() Response {
	return ResponseString{"Check your email! Then use /submit_code <yourcode> to complete verification."}
}

func NoVerificationPending() Response {
	return ResponseString{"You haven't started verification. Use /verify first."}
}

func CodeExpired() Response {
	return ResponseString{"Your code has expired. Please run /verify again."}
}

func WrongCode() Response {
	return ResponseString{"Incorrect code. Try again."}
}

func RoleNotAssigned() Response {
	return ResponseString{"Could not assign the verification role. Contact an admin."}
}

func Verified() Response {
	return ResponseString{"You are now verified!"}
}

func Synced(count int) Response {
	return ResponseString{fmt.Sprintf("Synced %d command(s) to this guild.", count)}
}
