package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cybersecbot/internal/campaign"
	"cybersecbot/internal/common"
	"cybersecbot/internal/engine"
	"cybersecbot/internal/verification"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// Interactions may be answered for 15 minutes once acknowledged
const interactionTimeout = time.Minute

type Settings struct {
	GuildIDs []string
	// Role given to verified members, by id or else by name
	VerifyRoleID   string
	VerifyRoleName string
}

type Bot struct {
	discord  *discordgo.Session
	engine   *engine.Engine
	verifier *verification.Verifier
	clock    common.Clock
	settings Settings
}

// NewSession creates the discord session the bot and its sink share
func NewSession(token string) (*discordgo.Session, error) {
	discord, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("could not create discord session: %w", err)
	}
	discord.Identify.Intents = discordgo.IntentsGuilds
	return discord, nil
}

func CreateBot(discord *discordgo.Session, engine *engine.Engine, verifier *verification.Verifier, clock common.Clock, settings Settings) *Bot {
	if clock == nil {
		clock = common.SystemClock()
	}
	return &Bot{discord: discord, engine: engine, verifier: verifier, clock: clock, settings: settings}
}

// Run keeps the session open until the context is done
func (bot *Bot) Run(ctx context.Context) error {

	// Event handlers
	bot.discord.AddHandler(bot.Ready)
	bot.discord.AddHandler(bot.Receive)

	// Open session
	if err := bot.discord.Open(); err != nil {
		return fmt.Errorf("could not open discord session: %w", err)
	}
	defer bot.discord.Close()

	log.Info().Msg("Discord session open, waiting for interactions")
	<-ctx.Done()
	log.Info().Msg("Closing discord session")
	return nil
}

// Healthy reports whether the session is connected
func (bot *Bot) Healthy() error {
	if !bot.discord.DataReady {
		return errors.New("discord session is not ready")
	}
	return nil
}

func (bot *Bot) Ready(discord *discordgo.Session, ready *discordgo.Ready) {

	log.Info().Msg(fmt.Sprintf("Logged in as %s (%s)", ready.User.Username, ready.User.ID))

	// Commands go to the configured guilds, or everywhere when there are none
	guildIDs := bot.settings.GuildIDs
	if len(guildIDs) == 0 {
		guildIDs = []string{""}
	}
	for _, guildID := range guildIDs {
		commands, err := discord.ApplicationCommandBulkOverwrite(ready.User.ID, guildID, Commands(bot.verifyDomain()))
		if err != nil {
			log.Error().Err(err).Msg(fmt.Sprintf("Could not register commands in guild '%s'", guildID))
			continue
		}
		log.Info().Msg(fmt.Sprintf("Registered %d commands in guild '%s'", len(commands), guildID))
	}
}

func (bot *Bot) Receive(discord *discordgo.Session, interaction *discordgo.InteractionCreate) {

	defer func() {
		if r := recover(); r != nil {
			log.Error().Msg(fmt.Sprintf("Recovered from panic handling interaction %s: %v", interaction.ID, r))
		}
	}()

	// Parse the command or the custom id of the button
	var parseResult ParseResult
	update := false
	switch interaction.Type {
	case discordgo.InteractionApplicationCommand:
		data := interaction.ApplicationCommandData()
		log.Info().Msg(fmt.Sprintf("Received command /%s in guild %s", data.Name, interaction.GuildID))
		parseResult = ParseCommand(data.Name, optionValues(data.Options))
	case discordgo.InteractionMessageComponent:
		data := interaction.MessageComponentData()
		log.Debug().Msg(fmt.Sprintf("Received button %s", data.CustomID))
		parseResult = ParseCustomID(data.CustomID)
		// Buttons of the skill menu edit the menu itself
		update = parseResult.parseid == PARSEID_OK &&
			(parseResult.command == COMMAND_ROSTER_SKILL || parseResult.command == COMMAND_ROSTER_DISMISS)
	default:
		return
	}

	// Acknowledge before doing any work
	if err := Defer(discord, interaction.Interaction, update); err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not acknowledge interaction %s", interaction.ID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()
	response := bot.dispatch(ctx, interaction.Interaction, parseResult)
	if err := Send(discord, interaction.Interaction, response); err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not answer interaction %s", interaction.ID))
	}
}

func (bot *Bot) dispatch(ctx context.Context, interaction *discordgo.Interaction, parseResult ParseResult) Response {

	if parseResult.parseid != PARSEID_OK {
		log.Info().Msg(fmt.Sprintf("Wrong input. Reason: %s", parseResult.errorMessage))
		return InputNotValid(parseResult.errorMessage)
	}
	if parseResult.command == COMMAND_HELP {
		return HelpMessage()
	}
	if interaction.GuildID == "" {
		return GuildOnly()
	}

	switch parseResult.command {
	case COMMAND_GIVEAWAY_START:
		return bot.giveawayStart(ctx, interaction, parseResult.arguments.(GiveawayArguments))
	case COMMAND_ROSTER_START:
		return bot.rosterStart(ctx, interaction, parseResult.arguments.(RosterArguments))
	case COMMAND_CAMPAIGN_CANCEL:
		return bot.campaignCancel(ctx, interaction, parseResult.arguments.(string))
	case COMMAND_VERIFY:
		return bot.verify(ctx, interaction, parseResult.arguments.(string))
	case COMMAND_SUBMIT_CODE:
		return bot.submitCode(ctx, interaction, parseResult.arguments.(string))
	case COMMAND_SYNC:
		return bot.sync(ctx, interaction)
	case COMMAND_GIVEAWAY_ENTER:
		return bot.giveawayEnter(ctx, interaction, parseResult.arguments.(string))
	case COMMAND_ROSTER_JOIN:
		return bot.rosterJoin(ctx, interaction, parseResult.arguments.(string))
	case COMMAND_ROSTER_SKILL:
		return bot.rosterSkill(ctx, interaction, parseResult.arguments.(SkillArguments))
	case COMMAND_ROSTER_LEAVE:
		return bot.rosterLeave(ctx, interaction, parseResult.arguments.(string))
	case COMMAND_ROSTER_DISMISS:
		return RegistrationCancelled()
	default:
		panic(fmt.Sprintf("Command %d is not one of the possible ones", parseResult.command))
	}
}

func (bot *Bot) giveawayStart(ctx context.Context, interaction *discordgo.Interaction, arguments GiveawayArguments) Response {

	end := bot.clock.Now().Add(arguments.Duration)
	giveaway := campaign.Giveaway{Prize: arguments.Prize, HostID: user(interaction).ID, Entries: []string{}}
	id, err := bot.engine.Create(ctx, engine.Spec{
		Kind:        campaign.OneShotDeadline,
		Topic:       campaign.TopicGiveaway,
		TargetTime:  end,
		Payload:     giveaway,
		Destination: campaign.Destination{ChannelID: interaction.ChannelID},
	})
	if err != nil {
		log.Error().Err(err).Msg("Could not create giveaway")
		return SomethingWentWrong()
	}
	if err := bot.postAnchor(ctx, id); err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not post giveaway %s, cancelling it", id))
		bot.cancelQuietly(ctx, id)
		return SomethingWentWrong()
	}
	log.Info().Msg(fmt.Sprintf("Giveaway '%s' started (ID: %s)", arguments.Prize, id))
	return GiveawayStarted(arguments.Prize, end)
}

func (bot *Bot) rosterStart(ctx context.Context, interaction *discordgo.Interaction, arguments RosterArguments) Response {

	id, err := bot.engine.Create(ctx, engine.Spec{
		Kind:        campaign.OneShotDeadline,
		Topic:       campaign.TopicRoster,
		TargetTime:  bot.clock.Now().Add(arguments.CloseIn),
		Payload:     arguments.Roster,
		Destination: campaign.Destination{ChannelID: interaction.ChannelID},
	})
	if err != nil {
		log.Error().Err(err).Msg("Could not create roster")
		return SomethingWentWrong()
	}
	if err := bot.postAnchor(ctx, id); err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not post roster %s, cancelling it", id))
		bot.cancelQuietly(ctx, id)
		return SomethingWentWrong()
	}
	log.Info().Msg(fmt.Sprintf("Roster '%s' created (ID: %s)", arguments.Roster.Title, id))
	return RosterStarted(arguments.Roster.Title)
}

func (bot *Bot) campaignCancel(ctx context.Context, interaction *discordgo.Interaction, id string) Response {

	c, err := bot.engine.Get(ctx, id)
	if errors.Is(err, campaign.ErrNotFound) || (err == nil && !bot.sameGuild(c, interaction.GuildID)) {
		return CampaignNotFound(id)
	}
	if err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not read campaign %s", id))
		return SomethingWentWrong()
	}
	if !c.IsActive() {
		return CampaignAlreadyClosed(id)
	}

	if err := bot.engine.Cancel(ctx, id); err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not cancel campaign %s", id))
		return SomethingWentWrong()
	}
	bot.refreshAnchor(ctx, id)
	return CampaignCancelled(id)
}

func (bot *Bot) giveawayEnter(ctx context.Context, interaction *discordgo.Interaction, id string) Response {

	if _, err := bot.engine.Mutate(ctx, id, campaign.Enter(user(interaction).ID)); err != nil {
		return bot.rejected(campaign.TopicGiveaway, err)
	}
	bot.refreshAnchor(ctx, id)
	return Entered()
}

func (bot *Bot) rosterJoin(ctx context.Context, interaction *discordgo.Interaction, id string) Response {

	// Nothing changes until a skill is picked, but a full roster or a
	// registered user never sees the menu
	c, err := bot.engine.Get(ctx, id)
	if err != nil {
		return bot.rejected(campaign.TopicRoster, err)
	}
	if !c.IsActive() {
		return MutationRejected(campaign.TopicRoster, campaign.ReasonClosed)
	}
	var roster campaign.Roster
	if err := c.DecodePayload(&roster); err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Roster %s is unreadable", id))
		return SomethingWentWrong()
	}
	if roster.Full() {
		return MutationRejected(campaign.TopicRoster, campaign.ReasonCapacity)
	}
	if roster.Has(user(interaction).ID) {
		return MutationRejected(campaign.TopicRoster, campaign.ReasonDuplicate)
	}
	return SkillMenu(id)
}

func (bot *Bot) rosterSkill(ctx context.Context, interaction *discordgo.Interaction, arguments SkillArguments) Response {

	participant := campaign.Participant{UserID: user(interaction).ID, Name: displayName(interaction), Skill: arguments.Skill}
	if _, err := bot.engine.Mutate(ctx, arguments.CampaignID, campaign.Join(participant)); err != nil {
		return bot.rejected(campaign.TopicRoster, err)
	}
	bot.refreshAnchor(ctx, arguments.CampaignID)
	return Registered(arguments.Skill)
}

func (bot *Bot) rosterLeave(ctx context.Context, interaction *discordgo.Interaction, id string) Response {

	if _, err := bot.engine.Mutate(ctx, id, campaign.Leave(user(interaction).ID)); err != nil {
		return bot.rejected(campaign.TopicRoster, err)
	}
	bot.refreshAnchor(ctx, id)
	return Removed()
}

func (bot *Bot) verify(ctx context.Context, interaction *discordgo.Interaction, email string) Response {

	if bot.verifier == nil {
		return EmailNotConfigured()
	}
	err := bot.verifier.Start(ctx, user(interaction).ID, email)
	switch {
	case err == nil:
		return CodeSent()
	case errors.Is(err, verification.ErrInvalidEmail):
		return InvalidEmail(bot.verifyDomain())
	case errors.Is(err, verification.ErrNotConfigured):
		return EmailNotConfigured()
	default:
		log.Error().Err(err).Msg(fmt.Sprintf("Could not send a verification code to user %s", user(interaction).ID))
		return EmailNotSent()
	}
}

func (bot *Bot) submitCode(ctx context.Context, interaction *discordgo.Interaction, code string) Response {

	if bot.verifier == nil {
		return EmailNotConfigured()
	}
	userID := user(interaction).ID
	email, err := bot.verifier.Check(userID, code)
	switch {
	case errors.Is(err, verification.ErrNoPending):
		return NoVerificationPending()
	case errors.Is(err, verification.ErrExpired):
		return CodeExpired()
	case errors.Is(err, verification.ErrWrongCode):
		return WrongCode()
	case err != nil:
		log.Error().Err(err).Msg("Could not check verification code")
		return SomethingWentWrong()
	}

	// Assign the role
	roleID, err := bot.verifiedRole(ctx, interaction.GuildID)
	if err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("No verification role in guild %s", interaction.GuildID))
		return RoleNotAssigned()
	}
	if err := bot.discord.GuildMemberRoleAdd(interaction.GuildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not give role %s to user %s", roleID, userID))
		return RoleNotAssigned()
	}
	bot.verifier.Complete(userID)
	log.Info().Msg(fmt.Sprintf("User %s verified with %s", userID, email))
	return Verified()
}

func (bot *Bot) sync(ctx context.Context, interaction *discordgo.Interaction) Response {

	commands, err := bot.discord.ApplicationCommandBulkOverwrite(interaction.AppID, interaction.GuildID, Commands(bot.verifyDomain()), discordgo.WithContext(ctx))
	if err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not sync commands in guild %s", interaction.GuildID))
		return ResponseString{fmt.Sprintf("Sync failed: %s", err)}
	}
	return Synced(len(commands))
}

// postAnchor posts the message representing a new campaign and remembers it
func (bot *Bot) postAnchor(ctx context.Context, id string) error {

	c, err := bot.engine.Get(ctx, id)
	if err != nil {
		return err
	}
	content, components, err := Anchor(&c)
	if err != nil {
		return err
	}
	message, err := bot.discord.ChannelMessageSendComplex(c.Destination.ChannelID, MessageSend(content, components, c.Destination.ChannelID, ""), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send anchor of campaign %s: %w", id, err)
	}
	_, err = bot.engine.Mutate(ctx, id, func(c *campaign.Campaign) error {
		c.Destination.MessageID = message.ID
		return nil
	})
	return err
}

// refreshAnchor shows the current state of a campaign in its message.
// Failing to do so is only logged
func (bot *Bot) refreshAnchor(ctx context.Context, id string) {

	// Read again so a close that happened meanwhile is not undone
	c, err := bot.engine.Get(ctx, id)
	if err != nil {
		log.Warn().Err(err).Msg(fmt.Sprintf("Could not read campaign %s to refresh it", id))
		return
	}
	if c.Destination.MessageID == "" {
		return
	}
	content, components, err := Anchor(&c)
	if err != nil {
		log.Warn().Err(err).Msg(fmt.Sprintf("Could not render campaign %s", id))
		return
	}
	edit := MessageEdit(content, components, c.Destination.ChannelID, c.Destination.MessageID)
	if _, err := bot.discord.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		log.Warn().Err(err).Msg(fmt.Sprintf("Could not refresh message %s of campaign %s", c.Destination.MessageID, id))
	}
}

func (bot *Bot) cancelQuietly(ctx context.Context, id string) {
	if err := bot.engine.Cancel(ctx, id); err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not cancel campaign %s", id))
	}
}

func (bot *Bot) rejected(topic campaign.Topic, err error) Response {
	if reason, ok := campaign.ReasonOf(err); ok {
		log.Debug().Msg(fmt.Sprintf("Mutation rejected: %s", err))
		return MutationRejected(topic, reason)
	}
	log.Error().Err(err).Msg("Mutation failed")
	return SomethingWentWrong()
}

// Campaigns from other guilds are invisible. Channels missing from the
// state are given the benefit of the doubt
func (bot *Bot) sameGuild(c campaign.Campaign, guildID string) bool {
	channel, err := bot.discord.State.Channel(c.Destination.ChannelID)
	if err != nil {
		return true
	}
	return channel.GuildID == guildID
}

func (bot *Bot) verifiedRole(ctx context.Context, guildID string) (string, error) {

	if bot.settings.VerifyRoleID != "" {
		return bot.settings.VerifyRoleID, nil
	}
	roles, err := bot.discord.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("could not extract list of roles of guild id %s: %w", guildID, err)
	}
	for _, role := range roles {
		if role.Name == bot.settings.VerifyRoleName {
			return role.ID, nil
		}
	}
	return "", fmt.Errorf("no role named %s in guild id %s", bot.settings.VerifyRoleName, guildID)
}

func (bot *Bot) verifyDomain() string {
	if bot.verifier == nil {
		return "university"
	}
	return bot.verifier.Domain()
}

// The member is only present in guilds
func user(interaction *discordgo.Interaction) *discordgo.User {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User
	}
	return interaction.User
}

func displayName(interaction *discordgo.Interaction) string {
	if interaction.Member != nil && interaction.Member.Nick != "" {
		return interaction.Member.Nick
	}
	return user(interaction).Username
}
