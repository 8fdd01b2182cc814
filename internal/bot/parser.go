package bot

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"cybersecbot/internal/campaign"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Slash command names
const (
	NAME_GIVEAWAY_START  = "giveaway_start"
	NAME_ROSTER_START    = "roster_start"
	NAME_CAMPAIGN_CANCEL = "campaign_cancel"
	NAME_VERIFY          = "verify"
	NAME_SUBMIT_CODE     = "submit_code"
	NAME_SYNC            = "sync"
	NAME_HELP            = "help"
)

// Custom id prefixes of the buttons. The campaign id follows a colon
const (
	BUTTON_GIVEAWAY_ENTER = "giveaway_enter"
	BUTTON_ROSTER_JOIN    = "roster_join"
	BUTTON_ROSTER_SKILL   = "roster_skill"
	BUTTON_ROSTER_LEAVE   = "roster_leave"
	BUTTON_ROSTER_DISMISS = "roster_dismiss"
)

const (
	COMMAND_GIVEAWAY_START  = iota
	COMMAND_ROSTER_START    = iota
	COMMAND_CAMPAIGN_CANCEL = iota
	COMMAND_VERIFY          = iota
	COMMAND_SUBMIT_CODE     = iota
	COMMAND_SYNC            = iota
	COMMAND_HELP            = iota
	COMMAND_GIVEAWAY_ENTER  = iota
	COMMAND_ROSTER_JOIN     = iota
	COMMAND_ROSTER_SKILL    = iota
	COMMAND_ROSTER_LEAVE    = iota
	COMMAND_ROSTER_DISMISS  = iota
)

const (
	PARSEID_OK                     = iota
	PARSEID_COMMAND_NOT_RECOGNISED = iota
	PARSEID_NO_INPUT               = iota
	PARSEID_NOT_A_NUMBER           = iota
	PARSEID_NOT_POSITIVE           = iota
	PARSEID_NOT_A_CAMPAIGN_ID      = iota
	PARSEID_NOT_A_SKILL            = iota
	PARSEID_NOT_A_URL              = iota
	PARSEID_TOO_LONG               = iota
	PARSEID_TOO_LARGE              = iota
)

var errorMessages map[int]string = map[int]string{
	PARSEID_COMMAND_NOT_RECOGNISED: "Command `%s` not recognised",
	PARSEID_NO_INPUT:               "Command `%s` requires `%s`",
	PARSEID_NOT_A_NUMBER:           "Input `%v` is not a whole number",
	PARSEID_NOT_POSITIVE:           "`%s` must be positive",
	PARSEID_NOT_A_CAMPAIGN_ID:      "Input `%s` is not a campaign id",
	PARSEID_NOT_A_SKILL:            "Skill level `%s` not recognised",
	PARSEID_NOT_A_URL:              "Input `%s` is not a web address",
	PARSEID_TOO_LONG:               "`%s` can be at most %d characters long",
	PARSEID_TOO_LARGE:              "`%s` can be at most %d",
}

// Longest accepted text inputs
const (
	maxTitle       = 100
	maxDateTime    = 100
	maxDescription = 500
	maxPrize       = 200
	maxThumbnail   = 200
	maxLimit       = 999
)

type ParseResult struct {
	command      int
	parseid      int
	errorMessage string
	arguments    interface{}
}

type GiveawayArguments struct {
	Duration time.Duration
	Prize    string
}

type RosterArguments struct {
	Roster  campaign.Roster
	CloseIn time.Duration
}

type SkillArguments struct {
	CampaignID string
	Skill      campaign.Skill
}

// Options are the values of the options of a slash command by name
type Options map[string]interface{}

func failure(command int, parseid int, args ...interface{}) ParseResult {
	return ParseResult{command: command, parseid: parseid, errorMessage: fmt.Sprintf(errorMessages[parseid], args...)}
}

// ParseCommand validates the options of a slash command
func ParseCommand(name string, options Options) ParseResult {

	switch name {
	case NAME_GIVEAWAY_START:
		// /giveaway_start duration_minutes prize
		command := COMMAND_GIVEAWAY_START
		minutes, result := positiveOption(command, name, options, "duration_minutes")
		if result != nil {
			return *result
		}
		prize, result := textOption(command, name, options, "prize", maxPrize, true)
		if result != nil {
			return *result
		}
		arguments := GiveawayArguments{Duration: time.Duration(minutes) * time.Minute, Prize: prize}
		return ParseResult{command: command, parseid: PARSEID_OK, arguments: arguments}
	case NAME_ROSTER_START:
		// /roster_start title date_time description close_in_minutes [limit] [thumbnail]
		return parseRoster(options)
	case NAME_CAMPAIGN_CANCEL:
		// /campaign_cancel id
		command := COMMAND_CAMPAIGN_CANCEL
		id, result := textOption(command, name, options, "id", 0, true)
		if result != nil {
			return *result
		}
		return parseCampaignID(command, id)
	case NAME_VERIFY:
		// /verify email
		command := COMMAND_VERIFY
		email, result := textOption(command, name, options, "email", 0, true)
		if result != nil {
			return *result
		}
		return ParseResult{command: command, parseid: PARSEID_OK, arguments: email}
	case NAME_SUBMIT_CODE:
		// /submit_code code
		command := COMMAND_SUBMIT_CODE
		code, result := textOption(command, name, options, "code", 0, true)
		if result != nil {
			return *result
		}
		return ParseResult{command: command, parseid: PARSEID_OK, arguments: code}
	case NAME_SYNC:
		return ParseResult{command: COMMAND_SYNC, parseid: PARSEID_OK}
	case NAME_HELP:
		return ParseResult{command: COMMAND_HELP, parseid: PARSEID_OK}
	default:
		return failure(0, PARSEID_COMMAND_NOT_RECOGNISED, name)
	}
}

func parseRoster(options Options) ParseResult {

	command := COMMAND_ROSTER_START
	name := NAME_ROSTER_START
	var roster campaign.Roster
	var result *ParseResult

	if roster.Title, result = textOption(command, name, options, "title", maxTitle, true); result != nil {
		return *result
	}
	if roster.DateTime, result = textOption(command, name, options, "date_time", maxDateTime, true); result != nil {
		return *result
	}
	if roster.Description, result = textOption(command, name, options, "description", maxDescription, true); result != nil {
		return *result
	}
	minutes, result := positiveOption(command, name, options, "close_in_minutes")
	if result != nil {
		return *result
	}

	// Optional limit, blank means unlimited
	if _, ok := options["limit"]; ok {
		limit, result := positiveOption(command, name, options, "limit")
		if result != nil {
			return *result
		}
		if limit > maxLimit {
			return failure(command, PARSEID_TOO_LARGE, "limit", maxLimit)
		}
		roster.Limit = int(limit)
	}

	// Optional thumbnail
	thumbnail, result := textOption(command, name, options, "thumbnail", maxThumbnail, false)
	if result != nil {
		return *result
	}
	if thumbnail != "" {
		if u, err := url.Parse(thumbnail); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return failure(command, PARSEID_NOT_A_URL, thumbnail)
		}
		roster.Thumbnail = thumbnail
	}

	roster.Participants = []campaign.Participant{}
	arguments := RosterArguments{Roster: roster, CloseIn: time.Duration(minutes) * time.Minute}
	return ParseResult{command: command, parseid: PARSEID_OK, arguments: arguments}
}

func textOption(command int, name string, options Options, option string, maxLength int, required bool) (string, *ParseResult) {
	value, _ := options[option].(string)
	value = strings.TrimSpace(value)
	if value == "" {
		if required {
			result := failure(command, PARSEID_NO_INPUT, name, option)
			return "", &result
		}
		return "", nil
	}
	if maxLength > 0 && len([]rune(value)) > maxLength {
		result := failure(command, PARSEID_TOO_LONG, option, maxLength)
		return "", &result
	}
	return value, nil
}

// Integer options arrive as float64 once decoded from JSON
func positiveOption(command int, name string, options Options, option string) (int64, *ParseResult) {
	raw, ok := options[option]
	if !ok || raw == nil {
		result := failure(command, PARSEID_NO_INPUT, name, option)
		return 0, &result
	}
	var value int64
	switch v := raw.(type) {
	case float64:
		if v != float64(int64(v)) {
			result := failure(command, PARSEID_NOT_A_NUMBER, v)
			return 0, &result
		}
		value = int64(v)
	case int:
		value = int64(v)
	case int64:
		value = v
	default:
		result := failure(command, PARSEID_NOT_A_NUMBER, v)
		return 0, &result
	}
	if value <= 0 {
		result := failure(command, PARSEID_NOT_POSITIVE, option)
		return 0, &result
	}
	return value, nil
}

func parseCampaignID(command int, id string) ParseResult {
	if _, err := uuid.Parse(id); err != nil {
		return failure(command, PARSEID_NOT_A_CAMPAIGN_ID, id)
	}
	return ParseResult{command: command, parseid: PARSEID_OK, arguments: id}
}

// CustomID builds the custom id of a button
func CustomID(button string, campaignID string, extra ...string) string {
	return strings.Join(append([]string{button, campaignID}, extra...), ":")
}

// ParseCustomID parses the custom id of a pressed button
func ParseCustomID(customID string) ParseResult {

	words := strings.Split(customID, ":")
	button := words[0]
	words = words[1:]
	if len(words) == 0 || words[0] == "" {
		log.Debug().Msg(fmt.Sprintf("Button %s carries no campaign id", customID))
		return failure(0, PARSEID_NO_INPUT, button, "id")
	}

	switch button {
	case BUTTON_GIVEAWAY_ENTER:
		return parseCampaignID(COMMAND_GIVEAWAY_ENTER, words[0])
	case BUTTON_ROSTER_JOIN:
		return parseCampaignID(COMMAND_ROSTER_JOIN, words[0])
	case BUTTON_ROSTER_LEAVE:
		return parseCampaignID(COMMAND_ROSTER_LEAVE, words[0])
	case BUTTON_ROSTER_DISMISS:
		return parseCampaignID(COMMAND_ROSTER_DISMISS, words[0])
	case BUTTON_ROSTER_SKILL:
		// roster_skill:<id>:<skill>
		command := COMMAND_ROSTER_SKILL
		result := parseCampaignID(command, words[0])
		if result.parseid != PARSEID_OK {
			return result
		}
		if len(words) < 2 {
			return failure(command, PARSEID_NO_INPUT, button, "skill")
		}
		skill, err := campaign.ParseSkill(words[1])
		if err != nil {
			return failure(command, PARSEID_NOT_A_SKILL, words[1])
		}
		return ParseResult{command: command, parseid: PARSEID_OK, arguments: SkillArguments{CampaignID: words[0], Skill: skill}}
	default:
		return failure(0, PARSEID_COMMAND_NOT_RECOGNISED, button)
	}
}
