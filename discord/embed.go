package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/endervision20/availability-bot/availability"
)

// PanelColor is the embed accent colour.
const PanelColor = 0x00aaff

func buttonStyle(s availability.ControlStyle) discordgo.ButtonStyle {
	if s == availability.StyleDanger {
		return discordgo.DangerButton
	}
	return discordgo.PrimaryButton
}

// controlRow lays controls out as one row of buttons.
func controlRow(controls []availability.Control) []discordgo.MessageComponent {
	if len(controls) == 0 {
		return []discordgo.MessageComponent{}
	}
	buttons := make([]discordgo.MessageComponent, 0, len(controls))
	for _, c := range controls {
		buttons = append(buttons, discordgo.Button{
			CustomID: c.ID,
			Label:    c.Label,
			Style:    buttonStyle(c.Style),
		})
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}

// panelEmbed builds the panel embed. A zero stamp leaves the timestamp off,
// as on the freshly posted panel; edits carry the time of the edit.
func panelEmbed(p availability.Panel, stamp time.Time) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       p.Title,
		Description: p.Body,
		Color:       PanelColor,
	}
	if !stamp.IsZero() {
		e.Timestamp = stamp.UTC().Format(time.RFC3339)
	}
	return e
}
