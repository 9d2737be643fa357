// Package discord is the chat-platform adapter.
//
// It owns the discordgo session and provides:
//   - Publisher: creates and edits the panel message (panel.Publisher).
//   - Router: turns slash commands, button clicks and modal submissions
//     into panel.Service calls and builds the ephemeral replies.
//   - Bot: wires both to the gateway, registers the setupavailability
//     command on ready and reconciles an existing panel once connected.
package discord
