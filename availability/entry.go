package availability

// Entry is one user's availability declaration.
type Entry struct {
	Activity  string `json:"activity"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Active is an entry paired with its owner and the seconds left before it
// expires, as of the timestamp it was computed for.
type Active struct {
	UserID    string
	Entry     Entry
	Remaining int64
}

// PanelRef identifies the single panel message plus the deployment scope
// (guild) it lives in.
type PanelRef struct {
	GuildID   string `json:"guildId"`
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
}

// Valid reports whether the reference points at a message.
func (r PanelRef) Valid() bool {
	return r.ChannelID != "" && r.MessageID != ""
}
