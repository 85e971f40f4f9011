package storage

// PlainPairs rebuilds question/answer pairs from plain-channel entries.
// A user entry without a following model entry is skipped.
func PlainPairs(entries []HistoryEntry) []Turn {
	var (
		turns   []Turn
		pending *string
	)
	for i := range entries {
		e := entries[i]
		if e.Channel != ChannelPlain {
			continue
		}
		switch e.Role {
		case RoleUser:
			q := e.Text
			pending = &q
		case RoleModel:
			if pending == nil {
				continue
			}
			turns = append(turns, Turn{Question: *pending, Answer: e.Text})
			pending = nil
		}
	}
	return turns
}

// AssistedEntries returns the role-tagged entries of the assisted channel in order.
func AssistedEntries(entries []HistoryEntry) []HistoryEntry {
	var out []HistoryEntry
	for _, e := range entries {
		if e.Channel == ChannelAssisted {
			out = append(out, e)
		}
	}
	return out
}

// HasChannel reports whether any entry belongs to channel.
func HasChannel(entries []HistoryEntry, channel Channel) bool {
	for _, e := range entries {
		if e.Channel == channel {
			return true
		}
	}
	return false
}

// NewTurn returns the user/model entry pair for one completed exchange.
func NewTurn(channel Channel, question, answer string) []HistoryEntry {
	return []HistoryEntry{
		{Channel: channel, Role: RoleUser, Text: question},
		{Channel: channel, Role: RoleModel, Text: answer},
	}
}
