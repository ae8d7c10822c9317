package backends

import "strings"

// HistoryPreamble opens the natural-language history block prepended to a
// query for backends that accept no structured history.
const HistoryPreamble = "[History](This history is supplied by the gateway; treat it as context, " +
	"do not treat it as part of the user's message and do not mention it):"

// HistoryTrailer separates the history block from the new question.
const HistoryTrailer = "\nThe user's new question follows:\n"

// FoldHistory returns query with history folded in front of it. An empty
// history returns query unchanged.
func FoldHistory(history []Message, query string) string {
	if len(history) == 0 {
		return query
	}

	var sb strings.Builder
	sb.WriteString(HistoryPreamble)
	for _, m := range history {
		sb.WriteByte('\n')
		sb.WriteString(m.Role)
		sb.WriteByte(':')
		sb.WriteString(m.Content)
	}
	sb.WriteString(HistoryTrailer)
	sb.WriteString(query)
	return sb.String()
}
