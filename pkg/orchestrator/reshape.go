package orchestrator

import (
	"fmt"

	"teclab/bitgate/pkg/backends"
)

// frameSystemPrompt merges a system prompt into the user's query.
func frameSystemPrompt(system, query string) string {
	return fmt.Sprintf("[system prompt]:\n%s\n\n[user question]:\n%s", system, query)
}

// validate rejects malformed message lists before any network call.
func validate(messages []backends.Message) error {
	if len(messages) == 0 {
		return &backends.InvalidRequestError{
			Code:    backends.CodeInvalidRequest,
			Field:   "messages",
			Message: "at least one message is required",
		}
	}
	if last := messages[len(messages)-1]; last.Role != backends.RoleUser {
		return &backends.InvalidRequestError{
			Code:    backends.CodeInvalidRequest,
			Field:   "messages",
			Message: fmt.Sprintf("last message must have role %q, got %q", backends.RoleUser, last.Role),
		}
	}
	return nil
}

// reshape splits a validated message list into the query and the prior
// history. A leading system message is folded into the query. The
// remaining history is kept only when it is an even-length strict
// user/assistant alternation; anything else is dropped whole.
func reshape(messages []backends.Message) (query string, history []backends.Message) {
	query = messages[len(messages)-1].Content
	prior := messages[:len(messages)-1]

	if len(prior) > 0 && prior[0].Role == backends.RoleSystem {
		query = frameSystemPrompt(prior[0].Content, query)
		prior = prior[1:]
	}

	if len(prior) == 0 || len(prior)%2 != 0 {
		return query, nil
	}
	for i := 0; i < len(prior); i += 2 {
		if prior[i].Role != backends.RoleUser || prior[i+1].Role != backends.RoleAssistant {
			return query, nil
		}
	}

	history = make([]backends.Message, len(prior))
	copy(history, prior)
	return query, history
}
