package domain

import "maps"

// Research actions the model may call.
const (
	ActionListFiles      = "listFiles"
	ActionReadFile       = "readFile"
	ActionSearchCode     = "searchCode"
	ActionFinishResearch = "finishResearch"
)

// Role identifies the author of a research turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// ActionCall is a structured action requested by the research model.
type ActionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ActionResult is the output of an executed ActionCall.
type ActionResult struct {
	CallID string `json:"callId,omitempty"`
	Name   string `json:"name"`
	Output string `json:"output"`
}

// Turn is one message of the research conversation.
type Turn struct {
	Role    Role           `json:"role"`
	Text    string         `json:"text,omitempty"`
	Calls   []ActionCall   `json:"calls,omitempty"`
	Results []ActionResult `json:"results,omitempty"`
}

// HasCall reports whether the turn requests the named action.
func (t Turn) HasCall(name string) bool {
	for _, c := range t.Calls {
		if c.Name == name {
			return true
		}
	}
	return false
}

func (t Turn) clone() Turn {
	c := t
	if t.Calls != nil {
		c.Calls = make([]ActionCall, len(t.Calls))
		for i, call := range t.Calls {
			call.Args = maps.Clone(call.Args)
			c.Calls[i] = call
		}
	}
	if t.Results != nil {
		c.Results = append([]ActionResult(nil), t.Results...)
	}
	return c
}

// LastTurn returns the most recent turn of history.
func LastTurn(history []Turn) (Turn, bool) {
	if len(history) == 0 {
		return Turn{}, false
	}
	return history[len(history)-1], true
}

// CountTurns returns how many turns in history were authored by role.
func CountTurns(history []Turn, role Role) int {
	n := 0
	for _, t := range history {
		if t.Role == role {
			n++
		}
	}
	return n
}
