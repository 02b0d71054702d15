package fetcher

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// MatchBudget finds the budget entry for identifier in a budgetOverview
// document. The overview keys entries by internal topic id, so the match is
// on the entry's "action" text, which names the topic identifier. It returns
// nil when the overview is empty, malformed or has no matching entry.
func MatchBudget(overview, identifier string) json.RawMessage {
	if identifier == "" || !gjson.Valid(overview) {
		return nil
	}
	var found json.RawMessage
	gjson.Get(overview, "budgetTopicActionMap").ForEach(func(_, actions gjson.Result) bool {
		actions.ForEach(func(_, action gjson.Result) bool {
			if strings.Contains(action.Get("action").String(), identifier) {
				found = json.RawMessage(action.Raw)
				return false
			}
			return true
		})
		return found == nil
	})
	return found
}
