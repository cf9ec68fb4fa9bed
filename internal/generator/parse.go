package generator

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// wireSource mirrors the model's reply. Pointers tell "missing" from "empty";
// a non-string value fails Unmarshal, which counts as a parse failure.
type wireSource struct {
	JSX *string `json:"jsx"`
	CSS *string `json:"css"`
}

// parseReply extracts {jsx, css} from raw model output.
// A fenced ```json block wins; otherwise the whole reply must be a JSON object.
func parseReply(raw string) (Source, bool) {
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		if src, ok := decodeObject(m[1]); ok {
			return src, true
		}
	}
	return decodeObject(raw)
}

func decodeObject(s string) (Source, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return Source{}, false
	}
	var w wireSource
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return Source{}, false
	}
	var src Source
	if w.JSX != nil {
		src.JSX = *w.JSX
	}
	if w.CSS != nil {
		src.CSS = *w.CSS
	}
	return src, true
}
