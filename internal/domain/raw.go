package domain

import (
	"bytes"
	"encoding/json"
	"io"
	"regexp"
)

// jsonObjectPattern spans from the first '{' to the last '}' in the text
var jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

// FindJSONObject locates the outermost JSON object embedded in model text
// (code fences, prose before or after) and decodes it. Numbers decode as
// json.Number so long numeric SKUs keep every digit.
func FindJSONObject(text string) (map[string]any, bool) {
	match := jsonObjectPattern.FindString(text)
	if match == "" {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(match)))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return obj, true
}

// ParseRawText builds a RawResult from model text, failing when no JSON
// object can be recovered from it.
func ParseRawText(text string) (RawResult, error) {
	if text == "" {
		return RawResult{}, &MalformedResponseError{Reason: "empty response"}
	}
	obj, ok := FindJSONObject(text)
	if !ok {
		return RawResult{}, &MalformedResponseError{Reason: "no JSON object in response", Raw: text}
	}
	return RawResult{Object: obj, Text: text}, nil
}
