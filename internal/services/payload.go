package services

import (
	"bytes"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// FlexString accepts a JSON string or number and keeps its text form.
// TMDB ids arrive as numbers from search results and as strings from stored rows.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// yearOf returns the text before the first '-' of a TMDB date, or nil.
func yearOf(date string) *string {
	date = strings.TrimSpace(date)
	if date == "" {
		return nil
	}
	year, _, _ := strings.Cut(date, "-")
	return optional(year)
}
