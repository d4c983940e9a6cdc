package media

import (
	"errors"
	"strings"
)

// Class is the retry class of a tool failure.
type Class int

const (
	// ClassTransient failures are retried once after a tool refresh.
	ClassTransient Class = iota
	// ClassAuthorization failures need operator action and are never retried.
	ClassAuthorization
)

func (c Class) String() string {
	if c == ClassAuthorization {
		return "authorization"
	}
	return "transient"
}

// authPatterns match yt-dlp diagnostics for sources that demand a signed-in
// session or age confirmation. Bare words such as "cookies" also show up in
// transient warnings, so only full phrases are listed.
var authPatterns = []string{
	"sign in to confirm",
	"login required",
	"use --cookies",
	"--cookies-from-browser",
	"confirm your age",
	"age-restricted",
	"age restricted",
}

// Classify returns the retry class of err.
func Classify(err error) Class {
	if err == nil {
		return ClassTransient
	}
	text := err.Error()
	var te *ToolError
	if errors.As(err, &te) {
		text += "\n" + te.Stderr
	}
	text = strings.ToLower(text)
	for _, p := range authPatterns {
		if strings.Contains(text, p) {
			return ClassAuthorization
		}
	}
	return ClassTransient
}
