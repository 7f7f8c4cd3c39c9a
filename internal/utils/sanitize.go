package utils

import (
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// chatPolicy keeps the markup the tutor UI can render in message bubbles
	chatPolicy = bluemonday.UGCPolicy().
			AllowElements("img").
			AllowAttrs("src", "alt").OnElements("img")

	// plainPolicy strips all markup from single-line user input
	plainPolicy = bluemonday.StrictPolicy()
)

// SanitizeMessage cleans chat message content before it is stored or forwarded
func SanitizeMessage(input string) (string, error) {
	sanitized := chatPolicy.Sanitize(input)

	if strings.TrimSpace(sanitized) == "" {
		return "", fmt.Errorf("input is empty or unsafe")
	}
	return sanitized, nil
}

// SanitizePlainText cleans short free-text fields such as task text and topic names
func SanitizePlainText(input string) (string, error) {
	sanitized := strings.TrimSpace(plainPolicy.Sanitize(input))

	if sanitized == "" {
		return "", fmt.Errorf("input is empty or unsafe")
	}
	return sanitized, nil
}
