// Utilities for parsing captured browser sessions (cURL commands).
package shared

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// SessionHeaders represents headers and cookies recovered from a "Copy as cURL" capture.
// The shelf adapters replay these on every request so the tool acts as the signed-in browser.
type SessionHeaders struct {
	Headers map[string]string
	Cookie  string
}

var (
	headerFlagRegex = regexp.MustCompile(`-H\s+'([^']+)'|-H\s+"([^"]+)"`)
	cookieFlagRegex = regexp.MustCompile(`-b\s+'([^']+)'|-b\s+"([^"]+)"`)
)

// ParseSessionFile reads a file containing a cURL command and extracts headers.
func ParseSessionFile(filepath string) (*SessionHeaders, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	return ParseSessionCapture(content)
}

// ParseSessionCapture parses a cURL command string and extracts headers and the cookie.
func ParseSessionCapture(data []byte) (*SessionHeaders, error) {
	cmd := string(data)
	cmd = strings.ReplaceAll(cmd, "\\\n", " ")
	cmd = strings.ReplaceAll(cmd, "\\", "")

	headers := make(map[string]string)
	var cookie string

	matches := headerFlagRegex.FindAllStringSubmatch(cmd, -1)
	for _, match := range matches {
		headerLine := match[1]
		if headerLine == "" {
			headerLine = match[2]
		}

		parts := strings.SplitN(headerLine, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if strings.EqualFold(key, "cookie") {
			cookie = value
		} else {
			headers[key] = value
		}
	}

	// Cookies may also arrive via curl's -b flag rather than a header.
	if cookie == "" {
		if m := cookieFlagRegex.FindStringSubmatch(cmd); len(m) > 1 {
			cookie = m[1]
			if cookie == "" {
				cookie = m[2]
			}
		}
	}

	if len(headers) == 0 && cookie == "" {
		return nil, fmt.Errorf("no headers found in curl command")
	}

	return &SessionHeaders{Headers: headers, Cookie: cookie}, nil
}

// Apply sets the captured headers and cookie on an outgoing request's header map.
func (s *SessionHeaders) Apply(set func(key, value string)) {
	for key, value := range s.Headers {
		set(key, value)
	}
	if s.Cookie != "" {
		set("Cookie", s.Cookie)
	}
}
