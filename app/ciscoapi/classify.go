package ciscoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ResponseCategory is the outcome of inspecting one upstream HTTP response.
type ResponseCategory int

const (
	CategoryOK ResponseCategory = iota
	CategorySoftEmpty
	CategoryAuthFailed
	CategoryInsufficientPermissions
	CategoryTimeout
	CategoryMalformedJSON
	CategoryHTTP500
	CategoryAPIError
)

func (c ResponseCategory) String() string {
	switch c {
	case CategoryOK:
		return "ok"
	case CategorySoftEmpty:
		return "soft_empty"
	case CategoryAuthFailed:
		return "auth_failed"
	case CategoryInsufficientPermissions:
		return "insufficient_permissions"
	case CategoryTimeout:
		return "timeout"
	case CategoryMalformedJSON:
		return "malformed_json"
	case CategoryHTTP500:
		return "http_500"
	case CategoryAPIError:
		return "api_error"
	default:
		return "unknown"
	}
}

// The gateway answers several failures with HTTP 200 and an HTML page.
var htmlMarkers = []struct {
	marker   string
	category ResponseCategory
}{
	{"Not Authorized", CategoryAuthFailed},
	{"Developer Inactive", CategoryInsufficientPermissions},
	{"Gateway Timeout", CategoryTimeout},
}

var softErrorPrefixes = []string{
	"Incorrect PID:",
	"EOX information does not exist for the following product ID(s):",
}

// Classification is the classified response. Envelope is set for
// CategoryOK and CategorySoftEmpty.
type Classification struct {
	Category ResponseCategory
	Envelope *PageEnvelope
	Detail   string
}

// classifyStatus applies the checks shared by the token and data endpoints.
func classifyStatus(status int, body []byte) (ResponseCategory, string, bool) {
	switch status {
	case http.StatusUnauthorized:
		return CategoryAuthFailed, "invalid client or client credentials", true
	case http.StatusInternalServerError:
		return CategoryHTTP500, "result was HTTP 500", true
	}

	text := string(body)
	for _, m := range htmlMarkers {
		if strings.Contains(text, m.marker) {
			return m.category, m.marker, true
		}
	}

	if status == http.StatusForbidden {
		return CategoryInsufficientPermissions, "result was HTTP 403", true
	}
	if status >= 400 {
		return CategoryHTTP500, fmt.Sprintf("result was HTTP %d", status), true
	}
	return CategoryOK, "", false
}

// ClassifyEnvelope turns an EoX data endpoint response into a Classification.
func ClassifyEnvelope(status int, body []byte) Classification {
	if category, detail, done := classifyStatus(status, body); done {
		return Classification{Category: category, Detail: detail}
	}

	var envelope PageEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Classification{Category: CategoryMalformedJSON, Detail: err.Error()}
	}

	if apiErr := envelope.APIError(); apiErr != nil {
		if isSoftError(apiErr) {
			return Classification{
				Category: CategorySoftEmpty,
				Envelope: &PageEnvelope{
					PaginationResponseRecord: envelope.PaginationResponseRecord,
					SoftError:                apiErr,
				},
				Detail: apiErr.Error(),
			}
		}
		return Classification{Category: CategoryAPIError, Detail: apiErr.Error()}
	}

	return Classification{Category: CategoryOK, Envelope: &envelope}
}

func isSoftError(e *EOXError) bool {
	for _, prefix := range softErrorPrefixes {
		if strings.HasPrefix(e.ErrorDescription, prefix) {
			return true
		}
	}
	return false
}
