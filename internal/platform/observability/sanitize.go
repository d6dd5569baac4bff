package observability

import "unicode"

const defaultStringLimit = 256

// sanitizeString drops control characters and truncates to limit runes.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}
	cleaned := make([]rune, 0, min(len(value), limit))
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		if len(cleaned) == limit {
			break
		}
		cleaned = append(cleaned, r)
	}
	return string(cleaned)
}

// SanitizeRoute cleans a route pattern for logging.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod cleans an HTTP method for logging.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeCulture cleans a caller supplied culture code before it reaches logs or metric attributes.
func SanitizeCulture(code string) string {
	return sanitizeString(code, 32)
}
