package orm

import (
	"strings"
)

// parseDBDefTag parses a dbdef tag string into a map of attributes
// Format: "type:uuid;primary_key;default:gen_random_uuid();not_null"
// Returns: map[string]string{"type": "uuid", "primary_key": "", "default": "gen_random_uuid()", "not_null": ""}
func parseDBDefTag(tagValue string) map[string]string {
	attributes := make(map[string]string)

	if tagValue == "" {
		return attributes
	}

	for _, part := range strings.Split(tagValue, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, ":") {
			kv := strings.SplitN(part, ":", 2)
			key := strings.TrimSpace(kv[0])
			value := strings.TrimSpace(kv[1])

			if existing, exists := attributes[key]; exists {
				attributes[key] = existing + ";" + value
			} else {
				attributes[key] = value
			}
		} else {
			attributes[part] = ""
		}
	}

	return attributes
}

// toSnakeCase converts PascalCase to snake_case, keeping acronyms together
// (LotNumber -> lot_number, AuctionID -> auction_id).
func toSnakeCase(s string) string {
	var result strings.Builder

	for i, r := range s {
		isUpper := r >= 'A' && r <= 'Z'

		if i > 0 {
			prevIsLower := s[i-1] >= 'a' && s[i-1] <= 'z'
			prevIsDigit := s[i-1] >= '0' && s[i-1] <= '9'
			prevIsUpper := s[i-1] >= 'A' && s[i-1] <= 'Z'

			if isUpper && (prevIsLower || prevIsDigit) {
				result.WriteRune('_')
			} else if isUpper && prevIsUpper && i+1 < len(s) {
				nextIsLower := s[i+1] >= 'a' && s[i+1] <= 'z'
				if nextIsLower {
					result.WriteRune('_')
				}
			}
		}

		if isUpper {
			result.WriteRune(r - 'A' + 'a')
		} else {
			result.WriteRune(r)
		}
	}

	return result.String()
}

// deriveTableName pluralizes the snake_case struct name.
func deriveTableName(structName string) string {
	snake := toSnakeCase(structName)

	irregularPlurals := map[string]string{
		"person": "people",
		"child":  "children",
		"man":    "men",
		"woman":  "women",
		"index":  "indexes",
		"datum":  "data",
	}

	if plural, ok := irregularPlurals[snake]; ok {
		return plural
	}

	if strings.HasSuffix(snake, "y") && !strings.HasSuffix(snake, "ey") && !strings.HasSuffix(snake, "ay") && !strings.HasSuffix(snake, "oy") && !strings.HasSuffix(snake, "uy") {
		return snake[:len(snake)-1] + "ies"
	}
	if strings.HasSuffix(snake, "s") || strings.HasSuffix(snake, "sh") || strings.HasSuffix(snake, "ch") || strings.HasSuffix(snake, "x") || strings.HasSuffix(snake, "z") {
		return snake + "es"
	}
	return snake + "s"
}
