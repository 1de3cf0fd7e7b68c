package provider

import "strings"

// SplitName splits a full name into first and last parts. The first
// whitespace-separated token is the first name; everything after it is
// the last name. All adapters use this same split so a caller that
// supplies "Jane van der Berg" gets identical fields at every vendor.
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// normalizeContact fills FirstName/LastName from Name when the caller
// supplied only a full name.
func normalizeContact(c Contact) Contact {
	if c.FirstName == "" && c.LastName == "" && c.Name != "" {
		c.FirstName, c.LastName = SplitName(c.Name)
	}
	return c
}
