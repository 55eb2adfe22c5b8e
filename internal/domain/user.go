package domain

// User is a contactable member of the organizational directory.
type User struct {
	ID             string
	Name           string
	Phone          string
	WhatsApp       string
	HierarchyLevel int
	Department     string
}

// ContactPhone returns the digits the gateway should use, WhatsApp first,
// or "" when neither number is long enough.
func (u User) ContactPhone() string {
	for _, raw := range []string{u.WhatsApp, u.Phone} {
		if d := DigitsOnly(raw); len(d) >= MinPhoneDigits {
			return d
		}
	}
	return ""
}
