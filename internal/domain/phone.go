package domain

// phoneSuffixLen is how many trailing digits identify a phone when country or
// area prefixes differ between systems.
const phoneSuffixLen = 10

// MinPhoneDigits is the shortest number the messaging gateway can deliver to.
const MinPhoneDigits = 10

// DigitsOnly strips everything but ASCII digits.
func DigitsOnly(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// PhoneSuffix returns the last 10 digits of a normalized phone.
func PhoneSuffix(digits string) string {
	if len(digits) <= phoneSuffixLen {
		return digits
	}
	return digits[len(digits)-phoneSuffixLen:]
}

// PhonesMatch compares two raw phones: exact digits first, then the
// 10-digit suffix.
func PhonesMatch(a, b string) bool {
	da, db := DigitsOnly(a), DigitsOnly(b)
	if da == "" || db == "" {
		return false
	}
	if da == db {
		return true
	}
	if len(da) < MinPhoneDigits || len(db) < MinPhoneDigits {
		return false
	}
	return PhoneSuffix(da) == PhoneSuffix(db)
}
