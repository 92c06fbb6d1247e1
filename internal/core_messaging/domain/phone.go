package domain

import (
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

// MinPhoneDigits is the shortest digit string accepted as a sendable phone number.
const MinPhoneDigits = 10

// NormalizePhone reduces raw to its digits and, when libphonenumber recognises it,
// canonicalizes it to E.164 without the leading '+'.
// Numbers with fewer than MinPhoneDigits digits are invalid.
func NormalizePhone(raw, defaultRegion string) (string, bool) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)
	if len(digits) < MinPhoneDigits {
		return digits, false
	}

	candidate := digits
	if strings.HasPrefix(strings.TrimSpace(raw), "+") {
		candidate = "+" + digits
	}
	region := strings.ToUpper(defaultRegion)
	if region == "" {
		region = "ZZ"
	}
	parsed, err := phonenumbers.Parse(candidate, region)
	if err != nil || !phonenumbers.IsPossibleNumber(parsed) {
		return digits, true
	}
	return strings.TrimPrefix(phonenumbers.Format(parsed, phonenumbers.E164), "+"), true
}
