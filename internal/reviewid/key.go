package reviewid

// KeySeparator joins the parts of a match key.
const KeySeparator = "::"

// MatchKey builds the (bakery, text, date) join key. It returns false when both
// the bakery and the text part are empty; a date alone is not a key.
func MatchKey(bakery, text, date any) (string, bool) {
	bakeryPart, _ := NormalizeID(bakery)
	textPart := trimString(text)
	datePart := trimString(date)
	if bakeryPart == "" && textPart == "" {
		return "", false
	}
	return bakeryPart + KeySeparator + textPart + KeySeparator + datePart, true
}
