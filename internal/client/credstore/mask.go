package credstore

const maskPrefix = "****"

// MaskAPIKey hides all but the last four characters of keys longer than
// eight characters. Shorter keys (and "") are returned unchanged.
func MaskAPIKey(key string) string {
	r := []rune(key)
	if len(r) <= 8 {
		return key
	}
	return maskPrefix + string(r[len(r)-4:])
}
