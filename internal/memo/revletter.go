package memo

// Version letters run A..Z, AA..AZ, BA.. like spreadsheet columns:
// bijective base-26, no zero digit.

// VersionOrdinal decodes a version letter sequence to its 1-based
// ordinal ("A" -> 1, "Z" -> 26, "AA" -> 27). Returns 0 for input
// outside A-Z.
func VersionOrdinal(v string) int {
	n := 0
	for _, c := range v {
		if c < 'A' || c > 'Z' {
			return 0
		}
		n = n*26 + int(c-'A') + 1
	}
	return n
}

// VersionLetter encodes a 1-based ordinal back to letters.
func VersionLetter(n int) string {
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		n--
		i--
		buf[i] = byte('A' + n%26)
		n /= 26
	}
	return string(buf[i:])
}

// NextVersion returns the letter sequence following v.
func NextVersion(v string) string {
	return VersionLetter(VersionOrdinal(v) + 1)
}
