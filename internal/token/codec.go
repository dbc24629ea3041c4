package token

import (
	"errors"
	"strings"
)

// Separator joins the encoded fields. Field values containing it corrupt the
// encoding; the scanner format has never escaped it and decode fails loudly
// instead of producing shifted fields.
const Separator = "|"

// ErrMalformed reports a scanned string that does not split into exactly
// four fields.
var ErrMalformed = errors.New("malformed token: expected 4 pipe-delimited fields")

// Data carries the identity fields a token round-trips. No field-level
// validation happens here; a bogus category simply never resolves against
// the registry.
type Data struct {
	DisplayName string
	ExternalID  string
	Affiliation string
	Category    string
}

// Encode produces the scannable string for an identity.
func Encode(d Data) string {
	return strings.Join([]string{d.DisplayName, d.ExternalID, d.Affiliation, d.Category}, Separator)
}

// Decode parses a scanned string back into its fields.
func Decode(s string) (Data, error) {
	parts := strings.Split(strings.TrimSpace(s), Separator)
	if len(parts) != 4 {
		return Data{}, ErrMalformed
	}
	return Data{
		DisplayName: parts[0],
		ExternalID:  parts[1],
		Affiliation: parts[2],
		Category:    parts[3],
	}, nil
}
