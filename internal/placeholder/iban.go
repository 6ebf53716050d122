package placeholder

import "fmt"

const fallbackIBANCountry = "DE"

// ISO 13616 total IBAN lengths for the regions the harness has been used with.
var ibanLengths = map[string]int{
	"AT": 20, "BE": 16, "CH": 21, "CZ": 24, "DE": 22, "DK": 18,
	"ES": 24, "FI": 18, "FR": 27, "GB": 22, "IE": 22, "IT": 27,
	"NL": 18, "NO": 15, "PL": 28, "PT": 25, "SE": 24, "SK": 24,
}

// iban returns a structurally valid IBAN for the resolver's region. The BBAN
// is numeric, which every listed country accepts for check-digit purposes.
func (r *Resolver) iban() string {
	country := r.region
	length, ok := ibanLengths[country]
	if !ok {
		country = fallbackIBANCountry
		length = ibanLengths[country]
	}
	bban := r.randomString(digits, length-4, length-4)
	return country + ibanCheckDigits(country, bban) + bban
}

func ibanCheckDigits(country, bban string) string {
	return fmt.Sprintf("%02d", 98-ibanMod97(bban+country+"00"))
}

// ibanMod97 computes the ISO 7064 MOD 97-10 remainder, mapping A..Z to 10..35.
func ibanMod97(s string) int {
	mod := 0
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			mod = (mod*10 + int(c-'0')) % 97
		case c >= 'A' && c <= 'Z':
			mod = (mod*100 + int(c-'A') + 10) % 97
		}
	}
	return mod
}
