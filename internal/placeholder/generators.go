package placeholder

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var genders = []string{"male", "female"}

func builtinGenerators() map[string]generator {
	return map[string]generator{
		"text":      {fn: genText, requiresParam: true, usage: "a length or range, e.g. {{text[5-10]}}"},
		"number":    {fn: genDigits, requiresParam: true, usage: "a length or range, e.g. {{number[3-6]}}"},
		"phone":     {fn: genDigits, requiresParam: true, usage: "a length or range, e.g. {{phone[9]}}"},
		"password":  {fn: genText, requiresParam: true, usage: "a length or range, e.g. {{password[8-12]}}"},
		"choice":    {fn: genChoice, requiresParam: true, usage: "a list of values, e.g. {{choice[a,b,c]}}"},
		"date":      {fn: genDate, requiresParam: true, usage: "a year, month, date or range, e.g. {{date[2020-01 - 2022-06-30]}}"},
		"sentence":  {fn: genSentence, requiresParam: true, usage: "a word count, e.g. {{sentence[5]}}"},
		"paragraph": {fn: genParagraph, requiresParam: true, usage: "a sentence count, e.g. {{paragraph[2]}}"},
		"price":     {fn: genPrice, requiresParam: true, usage: "a range, e.g. {{price[10-100]}}"},

		"full_name":     {fn: func(r *Resolver, _ string) (string, error) { return r.faker.Name(), nil }},
		"first_name":    {fn: func(r *Resolver, _ string) (string, error) { return r.faker.FirstName(), nil }},
		"surname":       {fn: func(r *Resolver, _ string) (string, error) { return r.faker.LastName(), nil }},
		"username":      {fn: func(r *Resolver, _ string) (string, error) { return r.faker.Username(), nil }},
		"email":         {fn: func(r *Resolver, _ string) (string, error) { return r.faker.Email(), nil }},
		"company_email": {fn: genCompanyEmail},
		"company":       {fn: func(r *Resolver, _ string) (string, error) { return r.faker.Company(), nil }},
		"domain":        {fn: func(r *Resolver, _ string) (string, error) { return r.faker.DomainName(), nil }},
		"address":       {fn: genAddress},
		"city":          {fn: func(r *Resolver, _ string) (string, error) { return r.faker.City(), nil }},
		"country":       {fn: func(r *Resolver, _ string) (string, error) { return r.faker.Country(), nil }},
		"postcode":      {fn: func(r *Resolver, _ string) (string, error) { return r.faker.Zip(), nil }},
		"state":         {fn: func(r *Resolver, _ string) (string, error) { return r.faker.State(), nil }},
		"ipv4":          {fn: func(r *Resolver, _ string) (string, error) { return r.faker.IPv4Address(), nil }},
		"ipv6":          {fn: func(r *Resolver, _ string) (string, error) { return r.faker.IPv6Address(), nil }},
		"mac_address":   {fn: func(r *Resolver, _ string) (string, error) { return r.faker.MacAddress(), nil }},
		"url":           {fn: func(r *Resolver, _ string) (string, error) { return r.faker.URL(), nil }},
		"slug":          {fn: genSlug},
		"uuid":          {fn: genUUID},
		"currency":      {fn: func(r *Resolver, _ string) (string, error) { return r.faker.CurrencyShort(), nil }},
		"credit_card":   {fn: func(r *Resolver, _ string) (string, error) { return r.faker.CreditCardNumber(nil), nil }},
		"iban":          {fn: func(r *Resolver, _ string) (string, error) { return r.iban(), nil }},
		"boolean":       {fn: func(r *Resolver, _ string) (string, error) { return strconv.FormatBool(r.faker.Bool()), nil }},
		"gender":        {fn: func(r *Resolver, _ string) (string, error) { return genders[r.rng.IntN(len(genders))], nil }},
		"job":           {fn: func(r *Resolver, _ string) (string, error) { return r.faker.JobTitle(), nil }},
	}
}

func genText(r *Resolver, param string) (string, error) {
	lo, hi, err := parseLengthRange(param)
	if err != nil {
		return "", err
	}
	return r.randomString(alphanumeric, lo, hi), nil
}

func genDigits(r *Resolver, param string) (string, error) {
	lo, hi, err := parseLengthRange(param)
	if err != nil {
		return "", err
	}
	return r.randomString(digits, lo, hi), nil
}

func genChoice(r *Resolver, param string) (string, error) {
	options := splitChoices(param)
	return options[r.rng.IntN(len(options))], nil
}

// genDate returns a concrete YYYY-MM-DD parameter as written, without a
// calendar check.
func genDate(r *Resolver, param string) (string, error) {
	if day := strings.TrimSpace(param); fullDate.MatchString(day) {
		return day, nil
	}
	from, to, err := dateBounds(param)
	if err != nil {
		return "", err
	}
	// Both bounds are UTC midnights; Time.Sub saturates after ~292 years.
	days := int((to.Unix() - from.Unix()) / secondsPerDay)
	return from.AddDate(0, 0, r.rng.IntN(days+1)).Format(isoDate), nil
}

func genSentence(r *Resolver, param string) (string, error) {
	words, err := parseCount(param)
	if err != nil {
		return "", err
	}
	return r.faker.Sentence(words), nil
}

func genParagraph(r *Resolver, param string) (string, error) {
	sentences, err := parseCount(param)
	if err != nil {
		return "", err
	}
	return r.faker.Paragraph(1, sentences, 4+r.rng.IntN(8), " "), nil
}

func genPrice(r *Resolver, param string) (string, error) {
	lo, hi, err := parseNumericRange(param)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(lo+r.rng.Float64()*(hi-lo), 'f', 2, 64), nil
}

func genCompanyEmail(r *Resolver, _ string) (string, error) {
	local := strings.ToLower(r.faker.FirstName() + "." + r.faker.LastName())
	return local + "@" + r.faker.DomainName(), nil
}

func genAddress(r *Resolver, _ string) (string, error) {
	addr := r.faker.Address()
	return strings.ReplaceAll(addr.Address, "\n", ", "), nil
}

func genSlug(r *Resolver, _ string) (string, error) {
	words := make([]string, 3)
	for i := range words {
		words[i] = strings.ToLower(r.faker.Word())
	}
	return strings.Join(words, "-"), nil
}

func genUUID(r *Resolver, _ string) (string, error) {
	id, err := uuid.NewRandomFromReader(r.src)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (r *Resolver) randomString(charset string, lo, hi int) string {
	n := lo
	if hi > lo {
		n += r.rng.IntN(hi - lo + 1)
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = charset[r.rng.IntN(len(charset))]
	}
	return string(buf)
}
