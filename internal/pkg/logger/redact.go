package logger

import "strings"

// RedactEmail masks the local part of an address, keeping the first two
// characters and the domain: "ops.team@shop.example" -> "op***@shop.example".
// Local parts of two characters or fewer are fully masked. A display-name
// form such as "Ops <ops.team@shop.example>" keeps the name and brackets.
func RedactEmail(email string) string {
	if lt := strings.LastIndex(email, "<"); lt >= 0 && strings.HasSuffix(email, ">") {
		return email[:lt+1] + RedactEmail(email[lt+1:len(email)-1]) + ">"
	}
	at := strings.LastIndex(email, "@")
	if at < 0 || strings.Count(email, "@") != 1 {
		return "***@***"
	}
	name, domain := email[:at], email[at+1:]
	if len(name) > 2 {
		return name[:2] + "***@" + domain
	}
	return "***@" + domain
}

// RedactRecipients masks every address in a comma-separated recipient list.
func RedactRecipients(list string) string {
	parts := strings.Split(list, ",")
	for i, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			parts[i] = RedactEmail(p)
		}
	}
	return strings.Join(parts, ", ")
}
