package services

import (
	"net/mail"
	"strings"

	"github.com/justsurfingit/jobpilot/internal/models"
)

// FindApplicationForEmail picks the application an email is about. company
// is the name the extractor read from the body and may be empty. Apps are
// expected newest first; the first hit wins.
func FindApplicationForEmail(apps []models.JobApplication, company, subject, rawSender string) *models.JobApplication {
	// "Stripe Recruiting <jobs@stripe.com>" -> name="stripe recruiting", addr="jobs@stripe.com"
	senderName := ""
	senderAddr := ""
	if parsed, err := mail.ParseAddress(rawSender); err == nil {
		senderName = strings.ToLower(parsed.Name)
		senderAddr = strings.ToLower(parsed.Address)
	} else {
		senderAddr = strings.ToLower(rawSender)
	}
	domain := ""
	if parts := strings.Split(senderAddr, "@"); len(parts) == 2 {
		domain = parts[1]
	}
	subjectLower := strings.ToLower(subject)
	extracted := normalizeCompany(company)

	for i := range apps {
		name := normalizeCompany(apps[i].Company)
		// Very short names match everything.
		if len(name) < 3 {
			continue
		}
		if extracted != "" && extracted == name {
			return &apps[i]
		}
		if strings.Contains(subjectLower, name) {
			return &apps[i]
		}
		if senderName != "" && strings.Contains(senderName, name) {
			return &apps[i]
		}
		if domain != "" && strings.Contains(domain, strings.ReplaceAll(name, " ", "")) {
			return &apps[i]
		}
	}
	return nil
}

func normalizeCompany(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, suffix := range []string{" inc.", " inc", " ltd.", " ltd", " llc", " gmbh"} {
		name = strings.TrimSuffix(name, suffix)
	}
	return strings.TrimSuffix(name, ",")
}
