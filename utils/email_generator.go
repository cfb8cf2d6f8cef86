package utils

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"gradreach/config"
	"gradreach/models"
)

// DraftResult is a generated outreach email before it is persisted
type DraftResult struct {
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	GeneratedByAI bool   `json:"generated_by_ai"`
	Fallback      bool   `json:"fallback"`
	WordCount     int    `json:"word_count"`
}

// GenerateDraft produces a personalized outreach email for the professor.
// It retries generation when the output is unparseable or outside the word
// range, then falls back to the built-in template. It never fails outright.
func GenerateDraft(ctx context.Context, gen TextGenerator, user *models.User, prof *models.Professor, uni *models.University) *DraftResult {
	cfg := config.AppConfig.Draft

	if gen == nil {
		return fallbackDraft(user, prof, uni)
	}

	prompt := buildDraftPrompt(user, prof, uni, cfg.MinWords, cfg.MaxWords)

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		raw, err := gen.GenerateText(ctx, prompt)
		if err != nil {
			LogError(err, "draft generation failed", map[string]interface{}{
				"user_id":      user.ID,
				"professor_id": prof.ID,
				"attempt":      attempt,
			})
			continue
		}

		subject, body, err := parseDraftResponse(raw)
		if err != nil {
			LogEvent("draft response unparseable, retrying", map[string]interface{}{
				"professor_id": prof.ID,
				"attempt":      attempt,
			})
			continue
		}

		// Subject must stay under 150 characters, counted in runes
		if utf8.RuneCountInString(subject) >= 150 {
			LogEvent("draft subject too long, retrying", map[string]interface{}{
				"professor_id": prof.ID,
				"attempt":      attempt,
			})
			continue
		}

		words := CountWords(body)
		if words < cfg.MinWords || words > cfg.MaxWords {
			LogEvent("draft outside word range, retrying", map[string]interface{}{
				"professor_id": prof.ID,
				"words":        words,
				"attempt":      attempt,
			})
			continue
		}

		return &DraftResult{
			Subject:       subject,
			Body:          body,
			GeneratedByAI: true,
			WordCount:     words,
		}
	}

	return fallbackDraft(user, prof, uni)
}

func buildDraftPrompt(user *models.User, prof *models.Professor, uni *models.University, minWords, maxWords int) string {
	var b strings.Builder
	b.WriteString("Write a professional cold email from a prospective PhD student to a professor.\n\n")
	fmt.Fprintf(&b, "Student name: %s\n", user.Name)
	fmt.Fprintf(&b, "Student background: %s\n", user.Background)
	fmt.Fprintf(&b, "Student research interests: %s\n\n", strings.Join(user.ResearchInterests, ", "))
	fmt.Fprintf(&b, "Professor: %s %s\n", prof.Title, prof.Name)
	if uni != nil {
		fmt.Fprintf(&b, "University: %s, %s\n", uni.Name, uni.Country)
	}
	fmt.Fprintf(&b, "Professor research interests: %s\n", strings.Join(prof.ResearchInterests, ", "))
	if len(prof.Publications) > 0 {
		fmt.Fprintf(&b, "Recent publications to reference: %s\n", strings.Join(prof.Publications, "; "))
	}
	b.WriteString("\nRequirements:\n")
	fmt.Fprintf(&b, "- Between %d and %d words\n", minWords, maxWords)
	b.WriteString("- Mention specific overlapping research areas\n")
	b.WriteString("- Ask about PhD openings and funding\n")
	b.WriteString("- Polite, concise, no flattery\n")
	b.WriteString("\nRespond in exactly this format:\n")
	b.WriteString("SUBJECT: <subject line>\n")
	b.WriteString("BODY:\n<email body>\n")
	return b.String()
}

func parseDraftResponse(raw string) (subject, body string, err error) {
	raw = strings.TrimSpace(raw)

	subjIdx := strings.Index(raw, "SUBJECT:")
	bodyIdx := strings.Index(raw, "BODY:")
	if subjIdx == -1 || bodyIdx == -1 || bodyIdx < subjIdx {
		return "", "", fmt.Errorf("response missing SUBJECT/BODY markers")
	}

	subject = strings.TrimSpace(raw[subjIdx+len("SUBJECT:") : bodyIdx])
	body = strings.TrimSpace(raw[bodyIdx+len("BODY:"):])

	if subject == "" || body == "" {
		return "", "", fmt.Errorf("empty subject or body")
	}
	return subject, body, nil
}

// fallbackDraft renders the built-in template used when AI generation is
// unavailable or keeps failing.
func fallbackDraft(user *models.User, prof *models.Professor, uni *models.University) *DraftResult {
	interests := strings.Join(user.ResearchInterests, ", ")
	if interests == "" {
		interests = "my field of study"
	}

	uniName := "your university"
	if uni != nil && uni.Name != "" {
		uniName = uni.Name
	}

	profName := prof.Name
	if prof.Title != "" {
		profName = prof.Title + " " + prof.Name
	}

	subject := fmt.Sprintf("Prospective PhD Student Inquiry - %s", user.Name)
	body := fmt.Sprintf(`Dear %s,

I hope this message finds you well. My name is %s, and I am writing to express my strong interest in pursuing a PhD under your supervision at %s.

%s My research interests include %s, which I believe align closely with your work. I have followed your research with great interest and would be honored to contribute to your group.

I would be grateful for the opportunity to discuss whether you are accepting new PhD students, and whether funded positions or scholarships may be available. I have attached my CV for your review and would be happy to provide any further materials.

Thank you very much for your time and consideration. I look forward to hearing from you.

Best regards,
%s`, profName, user.Name, uniName, user.Background, interests, user.Name)

	return &DraftResult{
		Subject:   subject,
		Body:      body,
		Fallback:  true,
		WordCount: CountWords(body),
	}
}
