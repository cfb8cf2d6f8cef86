package scraper

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"gorm.io/gorm"

	"gradreach/config"
	"gradreach/models"
)

// Selector sets tried in order against faculty directory pages. University
// sites share no markup standard, so each entry pairs a card selector with
// the selectors for fields inside the card.
var facultyCardSelectors = []facultySelectors{
	{Card: ".faculty-member", Name: ".name, h3, h4", Title: ".title, .position", Email: "a[href^='mailto:']", Link: "a[href]"},
	{Card: ".people-item, .person-item", Name: ".name, h3", Title: ".title, .role", Email: "a[href^='mailto:']", Link: "a[href]"},
	{Card: "li.person, div.person", Name: "h3, h4, .person-name", Title: ".person-title", Email: "a[href^='mailto:']", Link: "a[href]"},
	{Card: ".views-row, .directory-item", Name: "h3, h4, .field-name", Title: ".field-title", Email: "a[href^='mailto:']", Link: "a[href]"},
	{Card: "table tr", Name: "td:first-child, th", Title: "td:nth-child(2)", Email: "a[href^='mailto:']", Link: "a[href]"},
}

type facultySelectors struct {
	Card  string
	Name  string
	Title string
	Email string
	Link  string
}

// ProfessorScraper extracts faculty listings from university directory
// pages and enriches individual profiles.
type ProfessorScraper struct {
	client *http.Client
	logger *log.Logger
}

func NewProfessorScraper(logger *log.Logger) *ProfessorScraper {
	return &ProfessorScraper{
		client: &http.Client{Timeout: config.AppConfig.Scraper.Timeout},
		logger: logger,
	}
}

// ScrapeFaculty crawls a faculty directory page and upserts professor rows
// for the university. Returns (found, created) counts.
func (ps *ProfessorScraper) ScrapeFaculty(ctx context.Context, db *gorm.DB, uni *models.University, directoryURL string, limit int) (int, int, error) {
	randomDelay()

	doc, err := fetchDocument(ctx, ps.client, directoryURL)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch faculty directory: %w", err)
	}

	candidates := ps.extractFaculty(doc, directoryURL)
	if len(candidates) == 0 {
		return 0, 0, fmt.Errorf("no faculty entries recognized at %s", directoryURL)
	}
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	created := 0
	now := time.Now()
	for _, cand := range candidates {
		var existing models.Professor
		query := db.Where("university_id = ?", uni.ID)
		if cand.Email != "" {
			query = query.Where("email = ? OR name = ?", cand.Email, cand.Name)
		} else {
			query = query.Where("name = ?", cand.Name)
		}

		if err := query.First(&existing).Error; err == nil {
			updates := map[string]interface{}{
				"last_scraped":    now,
				"scraping_status": "success",
			}
			if cand.Email != "" && existing.Email == "" {
				updates["email"] = cand.Email
			}
			if cand.Title != "" && existing.Title == "" {
				updates["title"] = cand.Title
			}
			if cand.ProfileURL != "" && existing.ProfileURL == "" {
				updates["profile_url"] = cand.ProfileURL
			}
			if err := db.Model(&existing).Updates(updates).Error; err != nil {
				return len(candidates), created, err
			}
			continue
		}

		prof := models.Professor{
			UniversityID:      uni.ID,
			Name:              cand.Name,
			Title:             cand.Title,
			Email:             cand.Email,
			ProfileURL:        cand.ProfileURL,
			AcceptingStudents: true,
			LastScraped:       &now,
			ScrapingStatus:    "success",
		}
		if err := db.Create(&prof).Error; err != nil {
			return len(candidates), created, err
		}
		created++
	}

	ps.logger.Printf("✅ Scraped %d faculty entries (%d new) for %s", len(candidates), created, uni.Name)
	return len(candidates), created, nil
}

type facultyCandidate struct {
	Name       string
	Title      string
	Email      string
	ProfileURL string
}

func (ps *ProfessorScraper) extractFaculty(doc *goquery.Document, baseURL string) []facultyCandidate {
	for _, sel := range facultyCardSelectors {
		var out []facultyCandidate

		doc.Find(sel.Card).Each(func(_ int, card *goquery.Selection) {
			name := strings.TrimSpace(card.Find(sel.Name).First().Text())
			if name == "" || len(strings.Fields(name)) > 6 {
				return
			}

			cand := facultyCandidate{
				Name:  name,
				Title: strings.TrimSpace(card.Find(sel.Title).First().Text()),
			}

			if href, ok := card.Find(sel.Email).First().Attr("href"); ok {
				cand.Email = strings.ToLower(strings.TrimPrefix(href, "mailto:"))
			}
			if cand.Email == "" {
				if html, err := card.Html(); err == nil {
					cand.Email = ExtractEmail(html)
				}
			}

			if href, ok := card.Find(sel.Link).First().Attr("href"); ok && !strings.HasPrefix(href, "mailto:") {
				cand.ProfileURL = absoluteURL(baseURL, href)
			}

			out = append(out, cand)
		})

		// A handful of hits means the selector set matched this site
		if len(out) >= 3 {
			return out
		}
	}
	return nil
}

// ScrapeProfile visits a professor's profile page and pulls research
// interests and publication titles.
func (ps *ProfessorScraper) ScrapeProfile(ctx context.Context, db *gorm.DB, prof *models.Professor) error {
	if prof.ProfileURL == "" {
		return fmt.Errorf("professor %d has no profile URL", prof.ID)
	}

	randomDelay()

	doc, err := fetchDocument(ctx, ps.client, prof.ProfileURL)
	if err != nil {
		if uerr := db.Model(&models.Professor{}).Where("id = ?", prof.ID).Updates(map[string]interface{}{
			"scraping_status": "failed",
			"last_scraped":    time.Now(),
		}).Error; uerr != nil {
			return uerr
		}
		return fmt.Errorf("fetch profile: %w", err)
	}

	interests := extractInterests(doc)
	publications := extractPublications(doc)

	updates := map[string]interface{}{
		"scraping_status": "success",
		"last_scraped":    time.Now(),
	}
	if prof.Email == "" {
		if email := ExtractEmail(doc.Text()); email != "" {
			updates["email"] = email
		}
	}
	if err := db.Model(&models.Professor{}).Where("id = ?", prof.ID).Updates(updates).Error; err != nil {
		return err
	}

	// Serializer-backed slice columns go through a struct update
	if len(interests) > 0 || len(publications) > 0 {
		if err := db.Model(&models.Professor{}).Where("id = ?", prof.ID).
			Select("ResearchInterests", "Publications").
			Updates(models.Professor{ResearchInterests: interests, Publications: publications}).Error; err != nil {
			return err
		}
	}
	return nil
}

func extractInterests(doc *goquery.Document) []string {
	var interests []string
	seen := map[string]bool{}

	add := func(s string) {
		s = strings.TrimSpace(strings.Trim(s, ",;"))
		if s == "" || len(s) > 80 || seen[strings.ToLower(s)] {
			return
		}
		seen[strings.ToLower(s)] = true
		interests = append(interests, s)
	}

	doc.Find(".research-interests li, .interests li, .keywords li, .research-areas li").Each(func(_ int, li *goquery.Selection) {
		add(li.Text())
	})

	if len(interests) == 0 {
		if kw, ok := doc.Find(`meta[name="keywords"]`).Attr("content"); ok {
			for _, part := range strings.Split(kw, ",") {
				add(part)
			}
		}
	}

	if len(interests) > 10 {
		interests = interests[:10]
	}
	return interests
}

func extractPublications(doc *goquery.Document) []string {
	var pubs []string
	doc.Find(".publications li, .publication-list li, ul.publications > li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		title := strings.TrimSpace(li.Text())
		if title != "" && len(title) < 300 {
			pubs = append(pubs, title)
		}
		return len(pubs) < 15
	})
	return pubs
}
