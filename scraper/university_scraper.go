package scraper

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"gorm.io/gorm"

	"gradreach/config"
	"gradreach/models"
	"gradreach/utils"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// Keywords that indicate a funding or scholarship page
var scholarshipKeywords = []string{
	"scholarship", "fellowship", "funding", "stipend", "assistantship",
	"fully funded", "tuition waiver", "financial aid",
}

// seedUniversity is one curated entry for the discovery catalog
type seedUniversity struct {
	Name    string
	Website string
}

// universitiesByCountry is the curated discovery catalog of institutions
// with strong PhD programs, keyed by country.
var universitiesByCountry = map[string][]seedUniversity{
	"USA": {
		{"Massachusetts Institute of Technology", "https://web.mit.edu"},
		{"Stanford University", "https://www.stanford.edu"},
		{"Harvard University", "https://www.harvard.edu"},
		{"California Institute of Technology", "https://www.caltech.edu"},
		{"University of California Berkeley", "https://www.berkeley.edu"},
		{"Carnegie Mellon University", "https://www.cmu.edu"},
		{"University of Michigan", "https://umich.edu"},
		{"Georgia Institute of Technology", "https://www.gatech.edu"},
		{"University of Illinois Urbana-Champaign", "https://illinois.edu"},
		{"Cornell University", "https://www.cornell.edu"},
	},
	"UK": {
		{"University of Oxford", "https://www.ox.ac.uk"},
		{"University of Cambridge", "https://www.cam.ac.uk"},
		{"Imperial College London", "https://www.imperial.ac.uk"},
		{"University College London", "https://www.ucl.ac.uk"},
		{"University of Edinburgh", "https://www.ed.ac.uk"},
		{"University of Manchester", "https://www.manchester.ac.uk"},
		{"Kings College London", "https://www.kcl.ac.uk"},
		{"London School of Economics", "https://www.lse.ac.uk"},
	},
	"Canada": {
		{"University of Toronto", "https://www.utoronto.ca"},
		{"University of British Columbia", "https://www.ubc.ca"},
		{"McGill University", "https://www.mcgill.ca"},
		{"University of Waterloo", "https://uwaterloo.ca"},
		{"University of Alberta", "https://www.ualberta.ca"},
		{"McMaster University", "https://www.mcmaster.ca"},
	},
	"Germany": {
		{"Technical University of Munich", "https://www.tum.de"},
		{"Ludwig Maximilian University of Munich", "https://www.lmu.de"},
		{"Heidelberg University", "https://www.uni-heidelberg.de"},
		{"Humboldt University of Berlin", "https://www.hu-berlin.de"},
		{"RWTH Aachen University", "https://www.rwth-aachen.de"},
	},
	"Australia": {
		{"Australian National University", "https://www.anu.edu.au"},
		{"University of Melbourne", "https://www.unimelb.edu.au"},
		{"University of Sydney", "https://www.sydney.edu.au"},
		{"University of New South Wales", "https://www.unsw.edu.au"},
		{"University of Queensland", "https://www.uq.edu.au"},
	},
	"Singapore": {
		{"National University of Singapore", "https://www.nus.edu.sg"},
		{"Nanyang Technological University", "https://www.ntu.edu.sg"},
	},
	"Switzerland": {
		{"ETH Zurich", "https://ethz.ch"},
		{"EPFL", "https://www.epfl.ch"},
	},
	"Netherlands": {
		{"Delft University of Technology", "https://www.tudelft.nl"},
		{"University of Amsterdam", "https://www.uva.nl"},
		{"Eindhoven University of Technology", "https://www.tue.nl"},
	},
	"Sweden": {
		{"KTH Royal Institute of Technology", "https://www.kth.se"},
		{"Lund University", "https://www.lu.se"},
	},
	"China": {
		{"Tsinghua University", "https://www.tsinghua.edu.cn"},
		{"Peking University", "https://www.pku.edu.cn"},
		{"Zhejiang University", "https://www.zju.edu.cn"},
		{"Fudan University", "https://www.fudan.edu.cn"},
		{"Shanghai Jiao Tong University", "https://www.sjtu.edu.cn"},
	},
	"Japan": {
		{"University of Tokyo", "https://www.u-tokyo.ac.jp"},
		{"Kyoto University", "https://www.kyoto-u.ac.jp"},
		{"Osaka University", "https://www.osaka-u.ac.jp"},
	},
}

// UniversityScraper discovers universities from the curated catalog and
// enriches them by crawling their websites.
type UniversityScraper struct {
	client *http.Client
	logger *log.Logger
}

func NewUniversityScraper(logger *log.Logger) *UniversityScraper {
	return &UniversityScraper{
		client: &http.Client{Timeout: config.AppConfig.Scraper.Timeout},
		logger: logger,
	}
}

// AvailableCountries lists the countries covered by the catalog
func AvailableCountries() []string {
	countries := make([]string, 0, len(universitiesByCountry))
	for c := range universitiesByCountry {
		countries = append(countries, c)
	}
	return countries
}

// DiscoverUniversities upserts catalog entries for a country (or all
// countries when empty) and returns created/updated counts.
func (us *UniversityScraper) DiscoverUniversities(db *gorm.DB, country string, limit int) (created, updated int, err error) {
	if country != "" {
		if _, ok := universitiesByCountry[country]; !ok {
			return 0, 0, fmt.Errorf("no catalog entries for country %q", country)
		}
	}

	process := func(c string, list []seedUniversity) error {
		for _, seed := range list {
			if limit > 0 && created+updated >= limit {
				return nil
			}

			var uni models.University
			res := db.Where("name = ?", seed.Name).First(&uni)
			if res.Error == nil {
				if err := db.Model(&uni).Updates(map[string]interface{}{
					"website": seed.Website,
					"country": c,
					"domain":  domainFromURL(seed.Website),
				}).Error; err != nil {
					return err
				}
				updated++
				continue
			}
			if res.Error != gorm.ErrRecordNotFound {
				return res.Error
			}

			uni = models.University{
				Name:                 seed.Name,
				Country:              c,
				Website:              seed.Website,
				Domain:               domainFromURL(seed.Website),
				Type:                 "Public",
				AcceptsInternational: true,
			}
			if err := db.Create(&uni).Error; err != nil {
				return err
			}
			created++
		}
		return nil
	}

	if country != "" {
		err = process(country, universitiesByCountry[country])
		return created, updated, err
	}

	for c, list := range universitiesByCountry {
		if err = process(c, list); err != nil {
			return created, updated, err
		}
		if limit > 0 && created+updated >= limit {
			break
		}
	}
	return created, updated, nil
}

// ScrapeDetails crawls the university homepage for a description, a contact
// address and scholarship signals, then persists what it found.
func (us *UniversityScraper) ScrapeDetails(ctx context.Context, db *gorm.DB, uni *models.University) error {
	if uni.Website == "" {
		return markScrapeFailed(db, uni, "no website on record")
	}

	randomDelay()

	doc, err := fetchDocument(ctx, us.client, uni.Website)
	if err != nil {
		us.logger.Printf("⚠️ Failed to fetch %s: %v", uni.Website, err)
		return markScrapeFailed(db, uni, err.Error())
	}

	updates := map[string]interface{}{
		"scraping_status": "success",
		"scraping_error":  "",
		"last_scraped":    time.Now(),
	}

	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		updates["description"] = strings.TrimSpace(desc)
	}

	pageText := doc.Text()
	if email := ExtractEmail(pageText); email != "" {
		updates["contact_email"] = email
	}

	lower := strings.ToLower(pageText)
	for _, kw := range scholarshipKeywords {
		if strings.Contains(lower, kw) {
			updates["has_scholarship"] = true
			break
		}
	}

	// Pick up an explicit funding page link if one is on the homepage
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(a.Text()))
		for _, kw := range scholarshipKeywords {
			if strings.Contains(text, kw) {
				if href, ok := a.Attr("href"); ok {
					updates["scholarship_url"] = absoluteURL(uni.Website, href)
					updates["has_scholarship"] = true
					return false
				}
			}
		}
		return true
	})

	if err := db.Model(&models.University{}).Where("id = ?", uni.ID).Updates(updates).Error; err != nil {
		return err
	}

	utils.LogEvent("university scraped", map[string]interface{}{
		"university_id": uni.ID,
		"website":       uni.Website,
	})
	return nil
}

func markScrapeFailed(db *gorm.DB, uni *models.University, reason string) error {
	return db.Model(&models.University{}).Where("id = ?", uni.ID).Updates(map[string]interface{}{
		"scraping_status": "failed",
		"scraping_error":  reason,
		"last_scraped":    time.Now(),
	}).Error
}

// ExtractEmail finds the first plausible contact address in text, skipping
// role accounts that never belong to a person.
func ExtractEmail(text string) string {
	for _, email := range emailPattern.FindAllString(text, 10) {
		lower := strings.ToLower(email)
		skip := false
		for _, role := range []string{"webmaster", "postmaster", "noreply", "no-reply"} {
			if strings.Contains(lower, role) {
				skip = true
				break
			}
		}
		if !skip {
			return lower
		}
	}
	return ""
}

// fetchDocument downloads a page and parses it, identifying as a regular
// browser per the configured user agent.
func fetchDocument(ctx context.Context, client *http.Client, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", config.AppConfig.Scraper.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// randomDelay sleeps between requests so crawls stay polite
func randomDelay() {
	min := config.AppConfig.Scraper.DelayMinSec
	max := config.AppConfig.Scraper.DelayMaxSec
	if max <= min {
		max = min + 1
	}
	delay := time.Duration(min+rand.Intn(max-min)) * time.Second
	time.Sleep(delay)
}

func domainFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}

func absoluteURL(base, href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return parsed.ResolveReference(ref).String()
}
