package scraper

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"gradreach/config"
	"gradreach/models"
)

const facultyDirectoryHTML = `<html><body>
<div class="faculty-member">
  <h3>Alice Carter</h3>
  <div class="title">Professor</div>
  <a href="/people/acarter">Profile</a>
  <a href="mailto:acarter@uni.edu">Email</a>
</div>
<div class="faculty-member">
  <h3>Bob Nguyen</h3>
  <div class="title">Associate Professor</div>
  <a href="/people/bnguyen">Profile</a>
  <p>Contact: bnguyen@uni.edu</p>
</div>
<div class="faculty-member">
  <h3>Carol Diaz</h3>
  <div class="title">Assistant Professor</div>
  <a href="https://example.org/cdiaz">Profile</a>
  <a href="mailto:cdiaz@uni.edu">Email</a>
</div>
<div class="faculty-member">
  <h3>Department of Mechanical and Aerospace Engineering Graduate Office</h3>
</div>
</body></html>`

const profilePageHTML = `<html><head>
<meta name="keywords" content="robotics, control theory">
</head><body>
<ul class="research-interests">
  <li>Machine Learning</li>
  <li>Computer Vision</li>
  <li>machine learning</li>
</ul>
<ul class="publications">
  <li>A Survey of Deep Learning</li>
  <li>Vision Transformers at Scale</li>
</ul>
<p>Reach me at cdiaz@uni.edu</p>
</body></html>`

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.MigrateDB(db))
	return db
}

func testScraper() *ProfessorScraper {
	return &ProfessorScraper{
		client: &http.Client{},
		logger: log.New(io.Discard, "", 0),
	}
}

func TestExtractFaculty(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(facultyDirectoryHTML))
	require.NoError(t, err)

	candidates := testScraper().extractFaculty(doc, "https://uni.edu/faculty")
	require.Len(t, candidates, 3) // the long non-person heading is dropped

	assert.Equal(t, "Alice Carter", candidates[0].Name)
	assert.Equal(t, "Professor", candidates[0].Title)
	assert.Equal(t, "acarter@uni.edu", candidates[0].Email)
	assert.Equal(t, "https://uni.edu/people/acarter", candidates[0].ProfileURL)

	// Email recovered from card text when there is no mailto link
	assert.Equal(t, "bnguyen@uni.edu", candidates[1].Email)

	// Absolute profile links pass through untouched
	assert.Equal(t, "https://example.org/cdiaz", candidates[2].ProfileURL)
}

func TestExtractFacultyNoMatch(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body><p>Nothing here</p></body></html>"))
	require.NoError(t, err)

	assert.Nil(t, testScraper().extractFaculty(doc, "https://uni.edu"))
}

func TestScrapeFacultyUpserts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, facultyDirectoryHTML)
	}))
	defer srv.Close()

	db := setupTestDB(t)
	uni := models.University{Name: "Test University", Country: "USA"}
	require.NoError(t, db.Create(&uni).Error)

	// Alice already exists without an email; the scrape should fill it in
	existing := models.Professor{UniversityID: uni.ID, Name: "Alice Carter"}
	require.NoError(t, db.Create(&existing).Error)

	ps := testScraper()
	found, created, err := ps.ScrapeFaculty(context.Background(), db, &uni, srv.URL, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, found)
	assert.Equal(t, 2, created)

	var alice models.Professor
	require.NoError(t, db.Where("name = ?", "Alice Carter").First(&alice).Error)
	assert.Equal(t, "acarter@uni.edu", alice.Email)
	assert.Equal(t, "Professor", alice.Title)
	assert.NotNil(t, alice.LastScraped)
}

func TestScrapeProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, profilePageHTML)
	}))
	defer srv.Close()

	db := setupTestDB(t)
	uni := models.University{Name: "Test University", Country: "USA"}
	require.NoError(t, db.Create(&uni).Error)
	prof := models.Professor{UniversityID: uni.ID, Name: "Carol Diaz", ProfileURL: srv.URL}
	require.NoError(t, db.Create(&prof).Error)

	require.NoError(t, testScraper().ScrapeProfile(context.Background(), db, &prof))

	var reloaded models.Professor
	require.NoError(t, db.First(&reloaded, prof.ID).Error)
	assert.Equal(t, []string{"Machine Learning", "Computer Vision"}, reloaded.ResearchInterests)
	assert.Equal(t, []string{"A Survey of Deep Learning", "Vision Transformers at Scale"}, reloaded.Publications)
	assert.Equal(t, "cdiaz@uni.edu", reloaded.Email)
	assert.Equal(t, "success", reloaded.ScrapingStatus)
}

func TestExtractEmail(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"plain", "Contact grad-admissions@uni.edu for info", "grad-admissions@uni.edu"},
		{"skips noreply", "noreply@uni.edu then office@uni.edu", "office@uni.edu"},
		{"skips webmaster", "webmaster@uni.edu only", ""},
		{"none", "no addresses here", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractEmail(tt.text))
		})
	}
}

func TestAbsoluteURL(t *testing.T) {
	assert.Equal(t, "https://uni.edu/people/x", absoluteURL("https://uni.edu/faculty", "/people/x"))
	assert.Equal(t, "https://other.org/y", absoluteURL("https://uni.edu/faculty", "https://other.org/y"))
}

func TestDomainFromURL(t *testing.T) {
	assert.Equal(t, "uni.edu", domainFromURL("https://www.uni.edu/about"))
	assert.Equal(t, "uni.edu", domainFromURL("https://uni.edu"))
}
