package utils

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradreach/config"
	"gradreach/models"
)

func setDraftConfig(t *testing.T, minWords, maxWords, maxRetries int) {
	t.Helper()
	old := config.AppConfig.Draft
	config.AppConfig.Draft = config.DraftConfig{MinWords: minWords, MaxWords: maxWords, MaxRetries: maxRetries}
	t.Cleanup(func() { config.AppConfig.Draft = old })
}

func draftFixtures() (*models.User, *models.Professor, *models.University) {
	user := &models.User{
		Name:              "Jane Doe",
		Background:        "Master's student in computer science.",
		ResearchInterests: []string{"machine learning", "NLP"},
	}
	prof := &models.Professor{
		Name:              "Smith",
		Title:             "Prof.",
		ResearchInterests: []string{"machine learning"},
	}
	uni := &models.University{Name: "MIT", Country: "USA"}
	return user, prof, uni
}

func TestParseDraftResponse(t *testing.T) {
	subject, body, err := parseDraftResponse("SUBJECT: PhD Inquiry\nBODY:\nDear Professor,\n\nI am writing to you.")
	require.NoError(t, err)
	assert.Equal(t, "PhD Inquiry", subject)
	assert.True(t, strings.HasPrefix(body, "Dear Professor,"))

	_, _, err = parseDraftResponse("Here is your email: Dear Professor...")
	require.Error(t, err)

	_, _, err = parseDraftResponse("BODY:\nhello\nSUBJECT: backwards")
	require.Error(t, err)

	_, _, err = parseDraftResponse("SUBJECT:\nBODY:\n")
	require.Error(t, err)
}

func TestGenerateDraftWithoutGenerator(t *testing.T) {
	setDraftConfig(t, 50, 400, 2)
	user, prof, uni := draftFixtures()

	draft := GenerateDraft(context.Background(), nil, user, prof, uni)
	assert.True(t, draft.Fallback)
	assert.False(t, draft.GeneratedByAI)
	assert.Contains(t, draft.Subject, "Jane Doe")
	assert.Contains(t, draft.Body, "Prof. Smith")
	assert.Contains(t, draft.Body, "MIT")
	assert.Equal(t, CountWords(draft.Body), draft.WordCount)
}

func TestGenerateDraftHappyPath(t *testing.T) {
	setDraftConfig(t, 5, 100, 2)
	user, prof, uni := draftFixtures()

	body := "Dear Professor Smith, I am very interested in your machine learning research and would like to apply."
	gen := &fakeGenerator{response: "SUBJECT: PhD Inquiry\nBODY:\n" + body}

	draft := GenerateDraft(context.Background(), gen, user, prof, uni)
	assert.True(t, draft.GeneratedByAI)
	assert.False(t, draft.Fallback)
	assert.Equal(t, "PhD Inquiry", draft.Subject)
	assert.Equal(t, body, draft.Body)
	assert.Equal(t, 1, gen.calls)
}

func TestGenerateDraftCountsSubjectRunes(t *testing.T) {
	setDraftConfig(t, 5, 100, 2)
	user, prof, uni := draftFixtures()

	subject := strings.Repeat("é", 149) // 298 bytes but only 149 runes
	body := "Dear Professor Smith, I would like to join your lab this fall."
	gen := &fakeGenerator{response: "SUBJECT: " + subject + "\nBODY:\n" + body}

	draft := GenerateDraft(context.Background(), gen, user, prof, uni)
	assert.False(t, draft.Fallback)
	assert.Equal(t, subject, draft.Subject)
	assert.Equal(t, 1, gen.calls)
}

func TestGenerateDraftRetriesThenFallsBack(t *testing.T) {
	setDraftConfig(t, 50, 400, 2)
	user, prof, uni := draftFixtures()

	t.Run("unparseable output", func(t *testing.T) {
		gen := &fakeGenerator{response: "no markers here"}
		draft := GenerateDraft(context.Background(), gen, user, prof, uni)
		assert.True(t, draft.Fallback)
		assert.Equal(t, 3, gen.calls) // initial try plus two retries
	})

	t.Run("generator errors", func(t *testing.T) {
		gen := &fakeGenerator{err: errors.New("backend down")}
		draft := GenerateDraft(context.Background(), gen, user, prof, uni)
		assert.True(t, draft.Fallback)
		assert.Equal(t, 3, gen.calls)
	})

	t.Run("body too short", func(t *testing.T) {
		gen := &fakeGenerator{response: "SUBJECT: Hi\nBODY:\nToo short."}
		draft := GenerateDraft(context.Background(), gen, user, prof, uni)
		assert.True(t, draft.Fallback)
		assert.Equal(t, 3, gen.calls)
	})

	t.Run("subject at the 150 rune limit", func(t *testing.T) {
		subject := strings.Repeat("é", 150) // 300 bytes, 150 runes
		body := strings.Repeat("word ", 60)
		gen := &fakeGenerator{response: "SUBJECT: " + subject + "\nBODY:\n" + body}
		draft := GenerateDraft(context.Background(), gen, user, prof, uni)
		assert.True(t, draft.Fallback)
		assert.Equal(t, 3, gen.calls)
	})
}
