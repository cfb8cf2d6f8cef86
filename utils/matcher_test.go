package utils

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"gradreach/config"
	"gradreach/models"
)

type fakeGenerator struct {
	response string
	err      error
	calls    int
}

func (f *fakeGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.response, f.err
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.MigrateDB(db))
	return db
}

func TestJaccardScore(t *testing.T) {
	tests := []struct {
		name string
		a    []string
		b    []string
		want int
	}{
		{"identical", []string{"ml", "nlp"}, []string{"ml", "nlp"}, 100},
		{"disjoint", []string{"ml"}, []string{"optics"}, 0},
		{"half overlap", []string{"ml", "nlp", "vision"}, []string{"ml", "nlp", "robotics"}, 50},
		{"one of three", []string{"ml", "nlp"}, []string{"nlp"}, 50},
		{"both empty", nil, nil, 0},
		{"one empty", []string{"ml"}, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, JaccardScore(tt.a, tt.b))
		})
	}
}

func TestCommonInterests(t *testing.T) {
	common := CommonInterests([]string{"ml", "nlp", "vision"}, []string{"nlp", "robotics", "ml"})
	assert.ElementsMatch(t, []string{"ml", "nlp"}, common)

	assert.Empty(t, CommonInterests([]string{"ml"}, []string{"optics"}))
}

func TestParseScoringResponse(t *testing.T) {
	res, err := parseScoringResponse("SCORE: 85\nMATCHING_AREAS: machine learning, NLP\nEXPLANATION: Strong overlap.\nBoth work on language models.")
	require.NoError(t, err)
	assert.Equal(t, 85, res.Score)
	assert.Equal(t, []string{"machine learning", "NLP"}, res.MatchedInterests)
	assert.Equal(t, "Strong overlap. Both work on language models.", res.Explanation)

	res, err = parseScoringResponse("SCORE: 140\nMATCHING_AREAS: none\nEXPLANATION: x")
	require.NoError(t, err)
	assert.Equal(t, 100, res.Score)
	assert.Empty(t, res.MatchedInterests)

	res, err = parseScoringResponse("SCORE: -5\nEXPLANATION: x")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Score)

	_, err = parseScoringResponse("EXPLANATION: no score here")
	require.Error(t, err)

	_, err = parseScoringResponse("SCORE: high")
	require.Error(t, err)
}

func TestScoreCompatibilityUsesGenerator(t *testing.T) {
	gen := &fakeGenerator{response: "SCORE: 72\nMATCHING_AREAS: deep learning\nEXPLANATION: Good fit."}
	user := &models.User{ResearchInterests: []string{"Deep Learning", "NLP"}}
	prof := &models.Professor{ResearchInterests: []string{"deep learning"}}

	res := ScoreCompatibility(context.Background(), gen, user, prof)
	assert.Equal(t, 72, res.Score)
	assert.False(t, res.Approximate)
	assert.Equal(t, 1, gen.calls)
}

func TestScoreCompatibilityFallbacks(t *testing.T) {
	user := &models.User{ResearchInterests: []string{"ml", "nlp"}}
	prof := &models.Professor{ResearchInterests: []string{"ml"}}

	t.Run("no generator", func(t *testing.T) {
		res := ScoreCompatibility(context.Background(), nil, user, prof)
		assert.True(t, res.Approximate)
		assert.Equal(t, "generation-unavailable", res.Reason)
		assert.Equal(t, 50, res.Score)
		assert.Equal(t, []string{"ml"}, res.MatchedInterests)
	})

	t.Run("generator error", func(t *testing.T) {
		gen := &fakeGenerator{err: errors.New("quota exhausted")}
		res := ScoreCompatibility(context.Background(), gen, user, prof)
		assert.True(t, res.Approximate)
		assert.Equal(t, "generation-failed", res.Reason)
	})

	t.Run("unparseable response", func(t *testing.T) {
		gen := &fakeGenerator{response: "I think they match quite well!"}
		res := ScoreCompatibility(context.Background(), gen, user, prof)
		assert.True(t, res.Approximate)
		assert.Equal(t, "generation-failed", res.Reason)
	})

	t.Run("empty interests", func(t *testing.T) {
		gen := &fakeGenerator{response: "SCORE: 90"}
		res := ScoreCompatibility(context.Background(), gen, &models.User{}, prof)
		assert.True(t, res.Approximate)
		assert.Equal(t, "insufficient-data", res.Reason)
		assert.Equal(t, 0, gen.calls)
	})
}

func TestSaveMatchScoreAppendsHistory(t *testing.T) {
	db := setupTestDB(t)

	user := models.User{Email: "s@example.com", PasswordHash: "x", Name: "S"}
	require.NoError(t, db.Create(&user).Error)
	uni := models.University{Name: "U", Country: "USA"}
	require.NoError(t, db.Create(&uni).Error)
	prof := models.Professor{UniversityID: uni.ID, Name: "Dr. P"}
	require.NoError(t, db.Create(&prof).Error)

	first := &MatchResult{Score: 40, MatchedInterests: []string{"ml"}, Approximate: true, Reason: "generation-unavailable"}
	_, err := SaveMatchScore(db, user.ID, prof.ID, first)
	require.NoError(t, err)

	second := &MatchResult{Score: 80, MatchedInterests: []string{"ml", "nlp"}, Explanation: "Strong fit"}
	_, err = SaveMatchScore(db, user.ID, prof.ID, second)
	require.NoError(t, err)

	var history []models.MatchScore
	require.NoError(t, db.Where("user_id = ? AND professor_id = ?", user.ID, prof.ID).
		Order("id ASC").Find(&history).Error)
	require.Len(t, history, 2)
	assert.Equal(t, 40, history[0].Score)
	assert.Equal(t, 80, history[1].Score)

	// The professor carries the latest score
	var reloaded models.Professor
	require.NoError(t, db.First(&reloaded, prof.ID).Error)
	require.NotNil(t, reloaded.MatchScore)
	assert.Equal(t, 80, *reloaded.MatchScore)
	assert.Equal(t, []string{"ml", "nlp"}, reloaded.MatchReasons)
}
