package utils

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"gradreach/models"
)

// MatchResult is the outcome of one compatibility computation
type MatchResult struct {
	Score            int      `json:"score"` // 0-100
	MatchedInterests []string `json:"matched_interests"`
	Explanation      string   `json:"explanation"`
	Approximate      bool     `json:"approximate"`
	Reason           string   `json:"reason,omitempty"`
}

// ScoreCompatibility computes how well a user's research profile matches a
// professor's. It never returns an error: when the AI path is unavailable or
// misbehaves it falls back to lexical overlap and marks the result
// approximate.
func ScoreCompatibility(ctx context.Context, gen TextGenerator, user *models.User, prof *models.Professor) *MatchResult {
	userInterests := NormalizeTerms(user.ResearchInterests)
	profInterests := NormalizeTerms(prof.ResearchInterests)

	if len(userInterests) == 0 || len(profInterests) == 0 {
		res := jaccardResult(userInterests, profInterests)
		res.Reason = "insufficient-data"
		res.Explanation = "Not enough research interest data to compute a full compatibility score"
		return res
	}

	if gen == nil {
		res := jaccardResult(userInterests, profInterests)
		res.Reason = "generation-unavailable"
		return res
	}

	prompt := buildScoringPrompt(user, prof)
	raw, err := gen.GenerateText(ctx, prompt)
	if err != nil {
		LogError(err, "compatibility scoring failed, using lexical fallback", map[string]interface{}{
			"user_id":      user.ID,
			"professor_id": prof.ID,
		})
		res := jaccardResult(userInterests, profInterests)
		res.Reason = "generation-failed"
		return res
	}

	res, err := parseScoringResponse(raw)
	if err != nil {
		LogError(err, "unparseable scoring response, using lexical fallback", map[string]interface{}{
			"user_id":      user.ID,
			"professor_id": prof.ID,
		})
		res := jaccardResult(userInterests, profInterests)
		res.Reason = "generation-failed"
		return res
	}

	return res
}

// JaccardScore computes lexical overlap between two normalized interest
// lists as round(100 * |intersection| / |union|).
func JaccardScore(a, b []string) int {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}

	intersection := 0
	union := len(a)
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			intersection++
		} else {
			union++
		}
	}

	if union == 0 {
		return 0
	}
	return int(math.Round(100 * float64(intersection) / float64(union)))
}

// CommonInterests returns the terms present in both normalized lists
func CommonInterests(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	var common []string
	for _, t := range b {
		if set[t] {
			common = append(common, t)
			delete(set, t)
		}
	}
	return common
}

// SaveMatchScore appends a MatchScore row and refreshes the professor's
// denormalized score cache. The history is never rewritten.
func SaveMatchScore(db *gorm.DB, userID, professorID uint, res *MatchResult) (*models.MatchScore, error) {
	score := &models.MatchScore{
		UserID:           userID,
		ProfessorID:      professorID,
		Score:            res.Score,
		MatchedInterests: res.MatchedInterests,
		Explanation:      res.Explanation,
		Approximate:      res.Approximate,
		Reason:           res.Reason,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(score).Error; err != nil {
			return err
		}
		return tx.Model(&models.Professor{}).Where("id = ?", professorID).
			Select("MatchScore", "MatchReasons").
			Updates(models.Professor{MatchScore: Pointer(res.Score), MatchReasons: res.MatchedInterests}).Error
	})
	if err != nil {
		return nil, err
	}
	return score, nil
}

func jaccardResult(userInterests, profInterests []string) *MatchResult {
	return &MatchResult{
		Score:            JaccardScore(userInterests, profInterests),
		MatchedInterests: CommonInterests(userInterests, profInterests),
		Explanation:      "Score estimated from overlapping research interests",
		Approximate:      true,
	}
}

func buildScoringPrompt(user *models.User, prof *models.Professor) string {
	var b strings.Builder
	b.WriteString("You are an academic advisor evaluating how well a prospective PhD student matches a professor.\n\n")
	fmt.Fprintf(&b, "Student background: %s\n", user.Background)
	fmt.Fprintf(&b, "Student research interests: %s\n\n", strings.Join(user.ResearchInterests, ", "))
	fmt.Fprintf(&b, "Professor: %s, %s\n", prof.Name, prof.Title)
	fmt.Fprintf(&b, "Professor research interests: %s\n", strings.Join(prof.ResearchInterests, ", "))
	if len(prof.Publications) > 0 {
		fmt.Fprintf(&b, "Recent publications: %s\n", strings.Join(prof.Publications, "; "))
	}
	b.WriteString("\nRate the compatibility from 0 to 100 and respond in exactly this format:\n")
	b.WriteString("SCORE: <number>\n")
	b.WriteString("MATCHING_AREAS: <comma-separated list of overlapping research areas>\n")
	b.WriteString("EXPLANATION: <2-3 sentence justification>\n")
	return b.String()
}

func parseScoringResponse(raw string) (*MatchResult, error) {
	res := &MatchResult{}
	scoreFound := false

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "SCORE:"):
			v := strings.TrimSpace(strings.TrimPrefix(line, "SCORE:"))
			score, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid score %q: %w", v, err)
			}
			if score < 0 {
				score = 0
			}
			if score > 100 {
				score = 100
			}
			res.Score = score
			scoreFound = true
		case strings.HasPrefix(line, "MATCHING_AREAS:"):
			v := strings.TrimSpace(strings.TrimPrefix(line, "MATCHING_AREAS:"))
			for _, area := range strings.Split(v, ",") {
				area = strings.TrimSpace(area)
				if area != "" && !strings.EqualFold(area, "none") {
					res.MatchedInterests = append(res.MatchedInterests, area)
				}
			}
		case strings.HasPrefix(line, "EXPLANATION:"):
			res.Explanation = strings.TrimSpace(strings.TrimPrefix(line, "EXPLANATION:"))
		default:
			// Continuation of a multi-line explanation
			if res.Explanation != "" && line != "" {
				res.Explanation += " " + line
			}
		}
	}

	if !scoreFound {
		return nil, fmt.Errorf("response missing SCORE line")
	}
	return res, nil
}
