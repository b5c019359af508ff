package research

import (
	"strings"
	"time"

	"github.com/nocliffcapital/alithos/internal/models"
)

// reputableDomains are established outlets that earn a high credibility base.
var reputableDomains = map[string]bool{
	"reuters.com":        true,
	"apnews.com":         true,
	"bbc.com":            true,
	"bloomberg.com":      true,
	"wsj.com":            true,
	"ft.com":             true,
	"nytimes.com":        true,
	"washingtonpost.com": true,
	"economist.com":      true,
	"cnbc.com":           true,
	"politico.com":       true,
	"axios.com":          true,
	"theguardian.com":    true,
	"nature.com":         true,
	"science.org":        true,
}

// lowQualityDomains are aggregators and user-generated platforms.
var lowQualityDomains = map[string]bool{
	"blogspot.com":    true,
	"tumblr.com":      true,
	"reddit.com":      true,
	"twitter.com":     true,
	"x.com":           true,
	"facebook.com":    true,
	"tiktok.com":      true,
	"quora.com":       true,
	"buzzfeed.com":    true,
	"dailymail.co.uk": true,
}

// biasIndicators are subjective-language markers counted in title+content.
var biasIndicators = []string{
	"shocking", "unbelievable", "amazing", "incredible", "outrageous",
	"stunning", "devastating", "terrible", "disaster", "obviously",
	"clearly", "definitely", "undeniably", "always", "never",
	"everyone knows", "wake up", "mainstream media",
}

// Grader scores retrieved sources on credibility, recency, bias, and clarity.
type Grader struct {
	now func() time.Time
}

// NewGrader creates a source grader.
func NewGrader() *Grader {
	return &Grader{now: time.Now}
}

// Grade computes the four 0-1 sub-scores and derives the letter grade from
// their unweighted average.
func (g *Grader) Grade(source models.Source) models.GradedSource {
	graded := models.GradedSource{
		Source:      source,
		Credibility: g.credibilityScore(source),
		Recency:     g.recencyScore(source),
		Bias:        g.biasScore(source),
		Clarity:     g.clarityScore(source),
	}
	graded.Grade = GradeFromScore(graded.AverageScore())
	return graded
}

// GradeAll grades a batch of sources in order.
func (g *Grader) GradeAll(sources []models.Source) []models.GradedSource {
	graded := make([]models.GradedSource, 0, len(sources))
	for _, s := range sources {
		graded = append(graded, g.Grade(s))
	}
	return graded
}

// GradeFromScore maps an average quality score onto a letter grade.
func GradeFromScore(avg float64) models.SourceGrade {
	switch {
	case avg >= 0.8:
		return models.GradeA
	case avg >= 0.6:
		return models.GradeB
	case avg >= 0.4:
		return models.GradeC
	default:
		return models.GradeD
	}
}

func (g *Grader) credibilityScore(source models.Source) float64 {
	domain := strings.ToLower(source.Domain)
	if domain == "" {
		domain = domainFromURL(source.URL)
	}

	score := 0.5 // unknown domains are neutral
	switch {
	case reputableDomains[domain]:
		score = 0.9
	case strings.HasSuffix(domain, ".edu"), strings.HasSuffix(domain, ".gov"):
		score = 0.9
	case lowQualityDomains[domain]:
		score = 0.3
	}

	if source.Author != "" {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func (g *Grader) recencyScore(source models.Source) float64 {
	if source.PublishedDate == nil {
		return 0.5
	}
	age := g.now().Sub(*source.PublishedDate)
	switch {
	case age <= 7*24*time.Hour:
		return 1.0
	case age <= 30*24*time.Hour:
		return 0.9
	case age <= 90*24*time.Hour:
		return 0.7
	case age <= 365*24*time.Hour:
		return 0.5
	default:
		return 0.3
	}
}

func (g *Grader) biasScore(source models.Source) float64 {
	text := strings.ToLower(source.Title + " " + source.Content)
	count := 0
	for _, indicator := range biasIndicators {
		count += strings.Count(text, indicator)
	}
	score := 1.0 - 0.15*float64(count)
	if score < 0.3 {
		score = 0.3
	}
	return score
}

func (g *Grader) clarityScore(source models.Source) float64 {
	content := source.Content
	var score float64
	switch {
	case len(content) < 100:
		score = 0.3
	case len(content) <= 5000:
		score = 0.8
	default:
		score = 0.6
	}

	// Readable prose averages 10-25 words per sentence; reward it.
	if wps := avgWordsPerSentence(content); wps >= 10 && wps <= 25 {
		score = (score + 1.0) / 2
	}
	return score
}

func avgWordsPerSentence(content string) float64 {
	sentences := 0
	for _, r := range content {
		if r == '.' || r == '!' || r == '?' {
			sentences++
		}
	}
	if sentences == 0 {
		return 0
	}
	words := len(strings.Fields(content))
	return float64(words) / float64(sentences)
}

func domainFromURL(rawURL string) string {
	u := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	u = strings.TrimPrefix(u, "www.")
	if i := strings.IndexByte(u, '/'); i >= 0 {
		u = u[:i]
	}
	return strings.ToLower(u)
}
