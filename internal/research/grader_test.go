package research

import (
	"strings"
	"testing"
	"time"

	"github.com/nocliffcapital/alithos/internal/models"
)

func fixedGrader(now time.Time) *Grader {
	g := NewGrader()
	g.now = func() time.Time { return now }
	return g
}

func daysAgo(now time.Time, d int) *time.Time {
	t := now.Add(-time.Duration(d)*24*time.Hour - time.Hour)
	return &t
}

func TestGradeFromScoreBoundaries(t *testing.T) {
	tests := []struct {
		avg  float64
		want models.SourceGrade
	}{
		{0.80, models.GradeA},
		{0.79, models.GradeB},
		{0.60, models.GradeB},
		{0.59, models.GradeC},
		{0.40, models.GradeC},
		{0.39, models.GradeD},
		{0.0, models.GradeD},
	}
	for _, tt := range tests {
		if got := GradeFromScore(tt.avg); got != tt.want {
			t.Errorf("GradeFromScore(%.2f) = %s, want %s", tt.avg, got, tt.want)
		}
	}
}

func TestCredibilityScore(t *testing.T) {
	g := NewGrader()
	tests := []struct {
		name   string
		source models.Source
		want   float64
	}{
		{"reputable domain", models.Source{Domain: "reuters.com"}, 0.9},
		{"edu domain", models.Source{Domain: "mit.edu"}, 0.9},
		{"gov domain", models.Source{Domain: "treasury.gov"}, 0.9},
		{"low quality", models.Source{Domain: "reddit.com"}, 0.3},
		{"unknown", models.Source{Domain: "somesite.io"}, 0.5},
		{"unknown with author", models.Source{Domain: "somesite.io", Author: "J. Doe"}, 0.6},
		{"reputable with author caps at 1", models.Source{Domain: "reuters.com", Author: "J. Doe"}, 1.0},
		{"domain from url", models.Source{URL: "https://www.bbc.com/news/article"}, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.credibilityScore(tt.source); got != tt.want {
				t.Errorf("credibilityScore = %.2f, want %.2f", got, tt.want)
			}
		})
	}
}

func TestRecencyScoreBuckets(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	g := fixedGrader(now)

	tests := []struct {
		name string
		date *time.Time
		want float64
	}{
		{"no date", nil, 0.5},
		{"this week", daysAgo(now, 3), 1.0},
		{"this month", daysAgo(now, 20), 0.9},
		{"this quarter", daysAgo(now, 60), 0.7},
		{"this year", daysAgo(now, 200), 0.5},
		{"older", daysAgo(now, 400), 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.recencyScore(models.Source{PublishedDate: tt.date})
			if got != tt.want {
				t.Errorf("recencyScore = %.2f, want %.2f", got, tt.want)
			}
		})
	}
}

func TestBiasScoreFloorsAtMinimum(t *testing.T) {
	g := NewGrader()

	clean := g.biasScore(models.Source{Title: "Fed holds rates steady", Content: "The committee voted unanimously."})
	if clean != 1.0 {
		t.Errorf("clean text bias = %.2f, want 1.0", clean)
	}

	one := g.biasScore(models.Source{Title: "Shocking decision by the Fed"})
	if one < 0.849 || one > 0.851 {
		t.Errorf("one indicator bias = %.2f, want 0.85", one)
	}

	loaded := g.biasScore(models.Source{
		Title:   "Shocking! Unbelievable! Outrageous!",
		Content: "Obviously everyone knows the mainstream media is clearly terrible. Wake up! Definitely a disaster.",
	})
	if loaded != 0.3 {
		t.Errorf("heavily biased text = %.2f, want floor 0.3", loaded)
	}
}

func TestClarityScore(t *testing.T) {
	g := NewGrader()

	if got := g.clarityScore(models.Source{Content: "Too short."}); got != 0.3 {
		t.Errorf("short content = %.2f, want 0.3", got)
	}

	// Short content still earns the readability refinement: 0.3 -> 0.65.
	brief := "The committee approved the measure after a brief discussion on Tuesday morning."
	if got := g.clarityScore(models.Source{Content: brief}); got != 0.65 {
		t.Errorf("short readable content = %.2f, want 0.65", got)
	}

	// ~15 words per sentence, moderate length: 0.8 boosted to 0.9.
	sentence := "The central bank announced a new policy framework that analysts consider broadly supportive of markets. "
	readable := strings.Repeat(sentence, 5)
	if got := g.clarityScore(models.Source{Content: readable}); got != 0.9 {
		t.Errorf("readable content = %.2f, want 0.9", got)
	}

	long := strings.Repeat("word ", 1200) + "."
	got := g.clarityScore(models.Source{Content: long})
	if got != 0.6 {
		t.Errorf("very long content = %.2f, want 0.6", got)
	}
}

func TestGradeHighQualitySourceIsA(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	g := fixedGrader(now)

	sentence := "The agency confirmed the program remains on schedule according to officials familiar with it. "
	graded := g.Grade(models.Source{
		Title:         "Program on track, officials say",
		Domain:        "reuters.com",
		Author:        "Staff Reporter",
		PublishedDate: daysAgo(now, 2),
		Content:       strings.Repeat(sentence, 6),
	})

	// credibility 1.0, recency 1.0, bias 1.0, clarity 0.9 -> avg 0.975.
	if graded.Grade != models.GradeA {
		t.Errorf("expected grade A, got %s (avg %.3f)", graded.Grade, graded.AverageScore())
	}
}

func TestGradeAllPreservesOrder(t *testing.T) {
	g := NewGrader()
	graded := g.GradeAll([]models.Source{
		{Title: "first", Domain: "reuters.com"},
		{Title: "second", Domain: "reddit.com"},
	})
	if len(graded) != 2 {
		t.Fatalf("expected 2 graded sources, got %d", len(graded))
	}
	if graded[0].Source.Title != "first" || graded[1].Source.Title != "second" {
		t.Error("GradeAll reordered sources")
	}
	if graded[0].Credibility <= graded[1].Credibility {
		t.Error("reputable source should outscore low-quality source")
	}
}
