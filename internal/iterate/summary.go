package iterate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Dom110/KI-AutoAgent-sub003/internal/model"
)

const (
	topIssueCount       = 5
	clusterMinHits      = 2
	strugglingMinCaused = 4
	strugglingQuality   = 0.5
	lowAverageQuality   = 0.5
)

// IssueCount is one critical issue with its occurrence count.
type IssueCount struct {
	Issue string
	Count int
}

// RoleStats aggregates the iterations one role was responsible for.
type RoleStats struct {
	IterationsCaused int
	AverageQuality   float64
}

// Summary describes a run that exhausted its iteration budget.
type Summary struct {
	TotalIterations int
	CommonIssues    []IssueCount
	RoleBreakdown   map[model.Role]RoleStats
	ProblemAreas    []string
	Elapsed         time.Duration
	Recommendation  string
}

// problemAreaKeywords maps a problem-area label to the keywords that vote for
// it. A label is reported once its keywords score at least two hits across all
// recorded critical issues.
var problemAreaKeywords = map[string][]string{
	"testing":        {"test", "coverage", "assertion", "mock"},
	"error handling": {"error", "exception", "panic", "crash"},
	"architecture":   {"design", "structure", "coupling", "dependency"},
	"performance":    {"slow", "timeout", "memory", "leak"},
	"code quality":   {"lint", "style", "duplicate", "complexity"},
	"security":       {"injection", "auth", "secret", "permission"},
}

// buildSummary aggregates the recorded reasons. Caller holds c.mu.
func (c *Controller) buildSummary(totalIterations int) *Summary {
	issueCounts := make(map[string]int)
	type roleAgg struct {
		caused  int
		quality float64
	}
	byRole := make(map[model.Role]*roleAgg)

	for _, r := range c.reasons {
		for _, issue := range r.CriticalIssues {
			issueCounts[issue]++
		}
		agg := byRole[r.Role]
		if agg == nil {
			agg = &roleAgg{}
			byRole[r.Role] = agg
		}
		agg.caused++
		agg.quality += r.Quality
	}

	common := make([]IssueCount, 0, len(issueCounts))
	for issue, count := range issueCounts {
		common = append(common, IssueCount{Issue: issue, Count: count})
	}
	sort.Slice(common, func(i, j int) bool {
		if common[i].Count != common[j].Count {
			return common[i].Count > common[j].Count
		}
		return common[i].Issue < common[j].Issue
	})
	if len(common) > topIssueCount {
		common = common[:topIssueCount]
	}

	breakdown := make(map[model.Role]RoleStats, len(byRole))
	for role, agg := range byRole {
		breakdown[role] = RoleStats{
			IterationsCaused: agg.caused,
			AverageQuality:   agg.quality / float64(agg.caused),
		}
	}

	summary := &Summary{
		TotalIterations: totalIterations,
		CommonIssues:    common,
		RoleBreakdown:   breakdown,
		ProblemAreas:    clusterProblemAreas(c.reasons),
		Elapsed:         time.Since(c.started),
	}
	summary.Recommendation = recommendFor(summary)
	return summary
}

// clusterProblemAreas matches critical-issue text against the keyword table.
func clusterProblemAreas(reasons []IterationReason) []string {
	hits := make(map[string]int)
	for _, r := range reasons {
		for _, issue := range r.CriticalIssues {
			lower := strings.ToLower(issue)
			for label, keywords := range problemAreaKeywords {
				for _, kw := range keywords {
					if strings.Contains(lower, kw) {
						hits[label]++
					}
				}
			}
		}
	}
	var areas []string
	for label, n := range hits {
		if n >= clusterMinHits {
			areas = append(areas, label)
		}
	}
	sort.Strings(areas)
	return areas
}

// recommendFor derives the narrative recommendation from the aggregates.
func recommendFor(s *Summary) string {
	var struggling []model.Role
	totalQuality, totalCaused := 0.0, 0
	for role, stats := range s.RoleBreakdown {
		totalQuality += stats.AverageQuality * float64(stats.IterationsCaused)
		totalCaused += stats.IterationsCaused
		if stats.IterationsCaused >= strugglingMinCaused && stats.AverageQuality < strugglingQuality {
			struggling = append(struggling, role)
		}
	}
	sort.Slice(struggling, func(i, j int) bool { return struggling[i] < struggling[j] })

	avgQuality := 0.0
	if totalCaused > 0 {
		avgQuality = totalQuality / float64(totalCaused)
	}

	repeated := len(s.CommonIssues) > 0 && totalCaused > 1 &&
		s.CommonIssues[0].Count*2 >= totalCaused

	switch {
	case len(struggling) > 0:
		names := make([]string, len(struggling))
		for i, r := range struggling {
			names[i] = string(r)
		}
		return fmt.Sprintf("%s repeatedly produced low-quality iterations; decompose the task or escalate to a human", strings.Join(names, ", "))
	case totalCaused > 0 && avgQuality < lowAverageQuality:
		return "average quality stayed low across iterations; restart with a simplified plan"
	case repeated:
		return fmt.Sprintf("the same issue (%q) keeps recurring; accept the current result or escalate", s.CommonIssues[0].Issue)
	case s.TotalIterations >= 10 && avgQuality >= 0.7:
		return "quality is close to the bar; a small budget extension should finish the task"
	default:
		return "review the iteration history and extend the budget if progress is visible"
	}
}

// primaryRecommendation picks the menu entry matching the narrative.
func primaryRecommendation(s *Summary) RemediationChoice {
	for _, stats := range s.RoleBreakdown {
		if stats.IterationsCaused >= strugglingMinCaused && stats.AverageQuality < strugglingQuality {
			return ChoiceEscalateToHuman
		}
	}
	totalQuality, totalCaused := 0.0, 0
	for _, stats := range s.RoleBreakdown {
		totalQuality += stats.AverageQuality * float64(stats.IterationsCaused)
		totalCaused += stats.IterationsCaused
	}
	if totalCaused == 0 {
		return ChoiceAcceptCurrent
	}
	avg := totalQuality / float64(totalCaused)
	switch {
	case avg < lowAverageQuality:
		return ChoiceRestartSimplified
	case avg >= 0.7:
		return ChoiceExtendBy3
	default:
		return ChoiceAcceptCurrent
	}
}
