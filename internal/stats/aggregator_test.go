package stats

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"student-progress-sync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 15, 18, 30, 0, 0, time.UTC)

func rating(r int) *int { return &r }

func sub(contestID int, index, verdict string, r *int, at time.Time) model.Submission {
	return model.Submission{
		ContestID:           contestID,
		CreationTimeSeconds: at.Unix(),
		Problem:             model.Problem{ContestID: contestID, Index: index, Rating: r},
		Verdict:             verdict,
	}
}

func TestDuplicateAcceptedCountsOnce(t *testing.T) {
	subs := []model.Submission{
		sub(1, "A", "OK", rating(800), now.Add(-time.Hour)),
		sub(1, "A", "OK", rating(800), now.Add(-2*time.Hour)),
	}

	stats := Compute(subs, now)

	assert.Equal(t, 1, stats.TotalSolved)
	assert.Equal(t, 1, stats.DifficultyDistribution["800-1000"])
	// daily activity counts submissions, not problems
	assert.Equal(t, 2, stats.DailyActivity[len(stats.DailyActivity)-1].Count)
}

func TestTotalSolvedEqualsDistinctAcceptedProblems(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	verdicts := []string{"OK", "WRONG_ANSWER", "TIME_LIMIT_EXCEEDED", "OK"}
	indexes := []string{"A", "B", "C", "D"}

	for round := 0; round < 50; round++ {
		var subs []model.Submission
		distinct := map[string]struct{}{}
		n := rng.Intn(60)
		for i := 0; i < n; i++ {
			s := sub(rng.Intn(5)+1, indexes[rng.Intn(len(indexes))], verdicts[rng.Intn(len(verdicts))],
				rating(800+100*rng.Intn(15)), now.Add(-time.Duration(rng.Intn(800))*24*time.Hour))
			subs = append(subs, s)
			if s.Verdict == "OK" {
				distinct[problemKey(s.Problem)] = struct{}{}
			}
		}

		stats := Compute(subs, now)
		assert.Equal(t, len(distinct), stats.TotalSolved)
	}
}

func TestFirstAcceptedOccurrenceWins(t *testing.T) {
	// the same problem reported with different ratings: the first one is attributed
	subs := []model.Submission{
		sub(2, "B", "OK", rating(1500), now),
		sub(2, "B", "OK", rating(900), now.Add(-time.Hour)),
	}

	stats := Compute(subs, now)
	assert.Equal(t, 1, stats.DifficultyDistribution["1400-1600"])
	assert.Equal(t, 0, stats.DifficultyDistribution["800-1000"])
	assert.Equal(t, 1500, stats.MaxRating)
}

func TestDifficultyBuckets(t *testing.T) {
	subs := []model.Submission{
		sub(1, "A", "OK", rating(800), now),
		sub(1, "B", "OK", rating(999), now),
		sub(1, "C", "OK", rating(1000), now),
		sub(1, "D", "OK", rating(1799), now),
		sub(1, "E", "OK", rating(1800), now),
		sub(1, "F", "OK", rating(3500), now),
		sub(1, "G", "OK", nil, now),
		sub(1, "H", "OK", rating(500), now),
		sub(1, "I", "WRONG_ANSWER", rating(1200), now),
	}

	stats := Compute(subs, now)

	assert.Equal(t, map[string]int{
		"800-1000":  2,
		"1000-1200": 1,
		"1200-1400": 0,
		"1400-1600": 0,
		"1600-1800": 1,
		"1800+":     2,
	}, stats.DifficultyDistribution)
	assert.Equal(t, 8, stats.TotalSolved)
	assert.Equal(t, 3500, stats.MaxRating)
	// mean over the seven rated problems: (800+999+1000+1799+1800+3500+500)/7
	assert.Equal(t, 1485, stats.AverageRating)
}

func TestNoSubmissions(t *testing.T) {
	stats := Compute(nil, now)

	assert.Equal(t, 0, stats.TotalSolved)
	assert.Equal(t, 0, stats.AverageRating)
	assert.Equal(t, 0, stats.MaxRating)
	assert.Equal(t, 0.0, stats.AveragePerDay)
	assert.Len(t, stats.DailyActivity, ActivityWindowDays)
	assert.Len(t, stats.DifficultyDistribution, len(Buckets))
}

func TestDailyActivityShape(t *testing.T) {
	subs := []model.Submission{
		sub(1, "A", "OK", nil, now),
		sub(1, "B", "OK", nil, now.AddDate(0, 0, -364)),
		sub(1, "C", "OK", nil, now.AddDate(0, 0, -365)),
		sub(1, "D", "OK", nil, now.AddDate(0, 0, -400)),
		sub(1, "E", "WRONG_ANSWER", nil, now),
	}

	activity := DailyActivity(Accepted(subs), now)
	require.Len(t, activity, ActivityWindowDays)

	assert.Equal(t, "2024-06-15", activity[len(activity)-1].Date)
	assert.Equal(t, now.AddDate(0, 0, -364).Format("2006-01-02"), activity[0].Date)

	for i := 1; i < len(activity); i++ {
		prev, _ := time.Parse("2006-01-02", activity[i-1].Date)
		cur, _ := time.Parse("2006-01-02", activity[i].Date)
		assert.Equal(t, 24*time.Hour, cur.Sub(prev), "gap at %d", i)
		assert.GreaterOrEqual(t, activity[i].Count, 0)
	}

	total := 0
	for _, d := range activity {
		total += d.Count
	}
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, activity[0].Count)
	assert.Equal(t, 1, activity[364].Count)
}

func TestDailyActivityUsesLocalCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	localNow := time.Date(2024, 6, 15, 9, 0, 0, 0, loc)
	// 2024-06-14 20:00 UTC is already 2024-06-15 in UTC+7
	at := time.Date(2024, 6, 14, 20, 0, 0, 0, time.UTC)

	activity := DailyActivity([]model.Submission{sub(1, "A", "OK", nil, at)}, localNow)

	assert.Equal(t, "2024-06-15", activity[364].Date)
	assert.Equal(t, 1, activity[364].Count)
}

func TestAveragePerDayUsesLastThirtyEntries(t *testing.T) {
	var subs []model.Submission
	// 7 solves inside the last 30 days, 5 more just outside
	for i := 0; i < 7; i++ {
		subs = append(subs, sub(10+i, "A", "OK", nil, now.AddDate(0, 0, -i*4)))
	}
	for i := 0; i < 5; i++ {
		subs = append(subs, sub(30+i, "A", "OK", nil, now.AddDate(0, 0, -31-i)))
	}

	stats := Compute(subs, now)

	sum := 0
	for _, d := range stats.DailyActivity[len(stats.DailyActivity)-30:] {
		sum += d.Count
	}
	assert.Equal(t, 7, sum)
	assert.Equal(t, math.Round(float64(sum)/30*10)/10, stats.AveragePerDay)
	assert.Equal(t, 0.2, stats.AveragePerDay)
}

func TestEnrichContest(t *testing.T) {
	base := model.Contest{ContestID: 1500, Rank: 321}

	enriched := EnrichContest(base, model.Standings{Rank: 300, ProblemsSolved: 3, TotalProblems: 7})
	assert.Equal(t, 300, enriched.Rank)
	assert.Equal(t, 4, enriched.UnsolvedProblems)

	degraded := EnrichContest(base, model.Standings{})
	assert.Equal(t, 321, degraded.Rank)
	assert.Equal(t, 0, degraded.UnsolvedProblems)
	assert.Equal(t, 0, degraded.TotalProblems)
}

func TestUnsolvedNeverNegative(t *testing.T) {
	for total := 0; total < 10; total++ {
		for solved := 0; solved < 12; solved++ {
			got := Unsolved(total, solved)
			assert.GreaterOrEqual(t, got, 0)
			if solved <= total {
				assert.Equal(t, total-solved, got)
			}
		}
	}
}

func TestTotalUnsolved(t *testing.T) {
	contests := []model.Contest{{UnsolvedProblems: 2}, {UnsolvedProblems: 0}, {UnsolvedProblems: 5}}
	assert.Equal(t, 7, TotalUnsolved(contests))
	assert.Equal(t, 0, TotalUnsolved(nil))
}

func TestLastSubmission(t *testing.T) {
	assert.Nil(t, LastSubmission(nil))

	subs := []model.Submission{
		sub(1, "A", "WRONG_ANSWER", nil, now.Add(-time.Hour)),
		sub(1, "A", "OK", nil, now.Add(-3*time.Hour)),
		sub(1, "B", "OK", nil, now.Add(-30*time.Minute)),
	}
	last := LastSubmission(subs)
	require.NotNil(t, last)
	assert.Equal(t, now.Add(-30*time.Minute).Unix(), last.Unix())
}
