// Package stats derives per-student statistics from raw Codeforces data. It
// performs no I/O; contest standings are looked up by the caller and handed in.
package stats

import (
	"math"
	"strconv"
	"time"

	"student-progress-sync/internal/model"
)

const (
	ActivityWindowDays = 365
	AverageWindowDays  = 30

	dateLayout = "2006-01-02"
)

// Bucket is a half-open rating range [Min, Max). Max == 0 means unbounded.
type Bucket struct {
	Label string
	Min   int
	Max   int
}

var Buckets = []Bucket{
	{Label: "800-1000", Min: 800, Max: 1000},
	{Label: "1000-1200", Min: 1000, Max: 1200},
	{Label: "1200-1400", Min: 1200, Max: 1400},
	{Label: "1400-1600", Min: 1400, Max: 1600},
	{Label: "1600-1800", Min: 1600, Max: 1800},
	{Label: "1800+", Min: 1800},
}

func (b Bucket) contains(rating int) bool {
	return rating >= b.Min && (b.Max == 0 || rating < b.Max)
}

// Compute builds ProblemStats anchored on now. Calendar days are taken in
// now's location.
func Compute(submissions []model.Submission, now time.Time) model.ProblemStats {
	accepted := Accepted(submissions)
	solved := SolvedProblems(accepted)

	distribution := make(map[string]int, len(Buckets))
	for _, b := range Buckets {
		distribution[b.Label] = 0
	}

	ratingSum, rated, maxRating := 0, 0, 0
	for _, s := range solved {
		if s.Problem.Rating == nil {
			continue
		}
		r := *s.Problem.Rating
		ratingSum += r
		rated++
		if r > maxRating {
			maxRating = r
		}
		for _, b := range Buckets {
			if b.contains(r) {
				distribution[b.Label]++
				break
			}
		}
	}

	averageRating := 0
	if rated > 0 {
		averageRating = int(math.Round(float64(ratingSum) / float64(rated)))
	}

	activity := DailyActivity(accepted, now)

	return model.ProblemStats{
		TotalSolved:            len(solved),
		AverageRating:          averageRating,
		MaxRating:              maxRating,
		AveragePerDay:          AveragePerDay(activity),
		DifficultyDistribution: distribution,
		DailyActivity:          activity,
	}
}

func Accepted(submissions []model.Submission) []model.Submission {
	var out []model.Submission
	for _, s := range submissions {
		if s.Verdict == model.VerdictAccepted {
			out = append(out, s)
		}
	}
	return out
}

// SolvedProblems keeps the first accepted submission per (contestId, index)
// in the order received.
func SolvedProblems(accepted []model.Submission) []model.Submission {
	seen := make(map[string]struct{}, len(accepted))
	var out []model.Submission
	for _, s := range accepted {
		key := problemKey(s.Problem)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

func problemKey(p model.Problem) string {
	return strconv.Itoa(p.ContestID) + "-" + p.Index
}

// DailyActivity returns exactly ActivityWindowDays entries ending today,
// ascending, one count per accepted submission on that day.
func DailyActivity(accepted []model.Submission, now time.Time) []model.DailyCount {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	start := today.AddDate(0, 0, -(ActivityWindowDays - 1))

	activity := make([]model.DailyCount, ActivityWindowDays)
	index := make(map[string]int, ActivityWindowDays)
	for i := range activity {
		date := start.AddDate(0, 0, i).Format(dateLayout)
		activity[i] = model.DailyCount{Date: date}
		index[date] = i
	}

	for _, s := range accepted {
		date := time.Unix(s.CreationTimeSeconds, 0).In(loc).Format(dateLayout)
		if i, ok := index[date]; ok {
			activity[i].Count++
		}
	}
	return activity
}

// AveragePerDay is the mean of the trailing AverageWindowDays entries,
// rounded to one decimal.
func AveragePerDay(activity []model.DailyCount) float64 {
	window := activity
	if len(window) > AverageWindowDays {
		window = window[len(window)-AverageWindowDays:]
	}
	total := 0
	for _, d := range window {
		total += d.Count
	}
	return math.Round(float64(total)/AverageWindowDays*10) / 10
}

// EnrichContest applies standings to a contest. A zero standings rank keeps
// the rank reported by the rating history.
func EnrichContest(c model.Contest, s model.Standings) model.Contest {
	if s.Rank != 0 {
		c.Rank = s.Rank
	}
	c.ProblemsSolved = s.ProblemsSolved
	c.TotalProblems = s.TotalProblems
	c.UnsolvedProblems = Unsolved(s.TotalProblems, s.ProblemsSolved)
	return c
}

func Unsolved(total, solved int) int {
	return max(0, total-solved)
}

func TotalUnsolved(contests []model.Contest) int {
	total := 0
	for _, c := range contests {
		total += c.UnsolvedProblems
	}
	return total
}

// LastSubmission returns the newest creation time across all submissions,
// or nil when there are none.
func LastSubmission(submissions []model.Submission) *time.Time {
	var latest int64
	found := false
	for _, s := range submissions {
		if !found || s.CreationTimeSeconds > latest {
			latest = s.CreationTimeSeconds
			found = true
		}
	}
	if !found {
		return nil
	}
	t := time.Unix(latest, 0)
	return &t
}
