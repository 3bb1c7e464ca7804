package model

// Envelope is the response wrapper used by every Codeforces API method.
type Envelope[T any] struct {
	Status  string `json:"status"`
	Comment string `json:"comment,omitempty"`
	Result  T      `json:"result"`
}

const (
	EnvelopeOK      = "OK"
	VerdictAccepted = "OK"
)

// UserInfo is the subset of user.info the pipeline consumes. Unrated users
// carry no rating fields.
type UserInfo struct {
	Handle    string `json:"handle"`
	Rating    *int   `json:"rating,omitempty"`
	MaxRating *int   `json:"maxRating,omitempty"`
	Rank      string `json:"rank,omitempty"`
	MaxRank   string `json:"maxRank,omitempty"`
}

// RatingChange is one entry of user.rating.
type RatingChange struct {
	ContestID               int    `json:"contestId"`
	ContestName             string `json:"contestName"`
	Handle                  string `json:"handle"`
	Rank                    int    `json:"rank"`
	RatingUpdateTimeSeconds int64  `json:"ratingUpdateTimeSeconds"`
	OldRating               int    `json:"oldRating"`
	NewRating               int    `json:"newRating"`
}

type Problem struct {
	ContestID int      `json:"contestId"`
	Index     string   `json:"index"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Rating    *int     `json:"rating,omitempty"`
	Tags      []string `json:"tags"`
}

type Member struct {
	Handle string `json:"handle"`
}

type Party struct {
	ContestID        int      `json:"contestId"`
	Members          []Member `json:"members"`
	ParticipantType  string   `json:"participantType"`
	Ghost            bool     `json:"ghost"`
	Room             *int     `json:"room,omitempty"`
	StartTimeSeconds *int64   `json:"startTimeSeconds,omitempty"`
}

// Submission is one entry of user.status, newest first as returned upstream.
type Submission struct {
	ID                  int64   `json:"id"`
	ContestID           int     `json:"contestId"`
	CreationTimeSeconds int64   `json:"creationTimeSeconds"`
	RelativeTimeSeconds int64   `json:"relativeTimeSeconds"`
	Problem             Problem `json:"problem"`
	Author              Party   `json:"author"`
	ProgrammingLanguage string  `json:"programmingLanguage"`
	Verdict             string  `json:"verdict"`
	Testset             string  `json:"testset"`
	PassedTestCount     int     `json:"passedTestCount"`
	TimeConsumedMillis  int     `json:"timeConsumedMillis"`
	MemoryConsumedBytes int64   `json:"memoryConsumedBytes"`
}

type ProblemResult struct {
	Points float64 `json:"points"`
}

type RanklistRow struct {
	Party          Party           `json:"party"`
	Rank           int             `json:"rank"`
	Points         float64         `json:"points"`
	ProblemResults []ProblemResult `json:"problemResults"`
}

// StandingsResult is the subset of contest.standings the pipeline consumes.
type StandingsResult struct {
	Problems []Problem    `json:"problems"`
	Rows     []RanklistRow `json:"rows"`
}
