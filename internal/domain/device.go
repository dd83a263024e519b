package domain

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

// ParseDifficulty normalizes upstream catalog values; anything unknown
// (including an absent field) falls back to medium.
func ParseDifficulty(s string) Difficulty {
	switch Difficulty(s) {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert:
		return Difficulty(s)
	default:
		return DifficultyMedium
	}
}

// Device is read-only reference data owned by the catalog. Sessions keep a
// snapshot taken at selection time.
type Device struct {
	ID                string     `json:"id"`
	Brand             string     `json:"brand"`
	Category          string     `json:"category"`
	Model             string     `json:"model"`
	Year              int        `json:"year"`
	Difficulty        Difficulty `json:"difficulty"`
	CommonIssues      []string   `json:"common_issues,omitempty"`
	AverageRepairCost float64    `json:"average_repair_cost"`
}
