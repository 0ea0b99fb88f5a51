package matchpresenter

import (
	"strings"

	"github.com/park285/chess-ascension/internal/matchend"
	"github.com/park285/chess-ascension/internal/msgcat"
)

// Formatter renders finished-match reports into player-facing lines.
type Formatter struct {
	catalog *msgcat.Catalog
}

func NewFormatter(catalog *msgcat.Catalog) *Formatter {
	if catalog == nil {
		catalog = msgcat.MustDefault()
	}
	return &Formatter{catalog: catalog}
}

func (f *Formatter) Catalog() *msgcat.Catalog { return f.catalog }

// Summary lists the result line followed by level, rank and unlock lines when
// they apply. A failed save appends the storage notice.
func (f *Formatter) Summary(r matchend.Report) []string {
	lines := []string{f.catalog.Text("report."+string(r.Result), map[string]any{
		"Score":      r.Score,
		"Experience": r.ExperienceGained,
	})}
	if r.LeveledUp {
		lines = append(lines, f.catalog.Text("report.level_up", map[string]any{
			"From": r.PreviousLevel,
			"To":   r.NewLevel,
		}))
	}
	if r.RankChanged() {
		lines = append(lines, f.catalog.Text("report.rank_up", map[string]any{"Rank": string(r.NewRank)}))
	}
	if unlocked := append(append([]string{}, r.NewCosmetics...), r.NewAbilities...); len(unlocked) > 0 {
		lines = append(lines, f.catalog.Text("report.unlocked", map[string]any{"Items": strings.Join(unlocked, ", ")}))
	}
	if r.PersistenceFailed != "" {
		lines = append(lines, f.catalog.Text("errors.storage_unavailable", nil))
	}
	return lines
}
