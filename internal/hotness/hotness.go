// Package hotness tracks how often areas of the map are requested.
package hotness

type Interface interface {
	Inc(cell string)
	Score(cell string) float64
	Reset(cells ...string)
	Top(n int) []Entry
	Clear()
}

// Entry is a key with its decayed score.
type Entry struct {
	Key   string  `json:"cell"`
	Score float64 `json:"score"`
}
