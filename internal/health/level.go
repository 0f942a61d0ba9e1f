package health

// Level is the display band for a total score.
type Level struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Min   int    `json:"min"`
}

// Levels are ordered from highest threshold to lowest.
var Levels = []Level{
	{Label: "Baldrige Ready", Color: "#b1bd37", Min: 80},
	{Label: "On Track", Color: "#55787c", Min: 60},
	{Label: "Developing", Color: "#f79935", Min: 40},
	{Label: "Getting Started", Color: "#dc2626", Min: 0},
}

func LevelFor(total int) Level {
	for _, l := range Levels {
		if total >= l.Min {
			return l
		}
	}
	return Levels[len(Levels)-1]
}
