package ui

import "strings"

const (
	reset       = "\033[0m"
	bold        = "\033[1m"
	alarmRed    = "\033[38;5;196m"
	flameOrange = "\033[38;5;208m"
	honeyOrange = "\033[38;5;214m"
	beeYellow   = "\033[38;5;226m"
	mint        = "\033[38;5;121m"
	cobalt      = "\033[38;5;33m"
)

// Banner renders a colored spike wordmark. With color false it returns the
// same layout without escape sequences, for terminals that asked for no color.
func Banner(color bool) string {
	var b strings.Builder
	paint := func(code string) string {
		if !color {
			return ""
		}
		return code
	}

	spikeLetters := [][]string{
		{" ██████╗ ", "██╔════╝ ", "╚█████╗  ", " ╚═══██╗ ", "██████╔╝ ", "╚═════╝  "},
		{"██████╗  ", "██╔══██╗ ", "██████╔╝ ", "██╔═══╝  ", "██║      ", "╚═╝      "},
		{"██╗", "██║", "██║", "██║", "██║", "╚═╝"},
		{"██╗  ██╗", "██║ ██╔╝", "█████╔╝ ", "██╔═██╗ ", "██║  ██╗", "╚═╝  ╚═╝"},
		{"███████╗", "██╔════╝", "█████╗  ", "██╔══╝  ", "███████╗", "╚══════╝"},
	}
	spikeGradient := []string{mint, beeYellow, honeyOrange, flameOrange, alarmRed}
	spikeRows := make([]string, len(spikeLetters[0]))
	for i, letter := range spikeLetters {
		c := paint(spikeGradient[i%len(spikeGradient)])
		for row := 0; row < len(letter); row++ {
			spikeRows[row] += c + letter[row] + "  "
		}
	}
	for _, line := range spikeRows {
		b.WriteString(paint(bold) + line + paint(reset) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(paint(bold+alarmRed) + "spikewatch" + paint(reset) + "  •  " + paint(cobalt) + "cpu/ram spike monitor" + paint(reset) + "\n\n")

	return b.String()
}
