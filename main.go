package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/exporthub/exporthub/cmd"
)

var fatalStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#E84855")).
	Bold(true)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, fatalStyle.Render(fmt.Sprintf("❌ exporthub: %v", err)))
		os.Exit(1)
	}
}
