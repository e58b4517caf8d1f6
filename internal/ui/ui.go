// Package ui provides the terminal render helpers for the CLI.
package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7dcfff"))
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

// RenderAccent renders informational highlights.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderPass renders success markers.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn renders warning markers.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail renders failure markers.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderMuted renders secondary detail.
func RenderMuted(s string) string { return mutedStyle.Render(s) }

// RenderBold renders emphasized text.
func RenderBold(s string) string { return boldStyle.Render(s) }

// SyncBadge renders the per-task sync marker shown in list and detail
// views: pending, conflicted, failed, or nothing for a clean task.
func SyncBadge(pending bool, syncError string) string {
	switch {
	case syncError == "conflict":
		return RenderWarn("[conflict]")
	case syncError != "":
		return RenderFail(fmt.Sprintf("[failed: %s]", syncError))
	case pending:
		return RenderAccent("[pending]")
	default:
		return ""
	}
}
