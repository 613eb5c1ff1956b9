// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the beamsearch CLI.
package ux

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Palette - deep ocean teals.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
}

// Icon provides themed status icons.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Printer writes styled output in one Mode.
//
// Thread Safety: Safe for concurrent use; lines are never interleaved.
type Printer struct {
	out  io.Writer
	mode Mode
	mu   sync.Mutex
}

// NewPrinter creates a printer.
func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{out: out, mode: mode}
}

// Mode returns the output mode.
func (p *Printer) Mode() Mode {
	return p.mode
}

func (p *Printer) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, s)
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if p.mode != ModeRich {
		return text
	}
	return s.Render(text)
}

func (p *Printer) icon(i Icon) string {
	if p.mode != ModeRich {
		return string(i)
	}
	return i.Render()
}

// Title prints a styled title. Suppressed in machine mode.
func (p *Printer) Title(text string) {
	if p.mode == ModeMachine {
		return
	}
	p.println(p.style(Styles.Title, text))
}

// Success prints a success message with a checkmark.
func (p *Printer) Success(text string) {
	if p.mode == ModeMachine {
		p.println("OK\t" + text)
		return
	}
	p.println(p.icon(IconSuccess) + " " + p.style(Styles.Success, text))
}

// Warning prints a warning message.
func (p *Printer) Warning(text string) {
	if p.mode == ModeMachine {
		p.println("WARN\t" + text)
		return
	}
	p.println(p.icon(IconWarning) + " " + p.style(Styles.Warning, text))
}

// Error prints an error message.
func (p *Printer) Error(text string) {
	if p.mode == ModeMachine {
		p.println("ERROR\t" + text)
		return
	}
	p.println(p.icon(IconError) + " " + p.style(Styles.Error, text))
}

// Info prints an informational line.
func (p *Printer) Info(text string) {
	if p.mode == ModeMachine {
		p.println(text)
		return
	}
	p.println(p.style(Styles.Muted, "│") + " " + text)
}

// Fields prints tab-separated fields in machine mode and a muted,
// space-separated line otherwise.
func (p *Printer) Fields(fields ...string) {
	if p.mode == ModeMachine {
		p.println(strings.Join(fields, "\t"))
		return
	}
	if len(fields) == 0 {
		return
	}
	head := p.style(Styles.Subtitle, fields[0])
	p.println(p.style(Styles.Muted, "│") + " " + strings.TrimSpace(head+" "+strings.Join(fields[1:], " ")))
}

// KeyValue is one row of a Box.
type KeyValue struct {
	Key   string
	Value string
}

// Box prints rows in a rounded box titled title. Machine mode prints
// key=value pairs on one line.
func (p *Printer) Box(title string, rows []KeyValue, warn bool) {
	if p.mode == ModeMachine {
		parts := []string{title}
		for _, r := range rows {
			parts = append(parts, r.Key+"="+r.Value)
		}
		p.println(strings.Join(parts, "\t"))
		return
	}

	width := 0
	for _, r := range rows {
		width = max(width, len(r.Key))
	}
	lines := []string{p.style(Styles.Title, title)}
	for _, r := range rows {
		key := fmt.Sprintf("%-*s", width, r.Key)
		lines = append(lines, p.style(Styles.Muted, key)+"  "+r.Value)
	}
	body := strings.Join(lines, "\n")
	if p.mode != ModeRich {
		p.println(body)
		return
	}
	box := Styles.Box
	if warn {
		box = Styles.WarningBox
	}
	p.println(box.Render(body))
}

// ProgressBar renders a progress bar of width cells.
func (p *Printer) ProgressBar(current, total, width int) string {
	if p.mode == ModeMachine || total <= 0 {
		return fmt.Sprintf("%d/%d", current, total)
	}
	current = min(max(current, 0), total)
	filled := current * width / total
	bar := p.style(Styles.Success, strings.Repeat("█", filled)) +
		p.style(Styles.Muted, strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %d/%d", bar, current, total)
}
