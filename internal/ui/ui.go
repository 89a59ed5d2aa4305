// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui renders status, progress, and report output to the
// terminal, with colour gated on a --no-color flag, the NO_COLOR
// environment variable, and whether stdout is actually a terminal.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	subColor     = color.New(color.FgCyan)
	labelColor   = color.New(color.FgWhite, color.Bold)
	dimColor     = color.New(color.FgHiBlack)
	successColor = color.New(color.FgGreen, color.Bold)
	warnColor    = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgBlue)
	countColor   = color.New(color.FgMagenta)
)

// InitColors enables or disables colour output for the process. It is
// called once from main() after flags are parsed.
func InitColors(noColor bool) {
	disable := noColor || os.Getenv("NO_COLOR") != "" || !isatty.IsTerminal(os.Stdout.Fd())
	color.NoColor = disable
}

func Header(s string)    { headerColor.Println(s) }
func SubHeader(s string) { subColor.Println(s) }

func Label(s string) string   { return labelColor.Sprint(s) }
func DimText(s string) string { return dimColor.Sprint(s) }
func CountText(n int) string  { return countColor.Sprint(n) }

func Info(s string)                          { infoColor.Fprintln(os.Stderr, s) }
func Infof(format string, args ...interface{}) { infoColor.Fprintf(os.Stderr, format+"\n", args...) }

func Warning(s string)                           { warnColor.Fprintln(os.Stderr, s) }
func Warningf(format string, args ...interface{}) { warnColor.Fprintf(os.Stderr, format+"\n", args...) }

func Success(s string)                           { successColor.Println(s) }
func Successf(format string, args ...interface{}) { successColor.Printf(format+"\n", args...) }

// Table renders rows of equal-length cells as a simple aligned table,
// used by the --list verb (spec §6).
func Table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow := func(cells []string, colour *color.Color) {
		for i, cell := range cells {
			pad := widths[i] - len(cell)
			if colour != nil {
				colour.Print(cell)
			} else {
				fmt.Print(cell)
			}
			fmt.Print(spaces(pad + 2))
		}
		fmt.Println()
	}

	printRow(header, labelColor)
	for _, row := range rows {
		printRow(row, nil)
	}
}

func spaces(n int) string {
	if n <= 0 {
		return " "
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}
