package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// Theme holds the shell's colors. Chrome colors come first, then the ones
// that carry chat meaning.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	BorderColor       tcell.Color
	TitleColor        tcell.Color
	TableHeaderFg     tcell.Color
	TableHeaderBg     tcell.Color
	TableCursorFg     tcell.Color
	TableCursorBg     tcell.Color
	CrumbActiveFg     tcell.Color
	CrumbActiveBg     tcell.Color
	CrumbInactiveFg   tcell.Color
	CrumbInactiveBg   tcell.Color
	MenuKeyColor      tcell.Color
	NumericKeyColor   tcell.Color
	PromptBorderColor tcell.Color

	CounterColor  tcell.Color // active row, detail values
	OnlineColor   tcell.Color
	OfflineColor  tcell.Color
	UnreadColor   tcell.Color
	OwnColor      tcell.Color // sender label of the viewer's messages
	ProposalColor tcell.Color
	ReadColor     tcell.Color
	FailedColor   tcell.Color
	LinkBusyColor tcell.Color // connecting or reconnecting

	FlashInfoColor tcell.Color
	FlashWarnColor tcell.Color
	FlashErrColor  tcell.Color
}

// DefaultTheme returns the dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorSilver,
		BorderColor:       tcell.ColorTeal,
		TitleColor:        tcell.ColorGold,
		TableHeaderFg:     tcell.ColorWhite,
		TableHeaderBg:     tcell.ColorBlack,
		TableCursorFg:     tcell.ColorBlack,
		TableCursorBg:     tcell.ColorMediumAquamarine,
		CrumbActiveFg:     tcell.ColorBlack,
		CrumbActiveBg:     tcell.ColorGold,
		CrumbInactiveFg:   tcell.ColorBlack,
		CrumbInactiveBg:   tcell.ColorTeal,
		MenuKeyColor:      tcell.ColorMediumAquamarine,
		NumericKeyColor:   tcell.ColorViolet,
		PromptBorderColor: tcell.ColorGold,

		CounterColor:  tcell.ColorWhite,
		OnlineColor:   tcell.ColorLimeGreen,
		OfflineColor:  tcell.ColorGray,
		UnreadColor:   tcell.ColorGold,
		OwnColor:      tcell.ColorMediumAquamarine,
		ProposalColor: tcell.ColorViolet,
		ReadColor:     tcell.ColorDeepSkyBlue,
		FailedColor:   tcell.ColorOrangeRed,
		LinkBusyColor: tcell.ColorYellow,

		FlashInfoColor: tcell.ColorNavajoWhite,
		FlashWarnColor: tcell.ColorOrange,
		FlashErrColor:  tcell.ColorOrangeRed,
	}
}

// Tag returns c as a tview color tag value, e.g. "#ffd700".
func Tag(c tcell.Color) string {
	return fmt.Sprintf("#%06x", c.Hex())
}

// Paint wraps s in c's color tag. s must already be escaped.
func Paint(c tcell.Color, s string) string {
	return "[" + Tag(c) + "]" + s + "[-]"
}
