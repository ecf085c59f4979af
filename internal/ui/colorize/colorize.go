package colorize

import (
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

var (
	tidStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorTID))
	tagStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorTag))
	nameStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorName))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDetail))
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHeader)).Bold(true)
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBorder))
	passStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPass))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorFail)).Bold(true)
	commentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorComment))
)

// getConfigStyle returns the config style with fallbacks
func getConfigStyle() *chroma.Style {
	candidates := []string{"pteosal-dark", "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// IsDisabled returns true if colors are disabled via environment
func IsDisabled() bool {
	return os.Getenv("PTEOSAL_NO_COLOR") != "" || os.Getenv("NO_COLOR") != ""
}

func render(st lipgloss.Style, s string) string {
	if IsDisabled() {
		return s
	}
	return st.Render(s)
}

// YAML highlights a YAML document using Chroma
func YAML(doc string) string {
	if IsDisabled() {
		return doc
	}

	lexer := lexers.Get("yaml")
	if lexer == nil {
		return doc
	}

	iterator, err := lexer.Tokenise(nil, doc)
	if err != nil {
		return doc
	}

	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getConfigStyle(), iterator); err != nil {
		return doc
	}
	return buf.String()
}

// TID formats a thread id in gray
func TID(s string) string { return render(tidStyle, s) }

// Tag formats a hashtag in light pink
func Tag(tag string) string { return render(tagStyle, tag) }

// Name formats an operation or scenario name in yellow
func Name(name string) string { return render(nameStyle, name) }

// Detail formats detail text in light gray
func Detail(detail string) string { return render(detailStyle, detail) }

// Header formats header text in bold blue
func Header(s string) string { return render(headerStyle, s) }

// Border formats border characters in dark gray
func Border(s string) string { return render(borderStyle, s) }

// Pass formats a success marker in green
func Pass(s string) string { return render(passStyle, s) }

// Error formats error messages in bold pink
func Error(s string) string { return render(failStyle, s) }

// Comment formats comments in orange
func Comment(s string) string { return render(commentStyle, s) }
