// Package colorize styles the pteosal command output: scenario results,
// trace lines and highlighted configuration.
package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

func init() {
	// Register our config style on package initialization
	_ = ConfigDark
}

// Theme colors
const (
	ColorTID     = "#808080" // Gray for thread ids
	ColorTag     = "#FFB4C8" // Light pink for hashtags
	ColorName    = "#FFC800" // Yellow for operation and scenario names
	ColorDetail  = "#B4B4B4" // Light gray for details
	ColorHeader  = "#569CD6" // Blue for headers
	ColorBorder  = "#505050" // Dark gray for borders
	ColorPass    = "#00FF00" // Green for passing scenarios
	ColorFail    = "#FF80C0" // Pink for failures
	ColorComment = "#FF8000" // Orange for comments
)

// ConfigDark is the chroma style used for YAML configuration dumps.
var ConfigDark = styles.Register(chroma.MustNewStyle("pteosal-dark", chroma.StyleEntries{
	chroma.Text:       "#FFFFFF",
	chroma.Background: "bg:#000000",
	chroma.Comment:    ColorComment,

	// Keys
	chroma.NameTag:      ColorHeader,
	chroma.NameVariable: ColorHeader,
	chroma.Keyword:      ColorHeader,

	chroma.LiteralNumber:        ColorFail,
	chroma.LiteralNumberInteger: ColorFail,
	chroma.LiteralNumberFloat:   ColorFail,

	chroma.String:      ColorPass,
	chroma.Punctuation: "#FFFFFF",
	chroma.Operator:    "#FFFFFF",
}))
