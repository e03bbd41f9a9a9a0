// Package sym defines the glyphs used for commands, verdicts and gate stages.
// They are stable across CLI output, logs and documentation.
package sym

// Command glyphs
const (
	AM       = "≡" // am: configuration and system settings
	DB       = "⊔" // db: run and gate persistence
	Evaluate = "⋈" // evaluate: compare measurements against requirements
	Run      = "⟶" // run: gated INPUT → PROCESS → OUTPUT workflow
	Serve    = "꩜" // serve: HTTP and websocket server
)

// Verdict glyphs
const (
	Pass          = "✓"
	Fail          = "✗"
	NotApplicable = "∅"
	Inconclusive  = "?"
)

// Gate glyphs
const (
	Pending  = "◌"
	Approved = "●"
	Rejected = "⊘"
	Frozen   = "❄"
)

// SymbolToCommand maps glyph strings to their text command equivalents.
var SymbolToCommand = map[string]string{
	AM:       "am",
	DB:       "db",
	Evaluate: "evaluate",
	Run:      "run",
	Serve:    "serve",
}

// CommandToSymbol maps text commands to their canonical glyph strings.
var CommandToSymbol = map[string]string{
	"am":       AM,
	"db":       DB,
	"evaluate": Evaluate,
	"run":      Run,
	"serve":    Serve,
}

// CommandDescriptions are the short help lines of each command.
var CommandDescriptions = map[string]string{
	"am":       "Configuration: show, validate and initialize settings",
	"db":       "Database: migrate and inspect run storage",
	"evaluate": "Evaluate: check measurements against a requirement table",
	"run":      "Run: drive a gated compliance run",
	"serve":    "Serve: expose runs over HTTP and stream gate events",
}

// Commands lists the commands in display order
var Commands = []string{"am", "db", "evaluate", "run", "serve"}

var verdictGlyphs = map[string]string{
	"PASS":           Pass,
	"FAIL":           Fail,
	"NOT_APPLICABLE": NotApplicable,
	"INCONCLUSIVE":   Inconclusive,
}

var gateGlyphs = map[string]string{
	"PENDING":  Pending,
	"APPROVED": Approved,
	"REJECTED": Rejected,
}

// Verdict returns the glyph of a verdict name, or the name itself when unknown
func Verdict(v string) string {
	if g, ok := verdictGlyphs[v]; ok {
		return g
	}
	return v
}

// Gate returns the glyph of a gate status name, or the name itself when unknown
func Gate(status string) string {
	if g, ok := gateGlyphs[status]; ok {
		return g
	}
	return status
}
