package sym

import (
	"testing"
	"unicode/utf8"
)

func TestSymbolToCommandAndCommandToSymbolAreBidirectional(t *testing.T) {
	for symbol, cmd := range SymbolToCommand {
		got, ok := CommandToSymbol[cmd]
		if !ok {
			t.Errorf("SymbolToCommand has %q → %q, but CommandToSymbol has no entry for %q", symbol, cmd, cmd)
			continue
		}
		if got != symbol {
			t.Errorf("bidirectional mismatch: SymbolToCommand[%q] = %q, but CommandToSymbol[%q] = %q", symbol, cmd, cmd, got)
		}
	}
	if len(SymbolToCommand) != len(CommandToSymbol) {
		t.Errorf("map size mismatch: SymbolToCommand has %d entries, CommandToSymbol has %d",
			len(SymbolToCommand), len(CommandToSymbol))
	}
}

func TestCommandDescriptionsCoversAllCommands(t *testing.T) {
	for _, cmd := range Commands {
		if _, ok := CommandDescriptions[cmd]; !ok {
			t.Errorf("CommandDescriptions missing entry for command %q", cmd)
		}
		if _, ok := CommandToSymbol[cmd]; !ok {
			t.Errorf("Commands contains %q which is not in CommandToSymbol", cmd)
		}
	}
}

func TestGlyphsAreDistinctValidUnicode(t *testing.T) {
	seen := map[string]string{}
	all := map[string]string{
		"pass": Pass, "fail": Fail, "na": NotApplicable, "inconclusive": Inconclusive,
		"pending": Pending, "approved": Approved, "rejected": Rejected, "frozen": Frozen,
	}
	for name, g := range all {
		if !utf8.ValidString(g) || utf8.RuneCountInString(g) != 1 {
			t.Errorf("glyph %s = %q is not a single rune", name, g)
		}
		if prev, ok := seen[g]; ok {
			t.Errorf("glyph %q used by both %s and %s", g, prev, name)
		}
		seen[g] = name
	}
}

func TestVerdictAndGateLookup(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{Verdict("PASS"), Pass},
		{Verdict("FAIL"), Fail},
		{Verdict("NOT_APPLICABLE"), NotApplicable},
		{Verdict("INCONCLUSIVE"), Inconclusive},
		{Verdict("MAYBE"), "MAYBE"},
		{Gate("PENDING"), Pending},
		{Gate("APPROVED"), Approved},
		{Gate("REJECTED"), Rejected},
		{Gate("OPEN"), "OPEN"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
