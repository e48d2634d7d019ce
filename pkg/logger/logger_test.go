package logger

import "testing"

func TestInitAcceptsKnownLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		if err := Init(level); err != nil {
			t.Fatalf("init with level %q: %v", level, err)
		}
	}
}

func TestInitFallsBackOnUnknownLevel(t *testing.T) {
	if err := Init("shouting"); err != nil {
		t.Fatalf("expected fallback to info, got error: %v", err)
	}
	if Logger() == nil {
		t.Fatal("expected a usable logger")
	}
}

func TestWithModuleBeforeInit(t *testing.T) {
	if WithModule("twofactor") == nil {
		t.Fatal("expected a non-nil child logger")
	}
}
