package logger

import (
	"errors"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLevelParsing(t *testing.T) {
	cases := map[LogLevel]zapcore.Level{
		DebugLevel: zapcore.DebugLevel,
		"WARN":     zapcore.WarnLevel,
		ErrorLevel: zapcore.ErrorLevel,
		"":         zapcore.InfoLevel,
		"verbose":  zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := in.zapLevel(); got != want {
			t.Errorf("%q.zapLevel() = %v, want %v", in, got, want)
		}
	}
}

func TestHelpersAreSafeBeforeInit(t *testing.T) {
	// must not panic without a logger
	Debug("d", String("k", "v"), Int("n", 1))
	Info("i", Float64("f", 1.5), Bool("b", true))
	Warn("w", ErrorField(errors.New("boom")))
	Error("e", Duration("d", 0))
	Sync()
}

func TestNewCoreWritesRotatedFile(t *testing.T) {
	path := t.TempDir() + "/logs/smileslot.log"
	core, err := newCore(Config{Level: WarnLevel, Format: "console", OutputPath: path, MaxSize: 1})
	if err != nil {
		t.Fatalf("newCore: %v", err)
	}
	if core.Enabled(zapcore.InfoLevel) {
		t.Fatal("info should be filtered at warn level")
	}
	if !core.Enabled(zapcore.ErrorLevel) {
		t.Fatal("error should pass at warn level")
	}
}
