package scenario

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DanielMTyler/ellie-sub000/internal/clock"
	"github.com/DanielMTyler/ellie-sub000/internal/event"
	"github.com/DanielMTyler/ellie-sub000/internal/frame"
	"github.com/DanielMTyler/ellie-sub000/pkg/model"
)

const demo = `
name: demo
watch: [tick]
chains:
  - name: intro
    steps:
      - delay: 20ms
      - publish: greeting
        payload: {who: world}
      - name: ticker
        script: |
          function init() { publish("tick", {n: 1}); }
      - fail: giving up
      - publish: never
  - name: side
    manager: view
    steps:
      - publish: greeting
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParse_Demo(t *testing.T) {
	sc, err := Parse([]byte(demo), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sc.Name != "demo" || len(sc.Chains) != 2 {
		t.Fatalf("got name=%q chains=%d", sc.Name, len(sc.Chains))
	}
	intro := sc.Chains[0]
	if intro.ManagerName() != DefaultManager {
		t.Errorf("ManagerName = %q, want %q", intro.ManagerName(), DefaultManager)
	}
	kinds := make([]string, len(intro.Steps))
	for i, st := range intro.Steps {
		kinds[i] = st.Kind()
	}
	if got := strings.Join(kinds, ","); got != "delay,publish,script,fail,publish" {
		t.Errorf("kinds = %s", got)
	}
	if *intro.Steps[0].Delay != 20*time.Millisecond {
		t.Errorf("delay = %v, want 20ms", *intro.Steps[0].Delay)
	}
	if got := strings.Join(sc.PublishedTypes(), ","); got != "greeting,never,tick" {
		t.Errorf("PublishedTypes = %s", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"no chains", "name: x\n", "chains"},
		{"empty chain", "chains:\n  - name: a\n", "chains[0].steps"},
		{"no kind", "chains:\n  - steps:\n      - name: nothing\n", "chains[0].steps[0]"},
		{"two kinds", "chains:\n  - steps:\n      - delay: 1s\n        publish: x\n", "chains[0].steps[0]"},
		{"negative delay", "chains:\n  - steps:\n      - delay: -1s\n", "chains[0].steps[0].delay"},
		{"bad script", "chains:\n  - steps:\n      - script: 'function ('\n", "chains[0].steps[0].script"},
		{"stray payload", "chains:\n  - steps:\n      - delay: 1s\n        payload: 3\n", "chains[0].steps[0].payload"},
		{"empty watch", "watch: ['']\nchains:\n  - steps:\n      - delay: 1s\n", "watch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), "")
			var ve *model.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want *model.ValidationError", err)
			}
			found := false
			for _, d := range ve.Details {
				if d.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for field %q in %v", tt.field, ve.Details)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := Parse([]byte("chains: [\n"), ""); err == nil {
		t.Error("expected YAML error")
	}
	if _, err := Parse([]byte("chains: []\nbogus: 1\n"), ""); err == nil {
		t.Error("expected unknown field error")
	}
	if _, err := Parse(nil, ""); err == nil {
		t.Error("expected error for empty document")
	}
}

func TestLoad_ScriptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "step.js"), []byte("function update(dt) { succeed(); }"), 0o644); err != nil {
		t.Fatal(err)
	}
	doc := "name: files\nchains:\n  - steps:\n      - script_file: step.js\n"
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	sc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !strings.Contains(sc.Chains[0].Steps[0].Script, "succeed") {
		t.Errorf("script not inlined: %q", sc.Chains[0].Steps[0].Script)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(dir, "scenario.yaml")
	doc := "chains:\n  - steps:\n      - script_file: nope.js\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for missing script file")
	}
}

func newLoop(t *testing.T) (*frame.Loop, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Time{})
	cfg := frame.DefaultConfig()
	cfg.LimitTime = false
	l := frame.NewLoop(cfg, testLogger(), frame.WithClock(clk))
	t.Cleanup(l.Close)
	return l, clk
}

func TestBuild_RunsChains(t *testing.T) {
	sc, err := Parse([]byte(demo), "")
	if err != nil {
		t.Fatal(err)
	}
	l, clk := newLoop(t)
	in, err := sc.Build(l, testLogger())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer in.Release()
	if len(in.Heads) != 2 {
		t.Fatalf("Heads = %d, want 2", len(in.Heads))
	}

	ctx := context.Background()
	for i := 0; i < 20 && !l.Idle(); i++ {
		clk.Advance(16 * time.Millisecond)
		if _, err := l.Tick(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if !l.Idle() {
		t.Fatal("scenario did not finish")
	}

	logic := l.Manager("logic").Totals()
	if logic.Succeeded != 3 || logic.Failed != 1 {
		t.Errorf("logic totals = %+v, want 3 succeeded 1 failed", logic)
	}
	if got := l.Manager("view").Totals().Succeeded; got != 1 {
		t.Errorf("view succeeded = %d, want 1", got)
	}
	if got := in.Received("greeting"); got != 2 {
		t.Errorf("greeting received = %d, want 2", got)
	}
	if got := in.Received("tick"); got != 1 {
		t.Errorf("tick received = %d, want 1", got)
	}
	if got := in.Received("never"); got != 0 {
		t.Errorf("never received = %d, want 0", got)
	}
}

func TestBuild_UnknownManager(t *testing.T) {
	sc, err := Parse([]byte("chains:\n  - manager: audio\n    steps:\n      - delay: 1s\n"), "")
	if err != nil {
		t.Fatal(err)
	}
	l, _ := newLoop(t)
	if _, err := sc.Build(l, testLogger()); err == nil || !strings.Contains(err.Error(), "audio") {
		t.Errorf("Build err = %v, want unknown manager", err)
	}
	for _, m := range l.Managers() {
		if m.Len() != 0 {
			t.Errorf("manager %s has %d processes after failed build", m.Name(), m.Len())
		}
	}
}

func TestInstance_Release(t *testing.T) {
	sc, err := Parse([]byte("chains:\n  - steps:\n      - publish: ping\n"), "")
	if err != nil {
		t.Fatal(err)
	}
	l, _ := newLoop(t)
	in, err := sc.Build(l, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if l.Bus().Subscribers("ping") != 1 {
		t.Fatalf("Subscribers = %d, want 1", l.Bus().Subscribers("ping"))
	}
	in.Release()
	if l.Bus().Subscribers("ping") != 0 {
		t.Errorf("Subscribers after Release = %d, want 0", l.Bus().Subscribers("ping"))
	}
}

func TestBuild_AttachFailureRollsBack(t *testing.T) {
	sc, err := Parse([]byte(demo), "")
	if err != nil {
		t.Fatal(err)
	}
	l, _ := newLoop(t)
	l.Manager("view").Close()

	if _, err := sc.Build(l, testLogger()); err == nil {
		t.Fatal("Build succeeded with a closed manager")
	}
	if got := l.Manager("logic").Len(); got != 0 {
		t.Errorf("logic.Len = %d after failed build, want 0", got)
	}
	for _, typ := range sc.PublishedTypes() {
		if n := l.Bus().Subscribers(event.Type(typ)); n != 0 {
			t.Errorf("Subscribers(%s) = %d after failed build, want 0", typ, n)
		}
	}
}

func TestBuild_ScriptTimeoutDefault(t *testing.T) {
	sc, err := Parse([]byte("chains:\n  - steps:\n      - script: 'function update() { for (;;) {} }'\n"), "")
	if err != nil {
		t.Fatal(err)
	}
	l, clk := newLoop(t)
	in, err := sc.Build(l, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer in.Release()

	clk.Advance(16 * time.Millisecond)
	if _, err := l.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := l.Manager("logic").Totals().Failed; got != 1 {
		t.Errorf("failed = %d, want the spinning script failed by its timeout", got)
	}
}
