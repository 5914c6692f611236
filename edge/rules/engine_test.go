package rules

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ghuser/xscontrol/pkg/config"
	"github.com/ghuser/xscontrol/pkg/logger"
	"github.com/ghuser/xscontrol/pkg/model"
)

func testLogger() logger.Logger {
	return logger.New(&config.Config{LogLevel: "error"})
}

type fakeStore struct {
	inserted []string
}

func (f *fakeStore) InsertEvent(name string, _ any) error {
	f.inserted = append(f.inserted, name)
	return nil
}

func writeRules(t *testing.T, rules []model.Rule) string {
	t.Helper()
	data, err := json.Marshal(rules)
	if err != nil {
		t.Fatalf("marshal rules: %v", err)
	}
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write rules file: %v", err)
	}
	return path
}

func mustWriteFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}

func TestEngine_LoadAndEvaluate_PersistsFirings(t *testing.T) {
	store := &fakeStore{}
	eng := New(testLogger(), store)

	path := writeRules(t, []model.Rule{
		{Name: "hot_cpu", If: "cpu_temp > 80", Then: "alert"},
		{Name: "cold_cpu", If: "cpu_temp < 10", Then: "alert"},
	})
	if err := eng.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	eng.Evaluate(model.RulesContext{"cpu_temp": 95})

	if len(store.inserted) != 1 || store.inserted[0] != "hot_cpu" {
		t.Fatalf("expected only hot_cpu to fire, got %v", store.inserted)
	}
}

func TestEngine_Evaluate_SkipsRuleWithMissingVariable(t *testing.T) {
	store := &fakeStore{}
	eng := New(testLogger(), store)

	path := writeRules(t, []model.Rule{
		{Name: "needs_humidity", If: "humidity > 50", Then: "alert"},
	})
	if err := eng.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	eng.Evaluate(model.RulesContext{"cpu_temp": 95})

	if len(store.inserted) != 0 {
		t.Fatalf("expected no firings when free variable is absent, got %v", store.inserted)
	}
}

func TestEngine_Load_RetainsPreviousRulesOnParseFailure(t *testing.T) {
	eng := New(testLogger(), nil)

	good := writeRules(t, []model.Rule{{Name: "r1", If: "a > 1", Then: "t"}})
	if err := eng.Load(good); err != nil {
		t.Fatalf("Load(good): %v", err)
	}
	if len(eng.Rules()) != 1 {
		t.Fatalf("expected 1 rule loaded")
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	mustWriteFile(t, bad, []byte("not json"))
	if err := eng.Load(bad); err == nil {
		t.Fatal("expected Load to fail on malformed JSON")
	}

	if len(eng.Rules()) != 1 {
		t.Fatalf("expected previous rule set retained after failed load, got %d rules", len(eng.Rules()))
	}
}

func TestEngine_Load_RejectsInvalidPredicate(t *testing.T) {
	eng := New(testLogger(), nil)
	path := writeRules(t, []model.Rule{{Name: "bad", If: "a >", Then: "t"}})

	if err := eng.Load(path); err == nil {
		t.Fatal("expected Load to reject an unparseable predicate")
	}
}

func TestEngine_LoadJSON_PushedRuleset(t *testing.T) {
	eng := New(testLogger(), &fakeStore{})
	data, _ := json.Marshal([]model.Rule{{Name: "pushed", If: "v == 1", Then: "t"}})

	if err := eng.LoadJSON(data); err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if len(eng.Rules()) != 1 || eng.Rules()[0].Name != "pushed" {
		t.Fatalf("expected pushed rule to be active, got %v", eng.Rules())
	}
}
