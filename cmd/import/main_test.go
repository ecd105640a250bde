package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/korhy/cookbook/internal/config"
	"github.com/korhy/cookbook/internal/core"
)

func writeData(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := core.DefaultFiles(dir)
	for name, content := range map[string]string{
		files.Categories:        "Dessert,1\nDessert,1\n",
		files.Ingredients:       "Sucre,1\nBeurre,2\n",
		files.Recipes:           "1,Tarte,Une tarte,1,30\n2,Quiche\n",
		files.RecipeIngredients: "1,100,1,1\n1,50,1,2\n",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateOnly_TextReport(t *testing.T) {
	out, err := execute(t, "--validate-only", "--data-dir", writeData(t))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, want := range []string{"STAGE", "categories", "recipe_ingredients", "recipes warnings:", "6 rows processed, 1 errors"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestValidateOnly_JSONReport(t *testing.T) {
	out, err := execute(t, "--validate-only", "--json", "--data-dir", writeData(t), "-b", "1")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var res core.RunResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(res.Stages) != 4 {
		t.Fatalf("stages = %d, want 4", len(res.Stages))
	}
	if st := res.Stage(core.StageCategories); st.Processed != 1 || st.Skipped != 1 {
		t.Errorf("categories = %+v", st)
	}
	if st := res.Stage(core.StageIngredients); st.Commits != 2 {
		t.Errorf("ingredient commits = %d, want 2 with batch size 1", st.Commits)
	}
}

func TestMissingFilesIsFatal(t *testing.T) {
	_, err := execute(t, "--validate-only", "--data-dir", t.TempDir())
	if !errors.Is(err, core.ErrFileAccess) {
		t.Fatalf("err = %v, want file access error", err)
	}
}

func TestInvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"long delimiter", []string{"--validate-only", "-d", "ab"}},
		{"delimiter equals quote", []string{"--validate-only", "-d", `"`}},
		{"zero batch", []string{"--validate-only", "-b", "0"}},
		{"bad format", []string{"--validate-only", "--recipe-format", "xml"}},
		{"stray argument", []string{"extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLiveRunNeedsDatabase(t *testing.T) {
	_, err := execute(t, "--data-dir", writeData(t))
	if !errors.Is(err, config.ErrNoDatabase) {
		t.Fatalf("err = %v, want ErrNoDatabase", err)
	}
}

func TestResetNeedsConfirmation(t *testing.T) {
	_, err := execute(t, "reset")
	if err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Fatalf("err = %v", err)
	}
}

func TestSchemaCommand(t *testing.T) {
	out, err := execute(t, "schema")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "CREATE TABLE IF NOT EXISTS recipes") {
		t.Errorf("schema output:\n%s", out)
	}
}

func TestFlagsApply_OnlyChanged(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--dry-run", "-d", "tab"}); err != nil {
		t.Fatal(err)
	}

	var f importFlags
	f.dryRun, f.delimiter = true, "tab"
	c := config.ImportConfig{
		Delimiter: ",", Quote: `"`, Escape: `\`,
		BatchSize: 10, RecipeFormat: "keyed", MaxWarnings: 5, Timeout: 1,
	}
	if err := f.apply(cmd, &c); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !c.DryRun || c.Delimiter != "tab" {
		t.Errorf("changed flags not applied: %+v", c)
	}
	if c.BatchSize != 10 || c.MaxWarnings != 5 {
		t.Errorf("unchanged flags overwrote config: %+v", c)
	}
}
