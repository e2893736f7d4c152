package slug

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type memChecker struct {
	taken map[string]int64
	calls int
}

func (m *memChecker) SlugExists(_ context.Context, s string, exceptID int64) (bool, error) {
	m.calls++
	id, ok := m.taken[s]
	if !ok {
		return false, nil
	}
	return exceptID == 0 || id != exceptID, nil
}

func TestMake(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Project Kickoff", "project-kickoff"},
		{"  Hello,   World! ", "hello-world"},
		{"Café crème", "cafe-creme"},
		{"snake_case and-dash", "snake-case-and-dash"},
		{"Node.js tips", "nodejs-tips"},
		{"me@home", "me-at-home"},
		{"2024 Q1 review", "2024-q1-review"},
		{"---", Fallback},
		{"", Fallback},
		{"Привет", Fallback},
	}
	for _, c := range cases {
		if got := Make(c.in); got != c.want {
			t.Errorf("Make(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestGenerate_Unused(t *testing.T) {
	c := &memChecker{taken: map[string]int64{}}
	got, err := Generate(context.Background(), c, "Fresh Title")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "fresh-title" {
		t.Errorf("slug = %q, want fresh-title", got)
	}
}

func TestGenerate_IncreasingSuffixes(t *testing.T) {
	c := &memChecker{taken: map[string]int64{}}
	ctx := context.Background()
	want := []string{"daily-log", "daily-log-1", "daily-log-2", "daily-log-3"}
	for i, w := range want {
		got, err := Generate(ctx, c, "Daily Log")
		if err != nil {
			t.Fatalf("Generate #%d: %v", i, err)
		}
		if got != w {
			t.Fatalf("Generate #%d = %q, want %q", i, got, w)
		}
		c.taken[got] = int64(i + 1)
	}
}

func TestGenerate_SkipsOccupiedSuffix(t *testing.T) {
	c := &memChecker{taken: map[string]int64{"foo": 1, "foo-1": 2}}
	got, err := Generate(context.Background(), c, "Foo")
	if err != nil {
		t.Fatal(err)
	}
	if got != "foo-2" {
		t.Errorf("slug = %q, want foo-2", got)
	}
}

func TestGenerateExcept_OwnSlugIsFree(t *testing.T) {
	c := &memChecker{taken: map[string]int64{"weekly-plan": 7}}
	got, err := GenerateExcept(context.Background(), c, "Weekly Plan", 7)
	if err != nil {
		t.Fatal(err)
	}
	if got != "weekly-plan" {
		t.Errorf("slug = %q, want weekly-plan", got)
	}
}

type failingChecker struct{}

func (failingChecker) SlugExists(context.Context, string, int64) (bool, error) {
	return false, fmt.Errorf("db down")
}

func TestGenerate_CheckerError(t *testing.T) {
	_, err := Generate(context.Background(), failingChecker{}, "x")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Unwrap(err) == nil {
		t.Errorf("error should wrap the checker error: %v", err)
	}
}
