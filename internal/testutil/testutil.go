// Package testutil provides shared test helpers for databases, inbox
// directories and classifier fakes.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/zettel/internal/classifier"
	"github.com/starford/zettel/internal/storage"
	"github.com/starford/zettel/internal/store"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "zettel-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestInbox creates a temporary inbox directory backed by storage.FS.
func TestInbox(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Eventually polls cond until it returns true or the timeout expires.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

// FakeClassifier is a scripted classifier.Classifier. Each GenerateMetadata
// call pops the next entry of Results; once exhausted the last entry repeats.
type FakeClassifier struct {
	mu         sync.Mutex
	Results    []FakeResult
	Suggestion *classifier.ProjectSuggestion
	SuggestErr error

	calls     int
	lastTypes []classifier.CandidateType
}

// FakeResult is one scripted GenerateMetadata outcome.
type FakeResult struct {
	Metadata *classifier.Metadata
	Err      error
}

func (f *FakeClassifier) GenerateMetadata(_ context.Context, _ string, types []classifier.CandidateType) (*classifier.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastTypes = types
	if len(f.Results) == 0 {
		return &classifier.Metadata{}, nil
	}
	i := min(f.calls-1, len(f.Results)-1)
	r := f.Results[i]
	if r.Err != nil {
		return nil, &classifier.Error{Op: "generate metadata", Err: r.Err}
	}
	return r.Metadata, nil
}

func (f *FakeClassifier) SuggestProject(context.Context, string, []classifier.CandidateProject) (*classifier.ProjectSuggestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SuggestErr != nil {
		return nil, &classifier.Error{Op: "suggest project", Err: f.SuggestErr}
	}
	return f.Suggestion, nil
}

// Calls returns how many GenerateMetadata calls were made.
func (f *FakeClassifier) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// LastTypes returns the candidate types passed to the latest call.
func (f *FakeClassifier) LastTypes() []classifier.CandidateType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTypes
}
