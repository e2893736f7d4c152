package enrich

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/zettel/internal/classifier"
	"github.com/starford/zettel/internal/store"
	"github.com/starford/zettel/internal/testutil"
)

func fastOptions() Options {
	return Options{Workers: 1, QueueSize: 8, MaxAttempts: 3, Backoff: time.Millisecond, SweepInterval: 20 * time.Millisecond}
}

func seedNote(t *testing.T, db *store.DB, n *store.Note, tags ...string) *store.Note {
	t.Helper()
	ctx := context.Background()
	err := db.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateNote(ctx, n); err != nil {
			return err
		}
		if len(tags) == 0 {
			return nil
		}
		tt, err := tx.FindOrCreateTags(ctx, n.OwnerID, tags)
		if err != nil {
			return err
		}
		ids := make([]int64, len(tt))
		for i, tg := range tt {
			ids[i] = tg.ID
		}
		return tx.ReplaceNoteTags(ctx, n.ID, ids)
	})
	if err != nil {
		t.Fatalf("seed note: %v", err)
	}
	return n
}

func seedTags(t *testing.T, db *store.DB, owner int64, names ...string) {
	t.Helper()
	ctx := context.Background()
	err := db.WithTx(ctx, func(tx *store.Tx) error {
		_, err := tx.FindOrCreateTags(ctx, owner, names)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
}

func tagNames(t *testing.T, db *store.DB, noteID int64) []string {
	t.Helper()
	tags, err := db.Reader().NoteTags(context.Background(), noteID)
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, tg := range tags {
		out = append(out, tg.Name)
	}
	return out
}

func enqueueAndProcess(t *testing.T, r *Runner, req Request) *store.Job {
	t.Helper()
	job, err := r.Enqueue(context.Background(), req)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.State != store.JobQueued {
		t.Fatalf("enqueued state = %q", job.State)
	}
	got, err := r.Process(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	return got
}

func TestProcess_AttachOnlyTags(t *testing.T) {
	db := testutil.TestDB(t)
	seedTags(t, db, 1, "work", "meeting")
	n := seedNote(t, db, &store.Note{OwnerID: 1, Title: "Standup", Slug: "standup", Content: "Standup with the team"})

	fake := &testutil.FakeClassifier{Results: []testutil.FakeResult{
		{Metadata: &classifier.Metadata{Title: "", Tags: []string{"Work", "urgent"}}},
	}}
	r := New(db, fake, testutil.Logger(), fastOptions())

	job := enqueueAndProcess(t, r, Request{NoteID: n.ID, WantTags: true})
	if job.State != store.JobSucceeded {
		t.Fatalf("state = %q (%s)", job.State, job.LastError)
	}
	if got := strings.Join(tagNames(t, db, n.ID), ","); got != "work" {
		t.Errorf("note tags = %q, want work", got)
	}
	all, _ := db.Reader().ListTags(context.Background(), 1)
	for _, tg := range all {
		if tg.Name == "urgent" {
			t.Error("enrichment must never create tags")
		}
	}
}

func TestProcess_TagsUnionWithCurrent(t *testing.T) {
	db := testutil.TestDB(t)
	seedTags(t, db, 1, "go")
	n := seedNote(t, db, &store.Note{OwnerID: 1, Title: "T", Slug: "t", Content: "c"}, "personal")

	fake := &testutil.FakeClassifier{Results: []testutil.FakeResult{
		{Metadata: &classifier.Metadata{Tags: []string{"go"}}},
	}}
	r := New(db, fake, testutil.Logger(), fastOptions())
	enqueueAndProcess(t, r, Request{NoteID: n.ID, WantTags: true})

	if got := strings.Join(tagNames(t, db, n.ID), ","); got != "go,personal" {
		t.Errorf("tags = %q, want go,personal", got)
	}
}

func TestProcess_ExhaustedRetries(t *testing.T) {
	db := testutil.TestDB(t)
	seedTags(t, db, 1, "alpha")
	n := seedNote(t, db, &store.Note{OwnerID: 1, Title: "Keep me", Slug: "keep-me", Content: "Keep me"}, "personal")

	fake := &testutil.FakeClassifier{Results: []testutil.FakeResult{{Err: errors.New("upstream unavailable")}}}
	r := New(db, fake, testutil.Logger(), fastOptions())

	job := enqueueAndProcess(t, r, Request{NoteID: n.ID, WantTitle: true, WantTags: true})
	if job.State != store.JobFailedPermanently {
		t.Fatalf("state = %q, want %q", job.State, store.JobFailedPermanently)
	}
	if job.Attempts != 3 || fake.Calls() != 3 {
		t.Errorf("attempts = %d, calls = %d, want 3", job.Attempts, fake.Calls())
	}
	stored, _ := r.Job(context.Background(), job.ID)
	if stored.State != store.JobFailedPermanently || !strings.Contains(stored.LastError, "upstream unavailable") {
		t.Errorf("stored job = %+v", stored)
	}
	got, _ := db.Reader().GetNoteByID(context.Background(), n.ID)
	if got.Title != "Keep me" || got.Slug != "keep-me" {
		t.Errorf("note changed: %+v", got)
	}
	if tags := strings.Join(tagNames(t, db, n.ID), ","); tags != "personal" {
		t.Errorf("tags = %q, want personal", tags)
	}
}

func createJob(t *testing.T, db *store.DB, j *store.Job) {
	t.Helper()
	if err := db.WithTx(context.Background(), func(tx *store.Tx) error { return tx.CreateJob(context.Background(), j) }); err != nil {
		t.Fatal(err)
	}
}

func TestProcess_InterruptedJobKeepsAttemptBudget(t *testing.T) {
	db := testutil.TestDB(t)
	n := seedNote(t, db, &store.Note{OwnerID: 1, Title: "Keep me", Slug: "keep-me", Content: "Keep me"})
	fake := &testutil.FakeClassifier{Results: []testutil.FakeResult{{Err: errors.New("still down")}}}
	r := New(db, fake, testutil.Logger(), fastOptions())

	spent := &store.Job{ID: "spent", NoteID: n.ID, WantTitle: true, State: store.JobQueued, Attempts: 3, LastError: "timeout"}
	createJob(t, db, spent)
	got, err := r.Process(context.Background(), spent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != store.JobFailedPermanently || got.Attempts != 3 || fake.Calls() != 0 {
		t.Errorf("spent job = %+v, calls = %d", got, fake.Calls())
	}
	if got.LastError != "timeout" {
		t.Errorf("last error = %q, want timeout", got.LastError)
	}

	partial := &store.Job{ID: "partial", NoteID: n.ID, WantTitle: true, State: store.JobQueued, Attempts: 2}
	createJob(t, db, partial)
	got, err = r.Process(context.Background(), partial.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != store.JobFailedPermanently || got.Attempts != 3 || fake.Calls() != 1 {
		t.Errorf("partial job = %+v, calls = %d", got, fake.Calls())
	}
}

func TestProcess_SucceedsOnRetry(t *testing.T) {
	db := testutil.TestDB(t)
	seedNote(t, db, &store.Note{OwnerID: 1, Title: "Weekly sync", Slug: "weekly-sync", Content: "older"})
	n := seedNote(t, db, &store.Note{OwnerID: 1, Title: "draft", Slug: "draft", Content: "We agreed on the roadmap"})

	fake := &testutil.FakeClassifier{Results: []testutil.FakeResult{
		{Err: errors.New("timeout")},
		{Metadata: &classifier.Metadata{Title: "Weekly sync", Tags: []string{}}},
	}}
	r := New(db, fake, testutil.Logger(), fastOptions())

	job := enqueueAndProcess(t, r, Request{NoteID: n.ID, WantTitle: true})
	if job.State != store.JobSucceeded || job.Attempts != 2 {
		t.Fatalf("job = %+v", job)
	}
	got, _ := db.Reader().GetNoteByID(context.Background(), n.ID)
	if got.Title != "Weekly sync" || got.Slug != "weekly-sync-1" {
		t.Errorf("note = %q / %q, want Weekly sync / weekly-sync-1", got.Title, got.Slug)
	}
	if got.Content != "We agreed on the roadmap" {
		t.Errorf("content changed: %q", got.Content)
	}
}

func TestProcess_TypeCandidatesNeedContent(t *testing.T) {
	db := testutil.TestDB(t)
	short := seedNote(t, db, &store.Note{OwnerID: 1, Title: "hi", Slug: "hi", Content: "  hi  "})
	long := seedNote(t, db, &store.Note{OwnerID: 1, Title: "l", Slug: "l", Content: "Buy milk on the way home"})

	typeID := int64(3)
	fake := &testutil.FakeClassifier{Results: []testutil.FakeResult{
		{Metadata: &classifier.Metadata{TypeID: &typeID}},
	}}
	r := New(db, fake, testutil.Logger(), fastOptions())

	enqueueAndProcess(t, r, Request{NoteID: short.ID, WantType: true})
	if len(fake.LastTypes()) != 0 {
		t.Errorf("short content got %d candidate types", len(fake.LastTypes()))
	}

	enqueueAndProcess(t, r, Request{NoteID: long.ID, WantType: true})
	if len(fake.LastTypes()) != 6 {
		t.Errorf("candidate types = %d, want 6", len(fake.LastTypes()))
	}
	got, _ := db.Reader().GetNoteByID(context.Background(), long.ID)
	if got.TypeID == nil || *got.TypeID != typeID {
		t.Errorf("type = %v", got.TypeID)
	}
}

func TestProcess_TypeCandidatesCountRunes(t *testing.T) {
	db := testutil.TestDB(t)
	// Ten runes, thirty bytes.
	n := seedNote(t, db, &store.Note{OwnerID: 1, Title: "m", Slug: "m", Content: "会議メモ明日の予定確"})
	fake := &testutil.FakeClassifier{Results: []testutil.FakeResult{{Metadata: &classifier.Metadata{}}}}
	r := New(db, fake, testutil.Logger(), fastOptions())

	enqueueAndProcess(t, r, Request{NoteID: n.ID, WantType: true})
	if len(fake.LastTypes()) != 6 {
		t.Errorf("candidate types = %d, want 6", len(fake.LastTypes()))
	}

	nine := seedNote(t, db, &store.Note{OwnerID: 1, Title: "n", Slug: "n", Content: "会議メモ明日の予定"})
	enqueueAndProcess(t, r, Request{NoteID: nine.ID, WantType: true})
	if len(fake.LastTypes()) != 0 {
		t.Errorf("nine-rune content got %d candidate types", len(fake.LastTypes()))
	}
}

func TestProcess_UnrequestedFieldsUntouched(t *testing.T) {
	db := testutil.TestDB(t)
	n := seedNote(t, db, &store.Note{OwnerID: 1, Title: "Mine", Slug: "mine", Content: "some content here"})
	typeID := int64(2)
	fake := &testutil.FakeClassifier{Results: []testutil.FakeResult{
		{Metadata: &classifier.Metadata{Title: "Theirs", TypeID: &typeID}},
	}}
	r := New(db, fake, testutil.Logger(), fastOptions())
	enqueueAndProcess(t, r, Request{NoteID: n.ID, WantTags: true})

	got, _ := db.Reader().GetNoteByID(context.Background(), n.ID)
	if got.Title != "Mine" || got.TypeID != nil {
		t.Errorf("note = %+v", got)
	}
}

func TestProcess_SkipIfEdited(t *testing.T) {
	db := testutil.TestDB(t)
	n := seedNote(t, db, &store.Note{OwnerID: 1, Title: "T", Slug: "t", Content: "before"})
	fake := &testutil.FakeClassifier{}
	opts := fastOptions()
	opts.SkipIfEdited = true
	r := New(db, fake, testutil.Logger(), opts)

	job, err := r.Enqueue(context.Background(), Request{NoteID: n.ID, WantTitle: true})
	if err != nil {
		t.Fatal(err)
	}
	n.Content = "after"
	if err := db.WithTx(context.Background(), func(tx *store.Tx) error { return tx.UpdateNote(context.Background(), n) }); err != nil {
		t.Fatal(err)
	}
	got, err := r.Process(context.Background(), job.ID)
	if err != nil || got.State != store.JobSucceeded {
		t.Fatalf("job = %+v, err = %v", got, err)
	}
	if fake.Calls() != 0 {
		t.Errorf("classifier called %d times for an edited capture", fake.Calls())
	}
}

func TestProcess_DeletedNoteAndNoFields(t *testing.T) {
	db := testutil.TestDB(t)
	n := seedNote(t, db, &store.Note{OwnerID: 1, Title: "T", Slug: "t", Content: "c"})
	fake := &testutil.FakeClassifier{}
	r := New(db, fake, testutil.Logger(), fastOptions())

	job, _ := r.Enqueue(context.Background(), Request{NoteID: n.ID, WantTitle: true})
	_ = db.WithTx(context.Background(), func(tx *store.Tx) error { return tx.DeleteNote(context.Background(), 1, n.ID) })
	got, err := r.Process(context.Background(), job.ID)
	if err != nil || got.State != store.JobSucceeded || fake.Calls() != 0 {
		t.Errorf("deleted note job = %+v, err = %v, calls = %d", got, err, fake.Calls())
	}

	other := seedNote(t, db, &store.Note{OwnerID: 1, Title: "O", Slug: "o", Content: "c"})
	job = enqueueAndProcess(t, r, Request{NoteID: other.ID})
	if job.State != store.JobSucceeded || job.Attempts != 0 {
		t.Errorf("empty request job = %+v", job)
	}

	again, err := r.Process(context.Background(), job.ID)
	if err != nil || again.State != store.JobSucceeded {
		t.Errorf("reprocess = %+v, %v", again, err)
	}
}

func TestEnqueue_UnknownNote(t *testing.T) {
	db := testutil.TestDB(t)
	r := New(db, &testutil.FakeClassifier{}, testutil.Logger(), fastOptions())
	if _, err := r.Enqueue(context.Background(), Request{NoteID: 404, WantTitle: true}); err == nil {
		t.Error("expected error for missing note")
	}
}

func TestRun_ProcessesQueueAndInterruptedJobs(t *testing.T) {
	db := testutil.TestDB(t)
	seedTags(t, db, 1, "garden")
	a := seedNote(t, db, &store.Note{OwnerID: 1, Title: "a", Slug: "a", Content: "tomatoes"})
	b := seedNote(t, db, &store.Note{OwnerID: 1, Title: "b", Slug: "b", Content: "peppers"})

	interrupted := &store.Job{ID: "left-running", NoteID: b.ID, WantTags: true, State: store.JobRunning, Attempts: 1}
	if err := db.WithTx(context.Background(), func(tx *store.Tx) error { return tx.CreateJob(context.Background(), interrupted) }); err != nil {
		t.Fatal(err)
	}

	fake := &testutil.FakeClassifier{Results: []testutil.FakeResult{
		{Metadata: &classifier.Metadata{Tags: []string{"garden"}}},
	}}
	var mu sync.Mutex
	var enriched []int64
	r := New(db, fake, testutil.Logger(), fastOptions(), WithOnEnriched(func(n *store.Note, _ []string) {
		mu.Lock()
		enriched = append(enriched, n.ID)
		mu.Unlock()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	job, err := r.Enqueue(context.Background(), Request{NoteID: a.ID, WantTags: true})
	if err != nil {
		t.Fatal(err)
	}

	testutil.Eventually(t, 2*time.Second, func() bool {
		j1, _ := r.Job(context.Background(), job.ID)
		j2, _ := r.Job(context.Background(), interrupted.ID)
		return j1.State == store.JobSucceeded && j2.State == store.JobSucceeded
	})
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(enriched) != 2 {
		t.Errorf("onEnriched calls = %v, want 2", enriched)
	}
}
