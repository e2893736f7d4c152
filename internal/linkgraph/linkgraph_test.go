package linkgraph

import (
	"context"
	"slices"
	"testing"

	"github.com/starford/zettel/internal/store"
	"github.com/starford/zettel/internal/testutil"
)

func create(t *testing.T, db *store.DB, owner int64, title, sl, content string) *store.Note {
	t.Helper()
	n := &store.Note{OwnerID: owner, Title: title, Slug: sl, Content: content}
	err := db.WithTx(context.Background(), func(tx *store.Tx) error {
		if err := tx.CreateNote(context.Background(), n); err != nil {
			return err
		}
		_, err := Sync(context.Background(), tx, n)
		return err
	})
	if err != nil {
		t.Fatalf("create %q: %v", title, err)
	}
	return n
}

func save(t *testing.T, db *store.DB, n *store.Note) Delta {
	t.Helper()
	var d Delta
	err := db.WithTx(context.Background(), func(tx *store.Tx) error {
		if err := tx.UpdateNote(context.Background(), n); err != nil {
			return err
		}
		var err error
		d, err = Sync(context.Background(), tx, n)
		return err
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	return d
}

func targets(t *testing.T, db *store.DB, id int64) []int64 {
	t.Helper()
	links, err := db.Reader().OutgoingLinks(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	var out []int64
	for _, l := range links {
		out = append(out, l.TargetID)
	}
	return out
}

func TestSync_ResolvesByTitleAndSlug(t *testing.T) {
	db := testutil.TestDB(t)
	kickoff := create(t, db, 1, "Project Kickoff", "project-kickoff", "agenda")
	renamed := create(t, db, 1, "Renamed", "old-name", "x")
	create(t, db, 2, "Project Kickoff", "project-kickoff-1", "other owner")

	src := create(t, db, 1, "Meeting notes", "meeting-notes", "Meeting notes\n[[Project Kickoff]] and [[Old Name]] and [[Missing]]")
	got := targets(t, db, src.ID)
	if !slices.Equal(got, []int64{kickoff.ID, renamed.ID}) {
		t.Errorf("targets = %v, want [%d %d]", got, kickoff.ID, renamed.ID)
	}
}

func TestSync_Idempotent(t *testing.T) {
	db := testutil.TestDB(t)
	b := create(t, db, 1, "B", "b", "")
	a := create(t, db, 1, "A", "a", "[[B]]")
	before, _ := db.Reader().FindLink(context.Background(), a.ID, b.ID)

	d := save(t, db, a)
	if !d.Empty() {
		t.Errorf("second sync delta = %+v, want empty", d)
	}
	after, _ := db.Reader().FindLink(context.Background(), a.ID, b.ID)
	if before == nil || after == nil || before.ID != after.ID {
		t.Errorf("edge identity changed: %v -> %v", before, after)
	}
}

func TestSync_RoundTrip(t *testing.T) {
	db := testutil.TestDB(t)
	b := create(t, db, 1, "B", "b", "")
	c := create(t, db, 1, "C", "c", "")
	a := create(t, db, 1, "A", "a", "plain")

	a.Content = "[[B]] [[C]]"
	d := save(t, db, a)
	if !slices.Equal(d.Added, []int64{b.ID, c.ID}) || len(d.Removed) != 0 {
		t.Errorf("add delta = %+v", d)
	}

	a.Content = "[[C]]"
	d = save(t, db, a)
	if len(d.Added) != 0 || !slices.Equal(d.Removed, []int64{b.ID}) {
		t.Errorf("remove delta = %+v", d)
	}

	a.Content = "nothing"
	save(t, db, a)
	if got := targets(t, db, a.ID); len(got) != 0 {
		t.Errorf("targets = %v, want none", got)
	}
}

func TestSync_NoSelfEdge(t *testing.T) {
	db := testutil.TestDB(t)
	a := create(t, db, 1, "Self", "self", "[[Self]]")
	if got := targets(t, db, a.ID); len(got) != 0 {
		t.Errorf("self edge persisted: %v", got)
	}
}

func TestSync_CaseSensitiveTitleFallsBackToSlug(t *testing.T) {
	db := testutil.TestDB(t)
	b := create(t, db, 1, "Go Tips", "go-tips", "")
	a := create(t, db, 1, "A", "a", "[[go tips]]")
	if got := targets(t, db, a.ID); !slices.Equal(got, []int64{b.ID}) {
		t.Errorf("targets = %v, want [%d]", got, b.ID)
	}
}
