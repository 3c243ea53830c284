package gitrepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestArchiveLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	archive := New(tempDir)

	first, changed, err := archive.Commit("budget-2024", "### Alice: \n\nOpening.\n", "Avery", "Initial import")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if !changed {
		t.Fatal("expected first commit to change the archive")
	}
	if len(first.Hash) != 7 {
		t.Fatalf("expected short hash, got %q", first.Hash)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "budget-2024", ".git")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	second, changed, err := archive.Commit("budget-2024", "### Alice: \n\nOpening.\n\nClosing.\n", "Blake", "Add closing")
	if err != nil {
		t.Fatalf("Commit() second error = %v", err)
	}
	if !changed || second.Hash == first.Hash {
		t.Fatalf("expected a new commit, got %+v", second)
	}

	text, head, err := archive.Head("budget-2024")
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if head.Hash != second.Hash {
		t.Fatalf("expected head %s, got %s", second.Hash, head.Hash)
	}
	if text != "### Alice: \n\nOpening.\n\nClosing.\n" {
		t.Fatalf("unexpected head transcript %q", text)
	}

	old, info, err := archive.ContentAt("budget-2024", first.Hash)
	if err != nil {
		t.Fatalf("ContentAt() error = %v", err)
	}
	if old != "### Alice: \n\nOpening.\n" || info.Author != "Avery" {
		t.Fatalf("unexpected first revision %q by %q", old, info.Author)
	}
}

func TestArchiveSkipsUnchangedTranscript(t *testing.T) {
	archive := New(t.TempDir())

	first, _, err := archive.Commit("talk", "same\n", "Avery", "Initial import")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	again, changed, err := archive.Commit("talk", "same\n", "Avery", "Re-import")
	if err != nil {
		t.Fatalf("Commit() repeat error = %v", err)
	}
	if changed {
		t.Fatal("expected identical transcript to be skipped")
	}
	if again.Hash != first.Hash {
		t.Fatalf("expected head %s, got %s", first.Hash, again.Hash)
	}

	history, err := archive.History("talk", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 revision, got %d", len(history))
	}
}

func TestArchiveHistoryNewestFirst(t *testing.T) {
	archive := New(t.TempDir())
	for i := 1; i <= 4; i++ {
		markdown := ""
		for j := 1; j <= i; j++ {
			markdown += fmt.Sprintf("Line %d\n\n", j)
		}
		if _, _, err := archive.Commit("talk", markdown, "Avery", fmt.Sprintf("Revision %d", i)); err != nil {
			t.Fatalf("Commit(%d) error = %v", i, err)
		}
	}

	history, err := archive.History("talk", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("expected 4 revisions, got %d", len(history))
	}
	if history[0].Message != "Revision 4" || history[3].Message != "Revision 1" {
		t.Fatalf("unexpected order: %q .. %q", history[0].Message, history[3].Message)
	}
	if history[0].Added != 2 || history[0].Removed != 0 {
		t.Fatalf("expected +2/-0 on newest revision, got +%d/-%d", history[0].Added, history[0].Removed)
	}

	limited, err := archive.History("talk", 2)
	if err != nil {
		t.Fatalf("History(limit) error = %v", err)
	}
	if len(limited) != 2 || limited[1].Message != "Revision 3" {
		t.Fatalf("unexpected limited history %+v", limited)
	}
}

func TestArchiveMissingSpeech(t *testing.T) {
	archive := New(t.TempDir())
	if _, _, err := archive.Head("nothing"); !errors.Is(err, ErrNotArchived) {
		t.Fatalf("expected ErrNotArchived, got %v", err)
	}
	if _, err := archive.History("nothing", 10); !errors.Is(err, ErrNotArchived) {
		t.Fatalf("expected ErrNotArchived, got %v", err)
	}
	if err := archive.Remove("nothing"); err != nil {
		t.Fatalf("Remove() on missing archive error = %v", err)
	}
}

func TestArchiveRemove(t *testing.T) {
	tempDir := t.TempDir()
	archive := New(tempDir)
	if _, _, err := archive.Commit("talk", "text\n", "Avery", "Initial import"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err := archive.Remove("talk"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "talk")); !os.IsNotExist(err) {
		t.Fatalf("expected archive directory to be gone, stat err = %v", err)
	}
	if _, _, err := archive.Head("talk"); !errors.Is(err, ErrNotArchived) {
		t.Fatalf("expected ErrNotArchived after removal, got %v", err)
	}
}

func TestArchiveEscapesFilenames(t *testing.T) {
	tempDir := t.TempDir()
	archive := New(tempDir)
	if _, _, err := archive.Commit("q&a/session", "text\n", "Avery", "Initial import"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "q&a%2Fsession")); err != nil {
		t.Fatalf("expected escaped repo directory: %v", err)
	}
}

func TestArchiveConcurrentCommits(t *testing.T) {
	archive := New(t.TempDir())
	if _, _, err := archive.Commit("talk", "base\n", "Avery", "Initial import"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := archive.Commit("talk", fmt.Sprintf("base\n\nedit %d\n", i), "Avery", fmt.Sprintf("Edit %d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Commit() error = %v", err)
		}
	}

	history, err := archive.History("talk", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 9 {
		t.Fatalf("expected 9 revisions, got %d", len(history))
	}
}

func TestSanitizeEmail(t *testing.T) {
	if got := sanitizeEmail("Avery Stone"); got != "Avery.Stone" {
		t.Fatalf("sanitizeEmail() = %q", got)
	}
	if got := sanitizeEmail("!!"); got != "editor" {
		t.Fatalf("sanitizeEmail() = %q", got)
	}
}
