package sandbox

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/replbox/replbox/pkg/types"
)

func TestJournal_RecordAndList(t *testing.T) {
	tmp := t.TempDir()

	j, err := OpenJournal(tmp, "sb-1")
	if err != nil {
		t.Fatalf("OpenJournal() error: %v", err)
	}
	defer j.Remove()

	started := time.Now()
	okRec := &types.Execution{Stdout: []string{"hi\n"}}
	if err := j.RecordExecute(started, 120*time.Millisecond, okRec); err != nil {
		t.Fatalf("RecordExecute() error: %v", err)
	}

	failedRec := &types.Execution{
		Error: &types.ExecutionError{Name: "ZeroDivisionError", Value: "division by zero"},
	}
	if err := j.RecordExecute(started, 5*time.Millisecond, failedRec); err != nil {
		t.Fatalf("RecordExecute() error: %v", err)
	}

	if err := j.RecordInstall(started, 2*time.Second, "requests", true); err != nil {
		t.Fatalf("RecordInstall() error: %v", err)
	}

	rows, err := j.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	if rows[0].Kind != "execute" || !rows[0].OK || rows[0].Detail != "" {
		t.Errorf("unexpected first row: %+v", rows[0])
	}
	if rows[0].DurationMS != 120 {
		t.Errorf("expected duration 120ms, got %d", rows[0].DurationMS)
	}
	if rows[1].Kind != "execute" || rows[1].OK || rows[1].Detail != "ZeroDivisionError" {
		t.Errorf("unexpected second row: %+v", rows[1])
	}
	if rows[2].Kind != "install" || !rows[2].OK || rows[2].Detail != "requests" {
		t.Errorf("unexpected third row: %+v", rows[2])
	}

	// Rows come back in execution order.
	for i, row := range rows {
		if row.Seq != i+1 {
			t.Errorf("expected seq %d, got %d", i+1, row.Seq)
		}
	}
}

func TestJournal_EmptyList(t *testing.T) {
	j, err := OpenJournal(t.TempDir(), "sb-empty")
	if err != nil {
		t.Fatalf("OpenJournal() error: %v", err)
	}
	defer j.Remove()

	rows, err := j.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if rows == nil {
		t.Fatal("expected non-nil slice")
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %v", rows)
	}
}

func TestJournal_Remove(t *testing.T) {
	tmp := t.TempDir()

	j, err := OpenJournal(tmp, "sb-2")
	if err != nil {
		t.Fatalf("OpenJournal() error: %v", err)
	}
	if err := j.RecordInstall(time.Now(), time.Second, "numpy", false); err != nil {
		t.Fatalf("RecordInstall() error: %v", err)
	}

	if err := j.Remove(); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmp, "replbox_journal_sb-2.db")); !os.IsNotExist(err) {
		t.Errorf("expected journal file removed, stat err: %v", err)
	}
}
