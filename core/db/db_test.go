package db

import (
	"testing"
)

// TestRunBatchCreateInsertSelectEndToEnd exercises the full
// parser -> compiler -> catalog -> evaluator pipeline through a single
// public entry point, the way a real caller uses the engine: one CREATE
// TABLE section followed by an INSERT+SELECT section, against an
// in-memory Database.
func TestRunBatchCreateInsertSelectEndToEnd(t *testing.T) {
	database, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer database.Close()

	const batch = `
CREATE TABLE public.people(name string, age int)
GO
INSERT INTO public.people(name, age) VALUES ('alice', 30)
INSERT INTO public.people(name, age) VALUES ('bob', 25)
SELECT name, age FROM public.people WHERE age > 26
`
	req := NewBasicRequest()
	if err := database.RunBatch(batch, req); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	rows := req.Rows()
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1: %v", len(rows), rows)
	}
	if name, _ := rows[0][0].(string); name != "alice" {
		t.Errorf("rows[0][0] = %v, want \"alice\"", rows[0][0])
	}
	if age, _ := rows[0][1].(int64); age != 30 {
		t.Errorf("rows[0][1] = %v, want 30", rows[0][1])
	}
}

// TestRunBatchFailureSkipsCommit covers spec's "no save() is called" path:
// a batch whose only section errors must make RunBatch return that error
// (RunBatch returns before reaching either Save). It does not reopen the
// database or inspect what was persisted.
func TestRunBatchFailureSkipsCommit(t *testing.T) {
	database, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer database.Close()

	req := NewBasicRequest()
	err = database.RunBatch(`SELECT name FROM public.does_not_exist`, req)
	if err == nil {
		t.Fatal("expected an error selecting from a nonexistent table")
	}
}

// TestRunBatchDDLVisibleWithinSameCall checks that a CREATE TABLE in an
// earlier GO section of one RunBatch call is visible to DML in a later
// section of the same call (the reason DDL is dispatched immediately
// instead of being bucketed with the surrounding statements).
func TestRunBatchDDLVisibleWithinSameCall(t *testing.T) {
	database, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer database.Close()

	const batch = `
CREATE SCHEMA app
GO
CREATE TABLE app.widgets(label string)
GO
INSERT INTO app.widgets(label) VALUES ('gizmo')
SELECT label FROM app.widgets
`
	req := NewBasicRequest()
	if err := database.RunBatch(batch, req); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	rows := req.Rows()
	if len(rows) != 1 || rows[0][0] != "gizmo" {
		t.Fatalf("got rows %v, want one row [gizmo]", rows)
	}
}
