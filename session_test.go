package letsconfide

import (
	"context"
	"errors"
	"testing"
)

func TestSessionCloseRejectsFurtherDecrypts(t *testing.T) {
	path := writeTempConfig(t, "data:\n  a: one\n")
	mgr, err := Parse(context.Background(), path, testFactory)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sess, err := mgr.StartDataAccessSession(context.Background())
	if err != nil {
		t.Fatalf("StartDataAccessSession: %v", err)
	}

	if _, err := sess.Decrypt("a"); err != nil {
		t.Fatalf("Decrypt before close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}

	if _, err := sess.Decrypt("a"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("want ErrSessionClosed after Close, got %v", err)
	}
}

func TestMultipleSessionsAreIndependent(t *testing.T) {
	path := writeTempConfig(t, "data:\n  a: one\n  b: two\n")
	mgr, err := Parse(context.Background(), path, testFactory)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	s1, err := mgr.StartDataAccessSession(context.Background())
	if err != nil {
		t.Fatalf("StartDataAccessSession (1): %v", err)
	}
	s2, err := mgr.StartDataAccessSession(context.Background())
	if err != nil {
		t.Fatalf("StartDataAccessSession (2): %v", err)
	}

	if err := s1.Close(); err != nil {
		t.Fatalf("Close s1: %v", err)
	}

	got, err := s2.Decrypt("b")
	if err != nil {
		t.Fatalf("s2.Decrypt after s1 closed: %v", err)
	}
	if got != "two" {
		t.Errorf("want %q, got %q", "two", got)
	}
	s2.Close()
}
