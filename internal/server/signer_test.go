package server

import (
	"testing"
	"time"
)

func TestReportSignerRoundTrip(t *testing.T) {
	s := NewReportSigner([]byte("secret"), 15*time.Minute)
	token, err := s.Sign("report.md")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Verify(token, "report.md"); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestReportSignerRejectsOtherFile(t *testing.T) {
	s := NewReportSigner([]byte("secret"), 15*time.Minute)
	token, _ := s.Sign("report.md")
	if err := s.Verify(token, "other.md"); err == nil {
		t.Fatal("token accepted for a different file")
	}
}

func TestReportSignerRejectsExpired(t *testing.T) {
	s := NewReportSigner([]byte("secret"), time.Minute)
	clock := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	token, _ := s.Sign("report.md")
	clock = clock.Add(2 * time.Minute)
	if err := s.Verify(token, "report.md"); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestReportSignerRejectsGarbage(t *testing.T) {
	s := NewReportSigner([]byte("secret"), time.Minute)
	if err := s.Verify("not-a-token", "report.md"); err == nil {
		t.Fatal("garbage token accepted")
	}
	other := NewReportSigner([]byte("different"), time.Minute)
	token, _ := other.Sign("report.md")
	if err := s.Verify(token, "report.md"); err == nil {
		t.Fatal("token signed with a different secret accepted")
	}
}
