package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeTestVector(dim int, seed float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v
}

func TestMaterialLifecycle(t *testing.T) {
	s := openTestStore(t)

	m := Material{
		ID:         "m1",
		PersonaID:  "p1",
		SourceName: "algebra.pdf",
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.CreateMaterial(m); err != nil {
		t.Fatalf("CreateMaterial: %v", err)
	}

	got, err := s.GetMaterial("m1")
	if err != nil {
		t.Fatalf("GetMaterial: %v", err)
	}
	if got.Status != MaterialProcessing {
		t.Errorf("status = %q, want %q", got.Status, MaterialProcessing)
	}
	if got.Embedding != nil {
		t.Errorf("embedding should be nil before processing")
	}

	vec := makeTestVector(768, 0.1)
	if err := s.MarkMaterialReady("m1", "extracted text", vec); err != nil {
		t.Fatalf("MarkMaterialReady: %v", err)
	}

	got, err = s.GetMaterial("m1")
	if err != nil {
		t.Fatalf("GetMaterial after ready: %v", err)
	}
	if got.Status != MaterialReady {
		t.Errorf("status = %q, want %q", got.Status, MaterialReady)
	}
	if len(got.Embedding) != 768 {
		t.Errorf("embedding length = %d, want 768", len(got.Embedding))
	}
	if got.ExtractedText != "extracted text" {
		t.Errorf("extracted text = %q", got.ExtractedText)
	}

	// Terminal statuses are frozen: a second transition is rejected.
	if err := s.MarkMaterialFailed("m1", "boom"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkMaterialFailed on ready material = %v, want ErrNotFound", err)
	}
}

func TestMaterialFailed(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateMaterial(Material{ID: "m1", PersonaID: "p1", SourceName: "broken.pdf", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("CreateMaterial: %v", err)
	}
	if err := s.MarkMaterialFailed("m1", "unreadable PDF"); err != nil {
		t.Fatalf("MarkMaterialFailed: %v", err)
	}

	got, err := s.GetMaterial("m1")
	if err != nil {
		t.Fatalf("GetMaterial: %v", err)
	}
	if got.Status != MaterialFailed {
		t.Errorf("status = %q, want %q", got.Status, MaterialFailed)
	}
	if got.ErrorMessage != "unreadable PDF" {
		t.Errorf("error message = %q", got.ErrorMessage)
	}
	if got.Embedding != nil {
		t.Errorf("failed material must not carry an embedding")
	}
}

func TestListReadyMaterialsOrdering(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		m := Material{ID: id, PersonaID: "p1", SourceName: id + ".txt", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.CreateMaterial(m); err != nil {
			t.Fatalf("CreateMaterial %s: %v", id, err)
		}
		if err := s.MarkMaterialReady(id, "text "+id, makeTestVector(8, float32(i))); err != nil {
			t.Fatalf("MarkMaterialReady %s: %v", id, err)
		}
	}
	// One still processing: must not be returned.
	if err := s.CreateMaterial(Material{ID: "pending", PersonaID: "p1", SourceName: "pending.txt", CreatedAt: base}); err != nil {
		t.Fatalf("CreateMaterial pending: %v", err)
	}

	got, err := s.ListReadyMaterials(context.Background(), "p1")
	if err != nil {
		t.Fatalf("ListReadyMaterials: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d materials, want 3", len(got))
	}
	if got[0].ID != "new" || got[2].ID != "old" {
		t.Errorf("ordering = [%s %s %s], want newest first", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestCreateLinkDuplicate(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	l := Link{ID: "l1", PersonaID: "p1", URL: "https://example.com/calc", Title: "Calculus notes", CreatedAt: now}
	if err := s.CreateLink(l); err != nil {
		t.Fatalf("CreateLink: %v", err)
	}

	dup := Link{ID: "l2", PersonaID: "p1", URL: "https://example.com/calc", Title: "Same URL", CreatedAt: now}
	if err := s.CreateLink(dup); !errors.Is(err, ErrDuplicateLink) {
		t.Errorf("duplicate CreateLink = %v, want ErrDuplicateLink", err)
	}

	// Same URL under a different persona is fine.
	other := Link{ID: "l3", PersonaID: "p2", URL: "https://example.com/calc", Title: "Other persona", CreatedAt: now}
	if err := s.CreateLink(other); err != nil {
		t.Errorf("CreateLink for other persona: %v", err)
	}
}

func TestOneActiveSessionPerPair(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	if err := s.CreateSession(Session{ID: "s1", PersonaID: "p1", LearnerID: "u1", StartedAt: now}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	err := s.CreateSession(Session{ID: "s2", PersonaID: "p1", LearnerID: "u1", StartedAt: now})
	if !errors.Is(err, ErrActiveSessionExists) {
		t.Fatalf("second active session = %v, want ErrActiveSessionExists", err)
	}

	// A different learner with the same persona is allowed.
	if err := s.CreateSession(Session{ID: "s3", PersonaID: "p1", LearnerID: "u2", StartedAt: now}); err != nil {
		t.Errorf("CreateSession other learner: %v", err)
	}

	// Once the first session is terminal, the pair can start again.
	ok, err := s.FinalizeSession("s1", SessionCompleted, now, 30, 1000, false)
	if err != nil || !ok {
		t.Fatalf("FinalizeSession: ok=%v err=%v", ok, err)
	}
	if err := s.CreateSession(Session{ID: "s4", PersonaID: "p1", LearnerID: "u1", StartedAt: now}); err != nil {
		t.Errorf("CreateSession after finalize: %v", err)
	}
}

func TestFinalizeSessionIdempotent(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	if err := s.CreateSession(Session{ID: "s1", PersonaID: "p1", LearnerID: "u1", StartedAt: now}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	ok, err := s.FinalizeSession("s1", SessionCompleted, now, 15, 1000, false)
	if err != nil {
		t.Fatalf("FinalizeSession: %v", err)
	}
	if !ok {
		t.Fatal("first finalize should transition")
	}

	// Second finalize is a no-op, not an error.
	ok, err = s.FinalizeSession("s1", SessionCancelled, now, 99, 0, false)
	if err != nil {
		t.Fatalf("second FinalizeSession: %v", err)
	}
	if ok {
		t.Error("second finalize must not transition")
	}

	got, err := s.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != SessionCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.DurationMinutes == nil || *got.DurationMinutes != 15 {
		t.Errorf("duration = %v, want 15", got.DurationMinutes)
	}
	if got.CostMinor == nil || *got.CostMinor != 1000 {
		t.Errorf("cost = %v, want 1000", got.CostMinor)
	}
	if got.EndedAt == nil {
		t.Error("ended_at must be set on finalize")
	}
}

func TestAppendTurnOrdering(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	if err := s.CreateSession(Session{ID: "s1", PersonaID: "p1", LearnerID: "u1", StartedAt: now}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	contents := []string{"hi", "hello, how can I help?", "what is a derivative?"}
	roles := []string{"learner", "persona", "learner"}
	for i := range contents {
		turn, err := s.AppendTurn("s1", roles[i], contents[i], now.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("AppendTurn %d: %v", i, err)
		}
		if turn.Seq != i+1 {
			t.Errorf("turn %d seq = %d, want %d", i, turn.Seq, i+1)
		}
	}

	turns, err := s.ListTurns("s1")
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("got %d turns, want 3", len(turns))
	}
	for i, turn := range turns {
		if turn.Content != contents[i] || turn.Role != roles[i] {
			t.Errorf("turn %d = {%s %q}, want {%s %q}", i, turn.Role, turn.Content, roles[i], contents[i])
		}
	}
}

func TestAppendTurnRejectsTerminalSession(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	if err := s.CreateSession(Session{ID: "s1", PersonaID: "p1", LearnerID: "u1", StartedAt: now}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := s.FinalizeSession("s1", SessionCancelled, now, 0, 0, false); err != nil {
		t.Fatalf("FinalizeSession: %v", err)
	}

	if _, err := s.AppendTurn("s1", "learner", "anyone there?", now); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("AppendTurn on cancelled session = %v, want ErrSessionNotActive", err)
	}
	if _, err := s.AppendTurn("missing", "learner", "hi", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("AppendTurn on unknown session = %v, want ErrNotFound", err)
	}
}

func TestCreateReviewDuplicate(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	if err := s.CreateSession(Session{ID: "s1", PersonaID: "p1", LearnerID: "u1", StartedAt: now}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.CreateReview(Review{ID: "r1", SessionID: "s1", ReviewerID: "u1", Rating: 5, CreatedAt: now}); err != nil {
		t.Fatalf("CreateReview: %v", err)
	}

	err := s.CreateReview(Review{ID: "r2", SessionID: "s1", ReviewerID: "u1", Rating: 4, CreatedAt: now})
	if !errors.Is(err, ErrDuplicateReview) {
		t.Errorf("second review = %v, want ErrDuplicateReview", err)
	}

	got, err := s.GetReviewBySession("s1")
	if err != nil {
		t.Fatalf("GetReviewBySession: %v", err)
	}
	if got.ID != "r1" || got.Rating != 5 {
		t.Errorf("review = %+v, want r1 with rating 5", got)
	}
}

func TestJobQueueClaimAndRetry(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j1", Type: "material_extract", PayloadJSON: `{"material_id":"m1"}`, MaxAttempts: 2}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	job, err := s.ClaimNextJob([]string{"material_extract"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil || job.ID != "j1" {
		t.Fatalf("claimed job = %+v, want j1", job)
	}
	if job.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", job.Attempts)
	}

	// Running job is not claimable again.
	if again, _ := s.ClaimNextJob([]string{"material_extract"}); again != nil {
		t.Errorf("claimed a running job: %+v", again)
	}

	// First failure returns it to pending with a delay.
	if err := s.FailJob("j1", "embed timeout"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	if again, _ := s.ClaimNextJob([]string{"material_extract"}); again != nil {
		t.Errorf("job should be delayed, got %+v", again)
	}
}
