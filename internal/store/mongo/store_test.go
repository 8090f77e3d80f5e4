package mongo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"voice-survey-service/internal/models"
	"voice-survey-service/internal/store"
)

func TestAppendFilter(t *testing.T) {
	f := appendFilter("abc", models.Answer{LegID: "L1", RecordingID: "R2"}, 3)

	if f["callId"] != "abc" {
		t.Errorf("expected callId abc, got %v", f["callId"])
	}
	responses, ok := f["responses"].(bson.M)
	if !ok {
		t.Fatalf("expected responses guard, got %v", f["responses"])
	}
	not, ok := responses["$not"].(bson.M)
	if !ok {
		t.Fatalf("expected $not guard, got %v", responses)
	}
	match, ok := not["$elemMatch"].(bson.M)
	if !ok || match["legId"] != "L1" || match["recordingId"] != "R2" {
		t.Errorf("expected $elemMatch on legId L1 and recordingId R2, got %v", not)
	}
	if _, ok := f["responses.legId"]; ok {
		t.Error("expected no leg-only guard")
	}
	capGuard, ok := f["responses.2"].(bson.M)
	if !ok || capGuard["$exists"] != false {
		t.Errorf("expected responses.2 $exists:false guard, got %v", f["responses.2"])
	}
}

func TestAppendUpdate(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	u := appendUpdate(models.Answer{LegID: "L1", RecordingID: "R1", RecordedAt: at})

	push, ok := u["$push"].(bson.M)
	if !ok {
		t.Fatalf("expected $push, got %v", u)
	}
	a, ok := push["responses"].(models.Answer)
	if !ok || a.RecordingID != "R1" {
		t.Errorf("expected pushed answer R1, got %v", push["responses"])
	}
	set := u["$set"].(bson.M)
	if set["updatedAt"] != at {
		t.Errorf("expected updatedAt %v, got %v", at, set["updatedAt"])
	}
}

// TestStore_Integration runs against a live server when MONGO_TEST_URI is set.
func TestStore_Integration(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := New(ctx, Config{
		URI:        uri,
		Database:   "voice_survey_test",
		Collection: "participants_" + uuid.NewString()[:8],
		Timeout:    5 * time.Second,
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() {
		s.collection.Drop(context.Background())
		s.Close(context.Background())
	}()

	if _, err := s.FindByCallID(ctx, "abc"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Create(ctx, "abc", "+1555"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Create(ctx, "abc", "+1555"); !errors.Is(err, store.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	p, err := s.AppendAnswer(ctx, "abc", models.Answer{LegID: "L1", RecordingID: "R1"}, 2)
	if err != nil || p.Answered() != 1 {
		t.Fatalf("append: answered=%v err=%v", p, err)
	}
	p, _ = s.AppendAnswer(ctx, "abc", models.Answer{LegID: "L1", RecordingID: "R1"}, 2)
	if p.Answered() != 1 {
		t.Errorf("expected replayed recording to be ignored, got %d answers", p.Answered())
	}
	p, _ = s.AppendAnswer(ctx, "abc", models.Answer{LegID: "L1", RecordingID: "R2"}, 2)
	if p.Answered() != 2 {
		t.Errorf("expected a new recording on the same leg to be stored, got %d answers", p.Answered())
	}
	p, _ = s.AppendAnswer(ctx, "abc", models.Answer{LegID: "L1", RecordingID: "R3"}, 2)
	if p.Answered() != 2 {
		t.Errorf("expected answers capped at 2, got %d", p.Answered())
	}

	if _, err := s.AppendAnswer(ctx, "missing", models.Answer{LegID: "L1"}, 2); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing participant, got %v", err)
	}

	list, err := s.List(ctx)
	if err != nil || len(list) != 1 {
		t.Errorf("expected 1 listed participant, got %d (err=%v)", len(list), err)
	}
}

func TestAppendFilter_BlankReferenceSkipsDedup(t *testing.T) {
	f := appendFilter("abc", models.Answer{}, 3)

	if _, ok := f["responses"]; ok {
		t.Error("expected no dedup guard for a blank reference")
	}
	if _, ok := f["responses.2"]; !ok {
		t.Error("expected the cap guard to remain")
	}
}
