package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"car-advisor/models"
	"car-advisor/predict"
	"car-advisor/storage"
)

type fakeAdvisor struct {
	vocab   map[string][]string
	got     models.PredictionRequest
	err     error
	verdict string
}

func (f *fakeAdvisor) CheckCategory(field, value string) error {
	for _, v := range f.vocab[field] {
		if v == value {
			return nil
		}
	}
	return &predict.UnknownCategoryError{Field: field, Value: value, Suggestions: f.vocab[field]}
}

func (f *fakeAdvisor) Predict(req models.PredictionRequest) (*models.Prediction, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Prediction{Verdict: f.verdict, EstimatedPrice: 18000, Message: "✅ Good deal! Estimated market price: 18000.00"}, nil
}

type fakeListings struct {
	filter storage.Filter
	limit  int
	found  []*models.Listing
	err    error
}

func (f *fakeListings) Query(_ context.Context, filter storage.Filter, limit int) ([]*models.Listing, error) {
	f.filter, f.limit = filter, limit
	return f.found, f.err
}

func newAdvisor() *fakeAdvisor {
	return &fakeAdvisor{
		verdict: models.VerdictGoodDeal,
		vocab: map[string][]string{
			predict.FieldBrand:    {"audi", "bmw"},
			predict.FieldModel:    {"320", "a4"},
			predict.FieldFuelType: {"diesel", "petrol"},
			predict.FieldGearbox:  {"automatic", "manual"},
		},
	}
}

var answers = []string{"BMW", "320", "2017", "50000", "diesel", "manual", "110", "15000"}

func converse(c *Conversation, chatID int64, msgs ...string) []string {
	var last []string
	for _, m := range msgs {
		last = c.Handle(context.Background(), chatID, m)
	}
	return last
}

func TestConversationHappyPath(t *testing.T) {
	adv := newAdvisor()
	listings := &fakeListings{found: []*models.Listing{{
		Brand: "bmw", Model: "320", Year: models.IntPtr(2016), Price: 14500, Currency: "EUR",
		Location: map[string]string{"city": "Berlin"}, URL: "https://www.autoscout24.com/offers/x-1",
	}}}
	c := NewConversation(adv, listings, nil)

	start := c.Start(42)
	if start[len(start)-1] != "Please enter brand:" {
		t.Fatalf("start: got %v", start)
	}

	replies := converse(c, 42, answers...)
	want := models.PredictionRequest{Brand: "bmw", Model: "320", Year: 2017, Mileage: 50000, FuelType: "diesel", Gearbox: "manual", PowerKW: 110, Price: 15000}
	if adv.got != want {
		t.Errorf("request: got %+v, want %+v", adv.got, want)
	}
	if len(replies) != 4 {
		t.Fatalf("replies: got %d %v", len(replies), replies)
	}
	if !strings.Contains(replies[1], "Good deal") || !strings.Contains(replies[3], "Berlin") {
		t.Errorf("unexpected replies %v", replies)
	}

	wantFilter := storage.Filter{Brand: "bmw", Model: "320", Gearbox: "manual",
		MinMileage: models.IntPtr(40000), MaxMileage: models.IntPtr(60000)}
	if diff := cmp.Diff(wantFilter, listings.filter); diff != "" {
		t.Errorf("similar query (-want +got):\n%s", diff)
	}
	if listings.limit != 3 {
		t.Errorf("similar limit: got %d, want 3", listings.limit)
	}
	if c.sessions.Len() != 0 {
		t.Error("session should be cleared after evaluation")
	}
}

func TestConversationRejectsBadInput(t *testing.T) {
	c := NewConversation(newAdvisor(), nil, nil)
	c.Start(7)

	got := c.Handle(context.Background(), 7, "Tesla")
	if !strings.Contains(got[0], "Unknown brand") || !strings.Contains(got[0], "audi, bmw") {
		t.Errorf("unknown brand reply: %v", got)
	}

	converse(c, 7, "bmw", "320")
	got = c.Handle(context.Background(), 7, "twenty")
	if got[0] != "❌ year must be a number. Try again:" {
		t.Errorf("numeric reply: %v", got)
	}
	got = c.Handle(context.Background(), 7, "2017")
	if got[0] != "Please enter mileage:" {
		t.Errorf("after a valid year: %v", got)
	}
}

func TestConversationPerChatState(t *testing.T) {
	c := NewConversation(newAdvisor(), nil, nil)
	c.Start(1)
	c.Start(2)

	c.Handle(context.Background(), 1, "bmw")
	if got := c.Handle(context.Background(), 2, "audi"); got[0] != "Please enter model:" {
		t.Errorf("chat 2 should still be on brand, got %v", got)
	}
	if got := c.Handle(context.Background(), 1, "320"); got[0] != "Please enter year:" {
		t.Errorf("chat 1 should be on model, got %v", got)
	}

	c.Start(1)
	if got := c.Handle(context.Background(), 1, "2017"); !strings.Contains(got[0], "Unknown brand") {
		t.Errorf("/start should reset to brand, got %v", got)
	}
}

func TestConversationPredictionFailures(t *testing.T) {
	adv := newAdvisor()
	adv.err = &predict.UnknownCategoryError{Field: predict.FieldGearbox, Value: "manual", Suggestions: []string{"automatic"}}
	c := NewConversation(adv, nil, nil)

	replies := converse(c, 9, answers...)
	if replies[len(replies)-1] != "Please enter gearbox:" {
		t.Errorf("should reprompt gearbox, got %v", replies)
	}

	adv.err = errors.New("model not loaded")
	replies = c.Handle(context.Background(), 9, "manual")
	replies = append(replies, converse(c, 9, "110", "15000")...)
	if !strings.Contains(strings.Join(replies, "\n"), "Failed to predict") {
		t.Errorf("expected a failure reply, got %v", replies)
	}
	if c.sessions.Len() != 0 {
		t.Error("session should be dropped after a failed prediction")
	}
}

func TestSimilarListingsFailure(t *testing.T) {
	c := NewConversation(newAdvisor(), &fakeListings{err: errors.New("db down")}, nil)
	replies := converse(c, 3, answers...)
	if replies[len(replies)-1] != "⚠️ Failed to fetch similar listings." {
		t.Errorf("got %v", replies)
	}

	c = NewConversation(newAdvisor(), &fakeListings{}, nil)
	replies = converse(c, 3, answers...)
	if replies[len(replies)-1] != "ℹ️ No similar listings found." {
		t.Errorf("got %v", replies)
	}
}

func TestSimilarListingsZeroMileage(t *testing.T) {
	store, err := storage.Open(context.Background(), storage.Options{
		Driver:       storage.DriverSQLite,
		DSN:          filepath.Join(t.TempDir(), "bot.db"),
		PingAttempts: 1,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	stored := []*models.Listing{
		{ListingID: "far", Brand: "bmw", Model: "320", Gearbox: "manual", FuelType: "diesel", Mileage: 180000,
			Price: 9000, Currency: "EUR", Source: "autoscout24", ScrapedAt: time.Now(), URL: "https://example.com/far"},
		{ListingID: "new", Brand: "bmw", Model: "320", Gearbox: "manual", FuelType: "diesel", Mileage: 0,
			Price: 39000, Currency: "EUR", Source: "autoscout24", ScrapedAt: time.Now(), URL: "https://example.com/new"},
	}
	if _, err := store.InsertIfAbsent(context.Background(), stored); err != nil {
		t.Fatal(err)
	}

	c := NewConversation(newAdvisor(), store, nil)
	replies := converse(c, 5, "bmw", "320", "2024", "0", "diesel", "manual", "110", "38000")
	joined := strings.Join(replies, "\n")
	if strings.Contains(joined, "example.com/far") {
		t.Errorf("a 180000 km listing is not similar to a new car: %v", replies)
	}
	if !strings.Contains(joined, "example.com/new") {
		t.Errorf("the 0 km listing should be returned: %v", replies)
	}
}
