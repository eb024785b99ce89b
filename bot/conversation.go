// Package bot runs the Telegram deal-checker conversation.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"car-advisor/models"
	"car-advisor/predict"
	"car-advisor/storage"
	"car-advisor/utils"
)

// Advisor is the prediction capability the conversation relies on.
type Advisor interface {
	Predict(req models.PredictionRequest) (*models.Prediction, error)
	CheckCategory(field, value string) error
}

// ListingQuerier looks up stored listings for the similar-cars answer.
type ListingQuerier interface {
	Query(ctx context.Context, f storage.Filter, limit int) ([]*models.Listing, error)
}

type field struct {
	name        string
	prompt      string
	numeric     bool
	categorical bool
}

// fieldOrder is the sequence of questions asked per evaluation.
var fieldOrder = []field{
	{name: predict.FieldBrand, prompt: "Please enter brand:", categorical: true},
	{name: predict.FieldModel, prompt: "Please enter model:", categorical: true},
	{name: "year", prompt: "Please enter year:", numeric: true},
	{name: "mileage", prompt: "Please enter mileage:", numeric: true},
	{name: predict.FieldFuelType, prompt: "Please enter fuel type:", categorical: true},
	{name: predict.FieldGearbox, prompt: "Please enter gearbox:", categorical: true},
	{name: "power_kw", prompt: "Please enter power kw:", numeric: true},
	{name: "price", prompt: "Please enter price:", numeric: true},
}

const similarLimit = 3

// session is one chat's progress through fieldOrder.
type session struct {
	next int
	req  models.PredictionRequest
}

// Sessions holds per-chat state. It is safe for concurrent use.
type Sessions struct {
	mu sync.Mutex
	m  map[int64]*session
}

func NewSessions() *Sessions {
	return &Sessions{m: make(map[int64]*session)}
}

func (s *Sessions) reset(chatID int64) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &session{}
	s.m[chatID] = sess
	return sess
}

func (s *Sessions) get(chatID int64) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[chatID]
	if !ok {
		sess = &session{}
		s.m[chatID] = sess
	}
	return sess
}

func (s *Sessions) drop(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, chatID)
}

// Len reports the number of open conversations.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// Conversation turns chat messages into replies. Messages of one chat are
// expected in order; different chats may be handled concurrently.
type Conversation struct {
	advisor  Advisor
	listings ListingQuerier
	sessions *Sessions
	logger   *utils.Logger
}

func NewConversation(advisor Advisor, listings ListingQuerier, logger *utils.Logger) *Conversation {
	if logger == nil {
		logger = utils.NewLogger()
	}
	return &Conversation{advisor: advisor, listings: listings, sessions: NewSessions(), logger: logger}
}

// Start resets the chat and asks the first question.
func (c *Conversation) Start(chatID int64) []string {
	c.sessions.reset(chatID)
	return []string{"Welcome to IA-CARS 🧠🚗\nLet's evaluate your car.", fieldOrder[0].prompt}
}

// Handle consumes one answer and returns the replies to send.
func (c *Conversation) Handle(ctx context.Context, chatID int64, text string) []string {
	sess := c.sessions.get(chatID)
	cur := fieldOrder[sess.next]
	value := strings.ToLower(strings.TrimSpace(text))

	if cur.numeric {
		n, ok := parseNumber(value)
		if !ok {
			return []string{fmt.Sprintf("❌ %s must be a number. Try again:", cur.name)}
		}
		setNumber(&sess.req, cur.name, n)
	} else {
		if value == "" {
			return []string{cur.prompt}
		}
		if cur.categorical {
			if err := c.advisor.CheckCategory(cur.name, value); err != nil {
				return []string{unknownReply(cur.name, err)}
			}
		}
		setText(&sess.req, cur.name, value)
	}

	sess.next++
	if sess.next < len(fieldOrder) {
		return []string{fieldOrder[sess.next].prompt}
	}
	return c.evaluate(ctx, chatID, sess)
}

func (c *Conversation) evaluate(ctx context.Context, chatID int64, sess *session) []string {
	replies := []string{"✅ All data received. Evaluating..."}

	p, err := c.advisor.Predict(sess.req)
	var unknown *predict.UnknownCategoryError
	switch {
	case errors.As(err, &unknown):
		// The vocabulary changed under us; ask for that field again.
		for i, f := range fieldOrder {
			if f.name == unknown.Field {
				sess.next = i
				return append(replies, unknownReply(f.name, err), f.prompt)
			}
		}
		fallthrough
	case err != nil:
		c.logger.Warn("[bot] Prediction for chat %d failed: %v", chatID, err)
		c.sessions.drop(chatID)
		return append(replies, "❌ Failed to predict. Check if the values are valid.")
	}

	replies = append(replies, "📊 Prediction result:\n"+p.Message)
	replies = append(replies, c.similar(ctx, sess.req)...)
	c.sessions.drop(chatID)
	return replies
}

func (c *Conversation) similar(ctx context.Context, req models.PredictionRequest) []string {
	if c.listings == nil {
		return nil
	}
	f := storage.Filter{
		Brand:      req.Brand,
		Model:      req.Model,
		Gearbox:    req.Gearbox,
		MinMileage: models.IntPtr(req.Mileage * 8 / 10),
		MaxMileage: models.IntPtr(req.Mileage * 12 / 10),
	}
	found, err := c.listings.Query(ctx, f, similarLimit)
	if err != nil {
		c.logger.Warn("[bot] Similar listings query failed: %v", err)
		return []string{"⚠️ Failed to fetch similar listings."}
	}
	if len(found) == 0 {
		return []string{"ℹ️ No similar listings found."}
	}

	out := []string{"🟡 Similar listings from our database:"}
	for _, l := range found {
		year := "?"
		if l.Year != nil {
			year = strconv.Itoa(*l.Year)
		}
		out = append(out, fmt.Sprintf("🔗 %s %s (%s)\n📍 %s - 💰 %d %s\n%s",
			l.Brand, l.Model, year, place(l.Location), l.Price, l.Currency, l.URL))
	}
	return out
}

func unknownReply(name string, err error) string {
	var unknown *predict.UnknownCategoryError
	if errors.As(err, &unknown) && len(unknown.Suggestions) > 0 {
		return fmt.Sprintf("❌ Unknown %s. Did you mean: %s?", name, strings.Join(unknown.Suggestions, ", "))
	}
	return fmt.Sprintf("❌ Unknown %s. Try again:", name)
}

func place(loc map[string]string) string {
	if v := loc["city"]; v != "" {
		return v
	}
	if v := loc["raw"]; v != "" {
		return v
	}
	return "unknown"
}

func parseNumber(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

func setNumber(req *models.PredictionRequest, name string, n int) {
	switch name {
	case "year":
		req.Year = n
	case "mileage":
		req.Mileage = n
	case "power_kw":
		req.PowerKW = n
	case "price":
		req.Price = n
	}
}

func setText(req *models.PredictionRequest, name, v string) {
	switch name {
	case predict.FieldBrand:
		req.Brand = v
	case predict.FieldModel:
		req.Model = v
	case predict.FieldFuelType:
		req.FuelType = v
	case predict.FieldGearbox:
		req.Gearbox = v
	}
}
