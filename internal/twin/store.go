// Package twin is an in-memory stand-in for the verification backend. It
// speaks the same wire contract as the real service so the BFF and CLI can
// run end to end without an SMS gateway.
package twin

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/referral-onboarding/internal/domain"
	"github.com/referral-onboarding/internal/pkg/clock"
	"github.com/referral-onboarding/internal/pkg/id"
)

// MessageStatus is the simulated carrier state of one message.
type MessageStatus string

const (
	MessageQueued    MessageStatus = "queued"
	MessageDelivered MessageStatus = "delivered"
	MessageFailed    MessageStatus = "failed"
)

// Message is one issued verification code.
type Message struct {
	SID       string         `json:"sid"`
	Phone     string         `json:"phone"`
	Channel   domain.Channel `json:"channel"`
	Code      string         `json:"code"`
	Status    MessageStatus  `json:"status"`
	Polls     int            `json:"polls"`
	Consumed  bool           `json:"consumed"`
	CreatedAt time.Time      `json:"created_at"`
}

// Referral is the link unlocked by a verified phone.
type Referral struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
	Link  string `json:"link"`
}

// Settings tune the simulated gateway.
type Settings struct {
	DeliverAfterPolls int
	WhatsAppIncapable []string
	Undeliverable     []string
	ReferralBaseURL   string
	Clock             clock.Clock
}

// Store holds all twin state behind one lock.
type Store struct {
	mu            sync.Mutex
	messages      map[string]*Message
	latest        map[string]string // phone key -> newest SID
	referrals     map[string]Referral
	deliverAfter  int
	noWhatsApp    map[string]bool
	undeliverable map[string]bool
	linkBase      string
	clock         clock.Clock
}

func NewStore(s Settings) *Store {
	st := &Store{
		messages:      make(map[string]*Message),
		latest:        make(map[string]string),
		referrals:     make(map[string]Referral),
		deliverAfter:  s.DeliverAfterPolls,
		noWhatsApp:    phoneSet(s.WhatsAppIncapable),
		undeliverable: phoneSet(s.Undeliverable),
		linkBase:      strings.TrimRight(s.ReferralBaseURL, "/"),
		clock:         s.Clock,
	}
	if st.deliverAfter <= 0 {
		st.deliverAfter = 1
	}
	if st.linkBase == "" {
		st.linkBase = "https://refer.example/r"
	}
	if st.clock == nil {
		st.clock = clock.Real()
	}
	return st
}

// phoneKey reduces a loosely formatted phone to its digits.
func phoneKey(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func phoneSet(phones []string) map[string]bool {
	m := make(map[string]bool, len(phones))
	for _, p := range phones {
		if k := phoneKey(p); k != "" {
			m[k] = true
		}
	}
	return m
}

// SupportsWhatsApp reports whether the phone can receive WhatsApp messages.
func (s *Store) SupportsWhatsApp(phone string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.noWhatsApp[phoneKey(phone)]
}

// Issue creates a new code for phone, superseding earlier ones.
func (s *Store) Issue(phone string, ch domain.Channel) (Message, error) {
	code, err := generateCode(6)
	if err != nil {
		return Message{}, err
	}
	m := &Message{
		SID:       id.WithPrefix("SM"),
		Phone:     phone,
		Channel:   ch,
		Code:      code,
		Status:    MessageQueued,
		CreatedAt: s.clock.Now().UTC(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.SID] = m
	s.latest[phoneKey(phone)] = m.SID
	return *m, nil
}

// Poll records one delivery-status query and advances the simulated
// carrier state.
func (s *Store) Poll(sid string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[sid]
	if !ok {
		return Message{}, fmt.Errorf("message %s: %w", sid, domain.ErrNotFound)
	}
	m.Polls++
	if m.Status == MessageQueued && m.Polls >= s.deliverAfter {
		if s.undeliverable[phoneKey(m.Phone)] {
			m.Status = MessageFailed
		} else {
			m.Status = MessageDelivered
		}
	}
	return *m, nil
}

// Verify checks code against the newest unconsumed message for phone. A
// match consumes the message and returns the phone's referral, creating it
// on first use.
func (s *Store) Verify(phone, code string) (Referral, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := phoneKey(phone)
	m, ok := s.messages[s.latest[key]]
	if !ok || m.Consumed || m.Status == MessageFailed || m.Code != code {
		return Referral{}, false
	}
	m.Consumed = true
	ref, ok := s.referrals[key]
	if !ok {
		rc := "REF-" + id.New()[20:]
		ref = Referral{Phone: phone, Code: rc, Link: s.linkBase + "/" + rc}
		s.referrals[key] = ref
	}
	return ref, true
}

// Referral returns the link already unlocked by phone.
func (s *Store) Referral(phone string) (Referral, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.referrals[phoneKey(phone)]
	return ref, ok
}

// Messages lists every issued message, newest first.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	out := make([]Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, *m)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].SID > out[j].SID
	})
	return out
}

// Reset clears all state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make(map[string]*Message)
	s.latest = make(map[string]string)
	s.referrals = make(map[string]Referral)
}

func generateCode(digits int) (string, error) {
	var b strings.Builder
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
