package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/referral-onboarding/internal/application/attribution"
	"github.com/referral-onboarding/internal/application/delivery"
	"github.com/referral-onboarding/internal/application/onboarding"
	"github.com/referral-onboarding/internal/domain"
	"github.com/referral-onboarding/internal/infrastructure/backend"
	"github.com/referral-onboarding/internal/infrastructure/memory"
	"github.com/referral-onboarding/internal/pkg/clock"
	"github.com/referral-onboarding/internal/transport/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSender struct{ mock.Mock }

func (m *mockSender) Send(ctx context.Context, phone string, ch domain.Channel) domain.SendOutcome {
	return m.Called(ctx, phone, ch).Get(0).(domain.SendOutcome)
}

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) Verify(ctx context.Context, phone, code string) domain.VerifyOutcome {
	return m.Called(ctx, phone, code).Get(0).(domain.VerifyOutcome)
}

type mockLinks struct{ mock.Mock }

func (m *mockLinks) ResendLink(ctx context.Context, phone string) (*backend.ResendLinkResponse, error) {
	args := m.Called(ctx, phone)
	r, _ := args.Get(0).(*backend.ResendLinkResponse)
	return r, args.Error(1)
}

// instantPoller reports delivery as soon as polling starts.
type instantPoller struct{}

func (instantPoller) Start(_ context.Context, messageID string, onUpdate func(delivery.Update)) {
	onUpdate(delivery.Update{MessageID: messageID, Status: domain.StatusDelivered, Attempt: 1, MaxAttempts: 10})
}
func (instantPoller) Stop() {}
func (instantPoller) Wait() {}

type env struct {
	sender   *mockSender
	verifier *mockVerifier
	links    *mockLinks
	registry *onboarding.Registry
	router   chi.Router
}

func withVisitor(visitorID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v := r.Header.Get("X-Test-Visitor"); v != "" {
				visitorID = v
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), middleware.VisitorKey, visitorID)))
		})
	}
}

func newEnv(t *testing.T) *env {
	e := &env{sender: &mockSender{}, verifier: &mockVerifier{}, links: &mockLinks{}}
	e.registry = onboarding.NewRegistry(onboarding.Deps{
		Sender:    e.sender,
		Verifier:  e.verifier,
		Links:     e.links,
		NewPoller: func() onboarding.Poller { return instantPoller{} },
	})
	t.Cleanup(e.registry.Shutdown)

	svc := attribution.NewService(attribution.Settings{
		Secondary: memory.NewSlotStore(0, clock.Real()),
	})
	oh := NewOnboardingHandler(e.registry)
	ah := NewAttributionHandler(svc)
	hh := NewHealthHandler(e.registry)

	r := chi.NewRouter()
	r.Get("/health-check/{action}", hh.Ping)
	r.Group(func(r chi.Router) {
		r.Use(withVisitor("vis_a"))
		r.Post("/onboarding", oh.Create)
		r.Get("/onboarding/{id}", oh.Get)
		r.Delete("/onboarding/{id}", oh.Delete)
		r.Get("/onboarding/{id}/events", oh.Events)
		r.Post("/onboarding/{id}/phone", oh.SubmitPhone)
		r.Post("/onboarding/{id}/code", oh.SubmitCode)
		r.Post("/onboarding/{id}/resend", oh.Resend)
		r.Post("/onboarding/{id}/back", oh.Back)
		r.Put("/onboarding/{id}/channel", oh.SelectChannel)
		r.Post("/onboarding/{id}/resend-link", oh.ResendLink)
		r.Get("/attribution", ah.Get)
		r.Post("/attribution", ah.Capture)
		r.Post("/attribution/validate", ah.Validate)
		r.Delete("/attribution", ah.Clear)
	})
	e.router = r
	return e
}

func (e *env) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, OnboardingEnvelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	var out OnboardingEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func (e *env) create(t *testing.T, mode string) string {
	t.Helper()
	rec, out := e.do(t, http.MethodPost, "/onboarding", `{"mode":"`+mode+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotEmpty(t, out.SessionID)
	return out.SessionID
}

func TestOnboarding_HappyPath(t *testing.T) {
	e := newEnv(t)
	e.sender.On("Send", mock.Anything, "5551234567", domain.ChannelSMS).Return(domain.Accepted("SM123", domain.ChannelSMS))
	e.verifier.On("Verify", mock.Anything, "5551234567", "123456").
		Return(domain.VerifyOutcome{Verified: true, ReferralCode: "ABC123", ReferralLink: "https://refer.example/r/ABC123"})

	id := e.create(t, "new")

	rec, out := e.do(t, http.MethodPost, "/onboarding/"+id+"/phone", `{"phone":"5551234567","channel":"sms"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, out.View.Session)
	assert.Equal(t, "SM123", out.View.Session.MessageID)

	rec, out = e.do(t, http.MethodGet, "/onboarding/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StepVerify, out.View.Step)

	rec, out = e.do(t, http.MethodPost, "/onboarding/"+id+"/code", `{"code":"123456"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StepReady, out.View.Step)
	assert.Equal(t, "ABC123", out.View.ReferralCode)
	assert.Nil(t, out.View.Error)
}

func TestOnboarding_InvalidPhoneIsInline(t *testing.T) {
	e := newEnv(t)
	id := e.create(t, "")

	rec, out := e.do(t, http.MethodPost, "/onboarding/"+id+"/phone", `{"phone":"call me"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, out.View.Error)
	assert.Equal(t, domain.KindValidation, out.View.Error.Kind)
	assert.Equal(t, domain.StepPhone, out.View.Step)
	e.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestOnboarding_WrongStepIsConflict(t *testing.T) {
	e := newEnv(t)
	id := e.create(t, "new")

	rec, out := e.do(t, http.MethodPost, "/onboarding/"+id+"/code", `{"code":"123456"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NotEmpty(t, out.Error)
	require.NotNil(t, out.View)
	assert.Equal(t, domain.StepPhone, out.View.Step)
}

func TestOnboarding_BadRequests(t *testing.T) {
	e := newEnv(t)

	rec, _ := e.do(t, http.MethodPost, "/onboarding", `{"mode":"vip"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	id := e.create(t, "new")
	rec, _ = e.do(t, http.MethodPut, "/onboarding/"+id+"/channel", `{"channel":"carrier-pigeon"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(t, http.MethodPost, "/onboarding/"+id+"/phone", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out := e.do(t, http.MethodPut, "/onboarding/"+id+"/channel", `{"channel":"whatsapp"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ChannelWhatsApp, out.View.Channel)
}

func TestOnboarding_OwnerScopedAndDelete(t *testing.T) {
	e := newEnv(t)
	id := e.create(t, "returning")

	req := httptest.NewRequest(http.MethodGet, "/onboarding/"+id, nil)
	req.Header.Set("X-Test-Visitor", "vis_b")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = e.do(t, http.MethodDelete, "/onboarding/"+id, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = e.do(t, http.MethodGet, "/onboarding/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOnboarding_BackAndResendLink(t *testing.T) {
	e := newEnv(t)
	e.links.On("ResendLink", mock.Anything, "5551234567").Return(&backend.ResendLinkResponse{Success: true}, nil)
	id := e.create(t, "returning")

	rec, out := e.do(t, http.MethodPost, "/onboarding/"+id+"/resend-link", `{"phone":"5551234567"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, out.View.Notice, "5551234567")

	rec, out = e.do(t, http.MethodPost, "/onboarding/"+id+"/back", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StepPhone, out.View.Step)
}

func TestOnboarding_EventsStreamsInitialView(t *testing.T) {
	e := newEnv(t)
	id := e.create(t, "new")

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/onboarding/"+id+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	require.True(t, sc.Scan())
	assert.Equal(t, "event: view", sc.Text())
	require.True(t, sc.Scan())
	var v domain.OnboardingView
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(sc.Text(), "data: ")), &v))
	assert.Equal(t, domain.StepPhone, v.Step)

	// Closing the session ends the stream.
	require.NoError(t, e.registry.Close(id, "vis_a"))
	var sawClosed bool
	for sc.Scan() {
		if sc.Text() == "event: closed" {
			sawClosed = true
			break
		}
	}
	assert.True(t, sawClosed)
}

func TestAttribution_Endpoints(t *testing.T) {
	e := newEnv(t)

	rec, _ := e.do(t, http.MethodGet, "/attribution", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = e.do(t, http.MethodPost, "/attribution", `{"code":"no spaces!"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(t, http.MethodPost, "/attribution", `{"code":"friend-42"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = e.do(t, http.MethodGet, "/attribution", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got AttributionEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.Attribution)
	assert.Equal(t, "FRIEND-42", got.Attribution.Code)
	assert.Equal(t, domain.SourceManual, got.Attribution.Source)

	rec, _ = e.do(t, http.MethodPost, "/attribution/validate", `{"code":"ab"}`)
	var valid ValidityEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &valid))
	assert.False(t, valid.Valid)

	rec, _ = e.do(t, http.MethodDelete, "/attribution", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = e.do(t, http.MethodGet, "/attribution", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth_Stats(t *testing.T) {
	e := newEnv(t)
	e.create(t, "new")

	rec, _ := e.do(t, http.MethodGet, "/health-check/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"active_sessions":1}`, rec.Body.String())

	rec, _ = e.do(t, http.MethodGet, "/health-check/nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
