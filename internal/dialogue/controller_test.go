package dialogue

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"davinci-agent/internal/model"
	"davinci-agent/internal/registry"
	"davinci-agent/internal/session"
	"davinci-agent/internal/slot"
)

var fixedNow = time.Date(2026, 10, 15, 14, 30, 0, 0, time.UTC)

// fakeClassifier 按文本返回意图，未配置的返回 FallbackIntent
type fakeClassifier struct {
	mu     sync.Mutex
	labels map[string]string
	calls  int
}

func (f *fakeClassifier) Classify(_ context.Context, text string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if l, ok := f.labels[text]; ok {
		return l
	}
	return FallbackIntent
}

// fakeExtractor 按文本返回抽取结果，只保留请求的字段及指向它们的别名
type fakeExtractor struct {
	mu      sync.Mutex
	results map[string]map[string]any
	errs    map[string]error
	asked   [][]string
	delay   time.Duration
	active  atomic.Int32
	overlap atomic.Bool
}

func (f *fakeExtractor) Extract(_ context.Context, text string, fields []string) (map[string]any, error) {
	if f.active.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.active.Add(-1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, append([]string(nil), fields...))
	if err := f.errs[text]; err != nil {
		return nil, err
	}
	want := map[string]bool{}
	for _, fl := range fields {
		want[fl] = true
	}
	for _, a := range slot.DefaultAliases {
		if want[a.To] {
			want[a.From] = true
		}
	}
	out := map[string]any{}
	for k, v := range f.results[text] {
		if want[k] {
			out[k] = v
		}
	}
	return out, nil
}

func (f *fakeExtractor) lastAsked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.asked) == 0 {
		return nil
	}
	return f.asked[len(f.asked)-1]
}

type fakeCredentials struct {
	tokens map[string]string
}

func (f *fakeCredentials) Get(_ context.Context, _ string, provider string) (model.Credentials, error) {
	tok, ok := f.tokens[provider]
	if !ok {
		return model.Credentials{}, &model.MissingCredentialsError{Provider: provider}
	}
	return model.Credentials{Provider: provider, AccessToken: tok}, nil
}

func (f *fakeCredentials) LoginURL(sessionID, provider string) string {
	return fmt.Sprintf("/auth/%s/login?session_id=%s", provider, sessionID)
}

type fakeFallback struct{}

func (fakeFallback) Respond(_ context.Context, _, intent, text string) (string, error) {
	return "fallback(" + intent + "): " + text, nil
}

// invocation 记录一次动作调用
type invocation struct {
	creds  model.Credentials
	fields map[string]string
}

type recorder struct {
	mu    sync.Mutex
	calls map[string][]invocation
	fail  map[string]error
}

func (r *recorder) invoker(name string) registry.Invoker {
	return func(_ context.Context, creds model.Credentials, fields map[string]string) (model.ActionResult, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls[name] = append(r.calls[name], invocation{creds: creds, fields: fields})
		if err := r.fail[name]; err != nil {
			return model.ActionResult{}, err
		}
		return model.ActionResult{ID: name + "-1"}, nil
	}
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls[name])
}

type harness struct {
	ctrl  *Controller
	store *session.MemoryStore
	cls   *fakeClassifier
	ext   *fakeExtractor
	creds *fakeCredentials
	rec   *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rec := &recorder{calls: map[string][]invocation{}, fail: map[string]error{}}
	reg, err := registry.New(
		registry.Descriptor{
			Name:           "gmail.compose",
			Provider:       "google",
			RequiredFields: []string{"to_email", "subject", "body"},
			Prompts: map[string]string{
				"to_email": "Who should I send the email to? Please provide the recipient's email address.",
				"subject":  "What is the subject of your email?",
				"body":     "What should the body/message say?",
			},
			Success: func(f map[string]string, _ model.ActionResult) string {
				return fmt.Sprintf("Email sent to %s with subject %q.", f["to_email"], f["subject"])
			},
			Invoke: rec.invoker("gmail.compose"),
		},
		registry.Descriptor{
			Name:           "google_tasks.add",
			Provider:       "google",
			RequiredFields: []string{"task_title", "due_date"},
			OptionalFields: []string{"task_notes"},
			Prompts: map[string]string{
				"task_title": "What is the title of your task?",
				"due_date":   "When is this task due? (e.g. today, tomorrow, 26 dec, YYYY-MM-DD)",
			},
			Invoke: rec.invoker("google_tasks.add"),
		},
		registry.Descriptor{
			Name:           "outlook_mail.compose",
			Provider:       "microsoft",
			RequiredFields: []string{"to_email", "subject", "body"},
			Prompts: map[string]string{
				"to_email": "Who?", "subject": "Subject?", "body": "Body?",
			},
			Invoke: rec.invoker("outlook_mail.compose"),
		},
		registry.Descriptor{
			Name:           "web_search",
			RequiredFields: []string{"query"},
			Prompts:        map[string]string{"query": "What should I search for?"},
			Invoke:         rec.invoker("web_search"),
		},
		registry.Descriptor{
			Name:     "gmail.read",
			Provider: "google",
			Invoke:   rec.invoker("gmail.read"),
		},
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	h := &harness{
		store: session.NewMemoryStore(),
		cls:   &fakeClassifier{labels: map[string]string{}},
		ext:   &fakeExtractor{results: map[string]map[string]any{}, errs: map[string]error{}},
		creds: &fakeCredentials{tokens: map[string]string{"google": "g-token"}},
		rec:   rec,
	}
	h.ctrl = NewController(Options{
		Store:       h.store,
		Registry:    reg,
		Validator:   slot.NewValidator(func() time.Time { return fixedNow }),
		Aliases:     slot.DefaultAliases,
		Classifier:  h.cls,
		Extractor:   h.ext,
		Credentials: h.creds,
		Fallback:    fakeFallback{},
		Transcript:  h.store,
		Now:         func() time.Time { return fixedNow },
	})
	return h
}

func (h *harness) turn(t *testing.T, id, text string) model.Reply {
	t.Helper()
	reply, err := h.ctrl.Turn(context.Background(), id, text)
	if err != nil {
		t.Fatalf("Turn(%q) error = %v", text, err)
	}
	return reply
}

func (h *harness) state(t *testing.T, id string) session.State {
	t.Helper()
	st, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	return st
}

func assertIdle(t *testing.T, st session.State) {
	t.Helper()
	if st.PendingIntent != "" || len(st.PendingData) != 0 {
		t.Errorf("state = %+v, want idle", st)
	}
}

func TestTurn_EndToEndCompose(t *testing.T) {
	h := newHarness(t)
	h.cls.labels["send email to a@b.com subject hi"] = "gmail.compose"
	h.ext.results["send email to a@b.com subject hi"] = map[string]any{"to_email": "a@b.com", "subject": "hi"}
	h.ext.results["body: see you soon"] = map[string]any{"body": "see you soon"}

	r := h.turn(t, "s1", "send email to a@b.com subject hi")
	if r.Status != model.StatusCollecting || r.Message != "What should the body/message say?" {
		t.Fatalf("turn 1 = %+v", r)
	}
	if !reflect.DeepEqual(r.Missing, []string{"body"}) {
		t.Errorf("Missing = %v, want [body]", r.Missing)
	}

	r = h.turn(t, "s1", "body: see you soon")
	if r.Status != model.StatusCompleted {
		t.Fatalf("turn 2 = %+v", r)
	}
	if r.Message != `Email sent to a@b.com with subject "hi".` {
		t.Errorf("Message = %q", r.Message)
	}
	if !reflect.DeepEqual(h.ext.lastAsked(), []string{"body"}) {
		t.Errorf("extractor asked for %v on turn 2, want [body]", h.ext.lastAsked())
	}

	calls := h.rec.calls["gmail.compose"]
	if len(calls) != 1 {
		t.Fatalf("invoked %d times, want 1", len(calls))
	}
	want := map[string]string{"to_email": "a@b.com", "subject": "hi", "body": "see you soon"}
	if !reflect.DeepEqual(calls[0].fields, want) {
		t.Errorf("fields = %v, want %v", calls[0].fields, want)
	}
	if calls[0].creds.AccessToken != "g-token" {
		t.Errorf("creds = %+v", calls[0].creds)
	}
	assertIdle(t, h.state(t, "s1"))
}

func TestTurn_PartialFillPromptsNextDeclaredField(t *testing.T) {
	h := newHarness(t)
	h.cls.labels["email"] = "gmail.compose"
	h.ext.results["email"] = map[string]any{"to_email": "a@b.com", "body": "later"}

	r := h.turn(t, "s1", "email")
	if r.Message != "What is the subject of your email?" {
		t.Errorf("Message = %q, want subject prompt", r.Message)
	}
	if !reflect.DeepEqual(r.Missing, []string{"subject"}) {
		t.Errorf("Missing = %v", r.Missing)
	}
	st := h.state(t, "s1")
	if st.PendingIntent != "gmail.compose" || st.PendingData["to_email"] != "a@b.com" || st.PendingData["body"] != "later" {
		t.Errorf("state = %+v", st)
	}
}

func TestTurn_AliasStoredUnderCanonicalField(t *testing.T) {
	h := newHarness(t)
	h.cls.labels["mail bob"] = "gmail.compose"
	h.ext.results["mail bob"] = map[string]any{"recipient": "bob@example.com"}

	r := h.turn(t, "s1", "mail bob")
	if r.Message != "What is the subject of your email?" {
		t.Errorf("Message = %q", r.Message)
	}
	st := h.state(t, "s1")
	if st.PendingData["to_email"] != "bob@example.com" {
		t.Errorf("to_email = %q, want bob@example.com", st.PendingData["to_email"])
	}
	if _, ok := st.PendingData["recipient"]; ok {
		t.Error("alias key stored in pending data")
	}
}

func TestTurn_AliasUsedWhenCanonicalInvalid(t *testing.T) {
	h := newHarness(t)
	h.cls.labels["mail bob"] = "gmail.compose"
	h.ext.results["mail bob"] = map[string]any{"to_email": "bob at example", "recipient": "bob@example.com"}

	r := h.turn(t, "s1", "mail bob")
	if r.Message != "What is the subject of your email?" {
		t.Errorf("Message = %q", r.Message)
	}
	if got := h.state(t, "s1").PendingData["to_email"]; got != "bob@example.com" {
		t.Errorf("to_email = %q, want bob@example.com", got)
	}
}

func TestTurn_RejectedValueKeepsFieldMissing(t *testing.T) {
	h := newHarness(t)
	h.cls.labels["send email"] = "gmail.compose"
	h.ext.results["send email"] = map[string]any{"to_email": "not-an-email", "subject": "hi"}
	h.ext.results["still bad"] = map[string]any{"to_email": "also-not-an-email"}

	r := h.turn(t, "s1", "send email")
	if r.Message != "Who should I send the email to? Please provide the recipient's email address." {
		t.Errorf("Message = %q, want to_email prompt", r.Message)
	}
	if h.state(t, "s1").PendingData["subject"] != "hi" {
		t.Error("valid subject not kept")
	}

	r = h.turn(t, "s1", "still bad")
	if !reflect.DeepEqual(r.Missing, []string{"to_email", "body"}) {
		t.Errorf("Missing = %v", r.Missing)
	}
	if r.Message != "Who should I send the email to? Please provide the recipient's email address." {
		t.Errorf("Message = %q, want to_email prompt again", r.Message)
	}
}

func TestTurn_CompletionInvokesOnceWithExactFields(t *testing.T) {
	h := newHarness(t)
	h.cls.labels["remind me"] = "google_tasks.add"
	h.ext.results["buy milk"] = map[string]any{"task_title": "buy milk", "subject": "ignored"}
	h.ext.results["hmm"] = map[string]any{}
	h.ext.results["tomorrow"] = map[string]any{"due_date": "tomorrow"}

	steps := []struct {
		text   string
		status model.ReplyStatus
	}{
		{"remind me", model.StatusCollecting},
		{"buy milk", model.StatusCollecting},
		{"hmm", model.StatusCollecting},
		{"tomorrow", model.StatusCompleted},
	}
	for _, s := range steps {
		if r := h.turn(t, "s1", s.text); r.Status != s.status {
			t.Fatalf("Turn(%q) status = %s, want %s (%+v)", s.text, r.Status, s.status, r)
		}
	}

	calls := h.rec.calls["google_tasks.add"]
	if len(calls) != 1 {
		t.Fatalf("invoked %d times, want 1", len(calls))
	}
	want := map[string]string{"task_title": "buy milk", "due_date": "2026-10-16T00:00:00Z"}
	if !reflect.DeepEqual(calls[0].fields, want) {
		t.Errorf("fields = %v, want %v", calls[0].fields, want)
	}
	assertIdle(t, h.state(t, "s1"))
}

func TestTurn_StateHygieneAfterExecution(t *testing.T) {
	for _, fail := range []bool{false, true} {
		t.Run(fmt.Sprintf("fail=%v", fail), func(t *testing.T) {
			h := newHarness(t)
			if fail {
				h.rec.fail["web_search"] = errors.New("quota exceeded")
			}
			h.cls.labels["search go generics"] = "web_search"
			h.ext.results["search go generics"] = map[string]any{"query": "go generics"}

			r := h.turn(t, "s1", "search go generics")
			if fail {
				if r.Status != model.StatusFailed || r.Message != "Sorry, web_search failed: quota exceeded" {
					t.Errorf("reply = %+v", r)
				}
			} else if r.Status != model.StatusCompleted {
				t.Errorf("reply = %+v", r)
			}
			assertIdle(t, h.state(t, "s1"))

			before := h.cls.calls
			r = h.turn(t, "s1", "how are you")
			if r.Status != model.StatusFallback {
				t.Errorf("follow-up status = %s, want fallback", r.Status)
			}
			if h.cls.calls != before+1 {
				t.Error("follow-up was not classified from idle")
			}
			if h.rec.count("web_search") != 1 {
				t.Errorf("web_search invoked %d times, want 1", h.rec.count("web_search"))
			}
		})
	}
}

func TestTurn_AuthRequiredLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	h.cls.labels["outlook mail"] = "outlook_mail.compose"

	r := h.turn(t, "s1", "outlook mail")
	if r.Status != model.StatusAuthRequired || !r.AuthRequired {
		t.Fatalf("reply = %+v, want auth_required", r)
	}
	if r.LoginURL != "/auth/microsoft/login?session_id=s1" {
		t.Errorf("LoginURL = %q", r.LoginURL)
	}
	assertIdle(t, h.state(t, "s1"))
	if len(h.ext.asked) != 0 {
		t.Error("extractor called before credentials were available")
	}

	// 收集途中凭证失效：状态原样保留
	h.cls.labels["gmail"] = "gmail.compose"
	h.ext.results["gmail"] = map[string]any{"to_email": "a@b.com"}
	h.turn(t, "s2", "gmail")
	delete(h.creds.tokens, "google")
	h.ext.results["subject is hi"] = map[string]any{"subject": "hi"}
	r = h.turn(t, "s2", "subject is hi")
	if r.Status != model.StatusAuthRequired || r.LoginURL != "/auth/google/login?session_id=s2" {
		t.Errorf("reply = %+v", r)
	}
	st := h.state(t, "s2")
	want := map[string]string{"to_email": "a@b.com"}
	if st.PendingIntent != "gmail.compose" || !reflect.DeepEqual(st.PendingData, want) {
		t.Errorf("state = %+v, want untouched", st)
	}
}

func TestTurn_ExtractorErrorRepeatsPrompt(t *testing.T) {
	h := newHarness(t)
	h.cls.labels["gmail"] = "gmail.compose"
	h.ext.results["gmail"] = map[string]any{"to_email": "a@b.com"}
	h.ext.errs["timeout please"] = fmt.Errorf("%w: deadline exceeded", model.ErrExtractionFailed)

	first := h.turn(t, "s1", "gmail")
	r := h.turn(t, "s1", "timeout please")
	if r.Status != model.StatusCollecting || r.Message != first.Message {
		t.Errorf("reply = %+v, want same prompt %q", r, first.Message)
	}
	if h.state(t, "s1").PendingData["to_email"] != "a@b.com" {
		t.Error("partial data lost after extractor error")
	}
}

func TestTurn_NewIntentInterruptsAndDiscards(t *testing.T) {
	h := newHarness(t)
	h.cls.labels["gmail"] = "gmail.compose"
	h.ext.results["gmail"] = map[string]any{"to_email": "a@b.com"}
	h.cls.labels["add task pay rent"] = "google_tasks.add"
	h.ext.results["add task pay rent"] = map[string]any{"task_title": "pay rent"}

	h.turn(t, "s1", "gmail")
	r := h.turn(t, "s1", "add task pay rent")
	if r.Intent != "google_tasks.add" || r.Message != "When is this task due? (e.g. today, tomorrow, 26 dec, YYYY-MM-DD)" {
		t.Errorf("reply = %+v", r)
	}
	st := h.state(t, "s1")
	want := map[string]string{"task_title": "pay rent"}
	if st.PendingIntent != "google_tasks.add" || !reflect.DeepEqual(st.PendingData, want) {
		t.Errorf("state = %+v, want only new intent data", st)
	}
}

func TestTurn_UnregisteredIntentInterruptRoutesToFallback(t *testing.T) {
	h := newHarness(t)
	h.cls.labels["gmail"] = "gmail.compose"
	h.cls.labels["what time is it"] = "time"

	h.turn(t, "s1", "gmail")
	r := h.turn(t, "s1", "what time is it")
	if r.Status != model.StatusFallback || r.Intent != "time" {
		t.Errorf("reply = %+v, want fallback for time", r)
	}
	assertIdle(t, h.state(t, "s1"))
}

func TestTurn_FallbackLabelDoesNotInterrupt(t *testing.T) {
	h := newHarness(t)
	h.cls.labels["gmail"] = "gmail.compose"

	first := h.turn(t, "s1", "gmail")
	r := h.turn(t, "s1", "uh what")
	if r.Status != model.StatusCollecting || r.Message != first.Message {
		t.Errorf("reply = %+v", r)
	}
	if h.state(t, "s1").PendingIntent != "gmail.compose" {
		t.Error("pending intent lost")
	}
}

func TestTurn_ZeroFieldIntentExecutesImmediately(t *testing.T) {
	h := newHarness(t)
	h.cls.labels["check my inbox"] = "gmail.read"

	r := h.turn(t, "s1", "check my inbox")
	if r.Status != model.StatusCompleted || r.Result == nil || r.Result.ID != "gmail.read-1" {
		t.Errorf("reply = %+v", r)
	}
	if len(h.ext.asked) != 0 {
		t.Errorf("extractor called for zero-field intent: %v", h.ext.asked)
	}
	if h.rec.count("gmail.read") != 1 {
		t.Errorf("gmail.read invoked %d times", h.rec.count("gmail.read"))
	}
}

func TestTurn_StalePendingIntentCleared(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.store.Put(ctx, "s1", session.State{PendingIntent: "slack.post", PendingData: map[string]string{"channel": "x"}})

	r := h.turn(t, "s1", "hello")
	if r.Status != model.StatusFallback {
		t.Errorf("reply = %+v, want fallback", r)
	}
	assertIdle(t, h.state(t, "s1"))
}

func TestTurn_SerializesConcurrentTurnsPerSession(t *testing.T) {
	h := newHarness(t)
	h.ext.delay = 5 * time.Millisecond
	h.cls.labels["gmail"] = "gmail.compose"

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.ctrl.Turn(context.Background(), "s1", "gmail"); err != nil {
				t.Errorf("Turn() error = %v", err)
			}
		}()
	}
	wg.Wait()
	if h.ext.overlap.Load() {
		t.Error("two turns for the same session ran concurrently")
	}
}

func TestTurn_RecordsTranscriptWithDelta(t *testing.T) {
	h := newHarness(t)
	h.cls.labels["gmail"] = "gmail.compose"
	h.ext.results["gmail"] = map[string]any{"to_email": "a@b.com"}

	h.turn(t, "s1", "gmail")
	msgs, err := h.store.Messages(context.Background(), "s1")
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[0].Sender != "user" || msgs[0].SlotDelta != `{"to_email":"a@b.com"}` {
		t.Errorf("user message = %+v", msgs[0])
	}
	if msgs[1].Sender != "assistant" || !strings.HasPrefix(msgs[1].Content, "What is the subject") {
		t.Errorf("assistant message = %+v", msgs[1])
	}
}

func TestTurn_OptionalFieldsRideAlong(t *testing.T) {
	h := newHarness(t)
	h.cls.labels["add task call alice about the project"] = "google_tasks.add"
	h.ext.results["add task call alice about the project"] = map[string]any{"task_title": "call alice", "details": "about the project"}
	h.ext.results["friday"] = map[string]any{"due_date": "friday"}

	r := h.turn(t, "s1", "add task call alice about the project")
	if !reflect.DeepEqual(r.Missing, []string{"due_date"}) {
		t.Fatalf("Missing = %v, want [due_date]", r.Missing)
	}
	if !reflect.DeepEqual(h.ext.lastAsked(), []string{"task_title", "due_date", "task_notes"}) {
		t.Errorf("extractor asked for %v", h.ext.lastAsked())
	}

	r = h.turn(t, "s1", "friday")
	if r.Status != model.StatusCompleted {
		t.Fatalf("reply = %+v", r)
	}
	if !reflect.DeepEqual(h.ext.lastAsked(), []string{"due_date"}) {
		t.Errorf("extractor asked for %v, want only [due_date]", h.ext.lastAsked())
	}
	want := map[string]string{"task_title": "call alice", "task_notes": "about the project", "due_date": "2026-10-16T00:00:00Z"}
	if got := h.rec.calls["google_tasks.add"][0].fields; !reflect.DeepEqual(got, want) {
		t.Errorf("fields = %v, want %v", got, want)
	}
}
