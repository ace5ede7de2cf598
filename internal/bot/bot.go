// Package bot glues Telegram updates to the domain services: consent
// gating, the discovery wizard, feedback capture, persona voices, and
// the conversation closer. It holds no domain state of its own; every
// rule lives in the service it delegates to.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	chatmodels "ralphbot/internal/chatsession/models"
	consentmodels "ralphbot/internal/consent/models"
	"ralphbot/internal/conversation"
	discoverymodels "ralphbot/internal/discovery/models"
	feedbackmodels "ralphbot/internal/feedback/models"
	"ralphbot/internal/gdpr"
	"ralphbot/internal/persona"
	prdmodels "ralphbot/internal/prd/models"
	"ralphbot/internal/telegram"
	usermodels "ralphbot/internal/users/models"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
	"ralphbot/pkg/platform/sentinel"
	"ralphbot/pkg/requestcontext"
)

// Sender posts replies back into the chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) (*telegram.Message, error)
}

// Users resolves Telegram senders to profiles.
type Users interface {
	GetOrCreate(ctx context.Context, telegramID int64, firstName, username string) (*usermodels.User, error)
	SetPersona(ctx context.Context, userID id.UserID, persona string) error
}

// Consents gates features on the user's recorded choices.
type Consents interface {
	Has(ctx context.Context, userID id.UserID, purpose id.ConsentPurpose) (bool, error)
	Grant(ctx context.Context, userID id.UserID, purposes []string) ([]consentmodels.ConsentRecord, error)
	Status(ctx context.Context, userID id.UserID) ([]consentmodels.ConsentStatus, error)
}

// Discovery drives the guided idea wizard.
type Discovery interface {
	Start(ctx context.Context, chatID int64, userID id.UserID) (*discoverymodels.Session, error)
	Current(ctx context.Context, chatID int64) (*discoverymodels.Session, error)
	Answer(ctx context.Context, chatID int64, text string) (*discoverymodels.Session, error)
	Back(ctx context.Context, chatID int64) (*discoverymodels.Session, error)
	Skip(ctx context.Context, chatID int64) (*discoverymodels.Session, error)
	Cancel(ctx context.Context, chatID int64) error
	Result(ctx context.Context, chatID int64) (*discoverymodels.Result, error)
}

// Documents turns completed discovery into a PRD.
type Documents interface {
	Generate(ctx context.Context, res *discoverymodels.Result) (*prdmodels.Document, error)
}

// FeedbackQueue receives captured reports and answers status queries.
type FeedbackQueue interface {
	Submit(ctx context.Context, in SubmitInput) (*feedbackmodels.Feedback, error)
	ListByAuthor(ctx context.Context, authorID id.UserID) ([]*feedbackmodels.Feedback, error)
	CountByStatus(ctx context.Context) (map[feedbackmodels.Status]int, error)
}

// SubmitInput mirrors the feedback service's intake shape.
type SubmitInput struct {
	AuthorID id.UserID
	ChatID   int64
	Kind     feedbackmodels.Kind
	Severity feedbackmodels.Severity
	Text     string
}

// Privacy handles the /export and /delete_me rights.
type Privacy interface {
	Export(ctx context.Context, userID id.UserID) (*gdpr.ExportBundle, error)
	Erase(ctx context.Context, userID id.UserID) (*gdpr.ErasureReport, error)
}

// SessionStore keeps per-chat conversation state.
type SessionStore interface {
	Save(ctx context.Context, session *chatmodels.Session) error
	FindByChat(ctx context.Context, chatID int64) (*chatmodels.Session, error)
	Delete(ctx context.Context, chatID int64) error
}

// Service is the update handler behind the dispatcher.
type Service struct {
	sender    Sender
	users     Users
	consents  Consents
	discovery Discovery
	documents Documents
	feedback  FeedbackQueue
	privacy   Privacy
	sessions  SessionStore
	personas  *persona.Registry
	worm      *persona.Worm
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithWorm wires the shared Mr. Worm instance so /worm toggles the same
// state the registry's persona reads.
func WithWorm(w *persona.Worm) Option {
	return func(s *Service) {
		s.worm = w
	}
}

func New(sender Sender, users Users, consents Consents, discovery Discovery, documents Documents, feedback FeedbackQueue, privacy Privacy, sessions SessionStore, personas *persona.Registry, opts ...Option) (*Service, error) {
	if sender == nil || users == nil || consents == nil || discovery == nil || documents == nil || feedback == nil || privacy == nil || sessions == nil || personas == nil {
		return nil, errors.New("bot service requires every dependency")
	}
	s := &Service{
		sender:    sender,
		users:     users,
		consents:  consents,
		discovery: discovery,
		documents: documents,
		feedback:  feedback,
		privacy:   privacy,
		sessions:  sessions,
		personas:  personas,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.worm == nil {
		if p, err := personas.Get("worm"); err == nil {
			if w, ok := p.(*persona.Worm); ok {
				s.worm = w
			}
		}
	}
	if s.worm == nil {
		s.worm = persona.NewWorm()
	}
	return s, nil
}

// Handle processes one update off the dispatcher. Returned errors are
// infrastructure failures worth a retry; user mistakes are answered in
// chat and absorbed here.
func (s *Service) Handle(ctx context.Context, update *telegram.Update) error {
	from := update.From()
	chatID := update.ChatID()
	if from == nil || from.IsBot || chatID == 0 {
		return nil
	}
	text := strings.TrimSpace(update.Text())
	if text == "" {
		return nil
	}

	ctx = requestcontext.WithChatID(ctx, chatID)
	user, err := s.users.GetOrCreate(ctx, from.ID, from.FirstName, from.Username)
	if err != nil {
		return err
	}
	ctx = requestcontext.WithUserID(ctx, user.ID)

	session, err := s.loadSession(ctx, chatID, user.ID)
	if err != nil {
		return err
	}

	if cmd, arg, ok := parseCommand(text); ok {
		session.Reopen(requestcontext.Now(ctx))
		if err := s.handleCommand(ctx, user, session, cmd, arg); err != nil {
			return err
		}
		return s.sessions.Save(ctx, session)
	}

	// A closed conversation stays quiet until the next command.
	if session.Closed {
		return nil
	}

	gated, err := s.requireConsent(ctx, user)
	if err != nil {
		return err
	}
	if gated {
		return s.sessions.Save(ctx, session)
	}

	if err := s.handleFreeText(ctx, user, session, text); err != nil {
		return err
	}
	return s.sessions.Save(ctx, session)
}

func (s *Service) loadSession(ctx context.Context, chatID int64, userID id.UserID) (*chatmodels.Session, error) {
	session, err := s.sessions.FindByChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return chatmodels.New(chatID, userID, requestcontext.Now(ctx)), nil
		}
		return nil, err
	}
	return session, nil
}

// requireConsent blocks everything except onboarding until /start has
// been given. Returns true when the update was answered with the gate
// prompt.
func (s *Service) requireConsent(ctx context.Context, user *usermodels.User) (bool, error) {
	ok, err := s.consents.Has(ctx, user.ID, id.ConsentPurposePersonalization)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	s.speak(ctx, user, "before we talk, i need you to send /start so i know you're okay with me remembering this chat.")
	return true, nil
}

// speak sends a reply through the user's active persona. Send failures
// are logged, not returned: a missed reply is not worth a redelivery
// loop.
func (s *Service) speak(ctx context.Context, user *usermodels.User, text string) {
	chatID := requestcontext.ChatID(ctx)
	s.send(ctx, chatID, s.voice(ctx, user, chatID, text))
}

// sendPlain skips the persona transform, used for structured output
// like the PRD markdown and export bundles.
func (s *Service) sendPlain(ctx context.Context, text string) {
	s.send(ctx, requestcontext.ChatID(ctx), text)
}

func (s *Service) send(ctx context.Context, chatID int64, text string) {
	if _, err := s.sender.SendMessage(ctx, chatID, text); err != nil {
		s.logger.WarnContext(ctx, "send failed",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()))
	}
}

// voice applies the active persona. Mr. Worm reads per-chat mood state;
// everything else is a pure transform.
func (s *Service) voice(ctx context.Context, user *usermodels.User, chatID int64, text string) string {
	name := user.ActivePersona
	if name == "" {
		name = "ralph"
	}
	p, err := s.personas.Get(name)
	if err != nil {
		s.logger.WarnContext(ctx, "unknown active persona, falling back to ralph",
			slog.String("persona", name))
		if p, err = s.personas.Get("ralph"); err != nil {
			return text
		}
	}
	if w, ok := p.(*persona.Worm); ok {
		return w.TransformFor(chatID, text)
	}
	return p.Transform(text)
}

// recordTurn feeds the closer and acts on its decision. Returns true
// when the conversation just ended.
func (s *Service) recordTurn(ctx context.Context, user *usermodels.User, session *chatmodels.Session, text string) bool {
	now := requestcontext.Now(ctx)
	session.RecordTurn(conversation.Classify(text), now)

	decision, reason := conversation.Decide(session.Turns, now)
	switch decision {
	case conversation.End:
		s.speak(ctx, user, "okay, i'm going to go stare at the wall now. message me any time!")
		session.Close(now)
		s.logger.InfoContext(ctx, "conversation closed",
			slog.Int64("chat_id", session.ChatID),
			slog.String("reason", reason))
		return true
	case conversation.WindDown:
		// The next reply carries the hint; no separate message.
		return false
	}
	return false
}

func unknownInputReply(err error) (string, bool) {
	if dErrors.HasCode(err, dErrors.CodeInvalidInput) ||
		dErrors.HasCode(err, dErrors.CodeConflict) ||
		dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.MessageOf(err), true
	}
	return "", false
}
