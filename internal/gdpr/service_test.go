package gdpr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	consentmodels "ralphbot/internal/consent/models"
	discoverymodels "ralphbot/internal/discovery/models"
	feedbackmodels "ralphbot/internal/feedback/models"
	prdmodels "ralphbot/internal/prd/models"
	qualitymodels "ralphbot/internal/quality/models"
	usermodels "ralphbot/internal/users/models"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
	audit "ralphbot/pkg/platform/audit"
	"ralphbot/pkg/requestcontext"
)

var gdprNow = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

type fakeDomains struct {
	user               *usermodels.User
	userDeleted        bool
	consentsRevoked    bool
	consentsErased     bool
	feedback           []*feedbackmodels.Feedback
	feedbackAnonymized int
	sessions           []*discoverymodels.Session
	discoveryErased    bool
	quality            *qualitymodels.QualityRecord
	qualityErased      bool
	documents          []prdmodels.Document
	documentsDeleted   int
	chatSessionsWiped  bool
}

func (f *fakeDomains) Get(_ context.Context, _ id.UserID) (*usermodels.User, error) {
	if f.user == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return f.user, nil
}
func (f *fakeDomains) Delete(_ context.Context, _ id.UserID) error {
	f.userDeleted = true
	return nil
}
func (f *fakeDomains) Status(_ context.Context, _ id.UserID) ([]consentmodels.ConsentStatus, error) {
	return []consentmodels.ConsentStatus{{Purpose: "personalization", Active: true}}, nil
}
func (f *fakeDomains) RevokeAll(_ context.Context, _ id.UserID) error {
	f.consentsRevoked = true
	return nil
}
func (f *fakeDomains) Erase(_ context.Context, _ id.UserID) error {
	f.consentsErased = true
	return nil
}
func (f *fakeDomains) ListByAuthor(_ context.Context, _ id.UserID) ([]*feedbackmodels.Feedback, error) {
	return f.feedback, nil
}
func (f *fakeDomains) AnonymizeByAuthor(_ context.Context, _ id.UserID) (int, error) {
	f.feedbackAnonymized = len(f.feedback)
	return len(f.feedback), nil
}

type fakeDiscovery struct{ parent *fakeDomains }

func (f fakeDiscovery) ListByUser(_ context.Context, _ id.UserID) ([]*discoverymodels.Session, error) {
	return f.parent.sessions, nil
}
func (f fakeDiscovery) Erase(_ context.Context, _ id.UserID) error {
	f.parent.discoveryErased = true
	return nil
}

type fakeQuality struct{ parent *fakeDomains }

func (f fakeQuality) Get(_ context.Context, _ id.UserID) (*qualitymodels.QualityRecord, error) {
	return f.parent.quality, nil
}
func (f fakeQuality) Erase(_ context.Context, _ id.UserID) error {
	f.parent.qualityErased = true
	return nil
}

type fakeDocuments struct{ parent *fakeDomains }

func (f fakeDocuments) ListByUser(_ context.Context, _ id.UserID) ([]prdmodels.Document, error) {
	return f.parent.documents, nil
}
func (f fakeDocuments) EraseByUser(_ context.Context, _ id.UserID) (int, error) {
	f.parent.documentsDeleted = len(f.parent.documents)
	return len(f.parent.documents), nil
}

type fakeChatSessions struct{ parent *fakeDomains }

func (f fakeChatSessions) DeleteByUser(_ context.Context, _ id.UserID) error {
	f.parent.chatSessionsWiped = true
	return nil
}

type captureAudit struct {
	events []audit.Event
}

func (a *captureAudit) Emit(_ context.Context, e audit.Event) error {
	a.events = append(a.events, e)
	return nil
}

type GDPRSuite struct {
	suite.Suite
	ctx      context.Context
	userID   id.UserID
	domains  *fakeDomains
	auditPub *captureAudit
	svc      *Service
}

func TestGDPRSuite(t *testing.T) {
	suite.Run(t, new(GDPRSuite))
}

func (s *GDPRSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), gdprNow)
	s.userID = id.NewUserID()
	s.domains = &fakeDomains{
		user: &usermodels.User{ID: s.userID, TelegramID: 777, FirstName: "Casey"},
		feedback: []*feedbackmodels.Feedback{
			{ID: id.NewFeedbackID(), AuthorID: s.userID, Text: "the export is broken"},
		},
		sessions:  []*discoverymodels.Session{{ID: id.NewSessionID(), UserID: s.userID}},
		quality:   &qualitymodels.QualityRecord{UserID: s.userID},
		documents: []prdmodels.Document{{ID: id.NewDocumentID(), UserID: s.userID}},
	}
	s.auditPub = &captureAudit{}

	svc, err := New(
		s.domains,
		s.domains,
		s.domains,
		fakeDiscovery{s.domains},
		fakeQuality{s.domains},
		fakeDocuments{s.domains},
		WithChatSessions(fakeChatSessions{s.domains}),
		WithAuditPublisher(s.auditPub),
	)
	s.Require().NoError(err)
	s.svc = svc
}

func (s *GDPRSuite) TestExport() {
	s.Run("bundles every domain", func() {
		bundle, err := s.svc.Export(s.ctx, s.userID)
		s.Require().NoError(err)

		s.Equal(gdprNow, bundle.ExportedAt)
		s.Equal(s.userID, bundle.User.ID)
		s.Len(bundle.Consents, 1)
		s.Len(bundle.Feedback, 1)
		s.Len(bundle.Discovery, 1)
		s.NotNil(bundle.Quality)
		s.Len(bundle.Documents, 1)

		s.Require().Len(s.auditPub.events, 1)
		s.Equal(string(audit.EventDataExported), s.auditPub.events[0].Action)
	})

	s.Run("unknown user", func() {
		s.domains.user = nil
		_, err := s.svc.Export(s.ctx, s.userID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *GDPRSuite) TestErase() {
	s.Run("touches every domain and reports counts", func() {
		report, err := s.svc.Erase(s.ctx, s.userID)
		s.Require().NoError(err)

		s.Equal(1, report.FeedbackAnonymized)
		s.Equal(1, report.DocumentsDeleted)
		s.True(s.domains.discoveryErased)
		s.True(s.domains.qualityErased)
		s.True(s.domains.chatSessionsWiped)
		s.True(s.domains.consentsRevoked)
		s.True(s.domains.consentsErased)
		s.True(s.domains.userDeleted)

		s.Require().Len(s.auditPub.events, 1)
		s.Equal(string(audit.EventUserDeleted), s.auditPub.events[0].Action)
	})

	s.Run("unknown user", func() {
		s.domains.user = nil
		_, err := s.svc.Erase(s.ctx, s.userID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
