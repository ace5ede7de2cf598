package bot

import (
	"context"
	"fmt"
	"strings"

	chatmodels "ralphbot/internal/chatsession/models"
	"ralphbot/internal/conversation"
	discoverymodels "ralphbot/internal/discovery/models"
	discoveryservice "ralphbot/internal/discovery/service"
	feedbackmodels "ralphbot/internal/feedback/models"
	usermodels "ralphbot/internal/users/models"
	dErrors "ralphbot/pkg/domain-errors"
	"ralphbot/pkg/requestcontext"
)

// handleFreeText routes non-command text: an in-flight feedback dialog
// wins, then an active discovery session, then plain conversation.
func (s *Service) handleFreeText(ctx context.Context, user *usermodels.User, session *chatmodels.Session, text string) error {
	if session.Dialog != nil {
		return s.advanceDialog(ctx, user, session, text)
	}

	chatID := requestcontext.ChatID(ctx)
	if _, err := s.discovery.Current(ctx, chatID); err == nil {
		return s.driveDiscovery(ctx, user, session, text)
	} else if !dErrors.HasCode(err, dErrors.CodeNotFound) && !dErrors.HasCode(err, dErrors.CodeExpired) {
		return err
	}

	return s.converse(ctx, user, session, text)
}

// driveDiscovery feeds one answer into the wizard and reacts to where
// it lands. Completion hands the result to the PRD generator.
func (s *Service) driveDiscovery(ctx context.Context, user *usermodels.User, session *chatmodels.Session, text string) error {
	chatID := requestcontext.ChatID(ctx)
	discoverySession, err := s.discovery.Answer(ctx, chatID, text)
	if err != nil {
		if reply, ok := unknownInputReply(err); ok {
			s.speak(ctx, user, reply)
			return nil
		}
		if dErrors.HasCode(err, dErrors.CodeExpired) || dErrors.HasCode(err, dErrors.CodeNotFound) {
			s.speak(ctx, user, "that plan went stale while you were away. /start begins a fresh one.")
			return nil
		}
		return err
	}

	if discoverySession.Stage != discoverymodels.StageComplete {
		prompt := discoveryservice.Prompt(discoverySession.Stage)
		if discoverySession.Stage == discoverymodels.StageReview {
			prompt = reviewSummary(discoverySession) + "\n" + prompt
		}
		s.speak(ctx, user, prompt)
		return nil
	}

	result, err := s.discovery.Result(ctx, chatID)
	if err != nil {
		return err
	}
	doc, err := s.documents.Generate(ctx, result)
	if err != nil {
		return err
	}
	s.speak(ctx, user, fmt.Sprintf("all done! i wrote the whole plan down. revision %d, %d tasks to do.",
		doc.Latest().Number, len(doc.Tasks)))
	s.sendPlain(ctx, doc.Latest().Markdown)
	return nil
}

func reviewSummary(session *discoverymodels.Session) string {
	var b strings.Builder
	b.WriteString("here's what i've got:\n")
	fmt.Fprintf(&b, "problem: %s\n", session.Answers[discoverymodels.StageProblem])
	fmt.Fprintf(&b, "audience: %s\n", session.Answers[discoverymodels.StageAudience])
	fmt.Fprintf(&b, "features: %s\n", session.Answers[discoverymodels.StageFeatures])
	if constraints := session.Answers[discoverymodels.StageConstraints]; constraints != "" {
		fmt.Fprintf(&b, "constraints: %s\n", constraints)
	}
	return b.String()
}

// advanceDialog runs the four-step feedback capture.
func (s *Service) advanceDialog(ctx context.Context, user *usermodels.User, session *chatmodels.Session, text string) error {
	now := requestcontext.Now(ctx)
	dialog := session.Dialog

	switch dialog.Step {
	case chatmodels.StepKind:
		kind, err := feedbackmodels.ParseKind(text)
		if err != nil {
			s.speak(ctx, user, "i need one of: bug, feature, improvement, question, other.")
			return nil
		}
		dialog.Kind = kind
		dialog.Step = chatmodels.StepSeverity
		session.UpdatedAt = now
		s.speak(ctx, user, "how bad is it? (critical, high, medium, low)")
		return nil

	case chatmodels.StepSeverity:
		severity, err := feedbackmodels.ParseSeverity(text)
		if err != nil {
			s.speak(ctx, user, "i need one of: critical, high, medium, low.")
			return nil
		}
		dialog.Severity = severity
		dialog.Step = chatmodels.StepText
		session.UpdatedAt = now
		s.speak(ctx, user, "tell me what happened, in your own words.")
		return nil

	case chatmodels.StepText:
		dialog.Text = text
		dialog.Step = chatmodels.StepConfirm
		session.UpdatedAt = now
		s.sendPlain(ctx, fmt.Sprintf("so: a %s %s report saying %q. send it? (yes / no)",
			dialog.Severity, dialog.Kind, text))
		return nil

	case chatmodels.StepConfirm:
		if discoverymodels.IsConfirmation(text) {
			return s.submitDialog(ctx, user, session)
		}
		session.ClearDialog(now)
		s.speak(ctx, user, "okay, forget the report.")
		return nil
	}
	// Unknown step means stored state from an older build; start over.
	session.ClearDialog(now)
	s.speak(ctx, user, "i lost my place. /feedback starts over.")
	return nil
}

func (s *Service) submitDialog(ctx context.Context, user *usermodels.User, session *chatmodels.Session) error {
	dialog := session.Dialog
	entry, err := s.feedback.Submit(ctx, SubmitInput{
		AuthorID: user.ID,
		ChatID:   session.ChatID,
		Kind:     dialog.Kind,
		Severity: dialog.Severity,
		Text:     dialog.Text,
	})
	if err != nil {
		if reply, ok := unknownInputReply(err); ok {
			session.ClearDialog(requestcontext.Now(ctx))
			s.speak(ctx, user, reply)
			return nil
		}
		return err
	}
	session.ClearDialog(requestcontext.Now(ctx))
	if entry.Status == feedbackmodels.StatusDuplicate {
		s.speak(ctx, user, "got it! someone already told me about that one, so i tied them together.")
	} else {
		s.speak(ctx, user, fmt.Sprintf("got it! your report is in the queue with priority %.0f.", entry.Priority))
	}
	return nil
}

// converse answers plain chatter and lets the closer decide when to
// stop.
func (s *Service) converse(ctx context.Context, user *usermodels.User, session *chatmodels.Session, text string) error {
	switch conversation.Classify(text) {
	case conversation.TurnQuestion:
		s.speak(ctx, user, "good question! /help lists what i can do, /feedback files a report, /start plans an idea.")
	case conversation.TurnGratitude:
		s.speak(ctx, user, "you're welcome!")
	case conversation.TurnFarewell:
		// The closer handles the goodbye below.
	default:
		s.speak(ctx, user, "noted! /feedback turns that into a report, or /start plans something new.")
	}
	s.recordTurn(ctx, user, session, text)
	return nil
}
