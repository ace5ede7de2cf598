package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	chatmodels "ralphbot/internal/chatsession/models"
	discoverymodels "ralphbot/internal/discovery/models"
	discoveryservice "ralphbot/internal/discovery/service"
	feedbackmodels "ralphbot/internal/feedback/models"
	"ralphbot/internal/persona"
	usermodels "ralphbot/internal/users/models"
	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
	"ralphbot/pkg/requestcontext"
)

const helpText = `here's what i know how to do:
/start - say hi and let me remember this chat
/feedback - report a bug or idea (i'll ask a few questions)
/status - see what happened to your reports
/queue - see the whole queue's shape
/persona - pick who answers you (/persona lisa)
/worm - poke mr worm
/back - go back one discovery question
/skip - skip an optional discovery question
/done - finish what we're doing
/cancel - stop what we're doing
/privacy - see what you've agreed to
/export - get everything i know about you
/delete_me - make me forget you completely`

// consentPurposesOnStart are granted by /start; revocation is per
// purpose via the privacy surface.
var consentPurposesOnStart = []string{
	string(id.ConsentPurposePersonalization),
	string(id.ConsentPurposeAnalytics),
	string(id.ConsentPurposeTranscriptsRetention),
}

// parseCommand splits "/cmd@bot arg" into (cmd, arg). Bot mention
// suffixes are stripped so group-chat commands route the same.
func parseCommand(text string) (cmd, arg string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	parts := strings.SplitN(text, " ", 2)
	cmd = strings.ToLower(parts[0])
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}
	return cmd, arg, true
}

func (s *Service) handleCommand(ctx context.Context, user *usermodels.User, session *chatmodels.Session, cmd, arg string) error {
	switch cmd {
	case "/start":
		return s.cmdStart(ctx, user, session)
	case "/help":
		s.sendPlain(ctx, helpText)
		return nil
	case "/privacy":
		return s.cmdPrivacy(ctx, user)
	}

	gated, err := s.requireConsent(ctx, user)
	if err != nil || gated {
		return err
	}

	switch cmd {
	case "/feedback":
		return s.cmdFeedback(ctx, user, session)
	case "/status":
		return s.cmdStatus(ctx, user)
	case "/queue":
		return s.cmdQueue(ctx, user)
	case "/persona":
		return s.cmdPersona(ctx, user, arg)
	case "/worm":
		return s.cmdWorm(ctx, user)
	case "/back":
		return s.cmdBack(ctx, user)
	case "/skip":
		return s.cmdSkip(ctx, user)
	case "/done":
		return s.cmdDone(ctx, user, session)
	case "/cancel":
		return s.cmdCancel(ctx, user, session)
	case "/export":
		return s.cmdExport(ctx, user)
	case "/delete_me":
		return s.cmdDeleteMe(ctx, user, session)
	default:
		s.speak(ctx, user, "i don't know that one. try /help.")
		return nil
	}
}

func (s *Service) cmdStart(ctx context.Context, user *usermodels.User, session *chatmodels.Session) error {
	if _, err := s.consents.Grant(ctx, user.ID, consentPurposesOnStart); err != nil {
		return err
	}
	session.ClearDialog(requestcontext.Now(ctx))

	discoverySession, err := s.discovery.Start(ctx, session.ChatID, user.ID)
	if err != nil {
		return err
	}
	s.speak(ctx, user, fmt.Sprintf("hi %s! i'm going to help you turn an idea into a real plan.", user.FirstName))
	s.speak(ctx, user, discoveryservice.Prompt(discoverySession.Stage))
	return nil
}

func (s *Service) cmdPrivacy(ctx context.Context, user *usermodels.User) error {
	statuses, err := s.consents.Status(ctx, user.ID)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("here's what you've agreed to:\n")
	active := 0
	for _, st := range statuses {
		state := "not granted"
		if st.Active {
			state = "granted"
			active++
		}
		fmt.Fprintf(&b, "- %s: %s\n", st.Purpose, state)
	}
	if active == 0 {
		b.WriteString("(nothing yet - /start grants them)\n")
	}
	b.WriteString("/export gets your data, /delete_me erases it.")
	s.sendPlain(ctx, b.String())
	return nil
}

func (s *Service) cmdFeedback(ctx context.Context, user *usermodels.User, session *chatmodels.Session) error {
	session.StartDialog(requestcontext.Now(ctx))
	s.speak(ctx, user, "okay! what kind of thing is it? (bug, feature, improvement, question, other)")
	return nil
}

func (s *Service) cmdStatus(ctx context.Context, user *usermodels.User) error {
	entries, err := s.feedback.ListByAuthor(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		s.speak(ctx, user, "you haven't sent me any feedback yet. /feedback starts one!")
		return nil
	}
	counts := make(map[feedbackmodels.Status]int)
	for _, entry := range entries {
		counts[entry.Status]++
	}
	var b strings.Builder
	fmt.Fprintf(&b, "you've sent %d reports:\n", len(entries))
	writeStatusCounts(&b, counts)
	s.sendPlain(ctx, b.String())
	return nil
}

func (s *Service) cmdQueue(ctx context.Context, user *usermodels.User) error {
	counts, err := s.feedback.CountByStatus(ctx)
	if err != nil {
		return err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		s.speak(ctx, user, "the queue is empty. suspiciously empty.")
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "the queue holds %d reports:\n", total)
	writeStatusCounts(&b, counts)
	s.sendPlain(ctx, b.String())
	return nil
}

func writeStatusCounts(b *strings.Builder, counts map[feedbackmodels.Status]int) {
	statuses := make([]string, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Fprintf(b, "- %s: %d\n", status, counts[feedbackmodels.Status(status)])
	}
}

func (s *Service) cmdPersona(ctx context.Context, user *usermodels.User, arg string) error {
	if arg == "" {
		current := user.ActivePersona
		if current == "" {
			current = "ralph"
		}
		s.sendPlain(ctx, fmt.Sprintf("you're talking to %s. available: %s",
			current, strings.Join(s.personas.Names(), ", ")))
		return nil
	}
	if _, err := s.personas.Get(arg); err != nil {
		s.speak(ctx, user, fmt.Sprintf("i don't know anyone called %q. available: %s",
			arg, strings.Join(s.personas.Names(), ", ")))
		return nil
	}
	if err := s.users.SetPersona(ctx, user.ID, strings.ToLower(arg)); err != nil {
		return err
	}
	user.ActivePersona = strings.ToLower(arg)
	s.speak(ctx, user, "from now on, this is how i sound.")
	return nil
}

func (s *Service) cmdWorm(ctx context.Context, user *usermodels.User) error {
	chatID := requestcontext.ChatID(ctx)
	mood := s.worm.Toggle(chatID)
	if mood == persona.MoodDefiant {
		s.sendPlain(ctx, "mr worm does not feel like it.")
	} else {
		s.sendPlain(ctx, "yes boss. mr worm is listening.")
	}
	return nil
}

func (s *Service) cmdBack(ctx context.Context, user *usermodels.User) error {
	session, err := s.discovery.Back(ctx, requestcontext.ChatID(ctx))
	if err != nil {
		if reply, ok := unknownInputReply(err); ok {
			s.speak(ctx, user, reply)
			return nil
		}
		if dErrors.HasCode(err, dErrors.CodeNotFound) || dErrors.HasCode(err, dErrors.CodeExpired) {
			s.speak(ctx, user, "we're not in the middle of anything. /start begins a new plan.")
			return nil
		}
		return err
	}
	s.speak(ctx, user, discoveryservice.Prompt(session.Stage))
	return nil
}

func (s *Service) cmdSkip(ctx context.Context, user *usermodels.User) error {
	session, err := s.discovery.Skip(ctx, requestcontext.ChatID(ctx))
	if err != nil {
		if reply, ok := unknownInputReply(err); ok {
			s.speak(ctx, user, reply)
			return nil
		}
		if dErrors.HasCode(err, dErrors.CodeNotFound) || dErrors.HasCode(err, dErrors.CodeExpired) {
			s.speak(ctx, user, "nothing to skip right now.")
			return nil
		}
		return err
	}
	s.speak(ctx, user, discoveryservice.Prompt(session.Stage))
	return nil
}

func (s *Service) cmdDone(ctx context.Context, user *usermodels.User, session *chatmodels.Session) error {
	if session.Dialog != nil && session.Dialog.Step == chatmodels.StepConfirm {
		return s.submitDialog(ctx, user, session)
	}
	chatID := requestcontext.ChatID(ctx)
	if current, err := s.discovery.Current(ctx, chatID); err == nil {
		if current.Stage == discoverymodels.StageReview {
			return s.driveDiscovery(ctx, user, session, "yes")
		}
		s.speak(ctx, user, "we're not at the end yet. answer the question or /cancel.")
		return nil
	}
	s.speak(ctx, user, "nothing to finish right now.")
	return nil
}

func (s *Service) cmdCancel(ctx context.Context, user *usermodels.User, session *chatmodels.Session) error {
	now := requestcontext.Now(ctx)
	if session.Dialog != nil {
		session.ClearDialog(now)
		s.speak(ctx, user, "okay, forget the report.")
		return nil
	}
	err := s.discovery.Cancel(ctx, requestcontext.ChatID(ctx))
	switch {
	case err == nil:
		s.speak(ctx, user, "okay, plan cancelled. /start begins a new one.")
	case dErrors.HasCode(err, dErrors.CodeNotFound), dErrors.HasCode(err, dErrors.CodeExpired):
		s.speak(ctx, user, "nothing to cancel right now.")
	default:
		return err
	}
	return nil
}

func (s *Service) cmdExport(ctx context.Context, user *usermodels.User) error {
	bundle, err := s.privacy.Export(ctx, user.ID)
	if err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return err
	}
	s.speak(ctx, user, "here's everything i know about you:")
	s.sendPlain(ctx, string(encoded))
	return nil
}

func (s *Service) cmdDeleteMe(ctx context.Context, user *usermodels.User, session *chatmodels.Session) error {
	report, err := s.privacy.Erase(ctx, user.ID)
	if err != nil {
		return err
	}
	_ = s.sessions.Delete(ctx, session.ChatID)
	session.Close(requestcontext.Now(ctx))
	s.sendPlain(ctx, fmt.Sprintf(
		"done. i've forgotten you: %d reports anonymized, %d documents deleted. bye!",
		report.FeedbackAnonymized, report.DocumentsDeleted))
	return nil
}
