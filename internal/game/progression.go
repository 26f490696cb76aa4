package game

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/quizroom/internal/model"
	ws "github.com/stemsi/quizroom/internal/websocket"
)

// AnswerInput is one answer submission.
type AnswerInput struct {
	RoomCode       string
	QuestionID     uuid.UUID
	SelectedAnswer string
	TimeSpent      time.Duration
}

// SubmitAnswer scores an answer to the player's current question and
// advances their sequence.
func (e *Engine) SubmitAnswer(ctx context.Context, conn Conn, in AnswerInput) error {
	if in.RoomCode == "" || in.QuestionID == uuid.Nil {
		return fmt.Errorf("%w: roomCode and questionId are required", ErrInvalidPayload)
	}
	return e.exec(ctx, func(ctx context.Context) error {
		return e.submitAnswer(ctx, conn, in)
	})
}

func (e *Engine) submitAnswer(ctx context.Context, conn Conn, in AnswerInput) error {
	b, ok := e.conns.Lookup(conn.ID())
	if !ok || b.RoomCode != in.RoomCode {
		return ErrNotInRoom
	}
	room, err := e.playingRoom(ctx, in.RoomCode)
	if err != nil {
		return err
	}
	s, err := e.findSession(ctx, room.ID, b.PlayerID)
	if err != nil {
		return err
	}
	if s == nil {
		return ErrSessionNotFound
	}

	pos := s.PositionOf(in.QuestionID)
	if pos < 0 {
		return ErrUnknownQuestion
	}
	if s.Status == model.SessionStatusCompleted || pos != s.CurrentQuestionIndex || s.HasAnswered(in.QuestionID) {
		return ErrStaleAnswer
	}

	questions, err := e.roomQuestions(ctx, room)
	if err != nil {
		return err
	}
	byID := indexQuestions(questions)
	q, ok := byID[in.QuestionID]
	if !ok {
		return ErrUnknownQuestion
	}

	now := e.clock.Now()
	correct := in.SelectedAnswer == q.CorrectOption
	limit := time.Duration(room.TimePerQuestion) * time.Second
	points := e.policy.Points(q, correct, in.TimeSpent, limit)

	s.Answers = append(s.Answers, model.Answer{
		QuestionID:     in.QuestionID,
		SelectedAnswer: in.SelectedAnswer,
		IsCorrect:      correct,
		Points:         points,
		TimeSpentMs:    in.TimeSpent.Milliseconds(),
		AnsweredAt:     now,
	})
	s.CurrentQuestionIndex++
	s.Score += points
	if correct {
		s.CorrectCount++
	}
	if s.Status == model.SessionStatusDisconnected {
		s.Status = model.SessionStatusActive
	}
	if s.StartedAt == nil {
		s.StartedAt = room.StartedAt
	}
	completed := s.Finished()
	if completed {
		s.Complete(now)
	}

	outcome, err := e.sessions.SaveSession(ctx, s)
	if err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	if outcome == model.NoMatch {
		e.raceLoss("submit_answer", room.Code)
		return ErrStaleAnswer
	}
	e.metrics.Answer(correct)

	conn.Send(ws.Message{Event: ws.EventAnswerResult, Data: ws.AnswerResultResponse{
		QuestionID:    in.QuestionID,
		Correct:       correct,
		Points:        points,
		Score:         s.Score,
		CorrectAnswer: q.CorrectOption,
		Answered:      len(s.Answers),
		Total:         len(s.ShuffledQuestions),
	}})
	e.broadcast(room.Code, ws.Message{Event: ws.EventPlayerProgress, Data: ws.PlayerProgressResponse{
		PlayerID: s.PlayerID,
		Answered: len(s.Answers),
		Total:    len(s.ShuffledQuestions),
		Score:    s.Score,
	}})
	e.publishLeaderboard(ctx, room)

	if !completed {
		e.deliverCurrent(ws.EventNewQuestion, room, s, byID)
		return nil
	}

	done := ws.PlayerCompletedResponse{PlayerID: s.PlayerID, Score: s.Score, CorrectCount: s.CorrectCount}
	e.sendToPlayer(room.Code, s.PlayerID, ws.Message{Event: ws.EventPlayerCompletionConfirmed, Data: done})
	e.broadcast(room.Code, ws.Message{Event: ws.EventPlayerCompleted, Data: done})
	e.checkAllDone(ctx, room)
	return nil
}

// RequestQuestion re-sends the question at index of the caller's own order.
// Only already reached positions can be requested.
func (e *Engine) RequestQuestion(ctx context.Context, conn Conn, roomCode string, index int) error {
	return e.exec(ctx, func(ctx context.Context) error {
		b, ok := e.conns.Lookup(conn.ID())
		if !ok || b.RoomCode != roomCode {
			return ErrNotInRoom
		}
		room, err := e.playingRoom(ctx, roomCode)
		if err != nil {
			return err
		}
		s, err := e.findSession(ctx, room.ID, b.PlayerID)
		if err != nil {
			return err
		}
		if s == nil {
			return ErrSessionNotFound
		}
		if index < 0 || index >= len(s.ShuffledQuestions) || index > s.CurrentQuestionIndex {
			return fmt.Errorf("%w: question index %d out of range", ErrInvalidPayload, index)
		}
		questions, err := e.roomQuestions(ctx, room)
		if err != nil {
			return err
		}
		msg, ok := questionMessage(ws.EventQuestionLoaded, room, s, index, indexQuestions(questions))
		if !ok {
			return ErrUnknownQuestion
		}
		conn.Send(msg)
		return nil
	})
}

// RequestState sends the caller a full snapshot of its room and session.
func (e *Engine) RequestState(ctx context.Context, conn Conn, roomCode string) error {
	return e.exec(ctx, func(ctx context.Context) error {
		b, ok := e.conns.Lookup(conn.ID())
		if !ok || b.RoomCode != roomCode {
			return ErrNotInRoom
		}
		room, err := e.findRoom(ctx, roomCode)
		if err != nil {
			return err
		}
		s, err := e.findSession(ctx, room.ID, b.PlayerID)
		if err != nil {
			return err
		}

		state := ws.GameStateResponse{
			Room:             room,
			Session:          s,
			RemainingSeconds: e.remainingSeconds(room),
			Leaderboard:      room.Leaderboard,
		}
		if room.State != model.RoomStateFinished {
			sessions, err := e.roomSessions(ctx, room.ID)
			if err != nil {
				return err
			}
			state.Leaderboard = BuildLeaderboard(sessions, e.clock.Now())
		}
		if room.State == model.RoomStatePlaying && s != nil && !s.Finished() {
			questions, err := e.roomQuestions(ctx, room)
			if err != nil {
				return err
			}
			if msg, ok := questionMessage(ws.EventQuestionLoaded, room, s, s.CurrentQuestionIndex, indexQuestions(questions)); ok {
				q := msg.Data.(ws.QuestionResponse)
				state.Question = &q
			}
		}
		conn.Send(ws.Message{Event: ws.EventGameState, Data: state})
		return nil
	})
}

// Room returns the persisted room. It does not go through the loop.
func (e *Engine) Room(ctx context.Context, roomCode string) (*model.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()
	return e.findRoom(ctx, roomCode)
}

// Leaderboard returns the final standings of a finished room or the live
// standings otherwise.
func (e *Engine) Leaderboard(ctx context.Context, roomCode string) ([]model.LeaderboardEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()

	room, err := e.findRoom(ctx, roomCode)
	if err != nil {
		return nil, err
	}
	if room.State == model.RoomStateFinished {
		return room.Leaderboard, nil
	}
	sessions, err := e.roomSessions(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	return BuildLeaderboard(sessions, e.clock.Now()), nil
}

func (e *Engine) playingRoom(ctx context.Context, code string) (*model.Room, error) {
	room, err := e.findRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	switch room.State {
	case model.RoomStatePlaying:
		return room, nil
	case model.RoomStateFinished:
		return nil, ErrGameFinished
	default:
		return nil, ErrNotPlaying
	}
}
