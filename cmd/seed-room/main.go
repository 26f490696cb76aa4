package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/quizroom/internal/config"
	"github.com/stemsi/quizroom/internal/database"
	"github.com/stemsi/quizroom/internal/logger"
	"github.com/stemsi/quizroom/internal/model"
	"github.com/stemsi/quizroom/internal/repository"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func main() {
	var (
		code      string
		title     string
		capacity  int
		questions int
		perQ      int
		total     int
	)
	flag.StringVar(&code, "code", "", "Room code, random when empty")
	flag.StringVar(&title, "title", "Demo Quiz", "Room title")
	flag.IntVar(&capacity, "capacity", 4, "Maximum players")
	flag.IntVar(&questions, "questions", 5, "Number of generated questions")
	flag.IntVar(&perQ, "time-per-question", 20, "Seconds per question")
	flag.IntVar(&total, "total-time", 5, "Session length in minutes")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	questionRepo := repository.NewQuestionRepository(pool)
	roomRepo := repository.NewRoomRepository(pool)

	options, _ := json.Marshal([]string{"A", "B", "C", "D"})
	ids := make([]uuid.UUID, 0, questions)
	for i := range questions {
		q := &model.Question{
			QuestionText:  fmt.Sprintf("Sample question %d: pick the correct option.", i+1),
			Options:       options,
			CorrectOption: string("ABCD"[rand.IntN(4)]),
			ScoreValue:    10,
		}
		if err := questionRepo.Create(ctx, q); err != nil {
			log.Fatal().Err(err).Int("question", i+1).Msg("Failed to create question")
		}
		ids = append(ids, q.ID)
	}

	if code == "" {
		code = randomCode(6)
	}
	room := &model.Room{
		Code:            strings.ToUpper(code),
		Title:           title,
		Capacity:        capacity,
		QuestionIDs:     ids,
		TimePerQuestion: perQ,
		TotalTime:       total,
	}
	if err := roomRepo.Create(ctx, room); err != nil {
		log.Fatal().Err(err).Msg("Failed to create room")
	}

	log.Info().
		Str("room_code", room.Code).
		Str("room_id", room.ID.String()).
		Int("questions", len(ids)).
		Msg("Room seeded")
	fmt.Println(room.Code)
}

func randomCode(n int) string {
	var b strings.Builder
	for range n {
		b.WriteByte(codeAlphabet[rand.IntN(len(codeAlphabet))])
	}
	return b.String()
}
