package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david2928/wedding-sub000/internal/dbconfig"
	"github.com/david2928/wedding-sub000/internal/models"
	"github.com/david2928/wedding-sub000/internal/question"
)

// SeedQuestion mirrors the JSON asset structure
type SeedQuestion struct {
	Prompt        string            `json:"prompt"`
	Options       map[string]string `json:"options"`
	CorrectOption string            `json:"correct_option"`
	ImageURL      *string           `json:"image_url,omitempty"`
}

type SeedFile struct {
	QuestionSetID string         `json:"question_set_id"`
	Questions     []SeedQuestion `json:"questions"`
}

func main() {
	// 1) Load the JSON question set
	path := "internal/assets/questions.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var seed SeedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	questionSetID, err := uuid.Parse(seed.QuestionSetID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse question_set_id: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect to Postgres
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	app := question.NewApp(question.NewRepository(pool))

	// 3) Insert the questions in display order
	for i, sq := range seed.Questions {
		options := make([]models.QuestionOption, 0, len(sq.Options))
		for _, label := range models.OptionLabels {
			text, ok := sq.Options[string(label)]
			if !ok {
				continue
			}
			options = append(options, models.QuestionOption{Label: label, Text: text})
		}

		q := &models.Question{
			ID:            uuid.New(),
			QuestionSetID: questionSetID,
			Prompt:        sq.Prompt,
			Options:       options,
			CorrectOption: models.OptionLabel(sq.CorrectOption),
			DisplayOrder:  i,
			ImageURL:      sq.ImageURL,
		}
		if err := app.CreateQuestion(ctx, q); err != nil {
			fmt.Fprintf(os.Stderr, "insert question %d: %v\n", i, err)
			os.Exit(1)
		}
		fmt.Printf("seeded question %d: %s\n", i, sq.Prompt)
	}

	fmt.Printf("done: %d questions in set %s\n", len(seed.Questions), questionSetID)
}
