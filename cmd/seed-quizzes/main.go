package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prepnest/tutor-backend/internal/config"
	"github.com/prepnest/tutor-backend/internal/database"
	"github.com/prepnest/tutor-backend/internal/logger"
	"github.com/prepnest/tutor-backend/internal/model"
	"github.com/prepnest/tutor-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// seedQuiz describes one quiz set to create with generated questions.
type seedQuiz struct {
	title     string
	subject   model.Subject
	year      int
	duration  int
	questions int
}

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	teacherRepo := repository.NewTeacherRepository(pool)
	quizRepo := repository.NewQuizRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	studentRepo := repository.NewStudentRepository(pool)

	fmt.Println("=== Seeding Demo Data ===")

	// Find or create the demo teacher that will own the quiz sets.
	teacher, err := teacherRepo.GetByEmail(ctx, "teacher@prepnest.dev")
	if err != nil {
		if err == pgx.ErrNoRows {
			fmt.Println("Demo teacher not found. Creating it...")
			hash, err := bcrypt.GenerateFromPassword([]byte("teachme123"), cfg.BcryptCost)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to hash password")
			}
			teacher = &model.Teacher{
				Email:        "teacher@prepnest.dev",
				Name:         "Demo Teacher",
				PasswordHash: string(hash),
			}
			if err := teacherRepo.Create(ctx, teacher); err != nil {
				log.Fatal().Err(err).Msg("Failed to create demo teacher")
			}
			fmt.Printf("Created demo teacher with ID: %d\n", teacher.ID)
		} else {
			log.Fatal().Err(err).Msg("Failed to check existing teacher")
		}
	} else {
		fmt.Printf("Found existing demo teacher with ID: %d\n", teacher.ID)
	}

	quizzes := []seedQuiz{
		{"Mathematics Practice Set 1", model.SubjectMathematics, 2024, 60, 20},
		{"Mathematics Practice Set 2", model.SubjectMathematics, 2025, 90, 30},
		{"Physics Mechanics Drill", model.SubjectPhysics, 2024, 45, 15},
		{"Physics Waves and Optics", model.SubjectPhysics, 2025, 60, 20},
		{"Chemistry Organic Basics", model.SubjectChemistry, 2024, 45, 15},
		{"Chemistry Periodic Trends", model.SubjectChemistry, 2025, 30, 10},
		{"Biology Cell Structure", model.SubjectBiology, 2024, 45, 15},
		{"Biology Genetics Primer", model.SubjectBiology, 2025, 60, 20},
	}

	options := json.RawMessage(`{"a":"Option A","b":"Option B","c":"Option C","d":"Option D"}`)
	answers := []string{"a", "b", "c", "d"}

	quizCount := 0
	for _, sq := range quizzes {
		year := sq.year
		quiz := &model.QuizSet{
			Title:           sq.title,
			Subject:         sq.subject,
			Year:            &year,
			AuthorID:        teacher.ID,
			DurationMinutes: sq.duration,
			Status:          model.QuizStatusDraft,
		}
		if err := quizRepo.Create(ctx, quiz); err != nil {
			fmt.Printf("Error creating quiz %q: %v\n", sq.title, err)
			continue
		}

		for i := 0; i < sq.questions; i++ {
			q := &model.Question{
				QuizID:        quiz.ID,
				QuestionText:  fmt.Sprintf("%s - question %d", sq.title, i+1),
				QuestionType:  model.QuestionTypeMultipleChoice,
				Options:       options,
				CorrectAnswer: answers[i%len(answers)],
				Marks:         1 + i%3,
				OrderNum:      i + 1,
			}
			if err := questionRepo.Create(ctx, q); err != nil {
				fmt.Printf("Error creating question %d for %q: %v\n", i+1, sq.title, err)
			}
		}

		if err := quizRepo.UpdateAggregates(ctx, quiz.ID); err != nil {
			fmt.Printf("Error updating aggregates for %q: %v\n", sq.title, err)
		}

		quizCount++
		fmt.Printf("Created quiz %q with %d questions\n", sq.title, sq.questions)
	}

	// Seed a batch of demo students so the lobby has takers.
	studentHash, err := bcrypt.GenerateFromPassword([]byte("study123"), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash student password")
	}

	names := []string{
		"Alice Chen", "Ben Okafor", "Carla Mendez", "Dev Patel", "Elena Petrova",
		"Farid Rahman", "Grace Kim", "Hassan Ali", "Ivy Nguyen", "Jonas Weber",
		"Kira Tanaka", "Liam O'Brien", "Mia Rossi", "Noah Cohen", "Olga Ivanova",
		"Pablo Garcia", "Quinn Taylor", "Ravi Sharma", "Sofia Lopez", "Tomas Novak",
	}

	studentCount := 0
	for i, name := range names {
		student := &model.Student{
			Email:        fmt.Sprintf("student%d@prepnest.dev", i+1),
			Name:         name,
			GradeLevel:   fmt.Sprintf("Grade %d", 10+i%3),
			PasswordHash: string(studentHash),
		}
		if err := studentRepo.Create(ctx, student); err != nil {
			fmt.Printf("Error creating student %s: %v\n", student.Email, err)
		} else {
			studentCount++
		}
	}

	fmt.Printf("\nSeed completed! Added %d/%d quizzes and %d/%d students.\n",
		quizCount, len(quizzes), studentCount, len(names))
}
