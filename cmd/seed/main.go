package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/scoutexam/exam-backend/internal/config"
	"github.com/scoutexam/exam-backend/internal/database"
	"github.com/scoutexam/exam-backend/internal/engine"
	"github.com/scoutexam/exam-backend/internal/logger"
	"github.com/scoutexam/exam-backend/internal/model"
	"github.com/scoutexam/exam-backend/internal/repository"
	"github.com/scoutexam/exam-backend/internal/service"
)

type seedQuestion struct {
	kind    engine.Kind
	prompt  string
	options []string
	correct engine.Value
}

var bank = []seedQuestion{
	{engine.KindSingleChoice, "Siapa pendiri gerakan kepanduan dunia?", []string{"Sri Sultan Hamengkubuwono IX", "Lord Baden-Powell", "Ki Hajar Dewantara", "Jenderal Sudirman"}, engine.Choice(1)},
	{engine.KindSingleChoice, "Berapa jumlah Dasa Dharma Pramuka?", []string{"5", "7", "10", "12"}, engine.Choice(2)},
	{engine.KindSingleChoice, "Simpul untuk menyambung dua tali yang sama besar adalah", []string{"Simpul mati", "Simpul pangkal", "Simpul jangkar", "Simpul anyam"}, engine.Choice(0)},
	{engine.KindSingleChoice, "Tanggal Hari Pramuka diperingati setiap", []string{"14 Agustus", "17 Agustus", "20 Mei", "28 Oktober"}, engine.Choice(0)},
	{engine.KindSingleChoice, "Sandi yang menggunakan titik dan garis disebut", []string{"Sandi rumput", "Sandi Morse", "Sandi kotak", "Sandi AND"}, engine.Choice(1)},
	{engine.KindBoolean, "Tunas kelapa adalah lambang Gerakan Pramuka.", nil, engine.Bool(true)},
	{engine.KindBoolean, "Trisatya diucapkan oleh Pramuka Siaga.", nil, engine.Bool(false)},
	{engine.KindBoolean, "Jarum kompas selalu menunjuk arah utara magnetis.", nil, engine.Bool(true)},
}

var names = []string{
	"Budi Santoso", "Siti Aminah", "Andi Pratama", "Rina Wati", "Joko Susilo",
	"Ayu Lestari", "Dodi Kusuma", "Eka Putri", "Fahri Hamzah", "Gita Savitri",
	"Hendra Gunawan", "Ika Sari", "Lukman Hakim", "Maya Septiana", "Nanda Pratama",
	"Oki Setiana", "Putri Dian", "Qori Maharani", "Rafi Ahmad", "Siska Saraswati",
}

func main() {
	var (
		category string
		takers   int
		password string
	)
	flag.StringVar(&category, "category", "Penggalang", "Exam category to seed")
	flag.IntVar(&takers, "takers", 20, "Number of student accounts to create")
	flag.StringVar(&password, "password", "pramuka123", "Password of every seeded student")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	userRepo := repository.NewUserRepository(pool)
	auditService := service.NewAuditService(repository.NewAuditRepository(pool), log)
	authService := service.NewAuthService(cfg, rdb, userRepo)
	examService := service.NewExamService(
		repository.NewExamSettingRepository(pool),
		repository.NewQuestionRepository(pool),
		rdb, auditService, log,
	)
	questionService := service.NewQuestionService(repository.NewQuestionRepository(pool), auditService)
	userService := service.NewUserService(userRepo, authService, auditService)

	fmt.Printf("=== Seeding category %q ===\n", category)

	// Actor 0 marks entries written from the command line.
	setting, err := examService.UpsertSettings(ctx, 0, category, &model.UpsertExamSettingRequest{
		DurationMinutes:    30,
		PassingScore:       70,
		MCQCount:           5,
		TrueFalseCount:     3,
		RandomizeQuestions: true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to save exam settings")
	}
	fmt.Printf("Settings saved: %d minutes, %d questions per paper\n", setting.DurationMinutes, setting.QuestionCount())

	for i, q := range bank {
		_, err := questionService.Create(ctx, 0, &model.CreateQuestionRequest{
			Category:      category,
			Kind:          q.kind,
			Prompt:        q.prompt,
			Options:       q.options,
			CorrectAnswer: q.correct,
			OrderNum:      i + 1,
		})
		if err != nil {
			log.Fatal().Err(err).Int("order", i+1).Msg("Failed to add question")
		}
	}
	fmt.Printf("Added %d questions\n", len(bank))

	successCount := 0
	for i := 0; i < takers; i++ {
		cat := category
		user, err := userService.Create(ctx, 0, &model.CreateUserRequest{
			Name:     names[i%len(names)],
			Email:    fmt.Sprintf("peserta%03d@scoutexam.local", i+1),
			Role:     model.RoleStudent,
			Category: &cat,
			Password: password,
		})
		if errors.Is(err, service.ErrEmailTaken) {
			continue
		}
		if err != nil {
			fmt.Printf("Error creating student %d: %v\n", i+1, err)
			continue
		}
		successCount++
		if (i+1)%10 == 0 {
			fmt.Printf("Created %d students... (last: %s)\n", i+1, user.Email)
		}
	}

	fmt.Printf("\nSeed completed! Added %d/%d students.\n", successCount, takers)
}
