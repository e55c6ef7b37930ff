package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5"
	"github.com/scoutexam/exam-backend/internal/config"
	"github.com/scoutexam/exam-backend/internal/database"
	"github.com/scoutexam/exam-backend/internal/logger"
	"github.com/scoutexam/exam-backend/internal/repository"
	"github.com/scoutexam/exam-backend/internal/service"
	"golang.org/x/term"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL and Redis ───────────────────────────────
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

	// ─── Initialize Service ────────────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	auditService := service.NewAuditService(repository.NewAuditRepository(pool), log)
	authService := service.NewAuthService(cfg, rdb, userRepo)
	userService := service.NewUserService(userRepo, authService, auditService)

	fmt.Println("=== Reset Account Password ===")
	fmt.Println("The account is signed out of its current device.")

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Enter Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	user, err := userRepo.GetByEmail(ctx, email)
	if errors.Is(err, pgx.ErrNoRows) {
		fmt.Printf("Error: no account registered as %s\n", email)
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to look up account")
	}

	fmt.Print("Enter New Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	password := string(bytePassword)
	fmt.Println()
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	if err := userService.ResetPassword(ctx, 0, user.ID, password); err != nil {
		log.Fatal().Err(err).Msg("Failed to reset password")
	}

	fmt.Printf("\nSuccess! Password of %s '%s' has been replaced.\n", user.Role, user.Name)
}
