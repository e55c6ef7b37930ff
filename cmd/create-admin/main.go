package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/scoutexam/exam-backend/internal/config"
	"github.com/scoutexam/exam-backend/internal/database"
	"github.com/scoutexam/exam-backend/internal/logger"
	"github.com/scoutexam/exam-backend/internal/model"
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

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Initialize Service ────────────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	auditService := service.NewAuditService(repository.NewAuditRepository(pool), log)
	authService := service.NewAuthService(cfg, nil, userRepo)
	userService := service.NewUserService(userRepo, authService, auditService)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create Staff Account ===")

	// Name
	fmt.Print("Enter Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	// Email
	fmt.Print("Enter Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	// Password
	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	password := string(bytePassword)
	fmt.Println() // Newline after password input
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	// Role
	fmt.Print("Enter Role [admin/leader] (default admin): ")
	roleStr, _ := reader.ReadString('\n')
	role := model.RoleAdmin
	if roleStr = strings.ToLower(strings.TrimSpace(roleStr)); roleStr != "" {
		role = model.Role(roleStr)
	}
	if role != model.RoleAdmin && role != model.RoleLeader {
		fmt.Println("Error: Role must be admin or leader")
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────

	// Actor 0 marks entries written from the command line.
	user, err := userService.Create(ctx, 0, &model.CreateUserRequest{
		Name:     name,
		Email:    email,
		Role:     role,
		Password: password,
	})
	if errors.Is(err, service.ErrEmailTaken) {
		fmt.Printf("Error: %s is already registered\n", email)
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create staff account")
	}

	fmt.Printf("\nSuccess! %s '%s' (%s) created with ID: %d\n", user.Role, user.Name, user.Email, user.ID)
}
