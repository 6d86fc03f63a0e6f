package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/database"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/service"
)

// issue-token mints a student token for local testing of the attempt
// stream, and registers it as the student's active login.
func main() {
	var (
		studentID    int
		classID      int
		ttl          time.Duration
		promptSecret bool
	)
	flag.IntVar(&studentID, "student", 0, "Student ID")
	flag.IntVar(&classID, "class", 0, "Class ID")
	flag.DurationVar(&ttl, "ttl", 4*time.Hour, "Token lifetime")
	flag.BoolVar(&promptSecret, "prompt-secret", false, "Read the signing secret from the terminal instead of JWT_SECRET")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if studentID <= 0 {
		studentID = promptInt("Enter Student ID: ")
	}
	if promptSecret {
		fmt.Fprint(os.Stderr, "Enter JWT Secret: ")
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read secret")
		}
		cfg.JWTSecret = string(secret)
	}

	ctx := context.Background()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	authService := service.NewAuthService(cfg, rdb)
	token, jti, err := authService.GenerateStudentToken(studentID, classID, ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}
	if err := authService.RegisterLogin(ctx, studentID, jti, ttl); err != nil {
		log.Fatal().Err(err).Msg("Failed to register login")
	}

	log.Info().Int("student_id", studentID).Str("jti", jti).Dur("ttl", ttl).Msg("Token issued")
	fmt.Println(token)
}

func promptInt(label string) int {
	reader := bufio.NewReader(os.Stdin)
	fmt.Fprint(os.Stderr, label)
	line, _ := reader.ReadString('\n')
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(line), "%d", &n); err != nil || n <= 0 {
		fmt.Fprintln(os.Stderr, "Error: a positive number is required")
		os.Exit(2)
	}
	return n
}
