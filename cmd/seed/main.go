package main

import (
	"context"
	"errors"
	"log"
	"os"

	"gorm.io/gorm"

	"roamly/internal/auth"
	"roamly/internal/config"
	"roamly/internal/db"
	"roamly/internal/model"
	"roamly/internal/repository"
)

// Bootstraps the initial admin account from ADMIN_EMAIL / ADMIN_PASSWORD /
// ADMIN_NAME. Safe to run repeatedly: an existing account is left alone.
func main() {
	log.Println("Starting seed script...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminEmail == "" || adminPassword == "" {
		log.Fatal("ADMIN_EMAIL and ADMIN_PASSWORD must be set")
	}
	adminName := os.Getenv("ADMIN_NAME")
	if adminName == "" {
		adminName = "Administrator"
	}

	gormDB, err := db.NewMySQL(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := gormDB.AutoMigrate(&model.User{}); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	users := repository.NewUserRepository(gormDB)
	ctx := context.Background()

	if existing, err := users.FindByEmail(ctx, adminEmail); err == nil && existing != nil {
		log.Printf("Admin %s already exists, nothing to do", existing.Email)
		return
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Fatalf("Failed to check admin account: %v", err)
	}

	digest, err := auth.NewBcryptHasher().Hash(adminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	admin := &model.User{
		Name:         adminName,
		Email:        adminEmail,
		PasswordHash: digest,
		Role:         model.RoleAdmin,
	}
	if err := users.Create(ctx, admin); err != nil {
		log.Fatalf("Failed to create admin account: %v", err)
	}

	log.Printf("Seed completed: admin %s created with id %s", admin.Email, admin.ID)
}
