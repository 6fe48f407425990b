package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/tillpoint/controlplane/internal/api/routes"
	"github.com/tillpoint/controlplane/internal/config"
	"github.com/tillpoint/controlplane/internal/database"
	"github.com/tillpoint/controlplane/internal/logger"
	"github.com/tillpoint/controlplane/internal/models"
	"github.com/tillpoint/controlplane/internal/server"
	"github.com/tillpoint/controlplane/internal/services"
	"github.com/tillpoint/controlplane/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logFile := logger.RotatingFile(cfg.LogDir, "controlplane.log")
	defer logFile.Close()
	logger.Init(cfg.Debug, io.MultiWriter(os.Stdout, logFile))
	log := logger.Log()

	db, err := database.Connect(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("connect database")
	}
	if err := database.Migrate(db); err != nil {
		log.WithError(err).Fatal("migrate database")
	}

	// Handle CLI commands
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "reset-password":
			if len(os.Args) != 4 {
				log.Fatalf("Usage: %s reset-password <email> <new-password>", os.Args[0])
			}
			if err := resetPassword(db, os.Args[2], os.Args[3]); err != nil {
				log.WithError(err).Fatal("reset password")
			}
			log.WithField("email", os.Args[2]).Info("password updated")
			return
		case "bootstrap":
			if err := bootstrapAdmin(db, cfg.Bootstrap); err != nil {
				log.WithError(err).Fatal("bootstrap admin")
			}
			return
		default:
			log.Fatalf("unknown command %q", os.Args[1])
		}
	}

	log.WithFields(logrus.Fields{"version": version.Full(), "env": cfg.Environment}).Infof("starting %s", version.Name)

	if cfg.Bootstrap.Email != "" {
		if err := bootstrapAdmin(db, cfg.Bootstrap); err != nil {
			log.WithError(err).Warn("bootstrap admin skipped")
		}
	}

	svc, err := routes.Build(db, cfg)
	if err != nil {
		log.WithError(err).Fatal("build services")
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler, err := services.NewLicenseExpiryScheduler(svc.Alerts, cfg.Alerts.ScanInterval, cfg.Alerts.ScanTimeout, cfg.Alerts.ExpiryHorizon)
	if err != nil {
		log.WithError(err).Fatal("license scheduler")
	}
	if cfg.Alerts.ScanOnStartup {
		if err := scheduler.RunOnce(ctx); err != nil {
			log.WithError(err).Warn("startup license scan failed")
		}
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	if err := server.New(svc, cfg).Run(ctx); err != nil {
		log.WithError(err).Error("server stopped")
		return
	}
	log.Info("shutdown complete")
}

// resetPassword is for operators locked out of every admin account. Sessions
// are in memory, so a running server keeps its sessions until restart.
func resetPassword(db *gorm.DB, email, password string) error {
	accounts := services.NewAccountService(db, nil)
	acct, err := accounts.GetByEmail(context.Background(), email)
	if err != nil {
		return err
	}
	if err := acct.SetPassword(password); err != nil {
		return err
	}
	return db.Model(acct).Update("password_hash", acct.PasswordHash).Error
}

// bootstrapAdmin creates the first super admin when no account exists yet.
func bootstrapAdmin(db *gorm.DB, b config.BootstrapConfig) error {
	if b.Email == "" || b.Password == "" {
		return errors.New("CP_BOOTSTRAP_EMAIL and CP_BOOTSTRAP_PASSWORD are not set")
	}
	var count int64
	if err := db.Model(&models.AdminAccount{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	acct, err := services.NewAccountService(db, nil).Create(context.Background(), services.CreateAccountInput{
		Email:    b.Email,
		Name:     b.Name,
		Password: b.Password,
		Role:     models.RoleSuperAdmin,
	})
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"email": acct.Email}).Info("created bootstrap super admin")
	return nil
}
