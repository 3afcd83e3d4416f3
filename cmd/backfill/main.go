// Command backfill puts every user without a department into a default one.
// It is meant to run once after the departments migration.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"
	"github.com/sushihentaime/teamblog/internal/common"
	"github.com/sushihentaime/teamblog/internal/userservice"
)

type config struct {
	Host     string `mapstructure:"POSTGRES_HOST"`
	Port     string `mapstructure:"POSTGRES_PORT"`
	User     string `mapstructure:"POSTGRES_USER"`
	Password string `mapstructure:"POSTGRES_PASSWORD"`
	Name     string `mapstructure:"POSTGRES_DB"`
}

func loadConfig(path string) (*config, error) {
	v := viper.New()
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("POSTGRES_USER", "")
	v.SetDefault("POSTGRES_PASSWORD", "")
	v.SetDefault("POSTGRES_DB", "teamblog")
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	var c config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func main() {
	var (
		envFile    string
		department string
	)
	flag.StringVar(&envFile, "env", ".env", "path to the env file")
	flag.StringVar(&department, "department", userservice.DefaultDepartmentName, "department to assign")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := loadConfig(envFile)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, err := common.NewDB(common.PostgresURI(cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name), 1, 1, time.Minute)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	s := userservice.NewUserService(db, nil, nil)

	n, err := s.AssignDefaultDepartment(ctx, department)
	if err != nil {
		logger.Error("backfill failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("backfill complete", slog.String("department", department), slog.Int64("users_updated", n))
}
