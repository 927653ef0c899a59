package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"studio-billing/common/database"
	"studio-billing/common/logger"
	"studio-billing/internal/config"

	"go.uber.org/zap"
)

func main() {
	log, _ := logger.NewLogger("info", "console", "apply-migration")
	defer log.Sync()

	if len(os.Args) < 2 {
		log.Fatal(fmt.Sprintf("Usage: %s <migration_file.sql>", os.Args[0]))
	}

	migrationFile := os.Args[1]
	sqlContent, err := os.ReadFile(migrationFile)
	if err != nil {
		log.Fatal("Failed to read migration file", zap.String("file", migrationFile), zap.Error(err))
	}

	cfg := config.Load()
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Cannot connect to database", zap.Error(err))
	}
	defer db.Close()

	log.Info("Connected to database", zap.String("database", cfg.Database.Database))

	statements := splitStatements(string(sqlContent))
	ctx := context.Background()
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			log.Fatal("Failed to execute statement",
				zap.Int("index", i+1),
				zap.String("statement", stmt[:min(100, len(stmt))]),
				zap.Error(err),
			)
		}
		log.Info("Statement executed", zap.Int("index", i+1), zap.Int("total", len(statements)))
	}

	log.Info("Migration completed", zap.String("file", migrationFile))
}

// splitStatements 按分号切分，去掉空语句与整行注释
func splitStatements(sql string) []string {
	var lines []string
	for _, line := range strings.Split(sql, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}

	var out []string
	for _, stmt := range strings.Split(strings.Join(lines, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
