package persistence

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-pipeline/migrations"
)

// ExecFunc runs one migration script.
type ExecFunc func(ctx context.Context, script string) error

// RunMigrations executes the embedded SQL migrations for driver in file name order.
func RunMigrations(ctx context.Context, driver string, exec ExecFunc, logger *zap.Logger) error {
	entries, err := fs.ReadDir(migrations.FS, driver)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	filenames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		filenames = append(filenames, entry.Name())
	}

	sort.Strings(filenames)

	for _, name := range filenames {
		content, err := fs.ReadFile(migrations.FS, path.Join(driver, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		logger.Info("applying migration", zap.String("driver", driver), zap.String("file", name))
		if err := exec(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}

	logger.Info("migrations applied", zap.String("driver", driver), zap.Int("count", len(filenames)))
	return nil
}
