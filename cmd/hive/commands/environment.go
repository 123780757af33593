// Package commands implements the hive CLI's subcommands. The CLI is a
// thin demonstration surface over internal/store — real integrations are
// expected to embed the store package directly rather than shell out to
// this binary.
package commands

import (
	"fmt"

	"github.com/yujiajie1988/hive/internal/logging"
	"github.com/yujiajie1988/hive/internal/store"
	"github.com/yujiajie1988/hive/pkg/storage"
)

// Environment carries the shared Store and Logger every subcommand needs,
// constructed once in the root command's PersistentPreRunE.
type Environment struct {
	Store  *store.Store
	Logger *logging.Logger
}

// Open wires an EncryptedFileBackend-backed Store rooted at dir.
func (e *Environment) Open(dir string) error {
	backend, err := storage.NewEncryptedFileBackend(storage.EncryptedFileConfig{
		BasePath: dir,
		OnKeyGenerated: func(envVar string) {
			e.Logger.Warn("generated a new credential encryption key; set %s to persist it across runs", envVar)
		},
	})
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}

	e.Store = store.New(store.Config{
		Backend:     backend,
		Logger:      e.Logger,
		AutoRefresh: true,
	})
	return nil
}
