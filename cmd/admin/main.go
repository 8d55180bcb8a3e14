package main

import (
	"campusskill/backend/internal/config"
	"campusskill/backend/internal/ledger"
	"campusskill/backend/internal/storage"
	"fmt"
	"os"
)

func main() {
	open := func() (*ledger.Ledger, error) {
		cfg := config.LoadForCLI()
		db, err := storage.Open(cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		// No redis needed for admin CLI
		return ledger.New(storage.NewStorageService(db, nil), nil), nil
	}

	if err := newRootCmd(open, os.Stdout).Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}
