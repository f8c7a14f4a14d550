package service

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"biostar/app/repositories"
	"biostar/app/services"
)

// dbPath and backupDir default to the config defaults; commands that accept
// --config override them.
var (
	dbPath    = "data/badger"
	backupDir = "data/backups"
)

// HandleCommand handles app subcommands and returns an exit code.
func HandleCommand(args []string) int {
	if len(args) < 1 {
		printAppHelp()
		return 1
	}

	cmd := args[0]
	rest, configPath, ok := popFlag(args[1:], "--config")
	if ok && cmd != "serve" {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return 1
		}
		dbPath, backupDir = cfg.DBPath, cfg.BackupDir
	}

	switch cmd {
	case "serve":
		return RunAppServer(args[1:])
	case "clean":
		clean()
		return 0
	case "init":
		initDb()
		return 0
	case "backup":
		backup()
		return 0
	case "restore":
		if len(rest) < 1 {
			fmt.Println("Error: backup file path required for restore")
			return 1
		}
		return restore(rest[0])
	case "createuser":
		return createUser(rest)
	case "help":
		printAppHelp()
		return 0
	default:
		fmt.Printf("Unknown app command: %s\n\n", cmd)
		printAppHelp()
		return 1
	}
}

// printAppHelp prints help for app subcommands.
func printAppHelp() {
	helpText := `Usage: biostar app <command> [--config <file>]

Commands:
  serve                                       Run the forum over HTTP and/or uwsgi
  clean                                       Clean the forum database
  init                                        Initialize a new empty database
  backup                                      Create a backup of the database
  restore <file>                              Restore database from backup
  createuser <name> <email> <password> [--moderator]
                                              Add a user account
  help                                        Display this help message
`
	fmt.Println(helpText)
}

// clean removes the database.
func clean() {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("Database is already clean (does not exist)")
		return
	}

	if !confirm("Are you sure you want to clean the database? This cannot be undone.") {
		fmt.Println("Operation cancelled")
		return
	}

	if err := os.RemoveAll(dbPath); err != nil {
		fmt.Printf("Failed to clean database: %v\n", err)
		return
	}
	fmt.Println("Database cleaned successfully")
}

// initDb initializes a new empty database.
func initDb() {
	if _, err := os.Stat(dbPath); err == nil {
		fmt.Println("Database already exists. Use 'clean' first if you want to reinitialize.")
		return
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		fmt.Printf("Failed to create database directory: %v\n", err)
		return
	}

	store, err := repositories.Open(dbPath)
	if err != nil {
		fmt.Printf("Failed to initialize database: %v\n", err)
		return
	}
	defer store.Close()

	fmt.Println("Database initialized successfully")
}

// backup creates a backup of the database.
func backup() {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No database exists to backup")
		return
	}

	if err := os.MkdirAll(backupDir, 0755); err != nil {
		fmt.Printf("Failed to create backup directory: %v\n", err)
		return
	}

	store, err := repositories.Open(dbPath)
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		return
	}
	defer store.Close()

	backupFile := filepath.Join(backupDir, fmt.Sprintf("backup_%d.db", time.Now().Unix()))
	f, err := os.Create(backupFile)
	if err != nil {
		fmt.Printf("Failed to create backup file: %v\n", err)
		return
	}
	defer f.Close()

	if err := store.Backup(f); err != nil {
		fmt.Printf("Failed to backup database: %v\n", err)
		return
	}

	fmt.Printf("Database backed up successfully to %s\n", backupFile)
}

// restore restores the database from a backup.
func restore(backupFile string) int {
	fi, err := os.Stat(backupFile)
	if os.IsNotExist(err) {
		fmt.Printf("Backup file does not exist: %s\n", backupFile)
		return 1
	} else if err != nil {
		fmt.Printf("Failed to stat backup file: %v\n", err)
		return 1
	}
	if fi.Size() == 0 {
		fmt.Printf("Backup file is empty: %s\n", backupFile)
		return 1
	}

	if _, err := os.Stat(dbPath); err == nil {
		if !confirm("Existing database found. Do you want to replace it?") {
			fmt.Println("Operation cancelled")
			return 1
		}
		if err := os.RemoveAll(dbPath); err != nil {
			fmt.Printf("Failed to remove existing database: %v\n", err)
			return 1
		}
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		fmt.Printf("Failed to create database directory: %v\n", err)
		return 1
	}

	store, err := repositories.Open(dbPath)
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		return 1
	}
	defer store.Close()

	f, err := os.Open(backupFile)
	if err != nil {
		fmt.Printf("Failed to open backup file: %v\n", err)
		return 1
	}
	defer f.Close()

	if err := store.Load(f); err != nil {
		fmt.Printf("Failed to restore database: %v\n", err)
		return 1
	}

	fmt.Println("Database restored successfully")
	return 0
}

// createUser adds an account, optionally with moderator rights.
func createUser(args []string) int {
	args, moderator := popBool(args, "--moderator")
	if len(args) != 3 {
		fmt.Println("Error: createuser needs <name> <email> <password>")
		return 1
	}

	store, err := repositories.Open(dbPath)
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		return 1
	}
	defer store.Close()

	auth := services.NewAuthService(store.Users, store.Sessions, 0)
	user, err := auth.CreateUser(args[0], args[1], args[2], moderator)
	if err != nil {
		fmt.Printf("Failed to create user: %v\n", err)
		return 1
	}

	role := "user"
	if user.IsModerator {
		role = "moderator"
	}
	fmt.Printf("Created %s %s (id %d)\n", role, user.Username, user.ID)
	return 0
}
