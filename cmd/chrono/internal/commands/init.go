package commands

import (
	"fmt"
	"os"

	"github.com/zkardes/chrono-meister-sub000/internal/config"
)

type InitCmd struct {
	Server     string `help:"Backend base URL" required:""`
	APIKey     string `help:"Project API key" required:""`
	Storage    string `help:"Durable session storage backend (file, badger, memory)" default:"file" enum:"file,badger,memory"`
	StorageDir string `help:"Override the session state directory" default:""`
}

func (i *InitCmd) Run(globals *Globals) error {
	store, err := config.NewStore(os.Getenv(configDirEnv))
	if err != nil {
		return err
	}

	cfg := &config.Config{
		ServerURL:  i.Server,
		APIKey:     i.APIKey,
		Storage:    i.Storage,
		StorageDir: i.StorageDir,
		Debug:      globals.Debug,
	}

	if err := store.Save(cfg); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", store.Dir())
	return nil
}
