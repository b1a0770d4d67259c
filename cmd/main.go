/*
Copyright 2024 Arbor Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/arborhq/arbor"
	"github.com/arborhq/arbor/config"
	"github.com/arborhq/arbor/database"
	"github.com/arborhq/arbor/internal/notification"
)

// Arbor represents the CLI application, encapsulating the root Cobra command.
type Arbor struct {
	cmd *cobra.Command
}

// arborInstance holds the Arbor instance and its configuration for use by
// the subcommands.
type arborInstance struct {
	arbor *arbor.Arbor
	cnf   *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the Arbor instance before
// any command runs.
func preRun(app *arborInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("arbor.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newArbor, err := setupArbor(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.arbor = newArbor
		app.cnf = cnf

		return nil
	}
}

func setupArbor(cfg *config.Configuration) (*arbor.Arbor, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newArbor, err := arbor.NewArbor(db)
	if err != nil {
		return nil, fmt.Errorf("error creating arbor: %v", err)
	}
	return newArbor, nil
}

// NewCLI creates the command-line interface for the Arbor application.
func NewCLI() *Arbor {
	var configFile string
	b := &arborInstance{}

	var rootCmd = &cobra.Command{
		Use:   "arbor",
		Short: "Hierarchical soft-delete service",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./arbor.json", "Configuration file for arbor")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))

	return &Arbor{cmd: rootCmd}
}

func (w Arbor) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()
	cli := NewCLI()
	cli.executeCLI()
}
