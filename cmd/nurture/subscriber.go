package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fernwell/nurture/internal/config"
	"github.com/fernwell/nurture/internal/db"
	"github.com/fernwell/nurture/internal/models"
	"github.com/fernwell/nurture/internal/provider"
	"github.com/fernwell/nurture/internal/repository"
)

var (
	subscriberName   string
	subscriberSource string
	subscriberLimit  int
)

var subscriberCmd = &cobra.Command{
	Use:   "subscriber",
	Short: "Subscriber management commands",
}

var subscriberAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Add a subscriber to the local store",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubscriberAdd,
}

var subscriberListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscribers",
	RunE:  runSubscriberList,
}

func init() {
	subscriberAddCmd.Flags().StringVar(&subscriberName, "name", "", "Subscriber full name")
	subscriberAddCmd.Flags().StringVar(&subscriberSource, "source", "cli", "Signup source tag")
	subscriberListCmd.Flags().IntVar(&subscriberLimit, "limit", 50, "Maximum number of subscribers to show")

	subscriberCmd.AddCommand(subscriberAddCmd, subscriberListCmd)
}

func openDatabase() (*db.DB, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func runSubscriberAdd(cmd *cobra.Command, args []string) error {
	email := strings.ToLower(strings.TrimSpace(args[0]))

	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	repo := repository.NewSubscriberRepository(database.DB)

	existing, err := repo.GetByEmail(email)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("subscriber %s already exists", email)
	}

	first, last := provider.SplitName(subscriberName)
	sub := &models.Subscriber{
		Email:        email,
		FirstName:    first,
		LastName:     last,
		Source:       subscriberSource,
		IsSubscribed: true,
	}
	if err := repo.Save(sub); err != nil {
		return err
	}

	fmt.Printf("Subscriber %s created (id %s)\n", email, sub.ID)
	return nil
}

func runSubscriberList(cmd *cobra.Command, args []string) error {
	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	repo := repository.NewSubscriberRepository(database.DB)
	subs, err := repo.List(subscriberLimit, 0)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tNAME\tSOURCE\tSUBSCRIBED\tCREATED")
	for _, s := range subs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n",
			s.Email, s.FullName(), s.Source, s.IsSubscribed,
			s.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}
