package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"recipebox/internal/config"
	"recipebox/internal/logger"
	"recipebox/internal/platform/mealdb"
	"recipebox/internal/recipe"
)

var randomCount int

var searchCmd = &cobra.Command{
	Use:   "search <name>",
	Short: "Search the remote service by recipe name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		client := mealdb.NewClient(cfg.MealDB.BaseURL, nil, logger.Nop())

		meals, err := client.SearchByName(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		printSummaries(cmd.OutOrStdout(), meals)
		return nil
	},
}

var randomCmd = &cobra.Command{
	Use:   "random",
	Short: "List arbitrary recipes from the remote service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		count := randomCount
		if !cmd.Flags().Changed("count") {
			count = cfg.MealDB.RandomCount
		}
		client := mealdb.NewClient(cfg.MealDB.BaseURL, nil, logger.Nop())
		printSummaries(cmd.OutOrStdout(), client.ListRandom(cmd.Context(), count))
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a stored or remote recipe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log := logger.New(logger.LevelOff, nil)

		slot, slotCloser, err := openSlot(cfg)
		if err != nil {
			return err
		}
		defer slotCloser.Close()

		store := recipe.Open(cmd.Context(), slot, log)
		defer store.Close(cmd.Context())

		resolver := recipe.NewResolver(store, mealdb.NewClient(cfg.MealDB.BaseURL, nil, log))
		r, err := resolver.Resolve(cmd.Context(), args[0])
		if errors.Is(err, recipe.ErrNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "No recipe with id %s.\n", args[0])
			return nil
		}
		if err != nil {
			return err
		}
		printRecipe(cmd.OutOrStdout(), r, store.IsFavorite(r.ID))
		return nil
	},
}

func init() {
	randomCmd.Flags().IntVarP(&randomCount, "count", "n", mealdb.DefaultRandomCount, "number of recipes to request")
}

func printSummaries(w io.Writer, meals []mealdb.RawRecipe) {
	if len(meals) == 0 {
		fmt.Fprintln(w, "No recipes found.")
		return
	}
	for _, m := range meals {
		if m.Category != "" {
			fmt.Fprintf(w, "%-8s %s (%s)\n", m.ID, m.Name, m.Category)
		} else {
			fmt.Fprintf(w, "%-8s %s\n", m.ID, m.Name)
		}
	}
}

func printRecipe(w io.Writer, r *recipe.Recipe, favorite bool) {
	fmt.Fprintf(w, "%s  [%s]\n", r.Name, r.ID)
	if r.Category != "" {
		fmt.Fprintf(w, "Category: %s\n", r.Category)
	}
	if favorite {
		fmt.Fprintln(w, "Saved in my recipes")
	}

	fmt.Fprintln(w, "\nIngredients:")
	if len(r.Ingredients) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, ing := range r.Ingredients {
		if ing.Measure != "" {
			fmt.Fprintf(w, "  - %s: %s\n", ing.Name, ing.Measure)
		} else {
			fmt.Fprintf(w, "  - %s\n", ing.Name)
		}
	}

	fmt.Fprintln(w, "\nInstructions:")
	steps := r.InstructionSteps()
	if len(steps) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for i, step := range steps {
		fmt.Fprintf(w, "  %d. %s\n", i+1, step)
	}
}
