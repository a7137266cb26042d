package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"finished/api/internal/finished"
	"finished/api/internal/store"
	"finished/api/internal/tui"
)

var (
	addDescription string
	searchType     string
	searchLimit    int
	searchRemote   bool
)

var listCmd = &cobra.Command{
	Use:   "list [type]",
	Short: "Show the list, optionally one type only",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		types := store.ItemTypes
		if len(args) == 1 {
			itemType, err := store.ParseItemType(args[0])
			if err != nil {
				return err
			}
			types = []store.ItemType{itemType}
		}
		for _, itemType := range types {
			items := current.service.ByType(itemType)
			fmt.Println(headerStyle.Render(fmt.Sprintf("%s (%d)", itemType, len(items))))
			for i, item := range items {
				line := fmt.Sprintf("  %2d. %s", i, item.Title)
				if item.Description != "" {
					line += mutedStyle.Render("  " + item.Description)
				}
				fmt.Println(line + mutedStyle.Render("  "+item.ID))
			}
		}
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <type> <title...>",
	Short: "Add a finished movie, game or book",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemType, err := store.ParseItemType(args[0])
		if err != nil {
			return err
		}
		item, err := current.service.Add(cmd.Context(), strings.Join(args[1:], " "), addDescription, itemType)
		if err != nil {
			return err
		}
		success(fmt.Sprintf("added %q (%s)", item.Title, item.ID))
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := current.service.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		success("removed")
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <id> <title...>",
	Short: "Rename an item",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := current.service.UpdateTitle(cmd.Context(), args[0], strings.Join(args[1:], " ")); err != nil {
			return err
		}
		success("saved")
		return nil
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv <type> <from> <to>",
	Short: "Move an item within its list; positions start at 0",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemType, err := store.ParseItemType(args[0])
		if err != nil {
			return err
		}
		from, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("from: %w", err)
		}
		to, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("to: %w", err)
		}
		return current.service.Reorder(cmd.Context(), itemType, from, to)
	},
}

var openCmd = &cobra.Command{
	Use:   "open <id>",
	Short: "Print the web search link for an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		for _, item := range current.service.List() {
			if item.ID == args[0] {
				fmt.Println(finished.SearchURL(item))
				return nil
			}
		}
		return fmt.Errorf("no item with id %s", args[0])
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Full-text search over titles and descriptions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var itemType store.ItemType
		if searchType != "" {
			parsed, err := store.ParseItemType(searchType)
			if err != nil {
				return err
			}
			itemType = parsed
		}
		text := strings.Join(args, " ")

		if searchRemote {
			if err := current.requireServer(); err != nil {
				return err
			}
			resp, err := current.client.Table(current.auth).Search(cmd.Context(), text, itemType, searchLimit)
			if err != nil {
				return err
			}
			for _, r := range resp.Results {
				fmt.Printf("%-7s %s%s\n", r.Type, r.Title, mutedStyle.Render("  "+r.ID))
			}
			return nil
		}

		results, err := current.service.Search(cmd.Context(), text, itemType, searchLimit)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Printf("%-7s %s%s\n", r.Type, r.Title, mutedStyle.Render("  "+r.ID))
		}
		return nil
	},
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive list",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		var changes chan tui.IdentityChange
		if current.auth != nil {
			identities, err := current.auth.Watch(ctx)
			if err != nil {
				current.logger.Warn("session watcher unavailable", zap.Error(err))
			} else {
				changes = make(chan tui.IdentityChange)
				go current.service.Follow(ctx, identities, func(id finished.Identity, err error) {
					select {
					case changes <- tui.IdentityChange{Identity: id, Err: err}:
					case <-ctx.Done():
					}
				})
			}
		}
		return tui.Run(current.service, changes)
	},
}

func init() {
	addCmd.Flags().StringVarP(&addDescription, "description", "d", "", "optional description")
	searchCmd.Flags().StringVarP(&searchType, "type", "t", "", "limit to movies, games or books")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchRemote, "remote", false, "search on the server instead of the loaded list")
	rootCmd.AddCommand(listCmd, addCmd, rmCmd, editCmd, mvCmd, openCmd, searchCmd, tuiCmd)
}
