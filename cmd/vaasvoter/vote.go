package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	ui "github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/types"
)

var voteChoices string

var voteCmd = &cobra.Command{
	Use:   "vote <electionId>",
	Short: "cast a ballot and wait until it is registered",
	Long: `Cast a ballot in a CSP driven election. Choices are given as a comma
separated list of option indexes, one per question. Without --choices the
options are selected interactively.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		electionID, err := parseElectionID(args[0])
		if err != nil {
			return err
		}
		v, err := newVoter()
		if err != nil {
			return err
		}
		defer v.Receipts.Close()

		var choices []int
		if voteChoices != "" {
			choices, err = parseChoices(voteChoices)
		} else {
			var e *types.Election
			if e, err = v.Election(cmd.Context(), electionID); err != nil {
				return err
			}
			choices, err = promptChoices(e.Questions)
		}
		if err != nil {
			return err
		}

		r, err := v.Cast(cmd.Context(), electionID, choices)
		if r != nil {
			printReceipt(r)
		}
		if errors.Is(err, api.ErrConfirmationTimeout) {
			infoPrint.Printf("ballot submitted but not registered yet, run: vaasvoter resume %s\n", electionID)
		}
		if err != nil {
			return err
		}
		infoPrint.Println("ballot registered")
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <electionId>",
	Short: "continue polling a ballot submitted earlier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		electionID, err := parseElectionID(args[0])
		if err != nil {
			return err
		}
		v, err := newVoter()
		if err != nil {
			return err
		}
		defer v.Receipts.Close()

		r, err := v.Resume(cmd.Context(), electionID)
		if r != nil {
			printReceipt(r)
		}
		if err != nil {
			return err
		}
		infoPrint.Println("ballot registered")
		return nil
	},
}

var receiptsCmd = &cobra.Command{
	Use:   "receipts",
	Short: "list the stored vote receipts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openReceipts()
		if err != nil {
			return err
		}
		defer store.Close()
		list, err := store.List()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			infoPrint.Println("no receipts stored")
		}
		for i, r := range list {
			if i > 0 {
				fmt.Println()
			}
			printReceipt(r)
		}
		return nil
	},
}

func init() {
	voteCmd.Flags().StringVar(&voteChoices, "choices", "",
		"comma separated choice indexes, one per question (such as 0,2,1)")
}

func parseElectionID(s string) (types.HexBytes, error) {
	id, err := types.HexStringToHexBytes(s)
	if err != nil || len(id) != types.ElectionIDLength {
		return nil, fmt.Errorf("%w: election ID must be %d hex encoded bytes", api.ErrConfig, types.ElectionIDLength)
	}
	return id, nil
}

// parseChoices parses a comma separated list of choice indexes.
func parseChoices(s string) ([]int, error) {
	var choices []int
	for _, field := range strings.Split(s, ",") {
		c, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil || c < 0 {
			return nil, fmt.Errorf("%w: invalid choice %q", api.ErrConfig, field)
		}
		choices = append(choices, c)
	}
	return choices, nil
}

func promptChoices(questions []types.Question) ([]int, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: the election has no questions, use --choices", api.ErrConfig)
	}
	choices := make([]int, len(questions))
	for i, q := range questions {
		prompt := ui.Select{
			Label:    fmt.Sprintf("%d/%d %s", i+1, len(questions), q.Title),
			Items:    q.Choices,
			HideHelp: true,
			Size:     10,
		}
		idx, _, err := prompt.Run()
		if err != nil {
			return nil, fmt.Errorf("prompt failed: %w", err)
		}
		choices[i] = idx
	}
	return choices, nil
}
