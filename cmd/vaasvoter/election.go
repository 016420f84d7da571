package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/election"
	"go.vocdoni.io/vaas/types"
	"go.vocdoni.io/vaas/voter"
)

var (
	electionUnlock bool
	electionWait   bool
)

var electionCmd = &cobra.Command{
	Use:   "election",
	Short: "inspect and administrate elections",
}

var electionInfoCmd = &cobra.Command{
	Use:   "info <electionId>",
	Short: "print the election metadata and its current status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		electionID, err := parseElectionID(args[0])
		if err != nil {
			return err
		}
		var e *types.Election
		if electionUnlock {
			v, err := newVoter()
			if err != nil {
				return err
			}
			defer v.Receipts.Close()
			e, err = v.Election(cmd.Context(), electionID)
			if err != nil {
				return err
			}
		} else {
			c, err := newAPI()
			if err != nil {
				return err
			}
			if e, err = c.Election(cmd.Context(), electionID); err != nil {
				return err
			}
		}
		printElection(e)
		return nil
	},
}

var electionCreateCmd = &cobra.Command{
	Use:   "create <file.json>",
	Short: "create an election from a JSON description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		req := &api.ElectionCreate{}
		if err := json.Unmarshal(data, req); err != nil {
			return fmt.Errorf("%w: cannot decode %s: %v", api.ErrConfig, args[0], err)
		}
		c, err := newAPI()
		if err != nil {
			return err
		}
		created, err := c.CreateElection(cmd.Context(), req)
		if err != nil {
			return err
		}
		keysPrint.Print("election: ")
		valuesPrint.Println(created.ElectionID.String())
		if len(created.TxHash) == 0 {
			return nil
		}
		keysPrint.Print("tx hash:  ")
		valuesPrint.Println(created.TxHash.String())
		if !electionWait {
			return nil
		}
		if err := c.PollTransactionMined(cmd.Context(), created.TxHash, cfg.Policy()); err != nil {
			return err
		}
		infoPrint.Println("election published")
		return nil
	},
}

var electionStatusCmd = &cobra.Command{
	Use:   "set-status <electionId> <status>",
	Short: "change the administrative status (READY, PAUSED, ENDED, CANCELED)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		electionID, err := parseElectionID(args[0])
		if err != nil {
			return err
		}
		status := types.ElectionStatus(strings.ToUpper(args[1]))
		c, err := newAPI()
		if err != nil {
			return err
		}
		if err := c.SetElectionStatus(cmd.Context(), electionID, status); err != nil {
			return err
		}
		infoPrint.Printf("election %s is now %s\n", electionID, status)
		return nil
	},
}

var electionResultsCmd = &cobra.Command{
	Use:   "results <electionId>",
	Short: "print the election results once they are readable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		electionID, err := parseElectionID(args[0])
		if err != nil {
			return err
		}
		c, err := newAPI()
		if err != nil {
			return err
		}
		v := &voter.Voter{API: c}
		results, err := v.Results(cmd.Context(), electionID)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			infoPrint.Println("no results published")
		}
		for i, question := range results {
			keysPrint.Printf("question %d:\n", i)
			for _, r := range question {
				fmt.Printf("  %-20s", r.Title)
				valuesPrint.Println(r.Value)
			}
		}
		return nil
	},
}

var waitTxCmd = &cobra.Command{
	Use:   "wait-tx <txHash>",
	Short: "wait until an administrative transaction is mined",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		txHash, err := types.HexStringToHexBytes(args[0])
		if err != nil {
			return fmt.Errorf("%w: invalid transaction hash: %v", api.ErrConfig, err)
		}
		c, err := newAPI()
		if err != nil {
			return err
		}
		if err := c.PollTransactionMined(cmd.Context(), txHash, cfg.Policy()); err != nil {
			return err
		}
		infoPrint.Println("transaction mined")
		return nil
	},
}

func init() {
	electionInfoCmd.Flags().BoolVar(&electionUnlock, "unlock", false,
		"unlock the metadata of a confidential election through the CSP")
	electionCreateCmd.Flags().BoolVar(&electionWait, "wait", true,
		"wait for the election transaction to be mined")
	electionCmd.AddCommand(electionInfoCmd, electionCreateCmd, electionStatusCmd, electionResultsCmd)
}

func printElection(e *types.Election) {
	field := func(k string, v any) {
		keysPrint.Printf("%-15s", k+":")
		valuesPrint.Println(v)
	}
	field("election", e.ElectionID.String())
	field("title", e.Title)
	field("type", e.Type)
	field("status", e.Status)
	field("effective", election.StatusAt(e, time.Now()))
	if e.StartDate != nil {
		field("start", e.StartDate.Format(time.RFC3339))
	}
	field("end", e.EndDate.Format(time.RFC3339))
	field("votes", e.VoteCount)
	for i, q := range e.Questions {
		keysPrint.Printf("question %d:    ", i)
		valuesPrint.Println(q.Title)
		for j, choice := range q.Choices {
			fmt.Printf("  [%d] %s\n", j, choice)
		}
	}
}
