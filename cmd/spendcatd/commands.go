package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/spendcat/internal/category"
	"github.com/fyrsmithlabs/spendcat/internal/classifier"
)

var classifyContext string

// classifyCmd classifies a single merchant name.
var classifyCmd = &cobra.Command{
	Use:   "classify <name>",
	Short: "Classify a single merchant name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()

		cat, err := a.service.GetCategory(cmd.Context(), args[0], classifyContext)
		if err != nil {
			return err
		}
		fmt.Println(cat)
		return nil
	},
}

var setAllRecords bool

// setCmd applies a manual correction.
var setCmd = &cobra.Command{
	Use:   "set <name> <category>",
	Short: "Manually set the category for a merchant name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()

		scope := classifier.ScopeRecord
		if setAllRecords {
			scope = classifier.ScopeAllRecords
		}
		if err := a.service.SetCategory(cmd.Context(), args[0], category.Category(args[1]), scope); err != nil {
			return err
		}
		fmt.Printf("%s -> %s\n", args[0], args[1])
		return nil
	},
}

var (
	bulkNamesFile string
	bulkMaxRounds int
	bulkMaxNames  int
)

// bulkCmd runs the bulk classification pipeline over a names file. Each
// line is "name" or "name,amount".
var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Bulk-classify unclassified names from a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if bulkNamesFile == "" {
			return fmt.Errorf("--names-file is required")
		}

		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()

		loaded, err := loadNamesFile(bulkNamesFile, a.records)
		if err != nil {
			return err
		}
		fmt.Printf("loaded %d records\n", loaded)

		var total int
		if bulkMaxNames > 0 {
			total, err = a.service.ClassifyUnclassified(cmd.Context(), bulkMaxNames)
		} else {
			total, err = a.service.ClassifyAllUntilComplete(cmd.Context(), bulkMaxRounds)
		}
		if err != nil {
			return err
		}

		fmt.Printf("%d records updated\n", total)
		for _, rec := range a.records.Records() {
			fmt.Printf("%s\t%s\n", rec.Name, rec.Category)
		}
		return nil
	},
}

var reclassifyThreshold float64

// reclassifyCmd re-runs the oracle over low-confidence records.
var reclassifyCmd = &cobra.Command{
	Use:   "reclassify",
	Short: "Reclassify low-confidence records via the oracle",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()

		n, err := a.service.ReclassifyLowConfidence(cmd.Context(), reclassifyThreshold)
		if err != nil {
			return err
		}
		fmt.Printf("%d names reclassified\n", n)
		return nil
	},
}

// statsCmd prints store counts.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show mapping and embedding store counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()

		mappings, err := a.db.Mappings().Count(cmd.Context())
		if err != nil {
			return err
		}
		embeddings, err := a.db.Embeddings().Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("mappings:   %d\nembeddings: %d\n", mappings, embeddings)
		return nil
	},
}

var resetConfirm bool

// resetCmd deletes all learned data.
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all mappings and embeddings (full-data reset)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetConfirm {
			return fmt.Errorf("refusing to reset without --yes")
		}

		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.service.Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("classifier data reset")
		return nil
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyContext, "context", "", "surrounding message text for the rule engine")
	setCmd.Flags().BoolVar(&setAllRecords, "all", false, "apply to all records sharing the name")
	bulkCmd.Flags().StringVar(&bulkNamesFile, "names-file", "", "file of unclassified names, one 'name' or 'name,amount' per line")
	bulkCmd.Flags().IntVar(&bulkMaxRounds, "max-rounds", 3, "maximum classification rounds")
	bulkCmd.Flags().IntVar(&bulkMaxNames, "max-names", 0, "classify only the top-N names by amount in a single round")
	reclassifyCmd.Flags().Float64Var(&reclassifyThreshold, "threshold", 0.6, "reclassify records below this confidence")
	resetCmd.Flags().BoolVar(&resetConfirm, "yes", false, "confirm the reset")
}

// loadNamesFile reads "name" or "name,amount" lines into the record store.
func loadNamesFile(path string, records *classifier.InMemoryRecordStore) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening names file: %w", err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name := line
		amount := 1.0
		if idx := strings.LastIndex(line, ","); idx > 0 {
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(line[idx+1:]), 64); err == nil {
				name = strings.TrimSpace(line[:idx])
				amount = parsed
			}
		}

		records.Add(name, category.Unclassified, amount)
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("reading names file: %w", err)
	}
	return count, nil
}
