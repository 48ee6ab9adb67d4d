package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/domain/inventory"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/auth"
	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/db"
)

// lotFile is the YAML layout read by seed and allocate:
//
//	lots:
//	  - product_code: BOTOX-100
//	    product_name: Botox 100U
//	    batch: B2401
//	    quantity: 10
//	    expiration_date: 2025-03-01
//	    unit_price: "850.00"
type lotFile struct {
	Lots []lotFixture `yaml:"lots"`
}

type lotFixture struct {
	// ID and Reserved are only read by allocate; seeded lots get fresh ids
	// and nothing reserved.
	ID             string `yaml:"id"`
	ProductCode    string `yaml:"product_code"`
	ProductName    string `yaml:"product_name"`
	Batch          string `yaml:"batch"`
	Quantity       int    `yaml:"quantity"`
	Reserved       int    `yaml:"reserved"`
	ExpirationDate string `yaml:"expiration_date"`
	UnitPrice      string `yaml:"unit_price"`
}

func readLotFile(r io.Reader) ([]lotFixture, error) {
	var f lotFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode lot file: %w", err)
	}
	return f.Lots, nil
}

func loadLotFile(path string) ([]lotFixture, error) {
	if path == "" {
		return nil, fmt.Errorf("--file is required")
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return readLotFile(fh)
}

func (f lotFixture) item() (*inventory.Item, error) {
	exp, err := inventory.ParseDate(f.ExpirationDate)
	if err != nil {
		return nil, fmt.Errorf("lot %s: invalid expiration_date %q", f.Batch, f.ExpirationDate)
	}
	price := decimal.Zero
	if f.UnitPrice != "" {
		if price, err = decimal.NewFromString(f.UnitPrice); err != nil {
			return nil, fmt.Errorf("lot %s: invalid unit_price %q", f.Batch, f.UnitPrice)
		}
	}
	return &inventory.Item{
		ProductCode:      f.ProductCode,
		ProductName:      f.ProductName,
		Batch:            f.Batch,
		QuantityOnHand:   f.Quantity,
		QuantityReserved: f.Reserved,
		ExpirationDate:   exp,
		UnitPrice:        price,
		Active:           true,
	}, nil
}

// lots converts fixtures to allocator lots. Lots without an id are named
// after their position in the file.
func lots(fixtures []lotFixture) ([]inventory.Lot, error) {
	out := make([]inventory.Lot, 0, len(fixtures))
	for i, f := range fixtures {
		it, err := f.item()
		if err != nil {
			return nil, err
		}
		lot := it.Lot()
		lot.ID = f.ID
		if lot.ID == "" {
			lot.ID = fmt.Sprintf("lot-%d", i+1)
		}
		out = append(out, lot)
	}
	return out, nil
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Register the lots of a YAML file in a clinic's inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			fixtures, err := loadLotFile(path)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			ctx, release, err := db.WithTenant(ctx, pool, tenantFlag(cmd))
			if err != nil {
				return err
			}
			defer release()

			svc := inventory.NewService(inventory.NewItemRepoPG(pool), inventory.NewActivityRepoPG(pool),
				db.NewTxManager(pool), inventory.Config{
					LowStockThreshold: cfg.LowStockThreshold,
					ExpiryWarningDays: cfg.ExpiryWarningDays,
				})
			actor := auth.Actor{ID: "seed", Name: "seed"}
			for _, f := range fixtures {
				it, err := f.item()
				if err != nil {
					return err
				}
				if err := svc.ReceiveItem(ctx, it, actor); err != nil {
					return fmt.Errorf("lot %s: %w", f.Batch, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d lot(s) into %s.\n", len(fixtures), db.SchemaName(tenantFlag(cmd)))
			return nil
		},
	}
	cmd.Flags().String("file", "", "YAML lot file")
	cmd.Flags().String("tenant", "default", "Clinic identifier")
	return cmd
}

func allocateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Preview a FEFO allocation over a YAML lot file",
		Long: "Preview which lots a request would draw from, earliest expiration first.\n" +
			"Without --product the lots are listed grouped by product.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			product, _ := cmd.Flags().GetString("product")
			qty, _ := cmd.Flags().GetInt("qty")

			fixtures, err := loadLotFile(path)
			if err != nil {
				return err
			}
			all, err := lots(fixtures)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if product == "" {
				printGroups(out, inventory.GroupByProduct(all))
				return nil
			}

			allocs, err := inventory.Allocate(all, product, qty)
			var short *inventory.InsufficientStockError
			if errors.As(err, &short) {
				fmt.Fprintf(out, "%s: requested %d, available %d, short by %d\n",
					short.ProductCode, short.Requested, short.Available, short.Shortfall)
				return err
			}
			if err != nil {
				return err
			}
			printAllocations(out, allocs)
			return nil
		},
	}
	cmd.Flags().String("file", "", "YAML lot file")
	cmd.Flags().String("product", "", "Product code to allocate")
	cmd.Flags().Int("qty", 0, "Units to allocate")
	return cmd
}

func printAllocations(w io.Writer, allocs []inventory.Allocation) {
	fmt.Fprintf(w, "%-12s %-12s %-12s %s\n", "LOT", "BATCH", "EXPIRES", "QTY")
	total := 0
	for _, a := range allocs {
		fmt.Fprintf(w, "%-12s %-12s %-12s %d\n", a.LotID, a.Batch, a.ExpirationDate.Format("2006-01-02"), a.Quantity)
		total += a.Quantity
	}
	fmt.Fprintf(w, "%s\ntotal %d\n", strings.Repeat("-", 40), total)
}

func printGroups(w io.Writer, groups []inventory.ProductGroup) {
	for _, g := range groups {
		fmt.Fprintf(w, "%s %s (%d available)\n", g.ProductCode, g.ProductName, g.TotalAvailable)
		for _, l := range g.Lots {
			fmt.Fprintf(w, "  %-12s %-12s %s %d\n", l.ID, l.Batch, l.ExpirationDate.Format("2006-01-02"), l.AvailableQuantity)
		}
	}
}
