package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/username/trackfolio/backend/src/config"
	"github.com/username/trackfolio/backend/src/currency"
	"github.com/username/trackfolio/backend/src/database"
	"github.com/username/trackfolio/backend/src/model"
	"github.com/username/trackfolio/backend/src/models"
	"github.com/username/trackfolio/backend/src/parsers/degiro"
	"github.com/username/trackfolio/backend/src/processors"
	"github.com/username/trackfolio/backend/src/security"
	"github.com/username/trackfolio/backend/src/security/validation"
	"github.com/username/trackfolio/backend/src/services"
)

// Commands is the list of trackctl subcommands.
var Commands = []subcommands.Command{
	&migrateCmd{},
	&validateCmd{},
	&importCmd{},
	&holdingsCmd{},
	&tradesCmd{},
	&summaryCmd{},
	&tokenCmd{},
}

// ledgerFlags are shared by every command that touches the database.
type ledgerFlags struct {
	dbPath  string
	ownerID int64
}

func (l *ledgerFlags) register(f *flag.FlagSet) {
	f.StringVar(&l.dbPath, "db", config.Cfg.DatabasePath, "Path of the SQLite database.")
	f.Int64Var(&l.ownerID, "owner", 0, "Owner id the ledger belongs to.")
}

func (l *ledgerFlags) open() (*sql.DB, error) {
	if l.ownerID <= 0 {
		return nil, errors.New("-owner must be a positive id")
	}
	return openMigrated(l.dbPath)
}

func openMigrated(path string) (*sql.DB, error) {
	db, err := database.Open(path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func newPortfolioService(db *sql.DB) services.PortfolioService {
	// A one-shot process has nothing to cache.
	return services.NewPortfolioService(model.NewLedgerStore(db), processors.NewTradeSummaryProcessor(config.Cfg.BaseCurrency), 0)
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}

type migrateCmd struct {
	dbPath string
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "create or upgrade the ledger database" }
func (*migrateCmd) Usage() string {
	return `trackctl migrate [-db <path>]
`
}

func (c *migrateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.dbPath, "db", config.Cfg.DatabasePath, "Path of the SQLite database.")
}

func (c *migrateCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	db, err := openMigrated(c.dbPath)
	if err != nil {
		return fail(err)
	}
	db.Close()
	fmt.Printf("database %s is up to date\n", c.dbPath)
	return subcommands.ExitSuccess
}

type validateCmd struct{}

func (*validateCmd) Name() string     { return "validate" }
func (*validateCmd) Synopsis() string { return "check a broker export without importing it" }
func (*validateCmd) Usage() string {
	return `trackctl validate <file.csv>

  Prints every structural problem of the file, one per line.
`
}
func (*validateCmd) SetFlags(*flag.FlagSet) {}

func (c *validateCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	file, err := os.Open(f.Arg(0))
	if err != nil {
		return fail(err)
	}
	defer file.Close()

	result := degiro.NewValidator(degiro.NewSchema(config.Cfg.AllowedCurrencies)).Validate(file)
	if result.Valid {
		fmt.Println("OK")
		return subcommands.ExitSuccess
	}
	for _, msg := range result.Messages() {
		fmt.Println(msg)
	}
	return subcommands.ExitFailure
}

type importCmd struct {
	ledgerFlags
	policy string
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "append a broker export to an owner's ledger" }
func (*importCmd) Usage() string {
	return `trackctl import -owner <id> [-db <path>] [-policy abort|skip] <file.csv>

  Rows already in the ledger are counted as duplicates and skipped.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	c.ledgerFlags.register(f)
	f.StringVar(&c.policy, "policy", config.Cfg.RowFailurePolicy, "What to do with unparsable rows (abort, skip).")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	db, err := c.open()
	if err != nil {
		return fail(err)
	}
	defer db.Close()

	file, err := os.Open(f.Arg(0))
	if err != nil {
		return fail(err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return fail(err)
	}

	svc := services.NewIngestionService(
		model.NewLedgerStore(db),
		degiro.NewSchema(config.Cfg.AllowedCurrencies),
		processors.NewTransactionProcessor(),
		nil,
		services.IngestionOptions{Policy: services.ParseRowFailurePolicy(c.policy)},
	)
	result, err := svc.Ingest(ctx, file, c.ownerID, services.UploadMeta{Filename: filepath.Base(f.Arg(0)), Size: info.Size()})
	if err != nil {
		var vErr *services.ValidationError
		if errors.As(err, &vErr) {
			for _, msg := range vErr.Messages() {
				fmt.Fprintln(os.Stderr, msg)
			}
			return subcommands.ExitFailure
		}
		return fail(err)
	}

	fmt.Printf("accepted: %d\nduplicates: %d\n", result.Accepted, result.Duplicates)
	for _, d := range result.Rejected {
		fmt.Printf("rejected: %s\n", d)
	}
	return subcommands.ExitSuccess
}

type holdingsCmd struct {
	ledgerFlags
	page, perPage int
}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "list open positions" }
func (*holdingsCmd) Usage() string {
	return `trackctl holdings -owner <id> [-page n] [-per-page n]
`
}

func (c *holdingsCmd) SetFlags(f *flag.FlagSet) {
	c.ledgerFlags.register(f)
	f.IntVar(&c.page, "page", 1, "Page number.")
	f.IntVar(&c.perPage, "per-page", 20, "Rows per page.")
}

func (c *holdingsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	db, err := c.open()
	if err != nil {
		return fail(err)
	}
	defer db.Close()

	page, err := newPortfolioService(db).GetHoldings(ctx, c.ownerID, models.NewPageRequest(c.page, c.perPage, 20))
	if err != nil {
		return fail(err)
	}
	writeHoldings(os.Stdout, page)
	return subcommands.ExitSuccess
}

type tradesCmd struct {
	ledgerFlags
	page, perPage int
	sortBy, order string
}

func (*tradesCmd) Name() string     { return "trades" }
func (*tradesCmd) Synopsis() string { return "list closed trades with their profit or loss" }
func (*tradesCmd) Usage() string {
	return `trackctl trades -owner <id> [-sort profit_loss|last_sale_date|first_purchase_date] [-order asc|desc]
`
}

func (c *tradesCmd) SetFlags(f *flag.FlagSet) {
	c.ledgerFlags.register(f)
	f.IntVar(&c.page, "page", 1, "Page number.")
	f.IntVar(&c.perPage, "per-page", 10, "Rows per page.")
	f.StringVar(&c.sortBy, "sort", models.SortByLastSaleDate, "Sort key.")
	f.StringVar(&c.order, "order", "desc", "Sort order.")
}

func (c *tradesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	db, err := c.open()
	if err != nil {
		return fail(err)
	}
	defer db.Close()

	page, err := newPortfolioService(db).GetClosedTrades(ctx, c.ownerID, models.NewPageRequest(c.page, c.perPage, 10), models.NewTradeSort(c.sortBy, c.order))
	if err != nil {
		return fail(err)
	}
	writeClosedTrades(os.Stdout, page)
	return subcommands.ExitSuccess
}

type summaryCmd struct {
	ledgerFlags
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "sum the profit and loss of all closed trades" }
func (*summaryCmd) Usage() string {
	return `trackctl summary -owner <id>
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) { c.ledgerFlags.register(f) }

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	db, err := c.open()
	if err != nil {
		return fail(err)
	}
	defer db.Close()

	summary, err := newPortfolioService(db).GetTradesSummary(ctx, c.ownerID)
	if err != nil {
		return fail(err)
	}
	writeSummary(os.Stdout, summary)
	return subcommands.ExitSuccess
}

type tokenCmd struct {
	ownerID int64
}

func (*tokenCmd) Name() string     { return "token" }
func (*tokenCmd) Synopsis() string { return "issue an API token for an owner" }
func (*tokenCmd) Usage() string {
	return `trackctl token -owner <id>

  Signs with JWT_SECRET; the token expires after ACCESS_TOKEN_EXPIRY.
`
}

func (c *tokenCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.ownerID, "owner", 0, "Owner id to put in the token.")
}

func (c *tokenCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.ownerID <= 0 {
		return fail(errors.New("-owner must be a positive id"))
	}
	auth, err := security.NewAuthService(config.Cfg.JWTSecret, config.Cfg.AccessTokenExpiry)
	if err != nil {
		return fail(err)
	}
	token, err := auth.GenerateToken(c.ownerID)
	if err != nil {
		return fail(err)
	}
	fmt.Println(token)
	return subcommands.ExitSuccess
}

func writeHoldings(w io.Writer, page models.Page[models.Holding]) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ISIN\tNAME\tQUANTITY")
	for _, h := range page.Data {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", h.InstrumentKey, validation.CleanFreeText(h.InstrumentName), h.Quantity.String())
	}
	tw.Flush()
	fmt.Fprintf(w, "page %d/%d, %d holdings\n", page.CurrentPage, page.LastPage, page.Total)
}

func writeClosedTrades(w io.Writer, page models.Page[models.ClosedTrade]) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ISIN\tNAME\tFIRST BUY\tLAST SALE\tP/L")
	for _, t := range page.Data {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.InstrumentKey, validation.CleanFreeText(t.InstrumentName), t.FirstPurchaseDate, t.LastSaleDate,
			currency.Display(t.ProfitLoss, t.Currency))
	}
	tw.Flush()
	fmt.Fprintf(w, "page %d/%d, %d closed trades\n", page.CurrentPage, page.LastPage, page.Total)
}

func writeSummary(w io.Writer, s models.TradesSummary) {
	fmt.Fprintf(w, "closed trades: %d\n", s.TradeCount)
	fmt.Fprintf(w, "gains:         %s\n", currency.Display(s.PositiveSum, s.Currency))
	fmt.Fprintf(w, "losses:        %s\n", currency.Display(s.NegativeSum, s.Currency))
	fmt.Fprintf(w, "difference:    %s\n", currency.Display(s.Difference, s.Currency))
}
