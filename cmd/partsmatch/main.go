package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"partsmatch/internal"
	"partsmatch/internal/api"
	"partsmatch/internal/bom"
	"partsmatch/internal/catalog"
	"partsmatch/internal/config"
	"partsmatch/internal/connectors"
	gmailconnector "partsmatch/internal/connectors/gmail"
	imapconnector "partsmatch/internal/connectors/imap"
	"partsmatch/internal/footprint"
	"partsmatch/internal/listener"
	"partsmatch/internal/logging"
	"partsmatch/internal/pipeline"
	"partsmatch/internal/storage"
	"partsmatch/internal/value"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	if runOffline(cmd, os.Args[2:]) {
		return
	}

	logger := logging.NewService("partsmatch", cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	switch cmd {
	case "catalog:search":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		query := fs.String("q", "", "search query (MPN, value, description)")
		limit := fs.Int("limit", cfg.PartsSearchLimit, "max results")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*query) == "" {
			must(fmt.Errorf("--q is required"))
		}
		cfg.PartsSearchLimit = *limit
		search, err := pipeline.NewSearch(cfg, db, logger)
		must(err)
		parts, err := search(ctx, *query)
		must(err)
		printJSON(parts)
	case "catalog:sync":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		queries := fs.String("queries", "", "comma separated search queries")
		file := fs.String("file", "", "file with one query per line")
		_ = fs.Parse(os.Args[2:])
		must(cfg.Require("PARTS_API_KEY", cfg.PartsAPIKey))
		list := splitList(*queries)
		if *file != "" {
			fromFile, err := readQueries(*file)
			must(err)
			list = append(list, fromFile...)
		}
		if len(list) == 0 {
			must(fmt.Errorf("--queries or --file is required"))
		}
		svc := catalog.NewSyncService(db, catalog.NewClient(cfg, logger), cfg.PartsSearchLimit, logger)
		res, err := svc.Sync(ctx, list)
		must(err)
		fmt.Printf("catalog sync done queries=%d parts=%d failed=%d\n", res.Queries, res.Parts, res.Failed)
	case "bom:match":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "BOM file path")
		output := fs.String("output", "", "output xlsx path")
		boards := fs.Int("boards", 1, "number of boards to price")
		remote := fs.Bool("remote", cfg.MatchUseAPI, "score on the catalog service")
		_ = fs.Parse(os.Args[2:])
		if *input == "" || *output == "" {
			must(fmt.Errorf("--input and --output are required"))
		}
		if *remote {
			must(cfg.Require("PARTS_API_KEY", cfg.PartsAPIKey))
		}
		cfg.MatchUseAPI = *remote
		m, err := pipeline.NewMatcher(cfg, db, logger)
		must(err)
		svc := pipeline.NewService(db, cfg, m, logger)
		res, err := svc.RunFile(ctx, *input, *boards)
		must(err)
		rows, err := svc.ExportJob(res.JobID, *output)
		must(err)
		st := res.Statistics
		fmt.Printf("bom match done job=%s rows=%d high=%d medium=%d low=%d no_match=%d avg=%.2f\n",
			res.JobID, rows, st.HighConfidence, st.MediumConfidence, st.LowConfidence, st.NoMatch, st.AverageConfidence)
		fmt.Printf("cost boards=%d total=%s %s priced=%d unpriced=%d output=%s\n",
			res.Cost.Boards, res.Cost.Total.StringFixed(2), res.Cost.Currency, res.Cost.Priced, res.Cost.Unpriced, *output)
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		jobID := fs.String("jobId", "", "job id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*jobID) == "" || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--jobId and --out are required"))
		}
		rows, err := db.GetExportRows(*jobID)
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("no export rows for jobId=%s", *jobID))
		}
		must(pipeline.ExportResultsToXLSX(rows, *out))
		fmt.Printf("exported %d rows to %s\n", len(rows), *out)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "gmail", "gmail|imap")
		label := fs.String("label", "INBOX", "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := makeConnector(ctx, cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn, logger)
		result, err := fetch.FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d known=%d with_attachment=%d\n",
			*provider, result.Fetched, result.Stored, result.Known, result.WithAttachment)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "gmail", "gmail|imap")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		processor := newPipeline(cfg, db, logger)
		if strings.TrimSpace(*messageID) != "" {
			res, err := processor.ProcessByProviderMessageID(ctx, *provider, *messageID)
			must(err)
			fmt.Printf("processed email id=%d job=%s lines=%d\n", res.EmailID, res.JobID, res.Processed)
			return
		}
		processedEmails, processedLines, err := processor.ProcessPending(ctx, *batch, *provider)
		must(err)
		fmt.Printf("processed pending emails=%d lines=%d\n", processedEmails, processedLines)
	case "mail:listen":
		s := listener.NewService(db, cfg, newPipeline(cfg, db, logger), logger)
		must(s.Run(ctx))
	case "serve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		addr := fs.String("addr", cfg.HTTPAddr, "listen address")
		_ = fs.Parse(os.Args[2:])
		engine, err := pipeline.NewEngine(cfg, logger)
		must(err)
		search, err := pipeline.NewSearch(cfg, db, logger)
		must(err)
		srv := api.NewServer(engine,
			api.WithSearch(search),
			api.WithPartLookup(storedPart(db)),
			api.WithAPIKey(cfg.HTTPAPIKey),
			api.WithLogger(logger),
		)
		must(srv.ListenAndServe(ctx, *addr))
	default:
		usage()
		os.Exit(1)
	}
}

// runOffline handles the commands that need neither the database nor a
// logger. It reports whether cmd was one of them.
func runOffline(cmd string, args []string) bool {
	switch cmd {
	case "value:parse":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		text := fs.String("value", "", "component value, e.g. 4k7 or 100nF")
		_ = fs.Parse(args)
		if strings.TrimSpace(*text) == "" {
			must(fmt.Errorf("--value is required"))
		}
		printJSON(value.Parse(*text))
	case "footprint:parse":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		text := fs.String("footprint", "", "package or footprint name")
		_ = fs.Parse(args)
		if strings.TrimSpace(*text) == "" {
			must(fmt.Errorf("--footprint is required"))
		}
		printJSON(footprint.Parse(*text))
	case "footprint:compatible":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		a := fs.String("a", "", "first footprint")
		b := fs.String("b", "", "second footprint")
		_ = fs.Parse(args)
		if strings.TrimSpace(*a) == "" || strings.TrimSpace(*b) == "" {
			must(fmt.Errorf("--a and --b are required"))
		}
		pa, pb := footprint.Parse(*a), footprint.Parse(*b)
		printJSON(map[string]any{
			"footprint1": pa,
			"footprint2": pb,
			"compatible": pa.IsCompatible(pb),
		})
	case "bom:analyze":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "BOM file path")
		_ = fs.Parse(args)
		if *input == "" {
			must(fmt.Errorf("--input is required"))
		}
		lines, info, err := bom.ReadFile(*input)
		must(err)
		printJSON(map[string]any{
			"bom":      info,
			"analysis": bom.Analyze(bom.Records(lines)),
		})
	default:
		return false
	}
	return true
}

func newPipeline(cfg config.Config, db *storage.DB, logger *zap.Logger) *pipeline.Service {
	m, err := pipeline.NewMatcher(cfg, db, logger)
	must(err)
	return pipeline.NewService(db, cfg, m, logger)
}

func storedPart(db *storage.DB) api.PartLookup {
	return func(_ context.Context, sku string) (internal.Record, error) {
		part, err := db.GetPart(sku)
		if err != nil || part == nil {
			return nil, err
		}
		return part.Record, nil
	}
}

func makeConnector(ctx context.Context, cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func splitList(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	must(enc.Encode(v))
}

func usage() {
	fmt.Println("usage: partsmatch <command>")
	fmt.Println("commands:")
	fmt.Println("  value:parse --value=4k7")
	fmt.Println("  footprint:parse --footprint=R_0603_1608Metric")
	fmt.Println("  footprint:compatible --a=0603 --b=1608")
	fmt.Println("  bom:analyze --input=board.csv")
	fmt.Println("  bom:match --input=board.csv --output=./out/board.xlsx [--boards=1] [--remote]")
	fmt.Println("  catalog:search --q=GRM188R71H104KA93D [--limit=20]")
	fmt.Println("  catalog:sync --queries=a,b [--file=queries.txt]")
	fmt.Println("  export:xlsx --jobId=... --out=./out/result.xlsx")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process --provider=gmail|imap [--messageId=...] [--batch=20]")
	fmt.Println("  mail:listen")
	fmt.Println("  serve [--addr=:8080]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
