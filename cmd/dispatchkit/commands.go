package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dejo1307/dispatchkit/internal/config"
	"github.com/dejo1307/dispatchkit/internal/dispatch"
	"github.com/dejo1307/dispatchkit/internal/engine"
	"github.com/dejo1307/dispatchkit/internal/logging"
	"github.com/dejo1307/dispatchkit/internal/server"
	"github.com/dejo1307/dispatchkit/internal/strategies/bonus"
	"github.com/dejo1307/dispatchkit/internal/strategies/notify"
	"github.com/dejo1307/dispatchkit/internal/strategies/payment"
)

const defaultConfigPath = "dispatchkit.yaml"

// app holds what every subcommand needs once flags are parsed.
type app struct {
	cfgPath  string
	logLevel string

	cfg     *config.Config
	log     *slog.Logger
	metrics *prometheus.Registry
	eng     *engine.Engine
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "dispatchkit",
		Short:         "Run interchangeable payment, notification and bonus strategies",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", defaultConfigPath, "path to the YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		a.serveCmd(),
		a.payCmd(),
		a.payBatchCmd(),
		a.notifyCmd(),
		a.bonusCmd(),
		a.listCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		// A missing default config file is fine; an explicit one must exist.
		if cmd.Flags().Changed("config") || !stderrors.Is(err, fs.ErrNotExist) {
			return err
		}
		cfg = config.Default()
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg
	a.log = logging.SetDefault("dispatchkit", version, cfg.Log.Level)

	a.metrics = prometheus.NewRegistry()
	eng, err := engine.New(cfg, engine.WithLogger(a.log), engine.WithRegisterer(a.metrics))
	if err != nil {
		return err
	}
	if err := eng.RegisterBuiltins(); err != nil {
		return fmt.Errorf("registering strategies: %w", err)
	}
	eng.Seal()
	a.eng = eng
	return nil
}

func (a *app) serveCmd() *cobra.Command {
	var ledgerPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the strategies as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if ledgerPath != "" {
				if err := a.eng.LoadLedger(ledgerPath); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
					return err
				}
				defer func() {
					if err := a.eng.WriteLedger(ledgerPath); err != nil {
						a.log.Error("saving ledger failed", "error", err)
					}
				}()
			}

			if addr := a.cfg.Metrics.Addr; addr != "" {
				stopMetrics := a.serveMetrics(addr)
				defer stopMetrics()
			}

			return server.New(a.eng, version, a.log).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "JSONL file to load the ledger from at start and save it to on exit")
	return cmd
}

// serveMetrics exposes /metrics on addr and returns a function that shuts
// the listener down.
func (a *app) serveMetrics(addr string) func() {
	a.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.log.Info("metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics endpoint failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func (a *app) payCmd() *cobra.Command {
	var req payment.Request

	cmd := &cobra.Command{
		Use:   "pay <method>",
		Short: "Take a payment with upi, card or netbanking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			receipt, err := a.eng.Pay(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), receipt)
		},
	}
	cmd.Flags().Float64Var(&req.Amount, "amount", 0, "amount to pay")
	cmd.Flags().StringVar(&req.Currency, "currency", "", "three-letter currency code (default from settings)")
	cmd.Flags().StringVar(&req.Reference, "reference", "", "reference recorded in the ledger")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (a *app) payBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pay-batch <file.jsonl>",
		Short: "Take every payment listed in a JSONL file, concurrently",
		Long: `Each input line is a JSON object with "method", "amount" and the optional
"currency" and "reference" fields. Use "-" to read from stdin. Results are
printed one JSON object per line in input order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := readBatch(cmd, args[0])
			if err != nil {
				return err
			}

			outcomes := a.eng.PayBatch(cmd.Context(), toJobs(lines))
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, o := range outcomes {
				res := batchResult{Method: o.Key}
				if o.Err != nil {
					res.Error = o.Err.Error()
				} else {
					receipt := o.Result
					res.Receipt = &receipt
				}
				if err := enc.Encode(res); err != nil {
					return err
				}
			}

			if failed := dispatch.Failed(outcomes); len(failed) > 0 {
				return fmt.Errorf("%d of %d payments failed", len(failed), len(outcomes))
			}
			return nil
		},
	}
}

func readBatch(cmd *cobra.Command, path string) ([]batchLine, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening batch file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var lines []batchLine
	dec := json.NewDecoder(r)
	for {
		var l batchLine
		err := dec.Decode(&l)
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding batch line %d: %w", len(lines)+1, err)
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func (a *app) notifyCmd() *cobra.Command {
	var msg notify.Message

	cmd := &cobra.Command{
		Use:   "notify <channel>",
		Short: "Send a notification over email, sms or whatsapp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delivery, err := a.eng.Notify(cmd.Context(), args[0], msg)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), delivery)
		},
	}
	cmd.Flags().StringVar(&msg.Recipient, "to", "", "recipient email address or E.164 phone number")
	cmd.Flags().StringVar(&msg.Body, "body", "", "message text")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

func (a *app) bonusCmd() *cobra.Command {
	var emp bonus.Employee

	cmd := &cobra.Command{
		Use:   "bonus <role>",
		Short: "Compute a bonus for developer, manager, tester or hr",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			award, err := a.eng.Bonus(cmd.Context(), args[0], emp)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), award)
		},
	}
	cmd.Flags().StringVar(&emp.Name, "name", "", "employee name")
	cmd.Flags().Float64Var(&emp.Salary, "salary", 0, "salary")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("salary")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered strategies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), a.eng.Strategies())
		},
	}
}

// batchLine is one line of a pay batch file.
type batchLine struct {
	Method string `json:"method"`
	payment.Request
}

// batchResult is one line of pay batch output.
type batchResult struct {
	Method  string           `json:"method"`
	Receipt *payment.Receipt `json:"receipt,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func toJobs(lines []batchLine) []dispatch.Job[string, payment.Request] {
	jobs := make([]dispatch.Job[string, payment.Request], len(lines))
	for i, l := range lines {
		jobs[i] = dispatch.Job[string, payment.Request]{Key: l.Method, Payload: l.Request}
	}
	return jobs
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
