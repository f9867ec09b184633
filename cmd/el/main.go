package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"escrowline/internal/config"
	"escrowline/internal/db"
	"escrowline/internal/domain"
	"escrowline/internal/ledger"
	"escrowline/internal/migrate"
	"escrowline/internal/repo"
	"escrowline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "el",
	Short: "Escrowline CLI",
	Long: `Escrowline is an escrow and reputation ledger for freelance work.
Core concepts:
- Workspace: the .escrowline directory holding the ledger database; escrowline.yml holds owner, treasury, and fee settings.
- Project: one engagement between a client and a freelancer with a fixed price and deadline.
- Escrow vault: the client's payment is locked at funding and released exactly once, at approval or dispute resolution.
- Workflow: open -> funded -> in_progress -> under_review -> completed; any funded project can branch to disputed.
- Fees: a basis-point cut of each completed payment goes to the treasury, capped at 10%.
- Reputation: completions raise karma and earnings; disputes lower the success rate.
- Event log: diary of every change, view with 'el log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ESCROWLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("as", "", "caller address")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("as", rootCmd.PersistentFlags().Lookup("as"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(disputeCmd())
	rootCmd.AddCommand(reputationCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(transfersCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(serveCmd())
}

func callerAddress() (string, error) {
	addr := strings.TrimSpace(viper.GetString("as"))
	if addr == "" {
		return "", fmt.Errorf("caller address required; use --as or set ESCROWLINE_AS")
	}
	return addr, nil
}

func initCmd() *cobra.Command {
	var owner, treasury string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize workspace config and ledger settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				cfg, err := config.Load(workspace)
				if err != nil {
					return err
				}
				return withLedger(cmd.Context(), cfg, func(ctx context.Context, l ledger.Ledger) error {
					s, err := l.Init(ctx)
					if err != nil {
						return err
					}
					return printJSONOrTable(s)
				})
			}
			if owner == "" || treasury == "" {
				return fmt.Errorf("--owner and --treasury required for first init")
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(owner, treasury)), 0o644); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			return withLedger(cmd.Context(), cfg, func(ctx context.Context, l ledger.Ledger) error {
				s, err := l.Init(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", path)
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "ledger owner address")
	cmd.Flags().StringVar(&treasury, "treasury", "", "treasury address")
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{
		Use:   "project",
		Short: "Manage escrow projects",
		Long:  "Projects flow open -> funded -> in_progress -> under_review -> completed. The client creates and funds; the freelancer accepts, starts, and submits; the client approves.",
	}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectAcceptCmd())
	prj.AddCommand(projectFundCmd())
	prj.AddCommand(projectStartCmd())
	prj.AddCommand(projectSubmitCmd())
	prj.AddCommand(projectApproveCmd())
	prj.AddCommand(projectVaultCmd())
	prj.AddCommand(projectOfUserCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var title, token, deadline string
	var amount int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := callerAddress()
			if err != nil {
				return err
			}
			return withLoadedLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				p, err := l.CreateProject(ctx, ledger.CreateProjectOptions{
					Caller:       caller,
					Title:        title,
					Amount:       amount,
					PaymentToken: token,
					Deadline:     deadline,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "project title")
	cmd.Flags().Int64Var(&amount, "amount", 0, "price in base units")
	cmd.Flags().StringVar(&token, "token", "", "payment token (empty for native)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (RFC3339)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("deadline")
	return cmd
}

func projectListCmd() *cobra.Command {
	var status, client string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLoadedLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				items, err := l.ListProjects(ctx, repo.ProjectFilters{Status: status, Client: client, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printProjectTable(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&client, "client", "", "client address filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProjectID(args[0])
			if err != nil {
				return err
			}
			return withLoadedLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				p, err := l.GetProject(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectAcceptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accept <id>",
		Short: "Accept a project as freelancer",
		Args:  cobra.ExactArgs(1),
		RunE:  projectActionRunE(func(ctx context.Context, l ledger.Ledger, id int64, caller string) (domain.Project, error) {
			return l.AcceptProject(ctx, id, caller)
		}),
	}
	return cmd
}

func projectFundCmd() *cobra.Command {
	var paid int64
	cmd := &cobra.Command{
		Use:   "fund <id>",
		Short: "Fund a project's escrow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProjectID(args[0])
			if err != nil {
				return err
			}
			caller, err := callerAddress()
			if err != nil {
				return err
			}
			return withLoadedLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				p, err := l.FundProject(ctx, id, caller, paid)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().Int64Var(&paid, "paid", 0, "payment in base units; must equal the project amount")
	_ = cmd.MarkFlagRequired("paid")
	return cmd
}

func projectStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Start work",
		Args:  cobra.ExactArgs(1),
		RunE: projectActionRunE(func(ctx context.Context, l ledger.Ledger, id int64, caller string) (domain.Project, error) {
			return l.StartWork(ctx, id, caller)
		}),
	}
}

func projectSubmitCmd() *cobra.Command {
	var uri string
	cmd := &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit work for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProjectID(args[0])
			if err != nil {
				return err
			}
			caller, err := callerAddress()
			if err != nil {
				return err
			}
			return withLoadedLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				p, err := l.SubmitWork(ctx, id, caller, uri)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&uri, "deliverable", "", "deliverable URI")
	_ = cmd.MarkFlagRequired("deliverable")
	return cmd
}

func projectApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve completion and release escrow",
		Args:  cobra.ExactArgs(1),
		RunE: projectActionRunE(func(ctx context.Context, l ledger.Ledger, id int64, caller string) (domain.Project, error) {
			return l.ApproveCompletion(ctx, id, caller)
		}),
	}
}

func projectVaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vault <id>",
		Short: "Show a project's vault entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProjectID(args[0])
			if err != nil {
				return err
			}
			return withLoadedLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				v, err := l.GetVault(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
}

func projectOfUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "of <address>",
		Short: "List project ids for an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLoadedLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				ids, err := l.UserProjects(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(ids)
			})
		},
	}
}

func disputeCmd() *cobra.Command {
	dsp := &cobra.Command{
		Use:   "dispute",
		Short: "Open and resolve disputes",
	}
	dsp.AddCommand(disputeOpenCmd())
	dsp.AddCommand(disputeResolveCmd())
	return dsp
}

func disputeOpenCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "open <id>",
		Short: "Initiate a dispute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProjectID(args[0])
			if err != nil {
				return err
			}
			caller, err := callerAddress()
			if err != nil {
				return err
			}
			return withLoadedLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				p, err := l.InitiateDispute(ctx, id, caller, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "dispute reason")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func disputeResolveCmd() *cobra.Command {
	var winner, resolution string
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve a dispute (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProjectID(args[0])
			if err != nil {
				return err
			}
			caller, err := callerAddress()
			if err != nil {
				return err
			}
			return withLoadedLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				p, err := l.ResolveDispute(ctx, id, caller, winner, resolution)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&winner, "winner", "", "winning party address")
	cmd.Flags().StringVar(&resolution, "resolution", "", "resolution note")
	_ = cmd.MarkFlagRequired("winner")
	_ = cmd.MarkFlagRequired("resolution")
	return cmd
}

func reputationCmd() *cobra.Command {
	rep := &cobra.Command{Use: "reputation", Short: "Reputation records"}
	rep.AddCommand(&cobra.Command{
		Use:   "show <address>",
		Short: "Show reputation for an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLoadedLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				r, err := l.GetReputation(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	})
	return rep
}

func adminCmd() *cobra.Command {
	adm := &cobra.Command{
		Use:   "admin",
		Short: "Owner operations",
	}
	adm.AddCommand(adminSettingsCmd())
	adm.AddCommand(adminFeeCmd())
	adm.AddCommand(adminTreasuryCmd())
	adm.AddCommand(adminWithdrawCmd())
	return adm
}

func adminSettingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Show ledger settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLoadedLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				s, err := l.GetSettings(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
}

func adminFeeCmd() *cobra.Command {
	var bps int64
	cmd := &cobra.Command{
		Use:   "set-fee",
		Short: "Set platform fee in basis points",
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := callerAddress()
			if err != nil {
				return err
			}
			return withLoadedLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				s, err := l.SetPlatformFee(ctx, caller, bps)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().Int64Var(&bps, "bps", 0, "fee in basis points (max 1000)")
	_ = cmd.MarkFlagRequired("bps")
	return cmd
}

func adminTreasuryCmd() *cobra.Command {
	var treasury string
	cmd := &cobra.Command{
		Use:   "set-treasury",
		Short: "Set treasury address",
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := callerAddress()
			if err != nil {
				return err
			}
			return withLoadedLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				s, err := l.SetTreasuryAddress(ctx, caller, treasury)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&treasury, "address", "", "treasury address")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func adminWithdrawCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "withdraw-fees",
		Short: "Withdraw accrued token fees to the owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := callerAddress()
			if err != nil {
				return err
			}
			return withLoadedLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				t, err := l.WithdrawFees(ctx, caller, token)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "token to withdraw")
	return cmd
}

func transfersCmd() *cobra.Command {
	var recipient string
	var projectID int64
	var limit int
	cmd := &cobra.Command{
		Use:   "transfers",
		Short: "List value transfers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLoadedLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				f := repo.TransferFilters{Recipient: recipient, Limit: limit}
				if cmd.Flags().Changed("project") {
					f.ProjectID = &projectID
				}
				items, err := l.ListTransfers(ctx, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&recipient, "recipient", "", "recipient filter")
	cmd.Flags().Int64Var(&projectID, "project", 0, "project id filter")
	cmd.Flags().IntVar(&limit, "limit", 100, "max rows")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	var projectID int64
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLoadedLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
				var pid *int64
				if cmd.Flags().Changed("project") {
					pid = &projectID
				}
				items, err := l.Repo.LatestEvents(ctx, n, pid, evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().Int64Var(&projectID, "project", 0, "project id filter")
	return cmd
}

func authCmd() *cobra.Command {
	auth := &cobra.Command{Use: "auth", Short: "API key management"}
	auth.AddCommand(authKeyCreateCmd())
	auth.AddCommand(authKeyListCmd())
	auth.AddCommand(authKeyDeleteCmd())
	return auth
}

func authKeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create-key",
		Short: "Create an API key for the caller address",
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := callerAddress()
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				plaintext := uuid.NewString()
				key := domain.APIKey{
					ID:      uuid.NewString(),
					Address: caller,
					Name:    name,
					KeyHash: repo.HashAPIKey(plaintext),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				fmt.Printf("API key (save it now, it is not stored): %s\n", plaintext)
				return printJSONOrTable(map[string]string{"id": key.ID, "address": key.Address})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func authKeyListCmd() *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "list-keys",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, address)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "filter by address")
	return cmd
}

func authKeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-key <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			l := ledger.New(conn, cfg)
			if _, err := l.Init(cmd.Context()); err != nil {
				return err
			}
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("ESCROWLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("ESCROWLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Ledger: l, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Escrowline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withLedger(ctx context.Context, cfg *config.Config, fn func(context.Context, ledger.Ledger) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, ledger.New(conn, cfg))
}

func withLoadedLedger(ctx context.Context, fn func(context.Context, ledger.Ledger) error) error {
	cfg, err := config.Load(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	return withLedger(ctx, cfg, fn)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func parseProjectID(arg string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(arg, "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid project id %q", arg)
	}
	if id < 0 {
		return 0, fmt.Errorf("invalid project id %q", arg)
	}
	return id, nil
}

func projectActionRunE(action func(context.Context, ledger.Ledger, int64, string) (domain.Project, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseProjectID(args[0])
		if err != nil {
			return err
		}
		caller, err := callerAddress()
		if err != nil {
			return err
		}
		return withLoadedLedger(cmd.Context(), func(ctx context.Context, l ledger.Ledger) error {
			p, err := action(ctx, l, id, caller)
			if err != nil {
				return err
			}
			return printJSONOrTable(p)
		})
	}
}

func printProjectTable(items []domain.Project) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Status", "Client", "Freelancer", "Amount", "Token", "Deadline"})
	for _, p := range items {
		token := p.PaymentToken
		if token == "" {
			token = "native"
		}
		t.AppendRow(table.Row{p.ID, p.Status, p.Client, p.Freelancer, p.Amount, token, p.Deadline})
	}
	t.Render()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
