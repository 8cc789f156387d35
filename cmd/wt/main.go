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

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"worktrade/internal/app"
	"worktrade/internal/domain"
	"worktrade/internal/engine"
	"worktrade/internal/identity"
	"worktrade/internal/repo"
	"worktrade/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "wt",
	Short: "Worktrade CLI",
	Long: `Worktrade mediates paid work between buyers and developers.
Core concepts:
- Workspace: your .worktrade directory holding the database and solution blobs.
- Project: a buyer's posting with an hourly rate; open until closed or a proposal is accepted.
- Proposal: a developer's pitch on an open project; accepting one closes the project and rejects the rest.
- Task: assigned work that moves assigned -> in_progress -> submitted -> paid, strictly forward.
- Payment: computed as the task rate times the hours reported at submission; exactly one per task.
- Solution: the submitted archive, downloadable by the paying buyer only after payment.
- Event log: diary of changes, view with 'wt log tail' (admin).`,
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
	viper.SetEnvPrefix("WORKTRADE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", app.DefaultAdminID, "acting actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(proposalCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(paymentCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfgPath, err := app.InitWorkspace(workspace)
			if err != nil {
				return err
			}
			env, err := app.Open(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer env.Close()
			fmt.Printf("Workspace ready. Config at %s\n", cfgPath)
			return nil
		},
	}
}

func actorCmd() *cobra.Command {
	actor := &cobra.Command{
		Use:   "actor",
		Short: "Manage actors",
		Long:  "Actors are the people on the platform: buyers post projects and pay, developers propose and deliver, admins run the place.",
	}
	actor.AddCommand(actorCreateCmd())
	actor.AddCommand(actorListCmd())
	actor.AddCommand(actorKeyCmd())
	return actor
}

func actorCreateCmd() *cobra.Command {
	var opts engine.ActorCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				a, err := e.CreateActor(ctx, caller, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "actor id (optional)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Role, "role", "", "role (buyer, developer, admin)")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func actorListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				items, err := e.ListActors(ctx, caller, role)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Created"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Name, a.Role, a.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	return cmd
}

func actorKeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "key", Short: "Manage API keys"}
	key.AddCommand(actorKeyCreateCmd())
	key.AddCommand(actorKeyListCmd())
	key.AddCommand(actorKeyRevokeCmd())
	return key
}

func actorKeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				target := actorID
				if target == "" {
					target = caller.ActorID
				}
				key, plaintext, err := e.CreateAPIKey(ctx, caller, target, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "actor_id": key.ActorID, "name": key.Name, "key": plaintext})
				}
				fmt.Printf("API key %s for %s\n", key.ID, key.ActorID)
				fmt.Printf("Secret (shown once): %s\n", plaintext)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id (defaults to caller)")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func actorKeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				target := actorID
				if target == "" {
					target = caller.ActorID
				}
				keys, err := e.ListAPIKeys(ctx, caller, target)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id (defaults to caller)")
	return cmd
}

func actorKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				return e.DeleteAPIKey(ctx, caller, args[0])
			})
		},
	}
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
		Long:  "Projects are buyer postings. They stay open to proposals until the buyer closes them or accepts a proposal.",
	}
	prj.AddCommand(projectPostCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectCloseCmd())
	return prj
}

func projectPostCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	var tags []string
	var estimated float64
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Tags = tags
			if cmd.Flags().Changed("estimated-hours") {
				opts.EstimatedHours = &estimated
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				p, err := e.CreateProject(ctx, caller, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (optional)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringArrayVar(&tags, "tag", []string{}, "tag (repeatable)")
	cmd.Flags().Float64Var(&opts.HourlyRate, "rate", 0, "hourly rate")
	cmd.Flags().Float64Var(&estimated, "estimated-hours", 0, "estimated hours")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("rate")
	return cmd
}

func projectListCmd() *cobra.Command {
	var f repo.ProjectFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Browse projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ identity.Principal) error {
				items, err := e.ListProjects(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Buyer", "Rate", "Status"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Title, p.BuyerID, p.HourlyRate, p.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.BuyerID, "buyer", "", "buyer filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter (open, closed)")
	cmd.Flags().StringVar(&f.Tag, "tag", "", "tag filter")
	cmd.Flags().StringVar(&f.Search, "search", "", "title/description search")
	cmd.Flags().Float64Var(&f.MinRate, "min-rate", 0, "minimum hourly rate")
	cmd.Flags().Float64Var(&f.MaxRate, "max-rate", 0, "maximum hourly rate")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max results")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ identity.Principal) error {
				p, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <id>",
		Short: "Close a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				p, err := e.CloseProject(ctx, caller, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func proposalCmd() *cobra.Command {
	prop := &cobra.Command{
		Use:   "proposal",
		Short: "Manage proposals",
		Long:  "Proposals are developer pitches on open projects. A developer keeps one live proposal per project; accepting one closes the project and rejects the rest.",
	}
	prop.AddCommand(proposalSubmitCmd())
	prop.AddCommand(proposalListCmd())
	prop.AddCommand(proposalShowCmd())
	prop.AddCommand(proposalActionCmd("accept", "Accept a proposal", func(e engine.Engine) proposalAction { return e.AcceptProposal }))
	prop.AddCommand(proposalActionCmd("reject", "Reject a proposal", func(e engine.Engine) proposalAction { return e.RejectProposal }))
	prop.AddCommand(proposalActionCmd("withdraw", "Withdraw a proposal", func(e engine.Engine) proposalAction { return e.WithdrawProposal }))
	return prop
}

func proposalSubmitCmd() *cobra.Command {
	var opts engine.ProposalSubmitOptions
	var estimated float64
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a proposal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("estimated-hours") {
				opts.EstimatedHours = &estimated
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				p, err := e.SubmitProposal(ctx, caller, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.CoverLetter, "cover-letter", "", "cover letter")
	cmd.Flags().Float64Var(&opts.ProposedRate, "rate", 0, "proposed hourly rate")
	cmd.Flags().Float64Var(&estimated, "estimated-hours", 0, "estimated hours")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("rate")
	return cmd
}

func proposalListCmd() *cobra.Command {
	var f repo.ProposalFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List proposals visible to the caller",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				items, err := e.ListProposals(ctx, caller, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Project", "Developer", "Rate", "Status"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.ProjectID, p.DeveloperID, p.ProposedRate, p.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max results")
	return cmd
}

func proposalShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				p, err := e.GetProposal(ctx, caller, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

type proposalAction func(context.Context, identity.Principal, string) (domain.Proposal, error)

func proposalActionCmd(verb, short string, pick func(engine.Engine) proposalAction) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				p, err := pick(e)(ctx, caller, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks are the paid work items. Statuses move strictly forward: assigned -> in_progress -> submitted -> paid.",
	}
	task.AddCommand(taskAssignCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskStartCmd())
	task.AddCommand(taskSubmitCmd())
	task.AddCommand(taskPayCmd())
	task.AddCommand(taskSolutionCmd())
	return task
}

func taskAssignCmd() *cobra.Command {
	var opts engine.TaskAssignOptions
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign a task to a developer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				t, err := e.AssignTask(ctx, caller, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (optional)")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.DeveloperID, "developer", "", "developer id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().Float64Var(&opts.HourlyRate, "rate", 0, "hourly rate (defaults from the accepted proposal or the project)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("developer")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks visible to the caller",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				items, err := e.ListTasks(ctx, caller, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Project", "Developer", "Title", "Rate", "Status"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.ProjectID, t.DeveloperID, t.Title, t.HourlyRate, t.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max results")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				t, err := e.GetTask(ctx, caller, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Start an assigned task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				t, err := e.StartTask(ctx, caller, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskSubmitCmd() *cobra.Command {
	var archivePath string
	var hours float64
	cmd := &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit a solution archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(archivePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				t, err := e.SubmitTask(ctx, caller, engine.TaskSubmitOptions{
					TaskID:         args[0],
					Archive:        data,
					TimeSpentHours: hours,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&archivePath, "archive", "", "path to solution archive")
	cmd.Flags().Float64Var(&hours, "hours", 0, "time spent in hours")
	_ = cmd.MarkFlagRequired("archive")
	_ = cmd.MarkFlagRequired("hours")
	return cmd
}

func taskPayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pay <id>",
		Short: "Pay for a submitted task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				p, err := e.PayTask(ctx, caller, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func taskSolutionCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "solution <id>",
		Short: "Download a paid solution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				data, err := e.DownloadSolution(ctx, caller, args[0])
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					_, err = os.Stdout.Write(data)
					return err
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %d bytes to %s\n", len(data), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	return cmd
}

func paymentCmd() *cobra.Command {
	pay := &cobra.Command{Use: "payment", Short: "Inspect payments"}
	pay.AddCommand(paymentListCmd())
	pay.AddCommand(paymentShowCmd())
	return pay
}

func paymentListCmd() *cobra.Command {
	var f repo.PaymentFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List payments visible to the caller",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				items, err := e.ListPayments(ctx, caller, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Task", "Buyer", "Developer", "Amount", "Currency"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.TaskID, p.BuyerID, p.DeveloperID, p.Amount, p.Currency})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.TaskID, "task", "", "task filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max results")
	return cmd
}

func paymentShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				p, err := e.GetPayment(ctx, caller, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Platform-wide aggregates (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				stats, err := e.Stats(ctx, caller)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				fmt.Printf("Buyers: %d  Developers: %d\n", stats.TotalBuyers, stats.TotalDevelopers)
				fmt.Printf("Projects: %d (%d open)\n", stats.TotalProjects, stats.OpenProjects)
				fmt.Printf("Tasks: %d (%d unpaid)\n", stats.TotalTasks, stats.PendingTasks)
				for status, c := range stats.TasksByStatus {
					fmt.Printf("  %s: %d\n", status, c)
				}
				fmt.Printf("Payments: %d  Revenue: %.2f  Hours paid: %.2f\n", stats.TotalPayments, stats.TotalRevenue, stats.TotalHoursPaid)
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: projects posted, proposals accepted, tasks paid.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				events, err := e.ListEvents(ctx, caller, n, 0, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func authCmd() *cobra.Command {
	auth := &cobra.Command{Use: "auth", Short: "Authentication helpers"}
	auth.AddCommand(authTokenCmd())
	return auth
}

func authTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a JWT for the acting actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("WORKTRADE_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("WORKTRADE_JWT_SECRET is required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, caller identity.Principal) error {
				token, err := server.SignToken(secret, caller.ActorID, caller.Role, ttl)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"token": token})
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			env, err := app.Open(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer env.Close()
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("WORKTRADE_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacy,
			}
			if authCfg.JWTSecret == "" && !allowLegacy {
				return fmt.Errorf("WORKTRADE_JWT_SECRET is required for bearer auth (or pass --allow-legacy-actor-header for local use)")
			}
			handler, err := server.New(server.Config{Engine: env.Engine, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(env.Engine)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Worktrade API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-actor-header", false, "trust the X-Actor-Id header (local development only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, identity.Principal) error) error {
	env, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer env.Close()
	caller, err := app.ResolvePrincipal(ctx, env.Engine.Repo, viper.GetString("actor-id"))
	if err != nil {
		return err
	}
	return fn(ctx, env.Engine, caller)
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
