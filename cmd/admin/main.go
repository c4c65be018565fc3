package main

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"time"

	"github.com/adamscao/ovpnbot/internal/audit"
	"github.com/adamscao/ovpnbot/internal/auth"
	"github.com/adamscao/ovpnbot/internal/ca"
	"github.com/adamscao/ovpnbot/internal/catalog"
	"github.com/adamscao/ovpnbot/internal/config"
	"github.com/adamscao/ovpnbot/internal/db"
	"github.com/adamscao/ovpnbot/internal/db/repository"
	"github.com/adamscao/ovpnbot/internal/issuance"
	"github.com/adamscao/ovpnbot/internal/logging"
	"github.com/adamscao/ovpnbot/internal/models"
	"github.com/adamscao/ovpnbot/internal/ovpn"
	"github.com/adamscao/ovpnbot/internal/runner"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        *config.Config
	database   *db.DB
)

var rootCmd = &cobra.Command{
	Use:   "ovpnbot-admin",
	Short: "OpenVPN credential bot administration tool",
	Long:  "Administrative tool for issuing OpenVPN client configs, browsing the catalog and inspecting the audit trail",
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage VPN users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Issue a certificate and client config for a new user",
	Args:  cobra.ExactArgs(1),
	RunE:  createUser,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issued client configs",
	RunE:  listUsers,
}

var userPathCmd = &cobra.Command{
	Use:   "path <username>",
	Short: "Print the path of a user's client config",
	Args:  cobra.ExactArgs(1),
	RunE:  userPath,
}

var userPartialCmd = &cobra.Command{
	Use:   "partial",
	Short: "List users whose certificate was issued without a client config",
	RunE:  listPartial,
}

var issuanceCmd = &cobra.Command{
	Use:   "issuance",
	Short: "Inspect issuance records",
}

var issuanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issuance records",
	RunE:  listIssuances,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit trail",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries",
	RunE:  listAudit,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old audit log entries",
	RunE:  pruneAudit,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the admin API token",
}

var tokenGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a random admin token and its hash",
	RunE:  generateToken,
}

var tokenHashCmd = &cobra.Command{
	Use:   "hash <token>",
	Short: "Hash an admin token for admin.token_hash",
	Args:  cobra.ExactArgs(1),
	RunE:  hashToken,
}

var totpCmd = &cobra.Command{
	Use:   "totp",
	Short: "Manage the admin API second factor",
}

var totpGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a TOTP secret for admin.totp_secret",
	RunE:  generateTOTP,
}

// partialLimit bounds "user partial", which has no --limit flag
const partialLimit = 1000

var (
	page        int
	username    string
	action      string
	limit       int
	onlyPartial bool
	olderThan   time.Duration
	account     string
)

func init() {
	// Root flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/ovpnbot/config.yaml", "Config file path")

	// User flags
	userListCmd.Flags().IntVarP(&page, "page", "p", 1, "Page number (1-based)")

	// Issuance flags
	issuanceListCmd.Flags().StringVarP(&username, "username", "u", "", "Filter by username")
	issuanceListCmd.Flags().BoolVar(&onlyPartial, "partial", false, "Only partial issuances")
	issuanceListCmd.Flags().IntVarP(&limit, "limit", "n", repository.DefaultAuditLimit, "Maximum number of records")

	// Audit flags
	auditListCmd.Flags().StringVarP(&username, "username", "u", "", "Filter by username")
	auditListCmd.Flags().StringVarP(&action, "action", "a", "", "Filter by action")
	auditListCmd.Flags().IntVarP(&limit, "limit", "n", repository.DefaultAuditLimit, "Maximum number of entries")
	auditPruneCmd.Flags().DurationVar(&olderThan, "older-than", 0, "Delete entries older than this, e.g. 2160h (required)")
	auditPruneCmd.MarkFlagRequired("older-than")

	// TOTP flags
	totpGenerateCmd.Flags().StringVar(&account, "account", "admin", "Account name shown in the authenticator app")

	// Add commands
	userCmd.AddCommand(userCreateCmd, userListCmd, userPathCmd, userPartialCmd)
	issuanceCmd.AddCommand(issuanceListCmd)
	auditCmd.AddCommand(auditListCmd, auditPruneCmd)
	tokenCmd.AddCommand(tokenGenerateCmd, tokenHashCmd)
	totpCmd.AddCommand(totpGenerateCmd)
	rootCmd.AddCommand(userCmd, issuanceCmd, auditCmd, tokenCmd, totpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.LoadCoreWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

func initDB() error {
	if err := loadConfig(); err != nil {
		return err
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path is not configured")
	}

	var err error
	database, err = db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	return nil
}

// cliContext tags audit entries with the invoking OS user
func cliContext(ctx context.Context) context.Context {
	name := "unknown"
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	return audit.WithActor(ctx, models.SourceCLI, name)
}

func newCatalog() *catalog.Service {
	return catalog.NewService(afero.NewOsFs(), cfg.OpenVPN.OutputDir, cfg.OpenVPN.Extension, cfg.Catalog.PageSize)
}

func createUser(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	ctx := cliContext(cmd.Context())
	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	var (
		recorder audit.Recorder
		store    issuance.IssuanceStore
	)
	if cfg.Database.Path != "" {
		var err error
		database, err = db.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()
		recorder = repository.NewAuditRepository(database.DB)
		store = repository.NewIssuanceRepository(database.DB)
	}

	fs := afero.NewOsFs()
	authority := ca.NewAuthority(fs, runner.NewExecRunner(), ca.Options{
		Dir:            cfg.CA.EasyRSADir,
		ValidityDays:   cfg.CA.ValidityDays,
		Timeout:        cfg.GetIssueTimeout(),
		FixPermissions: cfg.CA.FixPermissions,
		DirMode:        cfg.CA.DirMode,
		Owner:          cfg.CA.Owner,
	})
	assembler := ovpn.NewAssembler(fs, ovpn.Options{
		TemplatePath: cfg.OpenVPN.TemplatePath,
		OutputDir:    cfg.OpenVPN.OutputDir,
		Extension:    cfg.OpenVPN.Extension,
		InlinePath:   authority.InlinePath,
	}, logger)

	coordinator := issuance.NewCoordinator(authority, assembler, store, audit.NewTrail(recorder, logger), logger)
	res, err := coordinator.CreateUser(ctx, args[0])
	if err != nil {
		if e, ok := issuance.AsError(err); ok && e.Detail != "" {
			fmt.Fprintf(os.Stderr, "Stage: %s\n%s\n", e.Stage, e.Detail)
		}
		return err
	}

	fmt.Printf("\nUser created successfully!\n")
	fmt.Printf("Username:    %s\n", res.Username)
	fmt.Printf("Config file: %s\n", res.Path)

	return nil
}

func listUsers(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if page < 1 {
		return fmt.Errorf("--page must be at least 1")
	}

	p, err := newCatalog().Page(page - 1)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if p.TotalCount == 0 {
		fmt.Println("No users found")
		return nil
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("page %d is out of range (1-%d)", page, p.TotalPages)
	}

	fmt.Printf("\nTotal users: %d (page %d/%d)\n\n", p.TotalCount, p.PageIndex+1, p.TotalPages)
	fmt.Printf("%-5s %-32s %s\n", "#", "Username", "Size")
	fmt.Println("--------------------------------------------------")

	start := p.PageIndex*cfg.Catalog.PageSize + 1
	for i, e := range p.Items {
		fmt.Printf("%-5d %-32s %s\n", start+i, e.Username, catalog.FormatSize(e.SizeKB))
	}

	return nil
}

func userPath(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	path, err := newCatalog().GetUserConfigPath(args[0])
	if err != nil {
		return err
	}

	fmt.Println(path)
	return nil
}

func listPartial(cmd *cobra.Command, args []string) error {
	onlyPartial = true
	username = ""
	limit = partialLimit
	return listIssuances(cmd, args)
}

func listIssuances(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	repo := repository.NewIssuanceRepository(database.DB)
	records, err := repo.List(cmd.Context(), username, onlyPartial, limit)
	if err != nil {
		return fmt.Errorf("failed to list issuances: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No issuances found")
		return nil
	}

	fmt.Printf("\nTotal records: %d\n\n", len(records))
	fmt.Printf("%-20s %-24s %-8s %-20s %s\n", "Issued", "Username", "Partial", "Valid To", "Config")
	fmt.Println("--------------------------------------------------------------------------------------------")

	for _, r := range records {
		partial := "No"
		if r.Partial {
			partial = "Yes"
		}
		validTo := "-"
		if !r.ValidTo.IsZero() {
			validTo = r.ValidTo.Format("2006-01-02 15:04:05")
		}
		configPath := r.ConfigPath
		if configPath == "" {
			configPath = "-"
		}
		fmt.Printf("%-20s %-24s %-8s %-20s %s\n",
			r.IssuedAt.Format("2006-01-02 15:04:05"),
			r.Username,
			partial,
			validTo,
			configPath,
		)
	}

	return nil
}

func listAudit(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	repo := repository.NewAuditRepository(database.DB)
	logs, err := repo.List(cmd.Context(), username, action, limit)
	if err != nil {
		return fmt.Errorf("failed to list audit logs: %w", err)
	}

	if len(logs) == 0 {
		fmt.Println("No audit log entries found")
		return nil
	}

	fmt.Printf("%-20s %-22s %-20s %-10s %-16s %-8s %s\n", "Time", "Action", "Username", "Source", "Actor", "Success", "Error")
	fmt.Println("--------------------------------------------------------------------------------------------------------------")

	for _, l := range logs {
		fmt.Printf("%-20s %-22s %-20s %-10s %-16s %-8s %s\n",
			l.Timestamp.Format("2006-01-02 15:04:05"),
			l.Action,
			l.Username,
			l.Source,
			l.Actor,
			strconv.FormatBool(l.Success),
			l.ErrorMsg,
		)
	}

	return nil
}

func pruneAudit(cmd *cobra.Command, args []string) error {
	if olderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	repo := repository.NewAuditRepository(database.DB)
	n, err := repo.DeleteOld(cmd.Context(), time.Now().Add(-olderThan))
	if err != nil {
		return fmt.Errorf("failed to prune audit logs: %w", err)
	}

	fmt.Printf("Deleted %d audit log entries\n", n)
	return nil
}

func generateToken(cmd *cobra.Command, args []string) error {
	token, err := auth.GenerateAdminToken()
	if err != nil {
		return err
	}

	hash, err := auth.HashSecret(token)
	if err != nil {
		return err
	}

	fmt.Printf("Admin token: %s\n", token)
	fmt.Printf("Token hash:  %s\n", hash)
	fmt.Printf("\nPut the hash in admin.token_hash and keep the token secret.\n")
	return nil
}

func hashToken(cmd *cobra.Command, args []string) error {
	hash, err := auth.HashSecret(args[0])
	if err != nil {
		return err
	}

	fmt.Println(hash)
	return nil
}

func generateTOTP(cmd *cobra.Command, args []string) error {
	secret, err := auth.GenerateTOTPSecret(account)
	if err != nil {
		return err
	}

	fmt.Printf("TOTP Secret: %s\n", secret)
	fmt.Printf("TOTP QR URL: %s\n", auth.GenerateQRCodeURL(secret, account, ""))
	fmt.Printf("\nPut the secret in admin.totp_secret and scan the QR URL with a TOTP app.\n")
	return nil
}
